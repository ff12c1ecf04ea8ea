// Copyright (c) 2016-2019 Uber Technologies, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package wire

import "github.com/lindris/peerengine/core"

// ProtocolID is the literal protocol string every handshake advertises.
const ProtocolID = "BitTorrent protocol"

// HandshakeLength is the fixed size of the handshake message: pstrlen,
// protocol string, 8 reserved bytes, info hash, peer id.
const HandshakeLength = 1 + len(ProtocolID) + 8 + 20 + 20

// Handshake is the first message exchanged in each direction of a peer
// connection. No extension bits are advertised in the reserved bytes; this
// engine supports no protocol extensions.
type Handshake struct {
	InfoHash core.InfoHash
	PeerID   core.PeerID
}

// EncodeHandshake serializes hs into its fixed 68-byte wire form.
func EncodeHandshake(hs Handshake) []byte {
	buf := make([]byte, HandshakeLength)
	buf[0] = byte(len(ProtocolID))
	copy(buf[1:1+len(ProtocolID)], ProtocolID)
	// buf[1+len(ProtocolID) : 1+len(ProtocolID)+8] stays zero: no
	// extensions are advertised.
	ihOff := 1 + len(ProtocolID) + 8
	copy(buf[ihOff:ihOff+20], hs.InfoHash.Bytes())
	copy(buf[ihOff+20:ihOff+40], hs.PeerID.Bytes())
	return buf
}

// ParseHandshake parses a handshake from the front of buf. It returns
// ErrIncomplete if buf is shorter than HandshakeLength.
func ParseHandshake(buf []byte) (Handshake, int, error) {
	if len(buf) < HandshakeLength {
		return Handshake{}, 0, ErrIncomplete
	}
	if buf[0] != byte(len(ProtocolID)) {
		return Handshake{}, 0, errKind(InvalidProtocolId, "pstrlen %d, expected %d", buf[0], len(ProtocolID))
	}
	if string(buf[1:1+len(ProtocolID)]) != ProtocolID {
		return Handshake{}, 0, errKind(InvalidProtocolId, "unexpected protocol string %q", buf[1:1+len(ProtocolID)])
	}
	ihOff := 1 + len(ProtocolID) + 8
	var ih core.InfoHash
	copy(ih[:], buf[ihOff:ihOff+20])
	pid, err := core.NewPeerIDFromBytes(buf[ihOff+20 : ihOff+40])
	if err != nil {
		return Handshake{}, 0, errKind(InvalidPeerId, "%s", err)
	}
	return Handshake{InfoHash: ih, PeerID: pid}, HandshakeLength, nil
}

// LooksLikeHandshake reports whether buf begins with the byte pattern that
// only a handshake can produce (pstrlen == 19 followed by the literal
// protocol string). Callers use this only to validate that a handshake
// received mid-stream (which the state machine never expects once its own
// handshake has completed) really is one, for error reporting purposes;
// ordinary framing decisions are driven by connection state, not by
// sniffing bytes.
func LooksLikeHandshake(buf []byte) bool {
	if len(buf) < 1+len(ProtocolID) {
		return false
	}
	return buf[0] == byte(len(ProtocolID)) && string(buf[1:1+len(ProtocolID)]) == ProtocolID
}
