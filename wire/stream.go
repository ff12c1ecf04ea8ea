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

import (
	"encoding/binary"
	"fmt"
	"io"
)

// ReadFrame reads exactly one frame off r, blocking until the full length
// prefix and payload have arrived. Unlike ParseFrame, which operates on an
// already-buffered slice and reports ErrIncomplete on short input, ReadFrame
// is for callers holding a live connection: there is always more to wait
// for, so short reads are not a distinct outcome.
func ReadFrame(r io.Reader) (Frame, error) {
	var lenbuf [4]byte
	if _, err := io.ReadFull(r, lenbuf[:]); err != nil {
		return Frame{}, fmt.Errorf("read length prefix: %s", err)
	}
	length := binary.BigEndian.Uint32(lenbuf[:])
	if length == 0 {
		return Frame{Kind: KindKeepAlive}, nil
	}
	if length > MaxPayloadLength {
		return Frame{}, errKind(MsgTooLarge, "length prefix %d exceeds %d", length, MaxPayloadLength)
	}
	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return Frame{}, fmt.Errorf("read payload: %s", err)
	}
	return decodePayload(body[0], body[1:])
}

// WriteFrame serializes f and writes it to w in full.
func WriteFrame(w io.Writer, f Frame) error {
	_, err := w.Write(EncodeFrame(f))
	return err
}

// ReadHandshake reads exactly HandshakeLength bytes off r and parses them.
func ReadHandshake(r io.Reader) (Handshake, error) {
	buf := make([]byte, HandshakeLength)
	if _, err := io.ReadFull(r, buf); err != nil {
		return Handshake{}, fmt.Errorf("read handshake: %s", err)
	}
	hs, _, err := ParseHandshake(buf)
	return hs, err
}

// WriteHandshake serializes hs and writes it to w in full.
func WriteHandshake(w io.Writer, hs Handshake) error {
	_, err := w.Write(EncodeHandshake(hs))
	return err
}
