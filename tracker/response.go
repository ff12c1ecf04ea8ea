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
package tracker

import (
	"encoding/binary"
	"fmt"
	"net"

	"github.com/lindris/peerengine/bencode"
	"github.com/lindris/peerengine/core"
	"github.com/lindris/peerengine/session"
)

// peerEntryLength is the size in bytes of one peer in the compact format:
// 4 bytes of IPv4 address followed by a 2-byte big-endian port.
const peerEntryLength = 6

// parseAnnounceResponse decodes a tracker's bencoded announce reply into its
// interval and peer list. failure reason, if present, is surfaced as an
// error rather than an empty peer list.
func parseAnnounceResponse(body []byte) (interval int, peers []session.TrackerPeer, err error) {
	values, err := bencode.Decode(body)
	if err != nil {
		return 0, nil, fmt.Errorf("decode announce response: %s", err)
	}
	if len(values) == 0 {
		return 0, nil, fmt.Errorf("empty announce response")
	}
	root := values[0]

	if reason, ok := root.Get("failure reason"); ok {
		return 0, nil, fmt.Errorf("tracker failure: %s", reason.Bytes)
	}

	if v, ok := root.Get("interval"); ok {
		interval = int(v.Int)
	}

	peersVal, ok := root.Get("peers")
	if !ok {
		return interval, nil, nil
	}

	switch peersVal.Kind {
	case bencode.KindBytes:
		peers, err = ParsePeersCompact(peersVal.Bytes)
	case bencode.KindList:
		peers, err = ParsePeersDict(peersVal.List)
	default:
		err = fmt.Errorf("peers field has unexpected bencode kind %d", peersVal.Kind)
	}
	return interval, peers, err
}

// ParsePeersCompact decodes BEP 23's compact peer list: a flat byte string
// that is a multiple of 6 bytes, each entry a 4-byte IPv4 address followed
// by a 2-byte big-endian port. Peer ids are not present in this format.
func ParsePeersCompact(b []byte) ([]session.TrackerPeer, error) {
	if len(b)%peerEntryLength != 0 {
		return nil, fmt.Errorf("compact peers length %d not a multiple of %d", len(b), peerEntryLength)
	}
	n := len(b) / peerEntryLength
	peers := make([]session.TrackerPeer, 0, n)
	for i := 0; i < n; i++ {
		entry := b[i*peerEntryLength : (i+1)*peerEntryLength]
		ip := net.IPv4(entry[0], entry[1], entry[2], entry[3])
		port := binary.BigEndian.Uint16(entry[4:6])
		peers = append(peers, session.TrackerPeer{
			Addr: fmt.Sprintf("%s:%d", ip.String(), port),
		})
	}
	return peers, nil
}

// ParsePeersDict decodes the original, non-compact peer list: a bencode list
// of dicts each naming "peer id", "ip" and "port".
func ParsePeersDict(list []bencode.Value) ([]session.TrackerPeer, error) {
	peers := make([]session.TrackerPeer, 0, len(list))
	for _, entry := range list {
		ipVal, ok := entry.Get("ip")
		if !ok {
			return nil, fmt.Errorf("peer dict missing ip")
		}
		portVal, ok := entry.Get("port")
		if !ok {
			return nil, fmt.Errorf("peer dict missing port")
		}
		addr := fmt.Sprintf("%s:%d", ipVal.Bytes, portVal.Int)

		var peerID core.PeerID
		if idVal, ok := entry.Get("peer id"); ok {
			id, err := core.NewPeerIDFromBytes(idVal.Bytes)
			if err != nil {
				return nil, fmt.Errorf("peer dict id: %s", err)
			}
			peerID = id
		}
		peers = append(peers, session.TrackerPeer{Addr: addr, PeerID: peerID})
	}
	return peers, nil
}
