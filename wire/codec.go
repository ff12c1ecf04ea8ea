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

import "encoding/binary"

// ParseFrame attempts to parse one length-prefixed frame from the front of
// buf. It returns:
//   - (frame, n, nil): a complete frame was decoded, consuming n bytes.
//   - (_, 0, ErrIncomplete): buf does not yet hold a complete frame; the
//     caller must not advance its cursor and should read more bytes.
//   - (_, 0, *WireError): a structural violation (unknown id, wrong fixed
//     payload length, oversize payload).
//
// ParseFrame assumes the handshake has already been consumed from the
// stream; the connection, not this function, is responsible for routing
// the very first frame of each direction through ParseHandshake instead.
func ParseFrame(buf []byte) (Frame, int, error) {
	if len(buf) < 4 {
		return Frame{}, 0, ErrIncomplete
	}
	length := binary.BigEndian.Uint32(buf[0:4])
	if length == 0 {
		return Frame{Kind: KindKeepAlive}, 4, nil
	}
	if length > MaxPayloadLength {
		return Frame{}, 0, errKind(MsgTooLarge, "length prefix %d exceeds %d", length, MaxPayloadLength)
	}
	total := 4 + int(length)
	if len(buf) < total {
		return Frame{}, 0, ErrIncomplete
	}
	id := buf[4]
	payload := buf[5:total]
	f, err := decodePayload(id, payload)
	if err != nil {
		return Frame{}, 0, err
	}
	return f, total, nil
}

func decodePayload(id byte, payload []byte) (Frame, error) {
	switch id {
	case 0:
		if len(payload) != 0 {
			return Frame{}, errKind(InvalidLength, "choke payload must be empty, got %d bytes", len(payload))
		}
		return Frame{Kind: KindChoke}, nil
	case 1:
		if len(payload) != 0 {
			return Frame{}, errKind(InvalidLength, "unchoke payload must be empty, got %d bytes", len(payload))
		}
		return Frame{Kind: KindUnchoke}, nil
	case 2:
		if len(payload) != 0 {
			return Frame{}, errKind(InvalidLength, "interested payload must be empty, got %d bytes", len(payload))
		}
		return Frame{Kind: KindInterested}, nil
	case 3:
		if len(payload) != 0 {
			return Frame{}, errKind(InvalidLength, "not-interested payload must be empty, got %d bytes", len(payload))
		}
		return Frame{Kind: KindNotInterested}, nil
	case 4:
		if len(payload) != 4 {
			return Frame{}, errKind(InvalidLength, "have payload must be 4 bytes, got %d", len(payload))
		}
		return Frame{Kind: KindHave, Index: binary.BigEndian.Uint32(payload)}, nil
	case 5:
		bits := make([]byte, len(payload))
		copy(bits, payload)
		return Frame{Kind: KindBitfield, Bitfield: bits}, nil
	case 6:
		if len(payload) != 12 {
			return Frame{}, errKind(InvalidLength, "request payload must be 12 bytes, got %d", len(payload))
		}
		return Frame{
			Kind:   KindRequest,
			Index:  binary.BigEndian.Uint32(payload[0:4]),
			Begin:  binary.BigEndian.Uint32(payload[4:8]),
			Length: binary.BigEndian.Uint32(payload[8:12]),
		}, nil
	case 7:
		if len(payload) < 8 {
			return Frame{}, errKind(InvalidLength, "piece payload must be at least 8 bytes, got %d", len(payload))
		}
		block := make([]byte, len(payload)-8)
		copy(block, payload[8:])
		return Frame{
			Kind:  KindPiece,
			Index: binary.BigEndian.Uint32(payload[0:4]),
			Begin: binary.BigEndian.Uint32(payload[4:8]),
			Block: block,
		}, nil
	case 8:
		if len(payload) != 12 {
			return Frame{}, errKind(InvalidLength, "cancel payload must be 12 bytes, got %d", len(payload))
		}
		return Frame{
			Kind:   KindCancel,
			Index:  binary.BigEndian.Uint32(payload[0:4]),
			Begin:  binary.BigEndian.Uint32(payload[4:8]),
			Length: binary.BigEndian.Uint32(payload[8:12]),
		}, nil
	case 9:
		if len(payload) != 4 {
			return Frame{}, errKind(InvalidLength, "port payload must be 4 bytes, got %d", len(payload))
		}
		return Frame{Kind: KindPort, Port: uint16(binary.BigEndian.Uint32(payload))}, nil
	default:
		return Frame{}, errKind(UnknownId, "message id %d", id)
	}
}

// EncodeFrame serializes f into its length-prefixed wire form.
func EncodeFrame(f Frame) []byte {
	switch f.Kind {
	case KindKeepAlive:
		return []byte{0, 0, 0, 0}
	case KindChoke:
		return framed(0, nil)
	case KindUnchoke:
		return framed(1, nil)
	case KindInterested:
		return framed(2, nil)
	case KindNotInterested:
		return framed(3, nil)
	case KindHave:
		payload := make([]byte, 4)
		binary.BigEndian.PutUint32(payload, f.Index)
		return framed(4, payload)
	case KindBitfield:
		return framed(5, f.Bitfield)
	case KindRequest:
		payload := make([]byte, 12)
		binary.BigEndian.PutUint32(payload[0:4], f.Index)
		binary.BigEndian.PutUint32(payload[4:8], f.Begin)
		binary.BigEndian.PutUint32(payload[8:12], f.Length)
		return framed(6, payload)
	case KindPiece:
		payload := make([]byte, 8+len(f.Block))
		binary.BigEndian.PutUint32(payload[0:4], f.Index)
		binary.BigEndian.PutUint32(payload[4:8], f.Begin)
		copy(payload[8:], f.Block)
		return framed(7, payload)
	case KindCancel:
		payload := make([]byte, 12)
		binary.BigEndian.PutUint32(payload[0:4], f.Index)
		binary.BigEndian.PutUint32(payload[4:8], f.Begin)
		binary.BigEndian.PutUint32(payload[8:12], f.Length)
		return framed(8, payload)
	case KindPort:
		payload := make([]byte, 4)
		binary.BigEndian.PutUint32(payload, uint32(f.Port))
		return framed(9, payload)
	default:
		return nil
	}
}

func framed(id byte, payload []byte) []byte {
	buf := make([]byte, 4+1+len(payload))
	binary.BigEndian.PutUint32(buf[0:4], uint32(1+len(payload)))
	buf[4] = id
	copy(buf[5:], payload)
	return buf
}
