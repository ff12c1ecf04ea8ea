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
package bencode

import (
	"bytes"
	"errors"
	"fmt"
)

var errMalformed = errors.New("bencode: malformed input")

// Locate returns the exact raw bytes bound to key in doc without
// re-encoding anything: it walks the document one value at a time, looking
// for key as a dict entry, descending into dict values (not list elements)
// in document order. It is the tool used to compute info hashes over the
// literal bytes of a metafile's info value, which sidesteps any
// canonicalization mismatch with producers that emit non-canonical
// bencode.
//
// Locate never panics. On malformed input, or if key is absent, it reports
// ok=false.
func Locate(doc []byte, key string) (raw []byte, ok bool) {
	rawKey := []byte(fmt.Sprintf("%d:%s", len(key), key))
	pos := 0
	for pos < len(doc) {
		if doc[pos] == 'd' {
			val, found, next, err := traverseDictRaw(doc, pos+1, rawKey)
			if err != nil {
				return nil, false
			}
			if found {
				return val, true
			}
			pos = next
			continue
		}
		_, next, err := spanValue(doc, pos)
		if err != nil {
			return nil, false
		}
		pos = next
	}
	return nil, false
}

// spanValue returns the raw encoded bytes of the single value beginning at
// pos, and the position immediately following it.
func spanValue(buf []byte, pos int) ([]byte, int, error) {
	if pos >= len(buf) {
		return nil, pos, errMalformed
	}
	start := pos
	switch b := buf[pos]; {
	case b >= '0' && b <= '9':
		p := pos
		for p < len(buf) && buf[p] != ':' {
			if buf[p] < '0' || buf[p] > '9' {
				return nil, pos, errMalformed
			}
			p++
		}
		if p >= len(buf) {
			return nil, pos, errMalformed
		}
		n := 0
		for _, c := range buf[pos:p] {
			n = n*10 + int(c-'0')
		}
		valStart := p + 1
		valEnd := valStart + n
		if valEnd > len(buf) || valEnd < valStart {
			return nil, pos, errMalformed
		}
		return buf[start:valEnd], valEnd, nil
	case b == 'i':
		p := pos + 1
		for p < len(buf) && buf[p] != 'e' {
			p++
		}
		if p >= len(buf) {
			return nil, pos, errMalformed
		}
		return buf[start : p+1], p + 1, nil
	case b == 'l':
		p := pos + 1
		for {
			if p >= len(buf) {
				return nil, pos, errMalformed
			}
			if buf[p] == 'e' {
				return buf[start : p+1], p + 1, nil
			}
			_, next, err := spanValue(buf, p)
			if err != nil {
				return nil, pos, err
			}
			p = next
		}
	case b == 'd':
		p := pos + 1
		for {
			if p >= len(buf) {
				return nil, pos, errMalformed
			}
			if buf[p] == 'e' {
				return buf[start : p+1], p + 1, nil
			}
			_, next, err := spanValue(buf, p) // key
			if err != nil {
				return nil, pos, err
			}
			_, next2, err := spanValue(buf, next) // value
			if err != nil {
				return nil, pos, err
			}
			p = next2
		}
	default:
		return nil, pos, errMalformed
	}
}

// traverseDictRaw searches the dict entries starting at pos (immediately
// after the opening 'd') for an entry whose raw key bytes equal rawKey. It
// also descends into any dict appearing in key or value position whose own
// contents might contain rawKey, matching the reference decoder's
// document-order deep search.
func traverseDictRaw(buf []byte, pos int, rawKey []byte) (value []byte, found bool, next int, err error) {
	for {
		if pos >= len(buf) {
			return nil, false, pos, errMalformed
		}
		if buf[pos] == 'e' {
			return nil, false, pos + 1, nil
		}
		keyRaw, afterKey, err := spanValue(buf, pos)
		if err != nil {
			return nil, false, pos, err
		}
		matched := bytes.Equal(keyRaw, rawKey)
		if !matched && len(keyRaw) > 0 && keyRaw[0] == 'd' {
			if v, ok, _, ierr := traverseDictRaw(buf, pos+1, rawKey); ierr != nil {
				return nil, false, pos, ierr
			} else if ok {
				return v, true, afterKey, nil
			}
		}
		valRaw, afterVal, err := spanValue(buf, afterKey)
		if err != nil {
			return nil, false, pos, err
		}
		if matched {
			return valRaw, true, afterVal, nil
		}
		if len(valRaw) > 0 && valRaw[0] == 'd' {
			if v, ok, _, ierr := traverseDictRaw(buf, afterKey+1, rawKey); ierr != nil {
				return nil, false, pos, ierr
			} else if ok {
				return v, true, afterVal, nil
			}
		}
		pos = afterVal
	}
}
