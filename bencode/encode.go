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
	"sort"
	"strconv"
)

// Encode serializes v into canonical bencode: integers without leading
// zeros, dict keys emitted in ascending lexicographic order of their raw
// bytes.
func Encode(v Value) []byte {
	var buf bytes.Buffer
	encodeInto(&buf, v)
	return buf.Bytes()
}

// EncodeAll serializes a sequence of top-level values, concatenated.
func EncodeAll(values []Value) []byte {
	var buf bytes.Buffer
	for _, v := range values {
		encodeInto(&buf, v)
	}
	return buf.Bytes()
}

func encodeInto(buf *bytes.Buffer, v Value) {
	switch v.Kind {
	case KindInt:
		buf.WriteByte('i')
		buf.WriteString(strconv.FormatInt(v.Int, 10))
		buf.WriteByte('e')
	case KindBytes:
		buf.WriteString(strconv.Itoa(len(v.Bytes)))
		buf.WriteByte(':')
		buf.Write(v.Bytes)
	case KindList:
		buf.WriteByte('l')
		for _, item := range v.List {
			encodeInto(buf, item)
		}
		buf.WriteByte('e')
	case KindDict:
		buf.WriteByte('d')
		sorted := append([]KV(nil), v.Dict...)
		sort.Slice(sorted, func(i, j int) bool {
			return bytes.Compare(sorted[i].Key, sorted[j].Key) < 0
		})
		for _, kv := range sorted {
			encodeInto(buf, Value{Kind: KindBytes, Bytes: kv.Key})
			encodeInto(buf, kv.Value)
		}
		buf.WriteByte('e')
	}
}
