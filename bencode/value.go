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

// Package bencode implements the bencode encoding used by torrent metafiles
// and the BitTorrent tracker protocol (BEP 3): a tagged tree of integers,
// byte strings, lists and dictionaries, plus a raw sub-value locator used to
// compute info hashes without re-encoding.
package bencode

import "bytes"

// Kind identifies which variant a Value holds.
type Kind int

// The four bencode value kinds.
const (
	KindInt Kind = iota
	KindBytes
	KindList
	KindDict
)

// KV is a single key/value pair of a Dict, preserving document order.
type KV struct {
	Key   []byte
	Value Value
}

// Value is a tagged union over the four bencode types. Dict is represented
// as an ordered slice of KV rather than a map so that decode preserves
// document order (needed to reproduce canonical output deterministically
// and to keep decode allocation-light); Equal ignores key order.
type Value struct {
	Kind  Kind
	Int   int64
	Bytes []byte
	List  []Value
	Dict  []KV
}

// NewInt builds an Int value.
func NewInt(i int64) Value { return Value{Kind: KindInt, Int: i} }

// NewBytes builds a Bytes value.
func NewBytes(b []byte) Value { return Value{Kind: KindBytes, Bytes: b} }

// NewString builds a Bytes value from a string.
func NewString(s string) Value { return Value{Kind: KindBytes, Bytes: []byte(s)} }

// NewList builds a List value.
func NewList(vs []Value) Value { return Value{Kind: KindList, List: vs} }

// NewDict builds a Dict value from key-ordered pairs.
func NewDict(kv []KV) Value { return Value{Kind: KindDict, Dict: kv} }

// Get returns the value bound to key in a Dict, searching only this dict's
// direct entries (last duplicate wins, per decode semantics). Returns false
// if v is not a Dict or key is absent.
func (v Value) Get(key string) (Value, bool) {
	if v.Kind != KindDict {
		return Value{}, false
	}
	var found Value
	ok := false
	for _, kv := range v.Dict {
		if bytes.Equal(kv.Key, []byte(key)) {
			found = kv.Value
			ok = true
		}
	}
	return found, ok
}

// Equal reports whether v and o are structurally equal. Dict key order is
// irrelevant to equality.
func (v Value) Equal(o Value) bool {
	if v.Kind != o.Kind {
		return false
	}
	switch v.Kind {
	case KindInt:
		return v.Int == o.Int
	case KindBytes:
		return bytes.Equal(v.Bytes, o.Bytes)
	case KindList:
		if len(v.List) != len(o.List) {
			return false
		}
		for i := range v.List {
			if !v.List[i].Equal(o.List[i]) {
				return false
			}
		}
		return true
	case KindDict:
		// Dict equality ignores order and collapses duplicate keys to
		// last-wins, matching decode semantics.
		am := dedupDict(v.Dict)
		bm := dedupDict(o.Dict)
		if len(am) != len(bm) {
			return false
		}
		for k, av := range am {
			bv, ok := bm[k]
			if !ok || !av.Equal(bv) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

func dedupDict(kv []KV) map[string]Value {
	m := make(map[string]Value, len(kv))
	for _, p := range kv {
		m[string(p.Key)] = p.Value
	}
	return m
}
