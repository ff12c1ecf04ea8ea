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

// Package metainfo interprets a decoded bencode dictionary as a typed
// torrent description (BEP 3), computing the info hash over the raw bytes
// of the info sub-value rather than a re-encoding.
package metainfo

import (
	"path/filepath"

	"github.com/lindris/peerengine/bencode"
	"github.com/lindris/peerengine/core"
)

const pieceHashSize = 20

// FileEntry describes one file within a (possibly multi-file) torrent.
type FileEntry struct {
	Length int64
	Path   string
}

// Info is the typed, validated form of a decoded torrent metafile.
type Info struct {
	Announce    string
	Name        string
	PieceLength int64
	Pieces      [][pieceHashSize]byte
	Files       []FileEntry
	InfoHash    core.InfoHash
}

// NumPieces returns the number of pieces in the torrent.
func (i *Info) NumPieces() int {
	return len(i.Pieces)
}

// TotalLength returns the sum of every file's length.
func (i *Info) TotalLength() int64 {
	var total int64
	for _, f := range i.Files {
		total += f.Length
	}
	return total
}

// PieceLengthAt returns the length of piece index idx, accounting for a
// possibly-shorter final piece.
func (i *Info) PieceLengthAt(idx int) int64 {
	if idx < 0 || idx >= len(i.Pieces) {
		return 0
	}
	if idx == len(i.Pieces)-1 {
		return i.TotalLength() - i.PieceLength*int64(idx)
	}
	return i.PieceLength
}

// Load decodes raw as a single bencoded dictionary and interprets it as a
// torrent metafile per BEP 3.
func Load(raw []byte) (*Info, error) {
	values, err := bencode.Decode(raw)
	if err != nil {
		return nil, errf("decode: %s", err)
	}
	if len(values) != 1 {
		return nil, errf("expected exactly one top-level value, got %d", len(values))
	}
	root := values[0]
	if root.Kind != bencode.KindDict {
		return nil, errf("expected top-level dict")
	}

	announce, ok := root.Get("announce")
	if !ok || announce.Kind != bencode.KindBytes {
		return nil, errf("missing or malformed 'announce'")
	}

	infoVal, ok := root.Get("info")
	if !ok || infoVal.Kind != bencode.KindDict {
		return nil, errf("missing or malformed 'info' dict")
	}

	rawInfo, ok := bencode.Locate(raw, "info")
	if !ok {
		return nil, errf("could not locate raw 'info' bytes")
	}

	name, ok := infoVal.Get("name")
	if !ok || name.Kind != bencode.KindBytes {
		return nil, errf("missing or malformed 'name'")
	}

	pieceLength, ok := infoVal.Get("piece length")
	if !ok || pieceLength.Kind != bencode.KindInt || pieceLength.Int <= 0 {
		return nil, errf("missing or non-positive 'piece length'")
	}

	piecesVal, ok := infoVal.Get("pieces")
	if !ok || piecesVal.Kind != bencode.KindBytes {
		return nil, errf("missing or malformed 'pieces'")
	}
	if len(piecesVal.Bytes)%pieceHashSize != 0 {
		return nil, errf("'pieces' length %d is not a multiple of %d", len(piecesVal.Bytes), pieceHashSize)
	}
	pieces := make([][pieceHashSize]byte, len(piecesVal.Bytes)/pieceHashSize)
	for i := range pieces {
		copy(pieces[i][:], piecesVal.Bytes[i*pieceHashSize:(i+1)*pieceHashSize])
	}
	if len(pieces) < 1 {
		return nil, errf("'pieces' must contain at least one hash")
	}

	lengthVal, hasLength := infoVal.Get("length")
	filesVal, hasFiles := infoVal.Get("files")
	if hasLength == hasFiles {
		return nil, errf("exactly one of 'length' or 'files' must be present")
	}

	var files []FileEntry
	if hasLength {
		if lengthVal.Kind != bencode.KindInt || lengthVal.Int < 0 {
			return nil, errf("malformed 'length'")
		}
		files = []FileEntry{{Length: lengthVal.Int, Path: string(name.Bytes)}}
	} else {
		if filesVal.Kind != bencode.KindList {
			return nil, errf("'files' must be a list")
		}
		for _, fv := range filesVal.List {
			entry, err := parseFileEntry(fv)
			if err != nil {
				return nil, err
			}
			files = append(files, entry)
		}
		if len(files) == 0 {
			return nil, errf("'files' must be non-empty")
		}
	}

	info := &Info{
		Announce:    string(announce.Bytes),
		Name:        string(name.Bytes),
		PieceLength: pieceLength.Int,
		Pieces:      pieces,
		Files:       files,
		InfoHash:    core.NewInfoHashFromBytes(rawInfo),
	}
	return info, nil
}

func parseFileEntry(v bencode.Value) (FileEntry, error) {
	if v.Kind != bencode.KindDict {
		return FileEntry{}, errf("file entry must be a dict")
	}
	lengthVal, ok := v.Get("length")
	if !ok || lengthVal.Kind != bencode.KindInt || lengthVal.Int < 0 {
		return FileEntry{}, errf("file entry missing or malformed 'length'")
	}
	pathVal, ok := v.Get("path")
	if !ok {
		return FileEntry{}, errf("file entry missing 'path'")
	}
	path, err := joinPath(pathVal)
	if err != nil {
		return FileEntry{}, err
	}
	return FileEntry{Length: lengthVal.Int, Path: path}, nil
}

// joinPath accepts 'path' as either a list of path component byte strings
// (BEP 3's multi-file form) or, for producers that deviate from the spec, a
// single byte string.
func joinPath(v bencode.Value) (string, error) {
	switch v.Kind {
	case bencode.KindBytes:
		return string(v.Bytes), nil
	case bencode.KindList:
		parts := make([]string, 0, len(v.List))
		for _, p := range v.List {
			if p.Kind != bencode.KindBytes {
				return "", errf("path component is not a byte string")
			}
			parts = append(parts, string(p.Bytes))
		}
		if len(parts) == 0 {
			return "", errf("empty path component list")
		}
		return filepath.Join(parts...), nil
	default:
		return "", errf("malformed 'path'")
	}
}
