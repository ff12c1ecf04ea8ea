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

// Package extractor lays a completed torrent's pieces out as the files the
// torrent actually describes. The session depends only on the Extractor
// interface; FileExtractor is the concrete implementation, reading
// completed pieces back out of a piecestore.Store and writing them to their
// final paths on a single pass over the torrent's file list.
package extractor

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/lindris/peerengine/metainfo"
	"github.com/lindris/peerengine/piecestore"
)

// Extractor unpacks a finished download's stored pieces into the files
// named by the torrent. The session invokes it once, after every piece has
// verified.
type Extractor interface {
	Extract() error
}

// FileExtractor reassembles a single- or multi-file torrent by walking its
// file list once, reading the piece range each file spans out of store and
// writing it to outputDir.
type FileExtractor struct {
	info      *metainfo.Info
	store     piecestore.Store
	outputDir string
}

// New creates a FileExtractor that writes info's files under outputDir.
func New(info *metainfo.Info, store piecestore.Store, outputDir string) *FileExtractor {
	return &FileExtractor{info: info, store: store, outputDir: outputDir}
}

// Extract writes every file named by the torrent's metainfo, pulling the
// backing bytes out of store piece by piece. Pieces are expected to already
// be complete and verified; Extract does not itself verify hashes.
func (e *FileExtractor) Extract() error {
	var offset int64
	for _, file := range e.info.Files {
		if err := e.extractFile(file, offset); err != nil {
			return fmt.Errorf("extract %s: %s", file.Path, err)
		}
		offset += file.Length
	}
	return nil
}

// extractFile writes a single file, whose bytes begin at fileOffset within
// the torrent's flat piece space, by copying from every piece it overlaps.
func (e *FileExtractor) extractFile(file metainfo.FileEntry, fileOffset int64) error {
	dst := filepath.Join(e.outputDir, file.Path)
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("mkdir: %s", err)
	}
	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create: %s", err)
	}
	defer out.Close()

	remaining := file.Length
	pos := fileOffset
	for remaining > 0 {
		index := int(pos / e.info.PieceLength)
		pieceStart := pos % e.info.PieceLength
		pieceLen := e.info.PieceLengthAt(index)

		data, err := e.store.Load(e.info.Pieces[index])
		if err != nil {
			return fmt.Errorf("load piece %d: %s", index, err)
		}

		n := pieceLen - pieceStart
		if n > remaining {
			n = remaining
		}
		if _, err := out.Write(data[pieceStart : pieceStart+n]); err != nil {
			return fmt.Errorf("write: %s", err)
		}

		pos += n
		remaining -= n
	}
	return nil
}
