package extractor

import (
	"crypto/sha1"
	"io/ioutil"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lindris/peerengine/core"
	"github.com/lindris/peerengine/metainfo"
	"github.com/lindris/peerengine/piecestore"
)

func TestExtractSingleFileAcrossTwoPieces(t *testing.T) {
	pieceLen := int64(8)
	p0 := []byte("aaaaaaaa")
	p1 := []byte("bbbb")

	store := piecestore.NewMapStore()
	h0 := sha1.Sum(p0)
	h1 := sha1.Sum(p1)
	require.NoError(t, store.Save(h0, p0))
	require.NoError(t, store.Save(h1, p1))

	dir, err := ioutil.TempDir("", "extractor-test")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	info := &metainfo.Info{
		PieceLength: pieceLen,
		Pieces:      [][20]byte{h0, h1},
		Files:       []metainfo.FileEntry{{Length: 12, Path: "out.bin"}},
		InfoHash:    core.InfoHashFixture(),
	}

	e := New(info, store, dir)
	require.NoError(t, e.Extract())

	got, err := ioutil.ReadFile(dir + "/out.bin")
	require.NoError(t, err)
	require.Equal(t, "aaaaaaaabbbb", string(got))
}

func TestExtractMultiFileSplitsAcrossBoundary(t *testing.T) {
	pieceLen := int64(10)
	piece := []byte("0123456789")
	h := sha1.Sum(piece)

	store := piecestore.NewMapStore()
	require.NoError(t, store.Save(h, piece))

	dir, err := ioutil.TempDir("", "extractor-test")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	info := &metainfo.Info{
		PieceLength: pieceLen,
		Pieces:      [][20]byte{h},
		Files: []metainfo.FileEntry{
			{Length: 4, Path: "first.bin"},
			{Length: 6, Path: "second.bin"},
		},
		InfoHash: core.InfoHashFixture(),
	}

	e := New(info, store, dir)
	require.NoError(t, e.Extract())

	first, err := ioutil.ReadFile(dir + "/first.bin")
	require.NoError(t, err)
	require.Equal(t, "0123", string(first))

	second, err := ioutil.ReadFile(dir + "/second.bin")
	require.NoError(t, err)
	require.Equal(t, "456789", string(second))
}
