package piece

import (
	"crypto/sha1"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lindris/peerengine/wire"
)

func TestPieceRxFullLifecycle(t *testing.T) {
	length := int64(wire.BlockLength * 2)
	data := make([]byte, length)
	for i := range data {
		data[i] = byte(i)
	}
	hash := sha1.Sum(data)

	rx := NewPieceRx(0, hash, length)

	b1, ok := rx.NextRequest()
	require.True(t, ok)
	assert.Equal(t, uint32(0), b1.Begin)
	assert.Equal(t, uint32(wire.BlockLength), b1.Length)

	b2, ok := rx.NextRequest()
	require.True(t, ok)
	assert.Equal(t, uint32(wire.BlockLength), b2.Begin)

	_, ok = rx.NextRequest()
	assert.False(t, ok)
	assert.False(t, rx.Done())

	require.NoError(t, rx.ReceiveBlock(b1.Begin, data[b1.Begin:b1.Begin+b1.Length]))
	assert.False(t, rx.Done())

	require.NoError(t, rx.ReceiveBlock(b2.Begin, data[b2.Begin:b2.Begin+b2.Length]))
	assert.True(t, rx.Done())
	assert.True(t, rx.Verify())
}

func TestPieceRxShorterFinalBlock(t *testing.T) {
	length := int64(wire.BlockLength) + 100
	rx := NewPieceRx(0, [20]byte{}, length)

	_, _ = rx.NextRequest()
	b2, ok := rx.NextRequest()
	require.True(t, ok)
	assert.Equal(t, uint32(100), b2.Length)
}

func TestPieceRxRejectsUnrequestedBlock(t *testing.T) {
	rx := NewPieceRx(0, [20]byte{}, wire.BlockLength)
	err := rx.ReceiveBlock(0, make([]byte, wire.BlockLength))
	require.Error(t, err)
	var perr *PieceError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, BlockNotRequested, perr.Kind)
}

func TestPieceRxVerifyFailsOnMismatch(t *testing.T) {
	rx := NewPieceRx(0, [20]byte{0xff}, wire.BlockLength)
	b, _ := rx.NextRequest()
	require.NoError(t, rx.ReceiveBlock(b.Begin, make([]byte, b.Length)))
	assert.False(t, rx.Verify())
}
