package piece

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelectOnlyChoice(t *testing.T) {
	r := NewRegistry(3)
	r.RecordHave(0) // peer A has only piece 0

	has := func(i int) bool { return i == 0 }
	idx, ok := Select(r, has)
	require.True(t, ok)
	assert.Equal(t, 0, idx)
}

func TestSelectRarest(t *testing.T) {
	r := NewRegistry(3)
	// A has {0}; B has {0,1}; C has {0,1,2}.
	r.RecordHave(0)
	r.RecordHave(0)
	r.RecordHave(0)
	r.RecordHave(1)
	r.RecordHave(1)
	r.RecordHave(2)

	hasC := func(i int) bool { return i == 0 || i == 1 || i == 2 }
	idx, ok := Select(r, hasC)
	require.True(t, ok)
	assert.Equal(t, 2, idx, "piece 2 is rarest (availability 1)")
}

func TestSelectSkipsNonMissing(t *testing.T) {
	r := NewRegistry(2)
	r.Reserve(0)
	r.MarkHave(1)

	_, ok := Select(r, func(i int) bool { return true })
	assert.False(t, ok)
}

func TestReserveAndRelease(t *testing.T) {
	r := NewRegistry(1)
	r.Reserve(0)
	assert.Equal(t, Reserved, r.Status(0))
	r.Release(0)
	assert.Equal(t, Missing, r.Status(0))
}

func TestReleaseNoopWhenNotReserved(t *testing.T) {
	r := NewRegistry(1)
	r.MarkHave(0)
	r.Release(0)
	assert.Equal(t, Have, r.Status(0))
}

func TestBitfieldReflectsHaveSet(t *testing.T) {
	r := NewRegistry(11)
	for _, i := range []int{0, 3, 7, 10} {
		r.MarkHave(i)
	}
	assert.Equal(t, []byte{0x91, 0x20}, r.Bitfield())
}

func TestComplete(t *testing.T) {
	r := NewRegistry(2)
	assert.False(t, r.Complete())
	r.MarkHave(0)
	assert.False(t, r.Complete())
	r.MarkHave(1)
	assert.True(t, r.Complete())
}
