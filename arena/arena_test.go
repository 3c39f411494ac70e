package arena

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type item struct{ v int }

func TestAllocFree(t *testing.T) {
	a := New[item](nil)
	var zero Handle
	assert.True(t, zero.IsNil())
	assert.Nil(t, a.Get(zero))

	h1, err := a.Alloc(&item{1})
	require.NoError(t, err)
	h2, err := a.Alloc(&item{2})
	require.NoError(t, err)
	assert.Equal(t, 2, a.Len())
	assert.Equal(t, 2, a.Get(h2).v)
	assert.True(t, h1.Less(h2))

	require.True(t, a.Free(h1))
	assert.False(t, a.Free(h1), "double free")
	assert.Nil(t, a.Get(h1))
	assert.Panics(t, func() { a.MustGet(h1) })

	// the freed slot is reused under a new generation
	h3, err := a.Alloc(&item{3})
	require.NoError(t, err)
	assert.Equal(t, h1.Index(), h3.Index())
	assert.NotEqual(t, h1, h3)
	assert.Nil(t, a.Get(h1))
	assert.Equal(t, 3, a.MustGet(h3).v)
}

func TestAllSlotOrder(t *testing.T) {
	a := New[item](nil)
	var hs []Handle
	for i := 0; i < 5; i++ {
		h, err := a.Alloc(&item{i})
		require.NoError(t, err)
		hs = append(hs, h)
	}
	a.Free(hs[1])
	a.Free(hs[3])
	var got []int
	for _, it := range a.All() {
		got = append(got, it.v)
	}
	assert.Equal(t, []int{0, 2, 4}, got)
}

func TestBudget(t *testing.T) {
	b := &Budget{Limit: 3}
	nodes := New[item](b)
	edges := New[item](b)
	h, err := nodes.Alloc(&item{})
	require.NoError(t, err)
	_, err = edges.Alloc(&item{})
	require.NoError(t, err)
	_, err = edges.Alloc(&item{})
	require.NoError(t, err)
	assert.Equal(t, 0, b.Remaining())

	_, err = nodes.Alloc(&item{})
	assert.ErrorIs(t, err, ErrExhausted)
	assert.Equal(t, 1, nodes.Len())

	nodes.Free(h)
	assert.Equal(t, 2, b.Used())
	_, err = nodes.Alloc(&item{})
	assert.NoError(t, err)

	var unlimited *Budget
	assert.Equal(t, -1, unlimited.Remaining())
	assert.Equal(t, -1, (&Budget{}).Remaining())
}
