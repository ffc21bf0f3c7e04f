package vector

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestComputedLazySumOfTwoSources(t *testing.T) {
	store := openTestStore(t)

	a, err := Open[uint32](store, "a", newRawCodec[uint32](), 1)
	require.NoError(t, err)
	b, err := Open[uint32](store, "b", newRawCodec[uint32](), 1)
	require.NoError(t, err)

	for _, x := range []uint32{1, 2, 3} {
		_, err := a.Push(x)
		require.NoError(t, err)
	}
	for _, x := range []uint32{10, 20, 30} {
		_, err := b.Push(x)
		require.NoError(t, err)
	}

	sum := func(values ...any) uint32 {
		return values[0].(uint32) + values[1].(uint32)
	}
	c, err := NewLazy(sum, SourceOf(a), SourceOf(b))
	require.NoError(t, err)

	require.Equal(t, uint64(3), c.Len())
	v, ok, err := c.Get(1)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint32(22), v)
}

func TestComputedLazyPropagatesHoles(t *testing.T) {
	store := openTestStore(t)
	a, err := Open[uint32](store, "a2", newRawCodec[uint32](), 1)
	require.NoError(t, err)
	for _, x := range []uint32{1, 2, 3} {
		_, err := a.Push(x)
		require.NoError(t, err)
	}
	_, err = a.Take(1)
	require.NoError(t, err)

	double := func(values ...any) uint32 { return values[0].(uint32) * 2 }
	c, err := NewLazy(double, SourceOf(a))
	require.NoError(t, err)

	_, ok, err := c.Get(1)
	require.NoError(t, err)
	require.False(t, ok)

	v, ok, err := c.Get(2)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint32(6), v)
}

func TestComputedEagerMaterializesAndFlushes(t *testing.T) {
	store := openTestStore(t)
	a, err := Open[uint32](store, "a3", newRawCodec[uint32](), 1)
	require.NoError(t, err)
	for _, x := range []uint32{2, 4, 6} {
		_, err := a.Push(x)
		require.NoError(t, err)
	}

	square := func(values ...any) uint32 {
		v := values[0].(uint32)
		return v * v
	}
	c, err := NewEager[uint32](store, "squares", newRawCodec[uint32](), 1, square, []Source{SourceOf(a)})
	require.NoError(t, err)

	require.NoError(t, c.Advance())
	require.Equal(t, uint64(3), c.Len())

	v, ok, err := c.Get(2)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint32(36), v)

	require.NoError(t, c.Flush())
}

func TestComputedRejectsInvalidArity(t *testing.T) {
	_, err := NewLazy[uint32](func(values ...any) uint32 { return 0 })
	require.Error(t, err)
}
