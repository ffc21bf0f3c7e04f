package vector

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHoleSetAddMergeSplit(t *testing.T) {
	h := newHoleSet()
	h.Add(5)
	h.Add(6)
	h.Add(4)
	require.Equal(t, 3, h.Count())
	require.True(t, h.Contains(5))

	require.True(t, h.Remove(5))
	require.False(t, h.Contains(5))
	require.True(t, h.Contains(4))
	require.True(t, h.Contains(6))
	require.Equal(t, 2, h.Count())
}

func TestHoleSetPopLowest(t *testing.T) {
	h := newHoleSet()
	h.Add(10)
	h.Add(2)
	h.Add(7)

	i, ok := h.PopLowest()
	require.True(t, ok)
	require.Equal(t, uint64(2), i)

	i, ok = h.PopLowest()
	require.True(t, ok)
	require.Equal(t, uint64(7), i)

	require.Equal(t, 1, h.Count())
}

func TestHoleSetEncodeDecodeRoundTrip(t *testing.T) {
	h := newHoleSet()
	for _, i := range []uint64{1, 2, 3, 10, 20, 21} {
		h.Add(i)
	}
	encoded := h.encode()
	decoded, n := decodeHoleSet(encoded)
	require.Equal(t, len(encoded), n)
	require.Equal(t, h.Count(), decoded.Count())
	for _, i := range []uint64{1, 2, 3, 10, 20, 21} {
		require.True(t, decoded.Contains(i))
	}
	require.False(t, decoded.Contains(4))
}

func TestHoleSetRemoveFrom(t *testing.T) {
	h := newHoleSet()
	h.Add(1)
	h.Add(5)
	h.Add(9)
	h.RemoveFrom(5)
	require.True(t, h.Contains(1))
	require.False(t, h.Contains(5))
	require.False(t, h.Contains(9))
}
