package vector

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/voxlabs/regiondb/internal/region"
)

func openTestStore(t *testing.T) *region.Store {
	t.Helper()
	store, err := region.Open(t.TempDir(), region.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestS1BasicPersistence(t *testing.T) {
	store := openTestStore(t)

	v, err := Open[uint32](store, "v1", newRawCodec[uint32](), 1, WithPageElementCount(4))
	require.NoError(t, err)

	for _, x := range []uint32{10, 20, 30} {
		_, err := v.Push(x)
		require.NoError(t, err)
	}
	require.NoError(t, v.Flush())

	reopened, err := Open[uint32](store, "v1", newRawCodec[uint32](), 1, WithPageElementCount(4))
	require.NoError(t, err)

	require.Equal(t, uint64(3), reopened.Len())
	for i, want := range []uint32{10, 20, 30} {
		got, ok, err := reopened.Get(uint64(i))
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, want, got)
	}
}

func TestS2HolesAndRefill(t *testing.T) {
	store := openTestStore(t)
	v, err := Open[uint32](store, "v2", newRawCodec[uint32](), 1, WithPageElementCount(8))
	require.NoError(t, err)

	for i := uint32(1); i <= 5; i++ {
		_, err := v.Push(i)
		require.NoError(t, err)
	}

	_, err = v.Take(1)
	require.NoError(t, err)
	_, err = v.Take(3)
	require.NoError(t, err)

	_, ok, err := v.Get(1)
	require.NoError(t, err)
	require.False(t, ok)
	_, ok, err = v.Get(3)
	require.NoError(t, err)
	require.False(t, ok)

	got0, ok, err := v.Get(0)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint32(1), got0)

	idx, err := v.FillFirstHoleOrPush(99)
	require.NoError(t, err)
	require.Equal(t, uint64(1), idx)

	idx, err = v.FillFirstHoleOrPush(88)
	require.NoError(t, err)
	require.Equal(t, uint64(3), idx)

	idx, err = v.FillFirstHoleOrPush(7)
	require.NoError(t, err)
	require.Equal(t, uint64(5), idx)
	require.Equal(t, uint64(6), v.Len())
}

func TestS4CompressedRoundTrip(t *testing.T) {
	store := openTestStore(t)
	codec, err := newCompressedCodec[uint64](CodecNumericZstd)
	require.NoError(t, err)

	v, err := Open[uint64](store, "v4", codec, 1, WithPageElementCount(256))
	require.NoError(t, err)

	const n = 10_000
	var xorWant uint64
	for i := uint64(0); i < n; i++ {
		val := (i * 31) % (1 << 32)
		xorWant ^= val
		_, err := v.Push(val)
		require.NoError(t, err)
	}
	require.NoError(t, v.Flush())

	reopened, err := Open[uint64](store, "v4", codec, 1, WithPageElementCount(256))
	require.NoError(t, err)

	var xorGot uint64
	r := reopened.NewReader()
	defer r.Release()
	c := r.Iter()
	for {
		_, val, _, more := c.Next()
		if !more {
			break
		}
		xorGot ^= val
	}
	require.Equal(t, xorWant, xorGot)
}

func TestS5Rollback(t *testing.T) {
	store := openTestStore(t)
	v, err := Open[uint32](store, "v5", newRawCodec[uint32](), 1, WithPageElementCount(8))
	require.NoError(t, err)

	for _, x := range []uint32{1, 2, 3} {
		_, err := v.Push(x)
		require.NoError(t, err)
	}
	require.NoError(t, v.StampedFlush(1))

	require.NoError(t, v.Update(1, 99))
	require.NoError(t, v.StampedFlush(2))

	require.NoError(t, v.Truncate(1))
	require.NoError(t, v.StampedFlush(3))

	require.NoError(t, v.RollbackStamp(1))

	require.Equal(t, uint64(3), v.Len())
	for i, want := range []uint32{1, 2, 3} {
		got, ok, err := v.Get(uint64(i))
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, want, got)
	}
}

func TestUpdateAcrossPageBoundary(t *testing.T) {
	store := openTestStore(t)
	v, err := Open[uint32](store, "v6", newRawCodec[uint32](), 1, WithPageElementCount(4))
	require.NoError(t, err)

	for i := uint32(0); i < 10; i++ {
		_, err := v.Push(i)
		require.NoError(t, err)
	}

	require.NoError(t, v.Update(2, 999))
	got, ok, err := v.Get(2)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint32(999), got)

	require.NoError(t, v.Update(9, 1000))
	got, ok, err = v.Get(9)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint32(1000), got)
}

func TestIndexOutOfRange(t *testing.T) {
	store := openTestStore(t)
	v, err := Open[uint32](store, "v7", newRawCodec[uint32](), 1, WithPageElementCount(4))
	require.NoError(t, err)

	_, _, err = v.Get(0)
	var rangeErr *IndexOutOfRangeError
	require.ErrorAs(t, err, &rangeErr)
}

func TestVersionMismatch(t *testing.T) {
	store := openTestStore(t)
	v, err := Open[uint32](store, "v8", newRawCodec[uint32](), 1)
	require.NoError(t, err)
	_, err = v.Push(1)
	require.NoError(t, err)
	require.NoError(t, v.Flush())

	_, err = Open[uint32](store, "v8", newRawCodec[uint32](), 2)
	var verr *VersionMismatchError
	require.ErrorAs(t, err, &verr)

	forced, err := ForcedImport[uint32](store, "v8", newRawCodec[uint32](), 2)
	require.NoError(t, err)
	require.Equal(t, uint64(0), forced.Len())
}
