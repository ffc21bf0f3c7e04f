package region

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestS1BasicPersistence(t *testing.T) {
	dir := t.TempDir()

	store, err := Open(dir, Options{})
	require.NoError(t, err)

	id, err := store.CreateRegionIfNeeded("widgets")
	require.NoError(t, err)

	payload := []byte("hello, region store")
	require.NoError(t, store.WriteAllToRegion(id, payload))
	require.NoError(t, store.Flush(context.Background()))
	require.NoError(t, store.Close())

	reopened, err := Open(dir, Options{})
	require.NoError(t, err)
	defer reopened.Close()

	gotID, ok := reopened.LookupByName("widgets")
	require.True(t, ok)
	require.Equal(t, id, gotID)

	r := reopened.NewReader()
	defer r.Release()

	got, err := r.ReadRegion(gotID)
	require.NoError(t, err)
	require.True(t, bytes.Equal(payload, got))
}

func TestRegionGrowthAndRelocation(t *testing.T) {
	dir := t.TempDir()
	store, err := Open(dir, Options{})
	require.NoError(t, err)
	defer store.Close()

	id, err := store.CreateRegionIfNeeded("growing")
	require.NoError(t, err)

	var want []byte
	chunk := bytes.Repeat([]byte{0xAB}, 1024)
	for i := 0; i < 20; i++ {
		require.NoError(t, store.AppendToRegion(id, chunk))
		want = append(want, chunk...)
	}

	info, err := store.Info(id)
	require.NoError(t, err)
	require.Equal(t, uint64(len(want)), info.Length)
	require.GreaterOrEqual(t, info.Reserved, info.Length)

	r := store.NewReader()
	defer r.Release()
	got, err := r.ReadRegion(id)
	require.NoError(t, err)
	require.True(t, bytes.Equal(want, got))
}

func TestS3TwoVectorsSharingFileSurviveRelocation(t *testing.T) {
	dir := t.TempDir()
	store, err := Open(dir, Options{})
	require.NoError(t, err)
	defer store.Close()

	a, err := store.CreateRegionIfNeeded("A")
	require.NoError(t, err)
	b, err := store.CreateRegionIfNeeded("B")
	require.NoError(t, err)

	aData := bytes.Repeat([]byte{0x01}, 8000)
	require.NoError(t, store.AppendToRegion(a, aData))
	require.NoError(t, store.Flush(context.Background()))

	bData := bytes.Repeat([]byte{0x02}, 8000)
	require.NoError(t, store.AppendToRegion(b, bData))
	require.NoError(t, store.Flush(context.Background()))

	// Force A to grow past B, requiring relocation.
	more := bytes.Repeat([]byte{0x03}, 1_000_000)
	require.NoError(t, store.AppendToRegion(a, more))
	require.NoError(t, store.Flush(context.Background()))

	r := store.NewReader()
	defer r.Release()

	gotA, err := r.ReadRegion(a)
	require.NoError(t, err)
	require.Equal(t, len(aData)+len(more), len(gotA))
	require.True(t, bytes.Equal(aData, gotA[:len(aData)]))
	require.True(t, bytes.Equal(more, gotA[len(aData):]))

	gotB, err := r.ReadRegion(b)
	require.NoError(t, err)
	require.True(t, bytes.Equal(bData, gotB))
}

func TestRemoveRegionAndReuseName(t *testing.T) {
	dir := t.TempDir()
	store, err := Open(dir, Options{})
	require.NoError(t, err)
	defer store.Close()

	id, err := store.CreateRegionIfNeeded("temp")
	require.NoError(t, err)
	require.NoError(t, store.RemoveRegion(id))

	_, err = store.Info(id)
	require.Error(t, err)

	newID, err := store.CreateRegionIfNeeded("temp")
	require.NoError(t, err)
	require.NotEqual(t, id, newID)
}

func TestUnknownRegionErrors(t *testing.T) {
	dir := t.TempDir()
	store, err := Open(dir, Options{})
	require.NoError(t, err)
	defer store.Close()

	err = store.WriteAllToRegion(RegionID(999), []byte("x"))
	require.ErrorIs(t, err, ErrUnknownRegion)
}

func TestStatsInvariant(t *testing.T) {
	dir := t.TempDir()
	store, err := Open(dir, Options{})
	require.NoError(t, err)
	defer store.Close()

	id, err := store.CreateRegionIfNeeded("stats-region")
	require.NoError(t, err)
	require.NoError(t, store.AppendToRegion(id, bytes.Repeat([]byte{1}, 5000)))
	require.NoError(t, store.RemoveRegion(id))

	stats := store.Stats()
	require.LessOrEqual(t, stats.PlacedBytes+stats.LiveHoleBytes+stats.PendingHoleBytes, stats.Tail)
}

// TestS6CrashSimulation models a crash between the data msync and the
// metadata fsync (spec §8 S6): writes after the last successful Flush must
// not surface on reopen, and the region must be left exactly at the state of
// that last flush with no dangling placement.
func TestS6CrashSimulation(t *testing.T) {
	dir := t.TempDir()
	store, err := Open(dir, Options{})
	require.NoError(t, err)

	id, err := store.CreateRegionIfNeeded("crashy")
	require.NoError(t, err)

	baseline := bytes.Repeat([]byte{0x11}, 512)
	require.NoError(t, store.WriteAllToRegion(id, baseline))
	require.NoError(t, store.Flush(context.Background()))

	// Simulate a write that reaches the mmap (and would be msync'd) but
	// never gets its metadata fsync'd: no Flush call follows.
	unflushed := bytes.Repeat([]byte{0x22}, 2048)
	require.NoError(t, store.AppendToRegion(id, unflushed))

	info, err := store.Info(id)
	require.NoError(t, err)
	require.Equal(t, uint64(len(baseline)+len(unflushed)), info.Length)

	// "Crash": drop this handle without flushing and open a fresh one
	// against the same directory, as a recovering process would.
	_ = store.Close()

	reopened, err := Open(dir, Options{})
	require.NoError(t, err)
	defer reopened.Close()

	gotID, ok := reopened.LookupByName("crashy")
	require.True(t, ok)
	require.Equal(t, id, gotID)

	reInfo, err := reopened.Info(gotID)
	require.NoError(t, err)
	require.Equal(t, uint64(len(baseline)), reInfo.Length)

	r := reopened.NewReader()
	defer r.Release()
	got, err := r.ReadRegion(gotID)
	require.NoError(t, err)
	require.True(t, bytes.Equal(baseline, got))
}

func TestCompactReclaimsHoles(t *testing.T) {
	dir := t.TempDir()
	store, err := Open(dir, Options{})
	require.NoError(t, err)
	defer store.Close()

	a, err := store.CreateRegionIfNeeded("a")
	require.NoError(t, err)
	_, err = store.CreateRegionIfNeeded("b")
	require.NoError(t, err)

	require.NoError(t, store.RemoveRegion(a))
	require.NoError(t, store.Flush(context.Background()))

	before := store.Stats()
	require.NoError(t, store.Compact(context.Background()))
	after := store.Stats()

	require.LessOrEqual(t, after.Tail, before.Tail)
}
