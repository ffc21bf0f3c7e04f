package region

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLayoutPlaceNewFirstFit(t *testing.T) {
	l := newLayout()

	off1 := l.placeNew(PageSize)
	require.Equal(t, uint64(0), off1)
	l.placeRegion(1, off1, PageSize)

	off2 := l.placeNew(PageSize)
	require.Equal(t, uint64(PageSize), off2)
	l.placeRegion(2, off2, PageSize)

	l.remove(1)
	l.promotePending()

	// A hole now sits at offset 0; a new same-size request should reuse it
	// rather than growing the tail (spec §4.1 first-fit).
	off3 := l.placeNew(PageSize)
	require.Equal(t, uint64(0), off3)
}

func TestLayoutExpandInPlaceAtTail(t *testing.T) {
	l := newLayout()
	off := l.placeNew(PageSize)
	l.placeRegion(1, off, PageSize)

	ok := l.expandInPlace(1, PageSize*3)
	require.True(t, ok)
	require.Equal(t, uint64(PageSize*3), l.tail)
}

func TestLayoutMoveRegionCreatesPendingHole(t *testing.T) {
	l := newLayout()
	off := l.placeNew(PageSize)
	l.placeRegion(1, off, PageSize)

	newOff := l.moveRegion(1, PageSize*2)
	require.NotEqual(t, off, newOff)
	require.Equal(t, PageSize, int(l.pendingHoleBytes()))

	l.promotePending()
	require.Equal(t, PageSize, int(l.liveHoleBytes()))
}

func TestLayoutCoalesceCollapsesTailHole(t *testing.T) {
	l := newLayout()
	off1 := l.placeNew(PageSize)
	l.placeRegion(1, off1, PageSize)
	off2 := l.placeNew(PageSize)
	l.placeRegion(2, off2, PageSize)

	require.Equal(t, uint64(PageSize*2), l.tail)

	l.remove(2)
	l.promotePending()

	// The trailing hole collapses the tail rather than staying a
	// reclaimable hole (spec §4.1 promote_pending).
	require.Equal(t, uint64(PageSize), l.tail)
	require.Equal(t, 0, int(l.liveHoleBytes()))
}

func TestLayoutInvariantAccounting(t *testing.T) {
	l := newLayout()
	off1 := l.placeNew(PageSize)
	l.placeRegion(1, off1, PageSize)
	off2 := l.placeNew(PageSize * 2)
	l.placeRegion(2, off2, PageSize*2)

	l.remove(1)

	total := l.placedBytes() + l.liveHoleBytes() + l.pendingHoleBytes()
	require.LessOrEqual(t, total, l.tail)
}
