package region

import "sort"

// extent is a page-aligned, page-length span of the data file.
type extent struct {
	offset uint64
	length uint64
}

// placement records where a live region sits, keyed by id. layout is the
// in-memory authoritative map described in spec §3/§4.1: placements are
// pairwise disjoint and every byte of the data file belongs to a placement,
// a live hole, a pending hole, or the post-tail span.
//
// Kept as sorted slices rather than a balanced tree (google/btree or
// similar): region counts in this store are small (one store manages tens
// to low thousands of regions, not a huge key space), the working set lives
// entirely under the writer lock, and every in-pack storage engine examined
// for this module reaches for a plain sorted slice or map over a generic
// ordered-map library for exactly this kind of small in-memory index. See
// DESIGN.md.
type layout struct {
	placements map[RegionID]extent
	offsets    []uint64 // sorted, mirrors placements' offsets
	atOffset   map[uint64]RegionID

	liveHoles   map[uint64]uint64 // offset -> length
	liveOffsets []uint64          // sorted

	pendingHoles map[uint64]uint64 // offset -> length, not yet reusable

	tail uint64
}

func newLayout() *layout {
	return &layout{
		placements:   make(map[RegionID]extent),
		atOffset:     make(map[uint64]RegionID),
		liveHoles:    make(map[uint64]uint64),
		pendingHoles: make(map[uint64]uint64),
	}
}

func (l *layout) insertSorted(slice []uint64, v uint64) []uint64 {
	i := sort.Search(len(slice), func(i int) bool { return slice[i] >= v })
	slice = append(slice, 0)
	copy(slice[i+1:], slice[i:])
	slice[i] = v
	return slice
}

func (l *layout) removeSorted(slice []uint64, v uint64) []uint64 {
	i := sort.Search(len(slice), func(i int) bool { return slice[i] >= v })
	if i < len(slice) && slice[i] == v {
		slice = append(slice[:i], slice[i+1:]...)
	}
	return slice
}

// placeRegion records a placement made outside of placeNew (used when
// reconstructing the layout from metadata at open time).
func (l *layout) placeRegion(id RegionID, off, reserved uint64) {
	l.placements[id] = extent{offset: off, length: reserved}
	l.atOffset[off] = id
	l.offsets = l.insertSorted(l.offsets, off)
	if end := off + reserved; end > l.tail {
		l.tail = end
	}
}

// recomputeHoles derives the live-hole set from the current placements and
// tail; used once after bulk-loading placements from metadata at open time.
func (l *layout) recomputeHoles() {
	l.liveHoles = make(map[uint64]uint64)
	l.liveOffsets = nil
	prevEnd := uint64(0)
	for _, off := range l.offsets {
		id := l.atOffset[off]
		p := l.placements[id]
		if off > prevEnd {
			l.liveHoles[prevEnd] = off - prevEnd
			l.liveOffsets = l.insertSorted(l.liveOffsets, prevEnd)
		}
		prevEnd = off + p.length
	}
	if prevEnd > l.tail {
		l.tail = prevEnd
	}
}

// placeNew implements §4.1 place_new: first-fit over live holes that
// accommodate reserve (page-rounded), else append at the tail. Ties break on
// lowest offset. A hole larger than requested is split, remainder stays live.
func (l *layout) placeNew(reserve uint64) uint64 {
	reserve = ceilPage(reserve)

	bestOff, bestLen, found := uint64(0), uint64(0), false
	for _, off := range l.liveOffsets {
		length := l.liveHoles[off]
		if length >= reserve {
			bestOff, bestLen, found = off, length, true
			break
		}
	}

	if !found {
		off := l.tail
		l.tail += reserve
		return off
	}

	l.liveHoles = deleteMap(l.liveHoles, bestOff)
	l.liveOffsets = l.removeSorted(l.liveOffsets, bestOff)
	if remainder := bestLen - reserve; remainder > 0 {
		newHoleOff := bestOff + reserve
		l.liveHoles[newHoleOff] = remainder
		l.liveOffsets = l.insertSorted(l.liveOffsets, newHoleOff)
	}
	return bestOff
}

func deleteMap(m map[uint64]uint64, k uint64) map[uint64]uint64 {
	delete(m, k)
	return m
}

// expandInPlace implements §4.1 expand_in_place: allowed if the region is
// the tail region (grow tail) or the following extent is a live hole large
// enough to absorb (shrunk from the left). Returns true on success; the
// caller is responsible for updating the placement's recorded reserve.
func (l *layout) expandInPlace(id RegionID, newReserve uint64) bool {
	newReserve = ceilPage(newReserve)
	p, ok := l.placements[id]
	if !ok {
		return false
	}
	if newReserve <= p.length {
		return true
	}
	added := newReserve - p.length
	end := p.offset + p.length

	if end == l.tail {
		l.tail += added
		l.placements[id] = extent{offset: p.offset, length: newReserve}
		return true
	}

	if holeLen, ok := l.liveHoles[end]; ok && holeLen >= added {
		l.liveHoles = deleteMap(l.liveHoles, end)
		l.liveOffsets = l.removeSorted(l.liveOffsets, end)
		if remainder := holeLen - added; remainder > 0 {
			newHoleOff := end + added
			l.liveHoles[newHoleOff] = remainder
			l.liveOffsets = l.insertSorted(l.liveOffsets, newHoleOff)
		}
		l.placements[id] = extent{offset: p.offset, length: newReserve}
		return true
	}

	return false
}

// moveRegion implements §4.1 move_region: allocate the new extent via
// placeNew, record the old extent as pending (not reusable until the next
// successful flush promotes it).
func (l *layout) moveRegion(id RegionID, newReserve uint64) uint64 {
	old, ok := l.placements[id]
	newOff := l.placeNew(newReserve)
	if ok {
		delete(l.atOffset, old.offset)
		l.offsets = l.removeSorted(l.offsets, old.offset)
		l.pendingHoles[old.offset] = old.length
	}
	l.placements[id] = extent{offset: newOff, length: ceilPage(newReserve)}
	l.atOffset[newOff] = id
	l.offsets = l.insertSorted(l.offsets, newOff)
	return newOff
}

// remove implements §4.1 remove: record the placement as a pending hole and
// drop the mapping.
func (l *layout) remove(id RegionID) {
	p, ok := l.placements[id]
	if !ok {
		return
	}
	delete(l.placements, id)
	delete(l.atOffset, p.offset)
	l.offsets = l.removeSorted(l.offsets, p.offset)
	l.pendingHoles[p.offset] = p.length
}

// promotePending implements §4.1 promote_pending: called by flush after
// data+metadata are durable. Moves pending holes into the live set and
// coalesces adjacent holes, including collapsing a hole adjacent to the tail.
func (l *layout) promotePending() {
	for off, length := range l.pendingHoles {
		l.liveHoles[off] = length
		l.liveOffsets = l.insertSorted(l.liveOffsets, off)
	}
	l.pendingHoles = make(map[uint64]uint64)
	l.coalesce()
}

// coalesce merges adjacent live holes and collapses a hole touching the tail.
func (l *layout) coalesce() {
	merged := make(map[uint64]uint64, len(l.liveHoles))
	offsets := append([]uint64(nil), l.liveOffsets...)
	sort.Slice(offsets, func(i, j int) bool { return offsets[i] < offsets[j] })

	var curOff, curLen uint64
	have := false
	for _, off := range offsets {
		length := l.liveHoles[off]
		if !have {
			curOff, curLen, have = off, length, true
			continue
		}
		if curOff+curLen == off {
			curLen += length
		} else {
			merged[curOff] = curLen
			curOff, curLen = off, length
		}
	}
	if have {
		merged[curOff] = curLen
	}

	l.liveHoles = merged
	l.liveOffsets = l.liveOffsets[:0]
	for off := range merged {
		l.liveOffsets = l.insertSorted(l.liveOffsets, off)
	}

	// A live hole touching the tail shrinks the logical file size.
	for len(l.liveOffsets) > 0 {
		off := l.liveOffsets[len(l.liveOffsets)-1]
		length := l.liveHoles[off]
		if off+length != l.tail {
			break
		}
		delete(l.liveHoles, off)
		l.liveOffsets = l.liveOffsets[:len(l.liveOffsets)-1]
		l.tail = off
	}
}

// bytesToPunch implements §4.1 bytes_to_punch: page-aligned extents to
// hole-punch after flush.
func (l *layout) bytesToPunch() []extent {
	out := make([]extent, 0, len(l.liveHoles))
	for off, length := range l.liveHoles {
		out = append(out, extent{offset: off, length: length})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].offset < out[j].offset })
	return out
}

func (l *layout) placementOf(id RegionID) (extent, bool) {
	e, ok := l.placements[id]
	return e, ok
}

func (l *layout) snapshotPlacements() map[RegionID]extent {
	out := make(map[RegionID]extent, len(l.placements))
	for k, v := range l.placements {
		out[k] = v
	}
	return out
}

// liveHoleBytes and pendingHoleBytes support the invariant-2 accounting
// exposed via Store.Stats.
func (l *layout) liveHoleBytes() uint64 {
	var total uint64
	for _, length := range l.liveHoles {
		total += length
	}
	return total
}

func (l *layout) pendingHoleBytes() uint64 {
	var total uint64
	for _, length := range l.pendingHoles {
		total += length
	}
	return total
}

func (l *layout) placedBytes() uint64 {
	var total uint64
	for _, p := range l.placements {
		total += p.length
	}
	return total
}
