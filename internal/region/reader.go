package region

import "sync/atomic"

// mmapGeneration is one shared mapping of the data file plus a refcount of
// readers still pinning it. Growth installs a new generation; the old one
// is kept alive (and unmapped only once its refcount drops to zero) so that
// readers created before the remap keep observing the pre-remap bytes
// (spec §4.4, §5).
type mmapGeneration struct {
	data     []byte
	refcount atomic.Int64
}

func (g *mmapGeneration) acquire() {
	g.refcount.Add(1)
}

// release drops a reference, unmapping once the last reference is gone and
// a successor generation exists (the current generation is never unmapped
// by this path; Store.Close handles that explicitly).
func (g *mmapGeneration) release(obsolete bool) {
	if g.refcount.Add(-1) == 0 && obsolete {
		_ = munmapData(g.data)
	}
}

// Reader is a cheap, cloneable snapshot token (spec §4.8, §5): it pins the
// mmap generation live at its creation instant and a copy of the region
// placement table as it stood then, so point reads are lock-free and never
// observe a write that raced past its creation.
type Reader struct {
	store       *Store
	gen         *mmapGeneration
	placements  map[RegionID]extent
	lengths     map[RegionID]uint64
	names       map[string]RegionID
	released    bool
}

// NewReader takes an immutable snapshot of the store's current layout and
// pins the mmap generation backing it. Each region's logical length is
// captured here too, under the same lock as the placement table, so later
// reads never observe a length a writer set after this instant (spec §5:
// "a reader taken before a write never observes it").
func (s *Store) NewReader() *Reader {
	s.mu.RLock()
	defer s.mu.RUnlock()

	gen := s.gen.Load()
	gen.acquire()

	names := make(map[string]RegionID, len(s.meta.nameToID))
	for k, v := range s.meta.nameToID {
		names[k] = v
	}

	lengths := make(map[RegionID]uint64, len(s.meta.idToSlot))
	for id := range s.meta.idToSlot {
		if rec, ok := s.meta.record(id); ok && !rec.tomb {
			lengths[id] = rec.length
		}
	}

	return &Reader{
		store:      s,
		gen:        gen,
		placements: s.layout.snapshotPlacements(),
		lengths:    lengths,
		names:      names,
	}
}

// Release drops the reader's pin on its mmap generation. A reader must be
// released before the store's next flush can promote pending holes that
// could overlap the pinned mapping (spec §4.8); Store.Flush blocks on the
// writer lock, which is sufficient in this single-writer model as long as
// callers release readers promptly.
func (r *Reader) Release() {
	if r.released {
		return
	}
	r.released = true
	r.gen.release(r.gen != r.store.gen.Load())
}

// ReadRegion returns a zero-copy slice into the reader's pinned mapping for
// the named region's content (offset 0..length), valid for the reader's
// lifetime. length is the logical length pinned at NewReader time, not a
// live lookup, so this never observes a write that happened afterward.
func (r *Reader) ReadRegion(id RegionID) ([]byte, error) {
	p, ok := r.placements[id]
	if !ok {
		return nil, &UnknownRegionError{ID: id}
	}
	length, ok := r.lengths[id]
	if !ok {
		length = p.length
	}
	start := p.offset
	end := start + length
	if end > uint64(len(r.gen.data)) {
		return nil, ErrIOFailed
	}
	return r.gen.data[start:end], nil
}

// ReadRegionRange reads a sub-range [offset, offset+length) relative to the
// start of region id.
func (r *Reader) ReadRegionRange(id RegionID, offset, length uint64) ([]byte, error) {
	p, ok := r.placements[id]
	if !ok {
		return nil, &UnknownRegionError{ID: id}
	}
	start := p.offset + offset
	end := start + length
	if end > uint64(len(r.gen.data)) || end > p.offset+p.length {
		return nil, ErrIOFailed
	}
	return r.gen.data[start:end], nil
}

// RegionID looks up the id of a region by name, as it stood at this
// reader's creation instant.
func (r *Reader) RegionID(name string) (RegionID, bool) {
	id, ok := r.names[name]
	return id, ok
}
