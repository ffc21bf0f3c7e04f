package vector

import "github.com/voxlabs/regiondb/internal/region"

// Reader is a cheap, cloneable snapshot token over one vector (spec §4.8):
// it pins the region store's mmap generation, a copy of the vector's
// logical length/hole set/page directory as of its creation, and a
// page-decode cache so repeated point reads in the same page don't re-run
// the codec. The cache is a plain map keyed by page index: every page the
// reader decodes stays cached until the reader is dropped; nothing is
// evicted.
type Reader[T Numeric] struct {
	v      *Vector[T]
	region *region.Reader

	length    uint64
	holes     *holeSet
	pageDir   []pageEntry
	activeBuf []T

	cache map[int][]T
}

// NewReader pins the vector's current state.
func (v *Vector[T]) NewReader() *Reader[T] {
	v.mu.Lock()
	defer v.mu.Unlock()
	return &Reader[T]{
		v:         v,
		region:    v.store.NewReader(),
		length:    v.length,
		holes:     v.holes.clone(),
		pageDir:   append([]pageEntry(nil), v.pageDir...),
		activeBuf: append([]T(nil), v.activeBuf...),
		cache:     make(map[int][]T),
	}
}

// Release drops the reader's pin on the region store's mmap generation.
func (r *Reader[T]) Release() { r.region.Release() }

// Len returns the length pinned at the reader's creation instant.
func (r *Reader[T]) Len() uint64 { return r.length }

// Get returns (value, true, nil) for a live element, (zero, false, nil)
// for a hole, or an error for i >= the reader's pinned length.
func (r *Reader[T]) Get(i uint64) (T, bool, error) {
	var zero T
	if i >= r.length {
		return zero, false, &IndexOutOfRangeError{Index: i, Length: r.length}
	}
	if r.holes.Contains(i) {
		return zero, false, nil
	}

	flushedLen := uint64(len(r.pageDir)) * uint64(r.v.pageElementCount)
	if i >= flushedLen {
		return r.activeBuf[i-flushedLen], true, nil
	}

	pageIdx := int(i / uint64(r.v.pageElementCount))
	values, ok := r.cache[pageIdx]
	if !ok {
		entry := r.pageDir[pageIdx]
		raw, err := r.region.ReadRegionRange(r.v.dataID, entry.offset, uint64(entry.length))
		if err != nil {
			return zero, false, err
		}
		values, err = r.v.codec.Decode(raw, int(entry.count))
		if err != nil {
			return zero, false, err
		}
		r.cache[pageIdx] = values
	}
	return values[i%uint64(r.v.pageElementCount)], true, nil
}
