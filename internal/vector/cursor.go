package vector

// Cursor is an eager, resumable iterator over a reader's pinned snapshot
// (spec §9 "Coroutine control flow": "an explicit cursor over pages with a
// resumable state", not a goroutine-backed generator).
type Cursor[T Numeric] struct {
	r          *Reader[T]
	next       uint64
	end        uint64
	skipHoles  bool
}

// Iter returns a cursor over the whole pinned length, skipping holes.
func (r *Reader[T]) Iter() *Cursor[T] {
	return &Cursor[T]{r: r, next: 0, end: r.length, skipHoles: true}
}

// IterRange returns a cursor over [a, b), skipping holes.
func (r *Reader[T]) IterRange(a, b uint64) *Cursor[T] {
	if b > r.length {
		b = r.length
	}
	return &Cursor[T]{r: r, next: a, end: b, skipHoles: true}
}

// IterHoled returns a cursor over the whole pinned length that yields every
// dense index, holes included (Next reports ok=false for a hole's value
// but still advances and returns true for "in range").
func (r *Reader[T]) IterHoled() *Cursor[T] {
	return &Cursor[T]{r: r, next: 0, end: r.length, skipHoles: false}
}

// Next returns the next (index, value, present) triple and whether the
// cursor has more elements to examine. For a plain Iter/IterRange cursor,
// holes are skipped transparently; for IterHoled, present is false at a
// hole but more may still be true.
func (c *Cursor[T]) Next() (index uint64, value T, present bool, more bool) {
	for c.next < c.end {
		i := c.next
		c.next++
		v, ok, err := c.r.Get(i)
		if err != nil {
			continue
		}
		if !ok && c.skipHoles {
			continue
		}
		return i, v, ok, true
	}
	var zero T
	return 0, zero, false, false
}
