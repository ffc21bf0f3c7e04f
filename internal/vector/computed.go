package vector

import (
	"fmt"
	"math"

	"github.com/voxlabs/regiondb/internal/region"
)

// Source type-erases a *Vector[S] for some numeric S so Computed[T] can
// hold 1-3 sources of differing element types (spec §4.7 "wraps 1 to 3
// source vectors"). Go generics can't parameterize a struct over a
// variable-arity, heterogeneously-typed tuple, so dispatch goes through
// this small interface instead of the three hand-written variants
// (lazy1/lazy2/lazy3) original_source/crates/vecdb/src/variants/lazy/
// uses — see SPEC_FULL.md §4.7 and §9 "Derivation macro".
type Source interface {
	Len() uint64
	getAny(i uint64) (any, bool, error)
}

type vectorSource[S Numeric] struct{ v *Vector[S] }

func (s vectorSource[S]) Len() uint64 { return s.v.Len() }

func (s vectorSource[S]) getAny(i uint64) (any, bool, error) {
	val, ok, err := s.v.Get(i)
	return val, ok, err
}

// SourceOf adapts a concrete vector into a Source for use with NewLazy /
// NewEager.
func SourceOf[S Numeric](v *Vector[S]) Source { return vectorSource[S]{v: v} }

// Computed wraps 1-3 source vectors and a pure function of their aligned
// values at an index (spec §4.7). Lazy mode caches computed values without
// persisting them; eager mode materializes into a backing Vector[T].
type Computed[T Numeric] struct {
	sources []Source
	compute func(values ...any) T

	eager   bool
	backing *Vector[T]
	cache   map[uint64]T
}

func validateArity(sources []Source) error {
	if len(sources) < 1 || len(sources) > 3 {
		return fmt.Errorf("vector: computed vector requires 1-3 sources, got %d", len(sources))
	}
	return nil
}

// NewLazy builds a computed vector that recomputes on every Get, caching
// only a small in-memory map (spec §4.7 "lazy: compute on get").
func NewLazy[T Numeric](compute func(values ...any) T, sources ...Source) (*Computed[T], error) {
	if err := validateArity(sources); err != nil {
		return nil, err
	}
	return &Computed[T]{sources: sources, compute: compute, cache: make(map[uint64]T)}, nil
}

// NewEager builds a computed vector backed by a persisted Vector[T] (spec
// §4.7 "eager: materialize into a backing vector of the chosen codec").
func NewEager[T Numeric](store *region.Store, name string, codec Codec[T], userVersion uint16, compute func(values ...any) T, sources []Source, opts ...Option) (*Computed[T], error) {
	if err := validateArity(sources); err != nil {
		return nil, err
	}
	backing, err := Open(store, name, codec, userVersion, opts...)
	if err != nil {
		return nil, err
	}
	return &Computed[T]{sources: sources, compute: compute, eager: true, backing: backing}, nil
}

// Len reports the computed vector's current observable length: the
// backing vector's length in eager mode, or the shortest source's length
// in lazy mode (a lazily computed value is never persisted, so it's only
// observable for indices every source can still answer).
func (c *Computed[T]) Len() uint64 {
	if c.eager {
		return c.backing.Len()
	}
	min := uint64(math.MaxUint64)
	for _, s := range c.sources {
		if l := s.Len(); l < min {
			min = l
		}
	}
	return min
}

// Get implements spec §4.7's per-index derivation, including hole
// propagation: a hole in any source produces a hole in the result.
func (c *Computed[T]) Get(i uint64) (T, bool, error) {
	if c.eager && i < c.backing.Len() {
		return c.backing.Get(i)
	}
	return c.computeAt(i)
}

func (c *Computed[T]) computeAt(i uint64) (T, bool, error) {
	var zero T
	if !c.eager {
		if v, ok := c.cache[i]; ok {
			return v, true, nil
		}
	}

	args := make([]any, len(c.sources))
	for idx, s := range c.sources {
		if i >= s.Len() {
			return zero, false, &IndexOutOfRangeError{Index: i, Length: s.Len()}
		}
		v, ok, err := s.getAny(i)
		if err != nil {
			return zero, false, err
		}
		if !ok {
			return zero, false, nil
		}
		args[idx] = v
	}

	result := c.compute(args...)
	if !c.eager {
		c.cache[i] = result
	}
	return result, true, nil
}

// Advance materializes every index the backing vector is missing, up to
// the shortest source's current length (spec §4.7 "recomputation is
// incremental from the current derived length"). No-op in lazy mode.
func (c *Computed[T]) Advance() error {
	if !c.eager {
		return nil
	}
	min := uint64(math.MaxUint64)
	for _, s := range c.sources {
		if l := s.Len(); l < min {
			min = l
		}
	}
	for i := c.backing.Len(); i < min; i++ {
		val, ok, err := c.computeAt(i)
		if err != nil {
			return err
		}
		idx, err := c.backing.Push(val)
		if err != nil {
			return err
		}
		if !ok {
			if _, err := c.backing.Take(idx); err != nil {
				return err
			}
		}
	}
	return nil
}

// Flush persists the backing vector in eager mode; a no-op in lazy mode,
// which never owns durable storage of its own.
func (c *Computed[T]) Flush() error {
	if !c.eager {
		return nil
	}
	return c.backing.Flush()
}
