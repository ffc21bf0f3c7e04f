// Package region implements the low-level region store: many named,
// variable-size byte regions inside one data file, backed by a
// memory-mapped view, with automatic growth, relocation, hole tracking and
// filesystem-level space reclamation (spec §1-§6).
package region

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// Store is the public region store handle. It exclusively owns the mmap and
// the layout; regions are references into the store (spec §3 "Ownership").
// The store is shared across threads: one writer at a time (guarded by mu),
// many lock-free readers once they've pinned a Reader snapshot (spec §5).
type Store struct {
	mu sync.RWMutex // guards layout + metadata bookkeeping and serializes writers

	dir      string
	dataFile *os.File
	lockFile *os.File
	meta     *metadataStore
	layout   *layout

	gen atomic.Pointer[mmapGeneration]

	logger *slog.Logger
	closed atomic.Bool
}

// Options configures Open.
type Options struct {
	Logger *slog.Logger
}

// Open opens (creating if absent) the data and meta files under dir,
// rebuilds the layout, and returns a handle (spec §4.3 open). Fails with
// ErrAlreadyOpen if another process holds the advisory lock.
func Open(dir string, opts Options) (*Store, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: mkdir: %v", ErrIOFailed, err)
	}

	dataPath := filepath.Join(dir, "data")
	metaPath := filepath.Join(dir, "meta")

	dataFile, err := os.OpenFile(dataPath, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("%w: open data file: %v", ErrIOFailed, err)
	}

	metaFile, err := os.OpenFile(metaPath, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		_ = dataFile.Close()
		return nil, fmt.Errorf("%w: open meta file: %v", ErrIOFailed, err)
	}

	if err := flockExclusive(int(metaFile.Fd())); err != nil {
		_ = dataFile.Close()
		_ = metaFile.Close()
		return nil, err
	}

	ms, err := openMetadataStore(metaFile, logger)
	if err != nil {
		_ = dataFile.Close()
		_ = metaFile.Close()
		return nil, err
	}

	info, err := dataFile.Stat()
	if err != nil {
		_ = dataFile.Close()
		_ = metaFile.Close()
		return nil, err
	}

	lay := newLayout()
	for _, rec := range ms.allRecords() {
		lay.placeRegion(rec.id, rec.offset, rec.reserved)
	}
	lay.recomputeHoles()
	if uint64(info.Size()) > lay.tail {
		lay.tail = ceilPage(uint64(info.Size()))
	}

	s := &Store{
		dir:      dir,
		dataFile: dataFile,
		lockFile: metaFile,
		meta:     ms,
		layout:   lay,
		logger:   logger,
	}

	size := lay.tail
	if size == 0 {
		size = PageSize
	}
	if err := s.growFileLocked(size); err != nil {
		_ = dataFile.Close()
		_ = metaFile.Close()
		return nil, err
	}

	return s, nil
}

// growFileLocked grows the data file (if needed) to at least size bytes and
// installs a fresh mmap generation. Caller must hold mu for write.
func (s *Store) growFileLocked(size uint64) error {
	info, err := s.dataFile.Stat()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrIOFailed, err)
	}

	if uint64(info.Size()) < size {
		if err := s.dataFile.Truncate(int64(size)); err != nil {
			return fmt.Errorf("%w: truncate: %v", ErrOutOfSpace, err)
		}
	} else if old := s.gen.Load(); old != nil && uint64(len(old.data)) >= size {
		return nil
	}

	data, err := mmapFile(int(s.dataFile.Fd()), int64(size))
	if err != nil {
		return err
	}

	old := s.gen.Swap(&mmapGeneration{data: data})
	if old != nil && old.refcount.Load() == 0 {
		_ = munmapData(old.data)
	}
	return nil
}

// ensureCapacityLocked grows the mmap if end exceeds the current mapping.
// Per spec §4.4/§5, this is the one operation that takes a short exclusive
// lock stalling new readers; existing readers continue on the old mapping
// until they drop it.
func (s *Store) ensureCapacityLocked(end uint64) error {
	gen := s.gen.Load()
	if gen != nil && uint64(len(gen.data)) >= end {
		return nil
	}
	return s.growFileLocked(ceilPage(end))
}

// Info returns a region's current placement snapshot, or ErrUnknownRegion.
func (s *Store) Info(id RegionID) (Info, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.meta.record(id)
	if !ok || rec.tomb {
		return Info{}, &UnknownRegionError{ID: id}
	}
	return Info{ID: rec.id, Name: rec.name, Offset: rec.offset, Length: rec.length, Reserved: rec.reserved, TypeTag: rec.typeTag, Version: rec.version}, nil
}

// LookupByName returns the id of a named region if it exists.
func (s *Store) LookupByName(name string) (RegionID, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.meta.lookupByName(name)
}

// CreateRegionIfNeeded implements §4.3 create_region_if_needed: returns the
// existing id if name is already taken, else assigns an id, places a
// zero-length region with the default one-page reserve, and marks metadata
// dirty.
func (s *Store) CreateRegionIfNeeded(name string) (RegionID, error) {
	if len(name) > maxNameBytes {
		return 0, fmt.Errorf("region: name exceeds %d bytes", maxNameBytes)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.meta.lookupByName(name); ok {
		return id, nil
	}

	off := s.layout.placeNew(PageSize)
	if err := s.ensureCapacityLocked(off + PageSize); err != nil {
		return 0, err
	}

	id, _ := s.meta.assignSlot(name)
	s.layout.placeRegion(id, off, PageSize)
	s.meta.setPlacement(id, off, 0, PageSize)

	return id, nil
}

// RemoveRegion implements §4.3 remove_region: tombstones the metadata slot
// and adds the placement to pending holes. The name is released at once:
// CreateRegionIfNeeded can reuse it (under a new id) before any flush. Only
// the region's bytes wait for the next successful flush, as a pending hole.
func (s *Store) RemoveRegion(id RegionID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.meta.record(id); !ok {
		return &UnknownRegionError{ID: id}
	}

	s.layout.remove(id)
	s.meta.remove(id)
	return nil
}

// writeAt is the shared implementation behind WriteAllToRegion,
// WriteAllToRegionAt and AppendToRegion, grounded on
// original_source/crates/rawdb/src/lib.rs write_all_to_region_at_: write in
// place when it fits the reserve, else expand in place (tail growth or an
// adjacent live hole), else relocate to a hole or the tail.
func (s *Store) writeAt(id RegionID, at *uint64, data []byte, truncate bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.meta.record(id)
	if !ok || rec.tomb {
		return &UnknownRegionError{ID: id}
	}

	atVal := rec.length
	if at != nil {
		atVal = *at
	}
	if atVal > rec.length {
		return ErrInvalidPosition
	}

	dataLen := uint64(len(data))
	newLen := atVal + dataLen
	if !truncate && newLen < rec.length {
		newLen = rec.length
	}

	writeStart := rec.offset + atVal

	if newLen <= rec.reserved {
		gen := s.gen.Load()
		copy(gen.data[writeStart:writeStart+dataLen], data)
		s.meta.setPlacement(id, rec.offset, newLen, rec.reserved)
		return nil
	}

	newReserved := rec.reserved
	for newLen > newReserved {
		newReserved *= 2
	}

	if s.isTail(rec.offset, rec.reserved) {
		if err := s.ensureCapacityLocked(rec.offset + newReserved); err != nil {
			return err
		}
		s.layout.expandInPlace(id, newReserved)
		gen := s.gen.Load()
		copy(gen.data[writeStart:writeStart+dataLen], data)
		s.meta.setPlacement(id, rec.offset, newLen, newReserved)
		return nil
	}

	if s.layout.expandInPlace(id, newReserved) {
		gen := s.gen.Load()
		if err := s.ensureCapacityLocked(rec.offset + newReserved); err != nil {
			return err
		}
		gen = s.gen.Load()
		copy(gen.data[writeStart:writeStart+dataLen], data)
		s.meta.setPlacement(id, rec.offset, newLen, newReserved)
		return nil
	}

	// Relocate: allocate via placeNew (through moveRegion), copy the
	// preserved prefix, then write the new data.
	newOffset := s.layout.moveRegion(id, newReserved)
	if err := s.ensureCapacityLocked(newOffset + newReserved); err != nil {
		return err
	}
	gen := s.gen.Load()
	preserved := atVal
	if preserved > 0 {
		copy(gen.data[newOffset:newOffset+preserved], gen.data[rec.offset:rec.offset+preserved])
	}
	copy(gen.data[newOffset+atVal:newOffset+atVal+dataLen], data)
	s.meta.setPlacement(id, newOffset, newLen, newReserved)
	return nil
}

func (s *Store) isTail(offset, reserved uint64) bool {
	return offset+reserved == s.layout.tail
}

// WriteAllToRegion implements §4.3 write_all_to_region: overwrite region
// content with data.
func (s *Store) WriteAllToRegion(id RegionID, data []byte) error {
	var start uint64
	return s.writeAt(id, &start, data, true)
}

// WriteAllToRegionAt writes data starting at byte offset at within the
// region, extending length if needed but never truncating past the write.
func (s *Store) WriteAllToRegionAt(id RegionID, data []byte, at uint64) error {
	return s.writeAt(id, &at, data, false)
}

// TruncateWriteAllToRegionAt writes data at offset at and truncates the
// region's logical length to at+len(data).
func (s *Store) TruncateWriteAllToRegionAt(id RegionID, data []byte, at uint64) error {
	return s.writeAt(id, &at, data, true)
}

// AppendToRegion implements §4.3 append_to_region: a specialization that
// attempts tail/adjacent-hole expansion before moving.
func (s *Store) AppendToRegion(id RegionID, data []byte) error {
	return s.writeAt(id, nil, data, false)
}

// TruncateRegion implements the non-destructive truncate_region used by the
// vector layer (original_source/crates/rawdb/src/lib.rs truncate_region):
// shrinks the recorded length without touching bytes or reserve.
func (s *Store) TruncateRegion(id RegionID, newLen uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.meta.record(id)
	if !ok || rec.tomb {
		return &UnknownRegionError{ID: id}
	}
	if newLen > rec.length {
		return ErrTruncateBeyond
	}
	s.meta.setPlacement(id, rec.offset, newLen, rec.reserved)
	return nil
}

// Stats reports layout accounting (spec §8 invariant 2).
func (s *Store) Stats() StoreStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	info, _ := s.dataFile.Stat()
	var fileSize uint64
	if info != nil {
		fileSize = uint64(info.Size())
	}

	return StoreStats{
		RegionCount:      len(s.layout.placements),
		PlacedBytes:      s.layout.placedBytes(),
		LiveHoleBytes:    s.layout.liveHoleBytes(),
		PendingHoleBytes: s.layout.pendingHoleBytes(),
		Tail:             s.layout.tail,
		FileSize:         fileSize,
	}
}

// Flush is the crash-consistent barrier (spec §4.3 flush): msync the data
// mmap, write dirty metadata pages with fresh checksums, fsync the metadata
// file, promote pending holes, then hole-punch and truncate. Only after the
// metadata fsync is the state durable; steps 4-5 merely recycle space.
func (s *Store) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flushLocked(ctx)
}

func (s *Store) flushLocked(ctx context.Context) error {
	gen := s.gen.Load()
	if err := msyncData(gen.data); err != nil {
		return err
	}

	if err := s.meta.flush(); err != nil {
		return err
	}

	s.layout.promotePending()

	return s.reclaimLocked(ctx)
}

// reclaimLocked hole-punches live-hole extents and truncates the data file
// to the new tail. Punch failures are logged and skipped (spec §9 open
// question); tail truncation is always attempted and its errors propagate.
func (s *Store) reclaimLocked(ctx context.Context) error {
	extents := s.layout.bytesToPunch()

	if punchHoleSupported() && len(extents) > 0 {
		g, _ := errgroup.WithContext(ctx)
		g.SetLimit(maxParallelism())
		for _, e := range extents {
			e := e
			g.Go(func() error {
				if err := punchHole(s.dataFile, e.offset, e.length); err != nil {
					s.logger.Warn("hole punch failed, continuing without reclaiming space",
						"offset", e.offset, "length", e.length, "error", err)
				}
				return nil
			})
		}
		_ = g.Wait()
	}

	newTail := s.layout.tail
	info, err := s.dataFile.Stat()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrIOFailed, err)
	}
	if uint64(info.Size()) > newTail {
		if err := s.dataFile.Truncate(int64(newTail)); err != nil {
			return fmt.Errorf("%w: truncate tail: %v", ErrIOFailed, err)
		}
		// Re-map at the new tail size so gen stays consistent with the
		// truncated file.
		if gen := s.gen.Load(); gen != nil && uint64(len(gen.data)) != newTail {
			data, err := mmapFile(int(s.dataFile.Fd()), int64(newTail))
			if err != nil {
				return err
			}
			old := s.gen.Swap(&mmapGeneration{data: data})
			if old != nil && old.refcount.Load() == 0 {
				_ = munmapData(old.data)
			}
		}
	}

	return nil
}

// Compact relocates regions to eliminate internal holes, then flushes
// (spec §4.3 compact). Candidate scanning is fanned out across
// golang.org/x/sync/errgroup, grounded on the rayon parallel iterator
// original_source/crates/rawdb/src/lib.rs uses for the analogous scan; the
// relocations themselves still serialize through the single writer lock.
func (s *Store) Compact(ctx context.Context) error {
	s.mu.Lock()
	candidates := s.compactionCandidatesLocked(ctx)
	for _, id := range candidates {
		rec, ok := s.meta.record(id)
		if !ok || rec.tomb {
			continue
		}
		newOffset := s.layout.moveRegion(id, rec.reserved)
		if err := s.ensureCapacityLocked(newOffset + rec.reserved); err != nil {
			s.mu.Unlock()
			return err
		}
		gen := s.gen.Load()
		copy(gen.data[newOffset:newOffset+rec.length], gen.data[rec.offset:rec.offset+rec.length])
		s.meta.setPlacement(id, newOffset, rec.length, rec.reserved)
	}
	err := s.flushLocked(ctx)
	s.mu.Unlock()
	return err
}

// compactionCandidatesLocked returns ids that sit after a live hole large
// enough to hold their whole reserve, i.e. regions that could move to a
// lower offset. Caller holds mu.
func (s *Store) compactionCandidatesLocked(ctx context.Context) []RegionID {
	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelism())

	var mu sync.Mutex
	var out []RegionID

	for id, p := range s.layout.placements {
		id, p := id, p
		g.Go(func() error {
			hasEarlierHole := false
			for off, length := range s.layout.liveHoles {
				if off < p.offset && length >= p.length {
					hasEarlierHole = true
					break
				}
			}
			if hasEarlierHole {
				mu.Lock()
				out = append(out, id)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func maxParallelism() int {
	if n := runtimeNumCPU(); n > 0 {
		return n
	}
	return 1
}

// Close releases the mmap, file handles and advisory lock deterministically
// (spec §5 "Scoped resources").
func (s *Store) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if gen := s.gen.Load(); gen != nil {
		_ = munmapData(gen.data)
	}

	_ = flockRelease(int(s.lockFile.Fd()))

	var firstErr error
	if err := s.dataFile.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := s.lockFile.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// Dir returns the directory this store was opened against.
func (s *Store) Dir() string { return s.dir }
