package vector

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/voxlabs/regiondb/internal/region"
)

// Vector is a typed, persistent, append-mostly sequence backed by three
// regions in a region.Store: a header region (directory + bookkeeping), a
// data region (finalized pages), and a lazily-created rollback region
// (spec §4.6, §6).
type Vector[T Numeric] struct {
	mu sync.Mutex

	store  *region.Store
	name   string
	codec  Codec[T]
	logger *slog.Logger

	hdrID      region.RegionID
	dataID     region.RegionID
	rollbackID region.RegionID
	hasRollbackRegion bool

	pageElementCount uint32
	userVersion      uint16

	length    uint64
	activeBuf []T
	holes     *holeSet
	pageDir   []pageEntry
	stampHead uint64

	draft *draft[T]
}

// draft accumulates a reverse delta since the last stamped flush (spec
// §4.6 stamped_flush). Opened lazily on the first mutation after a
// flush/stampedFlush/open, closed (and written) by the next StampedFlush.
type draft[T Numeric] struct {
	prevLength      uint64
	prevActiveBuf   []T
	prevHoles       *holeSet
	prevPageDirLen  int
	touchedPages    map[int]bool
	deltas          []pageDelta
}

// Option configures Open.
type Option func(*options)

type options struct {
	logger           *slog.Logger
	pageElementCount uint32
}

func WithLogger(l *slog.Logger) Option { return func(o *options) { o.logger = l } }

// WithPageElementCount overrides the default element count per page
// (PageSize / element size, minimum 1).
func WithPageElementCount(n uint32) Option { return func(o *options) { o.pageElementCount = n } }

// Open opens or creates a named vector backed by store. If the vector
// exists on disk with a different userVersion, Open fails with
// VersionMismatchError; the caller may retry via ForcedImport.
func Open[T Numeric](store *region.Store, name string, codec Codec[T], userVersion uint16, opts ...Option) (*Vector[T], error) {
	cfg := options{logger: slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))}
	for _, o := range opts {
		o(&cfg)
	}
	if cfg.pageElementCount == 0 {
		cfg.pageElementCount = uint32(region.PageSize / codec.ElementSize())
		if cfg.pageElementCount == 0 {
			cfg.pageElementCount = 1
		}
	}

	v := &Vector[T]{
		store:            store,
		name:             name,
		codec:            codec,
		logger:           cfg.logger,
		pageElementCount: cfg.pageElementCount,
		userVersion:      userVersion,
		holes:            newHoleSet(),
		stampHead:        noStampHead,
	}

	hdrID, err := store.CreateRegionIfNeeded(name + ".hdr")
	if err != nil {
		return nil, err
	}
	dataID, err := store.CreateRegionIfNeeded(name + ".data")
	if err != nil {
		return nil, err
	}
	v.hdrID, v.dataID = hdrID, dataID

	info, err := store.Info(hdrID)
	if err != nil {
		return nil, err
	}
	if info.Length == 0 {
		return v, v.writeHeader()
	}

	if err := v.loadHeader(); err != nil {
		return nil, err
	}
	if v.headerUserVersion() != userVersion {
		return nil, &VersionMismatchError{Name: name, OnDisk: v.headerUserVersion(), Expected: userVersion}
	}
	return v, nil
}

// ForcedImport opens name, discarding and reinitializing it if the on-disk
// version mismatches rather than failing (spec §4.6, grounded on
// original_source/crates/vecdb/src/variants/raw/mod.rs forced_import_with).
func ForcedImport[T Numeric](store *region.Store, name string, codec Codec[T], userVersion uint16, opts ...Option) (*Vector[T], error) {
	v, err := Open(store, name, codec, userVersion, opts...)
	var verr *VersionMismatchError
	if err == nil || !asVersionMismatch(err, &verr) {
		return v, err
	}

	cfg := options{logger: slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))}
	for _, o := range opts {
		o(&cfg)
	}
	if cfg.pageElementCount == 0 {
		cfg.pageElementCount = uint32(region.PageSize / codec.ElementSize())
		if cfg.pageElementCount == 0 {
			cfg.pageElementCount = 1
		}
	}

	nv := &Vector[T]{
		store:            store,
		name:             name,
		codec:            codec,
		logger:           cfg.logger,
		pageElementCount: cfg.pageElementCount,
		userVersion:      userVersion,
		holes:            newHoleSet(),
		stampHead:        noStampHead,
	}
	hdrID, err := store.CreateRegionIfNeeded(name + ".hdr")
	if err != nil {
		return nil, err
	}
	dataID, err := store.CreateRegionIfNeeded(name + ".data")
	if err != nil {
		return nil, err
	}
	nv.hdrID, nv.dataID = hdrID, dataID
	if err := store.WriteAllToRegion(dataID, nil); err != nil {
		return nil, err
	}
	if err := nv.writeHeader(); err != nil {
		return nil, err
	}
	return nv, nil
}

func asVersionMismatch(err error, out **VersionMismatchError) bool {
	verr, ok := err.(*VersionMismatchError)
	if ok {
		*out = verr
	}
	return ok
}

func (v *Vector[T]) headerUserVersion() uint16 { return v.userVersion }

func (v *Vector[T]) loadHeader() error {
	r := v.store.NewReader()
	defer r.Release()
	raw, err := r.ReadRegion(v.hdrID)
	if err != nil {
		return err
	}
	h, err := decodeHeader(raw)
	if err != nil {
		return err
	}
	if h.codecID != v.codec.ID() {
		return fmt.Errorf("%w: %q encoded with codec %d, opened with codec %d", ErrUnknownCodec, v.name, h.codecID, v.codec.ID())
	}
	// A stored element width that differs from the codec's is reported as a
	// version mismatch; the bytes are never reinterpreted.
	if int(h.elementSize) != v.codec.ElementSize() {
		return &VersionMismatchError{Name: v.name, OnDisk: h.userVersion, Expected: v.userVersion}
	}
	v.userVersion = h.userVersion
	v.pageElementCount = h.pageElementCount
	v.length = h.length
	v.holes = h.holes
	v.pageDir = h.pageDir
	v.stampHead = h.stampChainHead

	active, err := v.codec2RawDecode(h.activeBuf, int(h.activeCount))
	if err != nil {
		return err
	}
	v.activeBuf = active
	return nil
}

// codec2RawDecode decodes the always-raw trailing active buffer (spec
// §4.6 flush: "the compressed codec always stores the final partial page
// raw and marks it").
func (v *Vector[T]) codec2RawDecode(data []byte, count int) ([]T, error) {
	raw := newRawCodec[T]()
	if count == 0 {
		return nil, nil
	}
	return raw.Decode(data, count)
}

func (v *Vector[T]) writeHeader() error {
	raw := newRawCodec[T]()
	activeBytes, err := raw.Encode(v.activeBuf)
	if err != nil {
		return err
	}

	h := &headerState{
		codecID:          v.codec.ID(),
		codecVersion:     v.codec.Version(),
		userVersion:      v.userVersion,
		elementSize:      uint16(v.codec.ElementSize()),
		pageElementCount: v.pageElementCount,
		length:           v.length,
		activeBuf:        activeBytes,
		activeCount:      uint32(len(v.activeBuf)),
		holes:            v.holes,
		pageDir:          v.pageDir,
		stampChainHead:   v.stampHead,
	}
	return v.store.WriteAllToRegion(v.hdrID, encodeHeader(h))
}

// openDraft begins accumulating a reverse delta if one isn't already open.
// Caller holds v.mu.
func (v *Vector[T]) openDraft() {
	if v.draft != nil {
		return
	}
	v.draft = &draft[T]{
		prevLength:     v.length,
		prevActiveBuf:  append([]T(nil), v.activeBuf...),
		prevHoles:      v.holes.clone(),
		prevPageDirLen: len(v.pageDir),
		touchedPages:   make(map[int]bool),
	}
}

// notePageChange records the before-image of pageDir[idx] the first time
// it's touched within the current draft. Caller holds v.mu.
func (v *Vector[T]) notePageChange(idx int, hadPage bool, prevBytes []byte) {
	if v.draft == nil {
		return
	}
	if v.draft.touchedPages[idx] {
		return
	}
	v.draft.touchedPages[idx] = true
	var prev pageEntry
	if hadPage {
		prev = v.pageDir[idx]
	}
	v.draft.deltas = append(v.draft.deltas, pageDelta{
		pageIndex: idx,
		hadPage:   hadPage,
		prev:      prev,
		prevBytes: prevBytes,
	})
}

// Len returns the vector's current logical length.
func (v *Vector[T]) Len() uint64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.length
}

// VectorStats reports observability counters for the regionctl CLI and
// tests (spec §4.6 addition, grounded on
// original_source/crates/vecdb/src/variants/raw/mod.rs's
// stored_len/real_stored_len split).
type VectorStats struct {
	Length    uint64
	PageCount int
	HoleCount int
	Pending   int // elements buffered but not yet page-flushed
}

func (v *Vector[T]) Stats() VectorStats {
	v.mu.Lock()
	defer v.mu.Unlock()
	return VectorStats{
		Length:    v.length,
		PageCount: len(v.pageDir),
		HoleCount: v.holes.Count(),
		Pending:   len(v.activeBuf),
	}
}

// Push implements spec §4.6 push.
func (v *Vector[T]) Push(value T) (uint64, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	idx := v.length
	v.openDraft()
	v.activeBuf = append(v.activeBuf, value)
	v.length++

	if uint32(len(v.activeBuf)) == v.pageElementCount {
		if err := v.finalizeActivePageLocked(); err != nil {
			return 0, err
		}
	}
	return idx, nil
}

// finalizeActivePageLocked encodes the full active buffer as a new page,
// appends it to the data region, and records it in the directory. Caller
// holds v.mu.
func (v *Vector[T]) finalizeActivePageLocked() error {
	encoded, err := v.codec.Encode(v.activeBuf)
	if err != nil {
		return err
	}
	if err := v.store.AppendToRegion(v.dataID, encoded); err != nil {
		return err
	}
	info, err := v.store.Info(v.dataID)
	if err != nil {
		return err
	}
	offset := info.Length - uint64(len(encoded))

	idx := len(v.pageDir)
	v.notePageChange(idx, false, nil)
	v.pageDir = append(v.pageDir, pageEntry{offset: offset, length: uint32(len(encoded)), count: uint32(len(v.activeBuf))})
	v.activeBuf = v.activeBuf[:0]
	return nil
}

// FillFirstHoleOrPush implements spec §4.6 fill_first_hole_or_push.
func (v *Vector[T]) FillFirstHoleOrPush(value T) (uint64, error) {
	v.mu.Lock()
	v.openDraft()
	if idx, ok := v.holes.PopLowest(); ok {
		if err := v.setElementLocked(idx, value); err != nil {
			v.mu.Unlock()
			return 0, err
		}
		v.mu.Unlock()
		return idx, nil
	}
	v.mu.Unlock()
	return v.Push(value)
}

// Update implements spec §4.6 update.
func (v *Vector[T]) Update(i uint64, value T) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if i >= v.length {
		return &IndexOutOfRangeError{Index: i, Length: v.length}
	}
	v.openDraft()
	v.holes.Remove(i)
	return v.setElementLocked(i, value)
}

// setElementLocked writes value at index i, wherever it currently lives.
// Caller holds v.mu and has already opened a draft if one is desired.
func (v *Vector[T]) setElementLocked(i uint64, value T) error {
	flushedLen := uint64(len(v.pageDir)) * uint64(v.pageElementCount)
	if i >= flushedLen {
		v.activeBuf[i-flushedLen] = value
		return nil
	}

	pageIdx := int(i / uint64(v.pageElementCount))
	inPage := int(i % uint64(v.pageElementCount))
	entry := v.pageDir[pageIdx]

	values, err := v.decodePageLocked(entry)
	if err != nil {
		return err
	}
	values[inPage] = value

	encoded, err := v.codec.Encode(values)
	if err != nil {
		return err
	}

	r := v.store.NewReader()
	prevBytes, err := r.ReadRegionRange(v.dataID, entry.offset, uint64(entry.length))
	r.Release()
	if err != nil {
		return err
	}
	v.notePageChange(pageIdx, true, append([]byte(nil), prevBytes...))

	if uint32(len(encoded)) <= entry.length {
		if err := v.store.WriteAllToRegionAt(v.dataID, encoded, entry.offset); err != nil {
			return err
		}
		v.pageDir[pageIdx] = pageEntry{offset: entry.offset, length: uint32(len(encoded)), count: entry.count}
		return nil
	}

	if err := v.store.AppendToRegion(v.dataID, encoded); err != nil {
		return err
	}
	info, err := v.store.Info(v.dataID)
	if err != nil {
		return err
	}
	newOffset := info.Length - uint64(len(encoded))
	v.pageDir[pageIdx] = pageEntry{offset: newOffset, length: uint32(len(encoded)), count: entry.count}
	return nil
}

func (v *Vector[T]) decodePageLocked(entry pageEntry) ([]T, error) {
	r := v.store.NewReader()
	defer r.Release()
	raw, err := r.ReadRegionRange(v.dataID, entry.offset, uint64(entry.length))
	if err != nil {
		return nil, err
	}
	return v.codec.Decode(raw, int(entry.count))
}

// Take implements spec §4.6 take: marks a hole, does not shrink length.
func (v *Vector[T]) Take(i uint64) (T, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	var zero T
	if i >= v.length {
		return zero, &IndexOutOfRangeError{Index: i, Length: v.length}
	}
	val, isHole, err := v.getLocked(i)
	if err != nil {
		return zero, err
	}
	if isHole {
		return zero, nil
	}
	v.openDraft()
	v.holes.Add(i)
	return val, nil
}

// Truncate implements spec §4.6 truncate.
func (v *Vector[T]) Truncate(newLen uint64) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if newLen >= v.length {
		return nil
	}
	v.openDraft()

	flushedLen := uint64(len(v.pageDir)) * uint64(v.pageElementCount)
	if newLen >= flushedLen {
		keep := newLen - flushedLen
		v.activeBuf = v.activeBuf[:keep]
	} else {
		keepPages := int(newLen / uint64(v.pageElementCount))
		rem := newLen % uint64(v.pageElementCount)

		for idx := len(v.pageDir) - 1; idx >= keepPages; idx-- {
			v.notePageChange(idx, true, nil)
		}

		if rem == 0 {
			v.pageDir = v.pageDir[:keepPages]
			v.activeBuf = nil
		} else {
			entry := v.pageDir[keepPages]
			values, err := v.decodePageLocked(entry)
			if err != nil {
				return err
			}
			v.activeBuf = append([]T(nil), values[:rem]...)
			v.pageDir = v.pageDir[:keepPages]
		}
	}

	v.length = newLen
	v.holes.RemoveFrom(newLen)
	return nil
}

// Get implements spec §4.6 get using the vector's own in-memory state
// directly (a simplification of the spec's reader-threaded Get; see
// Reader for the pinned-snapshot variant used for concurrent iteration).
func (v *Vector[T]) Get(i uint64) (T, bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	var zero T
	if i >= v.length {
		return zero, false, &IndexOutOfRangeError{Index: i, Length: v.length}
	}
	val, isHole, err := v.getLocked(i)
	if isHole {
		return zero, false, nil
	}
	return val, true, err
}

func (v *Vector[T]) getLocked(i uint64) (T, bool, error) {
	var zero T
	if v.holes.Contains(i) {
		return zero, true, nil
	}
	flushedLen := uint64(len(v.pageDir)) * uint64(v.pageElementCount)
	if i >= flushedLen {
		return v.activeBuf[i-flushedLen], false, nil
	}
	pageIdx := int(i / uint64(v.pageElementCount))
	values, err := v.decodePageLocked(v.pageDir[pageIdx])
	if err != nil {
		return zero, false, err
	}
	return values[i%uint64(v.pageElementCount)], false, nil
}

// Flush implements spec §4.6 flush: persist the header (directory, length,
// holes, active buffer) and delegate durability to the store.
func (v *Vector[T]) Flush() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.writeHeader(); err != nil {
		return err
	}
	v.draft = nil
	return v.store.Flush(context.Background())
}

// StampedFlush implements spec §4.6 stamped_flush: records the draft
// accumulated since the last flush/stampedFlush as a reverse-delta record
// keyed by stamp, then flushes. Stamps must strictly increase.
func (v *Vector[T]) StampedFlush(stamp uint64) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.draft == nil {
		v.openDraft()
	}
	d := v.draft

	raw := newRawCodec[T]()
	prevActiveBytes, err := raw.Encode(d.prevActiveBuf)
	if err != nil {
		return err
	}

	rec := &stampRecord{
		stamp:           stamp,
		prevStampOffset: v.stampHead,
		prevLength:      d.prevLength,
		prevActiveBuf:   prevActiveBytes,
		prevActiveCount: uint32(len(d.prevActiveBuf)),
		prevHoles:       d.prevHoles,
		prevPageDirLen:  d.prevPageDirLen,
		deltas:          d.deltas,
	}
	encoded := encodeStampRecord(rec)

	if err := v.ensureRollbackRegionLocked(); err != nil {
		return err
	}
	if err := v.store.AppendToRegion(v.rollbackID, encoded); err != nil {
		return err
	}
	info, err := v.store.Info(v.rollbackID)
	if err != nil {
		return err
	}
	v.stampHead = info.Length - uint64(len(encoded))
	v.draft = nil

	if err := v.writeHeader(); err != nil {
		return err
	}
	return v.store.Flush(context.Background())
}

func (v *Vector[T]) ensureRollbackRegionLocked() error {
	if v.hasRollbackRegion {
		return nil
	}
	id, err := v.store.CreateRegionIfNeeded(v.name + ".rollback")
	if err != nil {
		return err
	}
	v.rollbackID = id
	v.hasRollbackRegion = true
	return nil
}

// RollbackStamp implements spec §4.6 rollback_stamp: undoes every stamped
// record more recent than stamp, restoring the state observable
// immediately after stamped_flush(stamp), then flushes.
func (v *Vector[T]) RollbackStamp(stamp uint64) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if !v.hasRollbackRegion || v.stampHead == noStampHead {
		return ErrNoStampToRoll
	}

	cur := v.stampHead
	var target *stampRecord
	var targetOffset, targetLen uint64

	for cur != noStampHead {
		r := v.store.NewReader()
		buf, err := r.ReadRegionRange(v.rollbackID, cur, v.rollbackRecordProbeLen(cur))
		r.Release()
		if err != nil {
			return err
		}
		rec, n, err := decodeStampRecord(buf)
		if err != nil {
			return err
		}

		if rec.stamp == stamp {
			target = rec
			targetOffset = cur
			targetLen = uint64(n)
			break
		}

		v.applyReverseDelta(rec)
		cur = rec.prevStampOffset
	}

	if target == nil {
		return ErrNoStampToRoll
	}

	// The target record itself must survive on disk: it stays the chain
	// head so a later RollbackStamp can still walk past it to an earlier
	// stamp. Truncate past its end, not at its start.
	v.stampHead = targetOffset
	if err := v.store.TruncateRegion(v.rollbackID, targetOffset+targetLen); err != nil {
		return err
	}
	if err := v.writeHeader(); err != nil {
		return err
	}
	v.draft = nil
	return v.store.Flush(context.Background())
}

// rollbackRecordProbeLen reads to the end of the rollback region from
// offset; record framing is length-prefixed so decodeStampRecord will
// simply use the prefix of this slice it needs.
func (v *Vector[T]) rollbackRecordProbeLen(offset uint64) uint64 {
	info, err := v.store.Info(v.rollbackID)
	if err != nil {
		return 0
	}
	return info.Length - offset
}

// applyReverseDelta restores v's in-memory state to what it was
// immediately before rec was recorded. Caller holds v.mu.
func (v *Vector[T]) applyReverseDelta(rec *stampRecord) {
	raw := newRawCodec[T]()
	prevActive, _ := raw.Decode(rec.prevActiveBuf, int(rec.prevActiveCount))

	v.length = rec.prevLength
	v.activeBuf = prevActive
	v.holes = rec.prevHoles

	if rec.prevPageDirLen <= len(v.pageDir) {
		v.pageDir = v.pageDir[:rec.prevPageDirLen]
	} else {
		grown := make([]pageEntry, rec.prevPageDirLen)
		copy(grown, v.pageDir)
		v.pageDir = grown
	}
	for _, d := range rec.deltas {
		if !d.hadPage || d.pageIndex >= len(v.pageDir) {
			continue
		}
		v.pageDir[d.pageIndex] = d.prev
		_ = v.store.WriteAllToRegionAt(v.dataID, d.prevBytes, d.prev.offset)
	}
}
