package region

import (
	"errors"
	"fmt"
)

// Sentinel errors mirroring the recoverable error names named by the store's
// contract. Callers should compare with errors.Is.
var (
	ErrAlreadyOpen      = errors.New("region: store already open (advisory lock held)")
	ErrUnknownRegion    = errors.New("region: unknown region")
	ErrNameTaken        = errors.New("region: name already in use")
	ErrOutOfSpace       = errors.New("region: underlying filesystem refused growth")
	ErrIOFailed         = errors.New("region: I/O operation failed")
	ErrCorruptMetadata  = errors.New("region: metadata checksum mismatch")
	ErrCorruptPage      = errors.New("region: page checksum mismatch")
	ErrInvalidPosition  = errors.New("region: write position beyond region length")
	ErrRegionInUse      = errors.New("region: region still referenced by an open reader")
	ErrTruncateBeyond   = errors.New("region: truncate target is beyond current length")

	errHolePunchUnsupported = fmt.Errorf("%w: hole punching unsupported on this platform", ErrIOFailed)
)

// NameTakenError carries the offending name for callers that want it without
// string parsing.
type NameTakenError struct {
	Name string
}

func (e *NameTakenError) Error() string {
	return fmt.Sprintf("region: name %q already in use", e.Name)
}

func (e *NameTakenError) Is(target error) bool { return target == ErrNameTaken }

// UnknownRegionError carries the offending id.
type UnknownRegionError struct {
	ID RegionID
}

func (e *UnknownRegionError) Error() string {
	return fmt.Sprintf("region: unknown region id %d", uint64(e.ID))
}

func (e *UnknownRegionError) Is(target error) bool { return target == ErrUnknownRegion }

// CorruptSlotError names the metadata slot index that failed its checksum.
type CorruptSlotError struct {
	Slot int
}

func (e *CorruptSlotError) Error() string {
	return fmt.Sprintf("region: metadata slot %d failed checksum verification", e.Slot)
}

func (e *CorruptSlotError) Is(target error) bool { return target == ErrCorruptMetadata }

// FatalCorruption describes a checksum failure on a slot or page the store
// believed durable and consistent. No code path in this module raises it:
// a metadata slot that fails its checksum at open is quarantined as a
// tombstone and logged (openMetadataStore), and a vector header that fails
// its checksum is returned as an ordinary error.
type FatalCorruption struct {
	Reason string
}

func (e *FatalCorruption) Error() string {
	return fmt.Sprintf("region: fatal corruption: %s", e.Reason)
}
