// Package vector implements the persistent vector layer on top of
// internal/region: typed, append-mostly, index-addressable sequences with
// push/update/take/truncate/rollback and optional numeric compression.
package vector

import (
	"errors"
	"fmt"
)

var (
	ErrVersionMismatch = errors.New("vector: on-disk version does not match requested version")
	ErrNoStampToRoll   = errors.New("vector: no stamp record found for requested rollback target")
	ErrUnknownCodec    = errors.New("vector: unknown codec id")
)

// IndexOutOfRangeError carries the offending index and the vector's length
// at the time of the call.
type IndexOutOfRangeError struct {
	Index  uint64
	Length uint64
}

func (e *IndexOutOfRangeError) Error() string {
	return fmt.Sprintf("vector: index %d out of range (length %d)", e.Index, e.Length)
}

// VersionMismatchError carries the vector name and the two version tags in
// conflict, for callers choosing between failing and ForcedImport.
type VersionMismatchError struct {
	Name     string
	OnDisk   uint16
	Expected uint16
}

func (e *VersionMismatchError) Error() string {
	return fmt.Sprintf("vector: %q on-disk version %d does not match requested version %d", e.Name, e.OnDisk, e.Expected)
}

func (e *VersionMismatchError) Is(target error) bool { return target == ErrVersionMismatch }
