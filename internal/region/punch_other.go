//go:build !linux

package region

import "os"

// punchHole is unsupported on this platform. Store.Flush checks
// punchHoleSupported and skips hole punching here without logging; tail
// truncation is always still attempted, and no other I/O error is masked.
func punchHole(f *os.File, offset, length uint64) error {
	return errHolePunchUnsupported
}

func punchHoleSupported() bool { return false }
