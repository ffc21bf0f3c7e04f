//go:build linux

package region

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// punchHole implements step 5 of flush on Linux: deallocate the page range
// without changing the file's reported size (spec §4.1 bytes_to_punch, §6
// "hole punching is conditional on kernel support").
func punchHole(f *os.File, offset, length uint64) error {
	err := unix.Fallocate(int(f.Fd()), unix.FALLOC_FL_PUNCH_HOLE|unix.FALLOC_FL_KEEP_SIZE, int64(offset), int64(length))
	if err != nil {
		return fmt.Errorf("%w: fallocate punch hole: %v", ErrIOFailed, err)
	}
	return nil
}

func punchHoleSupported() bool { return true }
