//go:build !windows

package region

import (
	"fmt"

	"golang.org/x/sys/unix"
)

func mmapFile(fd int, size int64) ([]byte, error) {
	data, err := unix.Mmap(fd, 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("%w: mmap: %v", ErrIOFailed, err)
	}
	return data, nil
}

func munmapData(data []byte) error {
	if data == nil {
		return nil
	}
	if err := unix.Munmap(data); err != nil {
		return fmt.Errorf("%w: munmap: %v", ErrIOFailed, err)
	}
	return nil
}

// msyncData implements step 1 of flush (spec §4.3): msync the data mmap.
func msyncData(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	if err := unix.Msync(data, unix.MS_SYNC); err != nil {
		return fmt.Errorf("%w: msync: %v", ErrIOFailed, err)
	}
	return nil
}

func flockExclusive(fd int) error {
	if err := unix.Flock(fd, unix.LOCK_EX|unix.LOCK_NB); err != nil {
		return fmt.Errorf("%w: %v", ErrAlreadyOpen, err)
	}
	return nil
}

func flockRelease(fd int) error {
	return unix.Flock(fd, unix.LOCK_UN)
}
