//go:build windows

package region

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"
)

// windows has no mmap-level msync equivalent exposed the same way as
// unix.Msync; FlushViewOfFile plays that role. Handles are tracked in
// mappingRegistry below, keyed by the mapped slice, since, unlike unix,
// they must be explicitly closed.
type winMapping struct {
	fileMapping windows.Handle
	addr        uintptr
}

func mmapFile(fd int, size int64) ([]byte, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: invalid mmap size %d", ErrIOFailed, size)
	}

	hi := uint32(uint64(size) >> 32)
	lo := uint32(uint64(size) & 0xffffffff)

	h, err := windows.CreateFileMapping(windows.Handle(fd), nil, windows.PAGE_READWRITE, hi, lo, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: CreateFileMapping: %v", ErrIOFailed, err)
	}

	addr, err := windows.MapViewOfFile(h, windows.FILE_MAP_WRITE, 0, 0, uintptr(size))
	if err != nil {
		windows.CloseHandle(h)
		return nil, fmt.Errorf("%w: MapViewOfFile: %v", ErrIOFailed, err)
	}

	data := unsafe.Slice((*byte)(unsafe.Pointer(addr)), int(size))
	mappingRegistry[&data[0]] = winMapping{fileMapping: h, addr: addr}
	return data, nil
}

// mappingRegistry tracks the Windows handles behind a mapped slice, since
// munmapData only receives the slice.
var mappingRegistry = map[*byte]winMapping{}

func munmapData(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	m, ok := mappingRegistry[&data[0]]
	if !ok {
		return nil
	}
	delete(mappingRegistry, &data[0])
	_ = windows.UnmapViewOfFile(m.addr)
	return windows.CloseHandle(m.fileMapping)
}

func msyncData(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	if err := windows.FlushViewOfFile(uintptr(unsafe.Pointer(&data[0])), uintptr(len(data))); err != nil {
		return fmt.Errorf("%w: FlushViewOfFile: %v", ErrIOFailed, err)
	}
	return nil
}

func flockExclusive(fd int) error {
	ol := new(windows.Overlapped)
	h := windows.Handle(fd)
	err := windows.LockFileEx(h, windows.LOCKFILE_EXCLUSIVE_LOCK|windows.LOCKFILE_FAIL_IMMEDIATELY, 0, 1, 0, ol)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAlreadyOpen, err)
	}
	return nil
}

func flockRelease(fd int) error {
	ol := new(windows.Overlapped)
	return windows.UnlockFileEx(windows.Handle(fd), 0, 1, 0, ol)
}
