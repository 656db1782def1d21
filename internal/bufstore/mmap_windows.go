//go:build windows

package bufstore

import (
	"fmt"
	"os"
	"syscall"
	"unsafe"
)

// mapRegion memory-maps the first size bytes of f (Windows implementation).
//
// This function uses unsafe operations which are required for memory mapping.
// addr comes from MapViewOfFile, which returns a valid mapped address.
func mapRegion(f *os.File, size int, mode Mode) ([]byte, error) {
	protect := uint32(syscall.PAGE_READWRITE)
	access := uint32(syscall.FILE_MAP_WRITE)
	if mode == ModePrivate {
		protect = syscall.PAGE_WRITECOPY
		access = syscall.FILE_MAP_COPY
	}

	handle, err := syscall.CreateFileMapping(
		syscall.Handle(f.Fd()),
		nil,
		protect,
		uint32(uint64(size)>>32), //nolint:gosec // G115: high half of the mapping size
		uint32(size),             //nolint:gosec // G115: low half of the mapping size
		nil,
	)
	if err != nil {
		return nil, err
	}
	defer func() { _ = syscall.CloseHandle(handle) }()

	addr, err := syscall.MapViewOfFile(handle, access, 0, 0, uintptr(size))
	if err != nil {
		return nil, err
	}

	//nolint:govet,gosec // G103: addr is a valid mapped region of size bytes
	return unsafe.Slice((*byte)(unsafe.Pointer(addr)), size), nil
}

// flushRegion writes dirty pages back to the file.
func flushRegion(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	return syscall.FlushViewOfFile(uintptr(unsafe.Pointer(&data[0])), uintptr(len(data)))
}

// unmapRegion unmaps a memory-mapped region (Windows implementation).
func unmapRegion(data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("cannot unmap empty data")
	}
	return syscall.UnmapViewOfFile(uintptr(unsafe.Pointer(&data[0])))
}
