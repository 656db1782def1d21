//go:build unix

package bufstore

import (
	"os"

	"golang.org/x/sys/unix"
)

// mapRegion memory-maps the first size bytes of f (Unix implementation).
func mapRegion(f *os.File, size int, mode Mode) ([]byte, error) {
	flags := unix.MAP_SHARED
	if mode == ModePrivate {
		flags = unix.MAP_PRIVATE
	}
	return unix.Mmap(
		int(f.Fd()), //nolint:gosec // G115: file descriptor fits in int
		0,
		size,
		unix.PROT_READ|unix.PROT_WRITE,
		flags,
	)
}

// flushRegion synchronously writes dirty pages back to the file.
func flushRegion(data []byte) error {
	return unix.Msync(data, unix.MS_SYNC)
}

// unmapRegion unmaps a memory-mapped region (Unix implementation).
func unmapRegion(data []byte) error {
	return unix.Munmap(data)
}
