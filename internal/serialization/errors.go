package serialization

import (
	"errors"
	"fmt"

	"github.com/born-ml/mmpickle/internal/bufstore"
)

// Common errors.
var (
	// ErrUnsupportedBufferLocation is returned by Save for a storage that is
	// not resident in host memory. Nothing is written.
	ErrUnsupportedBufferLocation = errors.New("buffer is not host-addressable")
	// ErrMalformedPlaceholder is returned by Load for a placeholder that does
	// not carry the storage marker or does not describe a valid buffer.
	ErrMalformedPlaceholder = errors.New("malformed buffer placeholder")
	// ErrMissingOrTruncatedBuffer is returned by Load when a buffer file is
	// absent or shorter than its placeholder requires.
	ErrMissingOrTruncatedBuffer = bufstore.ErrMissingOrTruncated
	// ErrDirectoryCreation is returned by Save when the target directory
	// cannot be created or is not a directory.
	ErrDirectoryCreation = errors.New("cannot create save directory")

	ErrSkeletonExists   = errors.New("directory already holds a skeleton")
	ErrDirectoryInUse   = errors.New("directory backs buffers being saved")
	ErrChecksumMismatch = errors.New("checksum mismatch: file may be corrupted")
	ErrReservedMeta     = errors.New("meta key is reserved")
)

// ValidationError provides detailed information about a placeholder or
// buffer file that failed validation.
type ValidationError struct {
	Type    string // Type of error (e.g., "marker", "dtype", "checksum")
	Key     string // Buffer key involved, if known
	Details string // Additional details
	Err     error  // Sentinel the error matches with errors.Is
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("%s: buffer %q: %s", e.Type, e.Key, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Details)
}

// Unwrap returns the sentinel error.
func (e *ValidationError) Unwrap() error {
	return e.Err
}
