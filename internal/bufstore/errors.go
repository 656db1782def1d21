package bufstore

import (
	"errors"
	"fmt"
)

// Common errors.
var (
	ErrMissingOrTruncated = errors.New("buffer file missing or truncated")
	ErrInvalidKey         = errors.New("invalid buffer key")
)

// BufferError describes a failed operation on one buffer file.
type BufferError struct {
	Op   string // "write" or "open"
	Key  string // Buffer key
	Path string // Buffer file path
	Err  error
}

// Error implements the error interface.
func (e *BufferError) Error() string {
	return fmt.Sprintf("%s buffer %q (%s): %v", e.Op, e.Key, e.Path, e.Err)
}

// Unwrap returns the underlying error.
func (e *BufferError) Unwrap() error {
	return e.Err
}
