package pickle

import (
	"errors"
	"fmt"
)

// Common errors.
var (
	ErrUnsupportedProtocol = errors.New("pickle: unsupported protocol")
	ErrUnsupportedType     = errors.New("pickle: unsupported type")
	ErrUnregisteredType    = errors.New("pickle: type not registered")
	ErrTypeMismatch        = errors.New("pickle: type mismatch")
	ErrMalformed           = errors.New("pickle: malformed skeleton")
	ErrNoPersistentLoad    = errors.New("pickle: persistent reference but no loader")
)

// PathError reports the location in the graph where encoding or decoding
// failed.
type PathError struct {
	Op   string // "encode" or "decode"
	Path string // e.g. "root.Layers[1].Weight"
	Err  error
}

// Error implements the error interface.
func (e *PathError) Error() string {
	return fmt.Sprintf("pickle: %s %s: %v", e.Op, e.Path, e.Err)
}

// Unwrap returns the underlying error.
func (e *PathError) Unwrap() error {
	return e.Err
}

// pathTracker records the current position during a traversal.
type pathTracker struct {
	op    string
	parts []string
}

func (p *pathTracker) push(part string) { p.parts = append(p.parts, part) }
func (p *pathTracker) pop()             { p.parts = p.parts[:len(p.parts)-1] }

func (p *pathTracker) String() string {
	s := "root"
	for _, part := range p.parts {
		s += part
	}
	return s
}

// wrap attaches the current path to err unless a deeper frame already did.
func (p *pathTracker) wrap(err error) error {
	if err == nil {
		return nil
	}
	var pe *PathError
	if errors.As(err, &pe) {
		return err
	}
	return &PathError{Op: p.op, Path: p.String(), Err: err}
}
