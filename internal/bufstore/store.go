package bufstore

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/born-ml/mmpickle/internal/tensor"
)

// FilePrefix is prepended to a buffer key to form its file name.
const FilePrefix = "param_"

// MaxKeyLen bounds buffer keys.
const MaxKeyLen = 128

// Mode selects how an existing buffer file is mapped.
type Mode int

const (
	// ModeShared maps the file read-write and shared: writes reach the file
	// and every other process mapping it.
	ModeShared Mode = iota
	// ModePrivate maps the file copy-on-write: writes stay in this process.
	ModePrivate
)

// String returns the mode name.
func (m Mode) String() string {
	switch m {
	case ModeShared:
		return "shared"
	case ModePrivate:
		return "private"
	default:
		return "unknown"
	}
}

// FileName returns the file name for key.
func FileName(key string) string {
	return FilePrefix + key
}

// Path returns the path of the buffer file for key inside dir.
func Path(dir, key string) string {
	return filepath.Join(dir, FileName(key))
}

// ValidateKey checks that key is non-empty, bounded and made only of
// letters, digits, '-' and '_', so it cannot escape the directory.
func ValidateKey(key string) error {
	if key == "" {
		return fmt.Errorf("%w: empty", ErrInvalidKey)
	}
	if len(key) > MaxKeyLen {
		return fmt.Errorf("%w: %d bytes exceeds %d", ErrInvalidKey, len(key), MaxKeyLen)
	}
	for _, c := range key {
		switch {
		case c >= '0' && c <= '9', c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c == '-', c == '_':
		default:
			return fmt.Errorf("%w: %q contains %q", ErrInvalidKey, key, c)
		}
	}
	return nil
}

// mapping is a mapped buffer file. It implements tensor.Mapping.
type mapping struct {
	path string
	data []byte
	once sync.Once
	err  error
}

func (m *mapping) Path() string {
	return m.path
}

func (m *mapping) Flush() error {
	if len(m.data) == 0 {
		return nil
	}
	return flushRegion(m.data)
}

func (m *mapping) Close() error {
	m.once.Do(func() {
		if len(m.data) > 0 {
			m.err = unmapRegion(m.data)
		}
		m.data = nil
	})
	return m.err
}

// mapStorage maps the first size bytes of f and wraps them in a storage.
// f may be closed once this returns.
func mapStorage(f *os.File, path string, dtype tensor.DataType, count, size int, mode Mode) (*tensor.Storage, error) {
	m := &mapping{path: path}
	if size > 0 {
		data, err := mapRegion(f, size, mode)
		if err != nil {
			return nil, fmt.Errorf("mmap failed: %w", err)
		}
		m.data = data
	}

	s, err := tensor.MappedStorage(dtype, count, m.data, m)
	if err != nil {
		_ = m.Close()
		return nil, err
	}
	return s, nil
}

// Create creates or truncates path, sizes it for count elements of dtype
// and maps it read-write shared.
func Create(path string, dtype tensor.DataType, count int) (*tensor.Storage, error) {
	size, err := byteSize(dtype, count)
	if err != nil {
		return nil, err
	}

	//nolint:gosec // G304: buffer paths are built from validated keys
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to create file: %w", err)
	}
	defer func() { _ = f.Close() }()

	if err := f.Truncate(int64(size)); err != nil {
		return nil, fmt.Errorf("failed to size file: %w", err)
	}
	if err := f.Sync(); err != nil {
		return nil, fmt.Errorf("failed to sync file: %w", err)
	}

	return mapStorage(f, path, dtype, count, size, ModeShared)
}

// Write stores src in dir under key: the file is created sized exactly for
// src, mapped, filled with src's bytes and flushed before Write returns.
func Write(dir, key string, src *tensor.Storage) error {
	path := Path(dir, key)
	fail := func(err error) error {
		return &BufferError{Op: "write", Key: key, Path: path, Err: err}
	}

	if err := ValidateKey(key); err != nil {
		return fail(err)
	}

	dst, err := Create(path, src.DType(), src.Len())
	if err != nil {
		return fail(err)
	}
	if err := dst.CopyFrom(src); err != nil {
		_ = dst.Close()
		return fail(err)
	}
	if err := dst.Flush(); err != nil {
		_ = dst.Close()
		return fail(fmt.Errorf("failed to flush: %w", err))
	}
	if err := dst.Close(); err != nil {
		return fail(fmt.Errorf("failed to unmap: %w", err))
	}
	return nil
}

// Open maps the buffer file for key in dir as count elements of dtype.
// A missing file, or one shorter than count elements, fails with
// ErrMissingOrTruncated. Bytes past the end of the buffer are ignored.
func Open(dir, key string, dtype tensor.DataType, count int, mode Mode) (*tensor.Storage, error) {
	path := Path(dir, key)
	fail := func(err error) error {
		return &BufferError{Op: "open", Key: key, Path: path, Err: err}
	}

	if err := ValidateKey(key); err != nil {
		return nil, fail(err)
	}
	size, err := byteSize(dtype, count)
	if err != nil {
		return nil, fail(err)
	}

	flag := os.O_RDWR
	if mode == ModePrivate {
		flag = os.O_RDONLY
	}
	//nolint:gosec // G304: buffer paths are built from validated keys
	f, err := os.OpenFile(path, flag, 0)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fail(fmt.Errorf("%w: %v", ErrMissingOrTruncated, err))
	}
	if err != nil {
		return nil, fail(err)
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return nil, fail(fmt.Errorf("failed to stat file: %w", err))
	}
	if info.Size() < int64(size) {
		return nil, fail(fmt.Errorf("%w: file is %d bytes, need %d", ErrMissingOrTruncated, info.Size(), size))
	}

	s, err := mapStorage(f, path, dtype, count, size, mode)
	if err != nil {
		return nil, fail(err)
	}
	return s, nil
}

// Size returns the size in bytes of the buffer file for key in dir.
func Size(dir, key string) (int64, error) {
	if err := ValidateKey(key); err != nil {
		return 0, err
	}
	info, err := os.Stat(Path(dir, key))
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}
