package tensor

import (
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"unsafe"
)

// ErrStorageByValue is returned when a storage reaches the graph encoder
// without being substituted by a persistent reference.
var ErrStorageByValue = errors.New("storage can only be persisted by reference")

// Device represents the compute device a storage lives on.
type Device int

// Supported compute devices.
const (
	CPU Device = iota
	CUDA
	Vulkan
	Metal
	WebGPU
)

// String returns a human-readable device name.
func (d Device) String() string {
	switch d {
	case CPU:
		return "CPU"
	case CUDA:
		return "CUDA"
	case Vulkan:
		return "Vulkan"
	case Metal:
		return "Metal"
	case WebGPU:
		return "WebGPU"
	default:
		return "Unknown"
	}
}

// HostAddressable reports whether buffers on this device can be read
// directly by the CPU.
func (d Device) HostAddressable() bool {
	return d == CPU
}

// Mapping is a file-backed memory region that a storage may live in.
type Mapping interface {
	// Path returns the file backing the mapping.
	Path() string
	// Flush writes dirty pages back to the file.
	Flush() error
	// Close unmaps the region. It is safe to call more than once.
	Close() error
}

var storageIDs atomic.Uint64

// Storage is a contiguous buffer of fixed-width elements.
//
// Tensors are views over a storage; several tensors may share one storage.
// The *Storage pointer is the buffer's identity: persistence writes each
// distinct storage once and restores aliases as the same pointer.
type Storage struct {
	id      uint64
	data    []byte
	dtype   DataType
	count   int
	device  Device
	mapping Mapping
	mu      sync.Mutex
}

func newStorage(dtype DataType, count int, device Device, data []byte) *Storage {
	return &Storage{
		id:     storageIDs.Add(1),
		data:   data,
		dtype:  dtype,
		count:  count,
		device: device,
	}
}

// NewStorage allocates a zeroed storage of count elements.
func NewStorage(dtype DataType, count int, device Device) (*Storage, error) {
	if !dtype.Valid() {
		return nil, fmt.Errorf("invalid data type %d", dtype)
	}
	if count < 0 {
		return nil, fmt.Errorf("negative element count %d", count)
	}
	return newStorage(dtype, count, device, make([]byte, count*dtype.Size())), nil
}

// StorageFromBytes wraps data without copying. len(data) must be a multiple
// of the element size.
func StorageFromBytes(dtype DataType, data []byte, device Device) (*Storage, error) {
	if !dtype.Valid() {
		return nil, fmt.Errorf("invalid data type %d", dtype)
	}
	if len(data)%dtype.Size() != 0 {
		return nil, fmt.Errorf("%d bytes is not a whole number of %s elements", len(data), dtype)
	}
	return newStorage(dtype, len(data)/dtype.Size(), device, data), nil
}

// MappedStorage wraps a memory-mapped region. The mapping is closed when the
// storage is closed or becomes unreachable.
func MappedStorage(dtype DataType, count int, data []byte, m Mapping) (*Storage, error) {
	if !dtype.Valid() {
		return nil, fmt.Errorf("invalid data type %d", dtype)
	}
	if len(data) != count*dtype.Size() {
		return nil, fmt.Errorf("mapped region is %d bytes, want %d", len(data), count*dtype.Size())
	}
	s := newStorage(dtype, count, CPU, data)
	s.mapping = m
	if m != nil {
		runtime.AddCleanup(s, func(m Mapping) { _ = m.Close() }, m)
	}
	return s, nil
}

// ID returns a process-unique number identifying this storage.
func (s *Storage) ID() uint64 {
	return s.id
}

// DType returns the element type.
func (s *Storage) DType() DataType {
	return s.dtype
}

// Len returns the number of elements.
func (s *Storage) Len() int {
	return s.count
}

// ByteSize returns the size of the storage in bytes.
func (s *Storage) ByteSize() int {
	return s.count * s.dtype.Size()
}

// Device returns the device the storage lives on.
func (s *Storage) Device() Device {
	return s.device
}

// Bytes returns the raw storage bytes.
// WARNING: Direct access to underlying memory. For mapped storages the slice
// is only valid while the storage is reachable and not closed.
func (s *Storage) Bytes() []byte {
	return s.data
}

// Mapped reports whether the storage is backed by a memory-mapped file.
func (s *Storage) Mapped() bool {
	return s.mapping != nil
}

// Path returns the backing file of a mapped storage, or "" for heap storages.
func (s *Storage) Path() string {
	if s.mapping == nil {
		return ""
	}
	return s.mapping.Path()
}

// Flush writes modified pages of a mapped storage back to its file.
func (s *Storage) Flush() error {
	if s.mapping == nil {
		return nil
	}
	return s.mapping.Flush()
}

// Close releases the mapping of a mapped storage. Views created from the
// storage must not be used afterwards. Closing a heap storage is a no-op.
func (s *Storage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mapping == nil {
		return nil
	}
	err := s.mapping.Close()
	s.data = nil
	return err
}

// CopyFrom copies the contents of src into s. Both storages must have the
// same data type and length.
func (s *Storage) CopyFrom(src *Storage) error {
	if src.dtype != s.dtype || src.count != s.count {
		return fmt.Errorf("cannot copy %d×%s into %d×%s", src.count, src.dtype, s.count, s.dtype)
	}
	copy(s.data, src.data)
	return nil
}

// MarshalPickle refuses to encode a storage inline. Storages are persisted
// through the persistent-reference hook of the graph encoder.
func (s *Storage) MarshalPickle() (any, error) {
	return nil, ErrStorageByValue
}

// UnmarshalPickle refuses inline storage state.
func (s *Storage) UnmarshalPickle(func(any) error) error {
	return ErrStorageByValue
}

// view reinterprets data as n values of T.
func view[T any](data []byte, n int) []T {
	if n == 0 || len(data) == 0 {
		return nil
	}
	//nolint:gosec // unsafe.Slice for zero-copy performance, bounds checked by callers
	return unsafe.Slice((*T)(unsafe.Pointer(&data[0])), n)
}
