package tensor

import (
	"errors"
	"fmt"
)

// RawTensor is a strided view over a shared Storage.
//
// Several tensors may view the same storage (see View, Reshape and Narrow).
// Writes through one of them are visible through all others.
type RawTensor struct {
	storage *Storage // Shared buffer
	shape   Shape    // Tensor dimensions
	stride  []int    // Element strides
	offset  int      // First element inside the storage
}

// NewRaw creates a new RawTensor with the given shape and type.
// Memory is allocated and zeroed.
func NewRaw(shape Shape, dtype DataType, device Device) (*RawTensor, error) {
	if err := shape.Validate(); err != nil {
		return nil, fmt.Errorf("invalid shape: %w", err)
	}

	s, err := NewStorage(dtype, shape.NumElements(), device)
	if err != nil {
		return nil, err
	}

	return &RawTensor{
		storage: s,
		shape:   shape.Clone(),
		stride:  shape.ComputeStrides(),
	}, nil
}

// FromStorage creates a contiguous tensor over the first shape.NumElements()
// elements of s.
func FromStorage(s *Storage, shape Shape) (*RawTensor, error) {
	return NewView(s, shape, shape.ComputeStrides(), 0)
}

// NewView creates a tensor over s with explicit strides and element offset.
func NewView(s *Storage, shape Shape, stride []int, offset int) (*RawTensor, error) {
	if s == nil {
		return nil, errors.New("nil storage")
	}
	if err := shape.Validate(); err != nil {
		return nil, fmt.Errorf("invalid shape: %w", err)
	}
	if len(stride) != len(shape) {
		return nil, fmt.Errorf("stride rank %d does not match shape rank %d", len(stride), len(shape))
	}
	if offset < 0 {
		return nil, fmt.Errorf("negative offset %d", offset)
	}

	last := offset
	for i, dim := range shape {
		if stride[i] < 0 {
			return nil, fmt.Errorf("negative stride at index %d", i)
		}
		last += (dim - 1) * stride[i]
	}
	if last >= s.Len() {
		return nil, fmt.Errorf("view with shape %v and offset %d needs %d elements, storage has %d",
			shape, offset, last+1, s.Len())
	}

	return &RawTensor{
		storage: s,
		shape:   shape.Clone(),
		stride:  append([]int(nil), stride...),
		offset:  offset,
	}, nil
}

// FromSlice creates a contiguous CPU tensor holding a copy of data.
func FromSlice[T DType](data []T, shape Shape) (*RawTensor, error) {
	if shape.NumElements() != len(data) {
		return nil, fmt.Errorf("shape %v requires %d elements, but got %d", shape, shape.NumElements(), len(data))
	}

	raw, err := NewRaw(shape, inferDataType[T](), CPU)
	if err != nil {
		return nil, err
	}
	copy(view[T](raw.storage.data, len(data)), data)
	return raw, nil
}

// Storage returns the storage this tensor views.
func (r *RawTensor) Storage() *Storage {
	return r.storage
}

// Shape returns the tensor's shape.
func (r *RawTensor) Shape() Shape {
	return r.shape
}

// Strides returns the tensor's element strides.
func (r *RawTensor) Strides() []int {
	return r.stride
}

// Offset returns the element offset of the view inside its storage.
func (r *RawTensor) Offset() int {
	return r.offset
}

// DType returns the tensor's data type.
func (r *RawTensor) DType() DataType {
	return r.storage.dtype
}

// Device returns the tensor's compute device.
func (r *RawTensor) Device() Device {
	return r.storage.device
}

// NumElements returns the total number of elements.
func (r *RawTensor) NumElements() int {
	return r.shape.NumElements()
}

// ByteSize returns the total memory size in bytes.
func (r *RawTensor) ByteSize() int {
	return r.NumElements() * r.DType().Size()
}

// IsContiguous reports whether the view is laid out row-major without gaps.
func (r *RawTensor) IsContiguous() bool {
	want := r.shape.ComputeStrides()
	for i := range want {
		if r.shape[i] != 1 && r.stride[i] != want[i] {
			return false
		}
	}
	return true
}

// Data returns the raw bytes of a contiguous tensor.
// WARNING: Direct access to underlying memory. For mapped storages the slice
// is only valid while the storage is reachable and not closed.
func (r *RawTensor) Data() []byte {
	size := r.DType().Size()
	start := r.offset * size
	return r.storage.data[start : start+r.ByteSize()]
}

// View returns a new tensor sharing the same storage, shape and strides.
func (r *RawTensor) View() *RawTensor {
	return &RawTensor{
		storage: r.storage,
		shape:   r.shape.Clone(),
		stride:  append([]int(nil), r.stride...),
		offset:  r.offset,
	}
}

// Reshape returns a contiguous view with a new shape over the same storage.
func (r *RawTensor) Reshape(shape Shape) (*RawTensor, error) {
	if !r.IsContiguous() {
		return nil, errors.New("reshape requires a contiguous tensor")
	}
	if shape.NumElements() != r.NumElements() {
		return nil, fmt.Errorf("cannot reshape %v into %v", r.shape, shape)
	}
	return NewView(r.storage, shape, shape.ComputeStrides(), r.offset)
}

// Narrow returns a view restricted to [start, start+length) along dim.
func (r *RawTensor) Narrow(dim, start, length int) (*RawTensor, error) {
	if dim < 0 || dim >= len(r.shape) {
		return nil, fmt.Errorf("dimension %d out of range for rank %d", dim, len(r.shape))
	}
	if start < 0 || length <= 0 || start+length > r.shape[dim] {
		return nil, fmt.Errorf("range [%d, %d) out of bounds for dimension of size %d", start, start+length, r.shape[dim])
	}
	shape := r.shape.Clone()
	shape[dim] = length
	return NewView(r.storage, shape, r.stride, r.offset+start*r.stride[dim])
}

func (r *RawTensor) checkDType(want DataType) {
	if r.DType() != want {
		panic(fmt.Sprintf("tensor dtype is %s, not %s", r.DType(), want))
	}
	if !r.IsContiguous() {
		panic("typed access requires a contiguous tensor")
	}
}

func typed[T any](r *RawTensor) []T {
	size := r.DType().Size()
	return view[T](r.storage.data[r.offset*size:], r.NumElements())
}

// AsFloat64 interprets the data as []float64.
// Panics if the tensor's dtype is not Float64.
// WARNING: For mapped storages the slice aliases the mapping and is only
// valid while the storage is reachable and not closed.
func (r *RawTensor) AsFloat64() []float64 {
	r.checkDType(Float64)
	return typed[float64](r)
}

// AsFloat32 interprets the data as []float32.
// Panics if the tensor's dtype is not Float32.
// WARNING: For mapped storages the slice aliases the mapping and is only
// valid while the storage is reachable and not closed.
func (r *RawTensor) AsFloat32() []float32 {
	r.checkDType(Float32)
	return typed[float32](r)
}

// AsInt64 interprets the data as []int64.
// WARNING: For mapped storages the slice aliases the mapping and is only
// valid while the storage is reachable and not closed.
func (r *RawTensor) AsInt64() []int64 {
	r.checkDType(Int64)
	return typed[int64](r)
}

// AsInt32 interprets the data as []int32.
// WARNING: For mapped storages the slice aliases the mapping and is only
// valid while the storage is reachable and not closed.
func (r *RawTensor) AsInt32() []int32 {
	r.checkDType(Int32)
	return typed[int32](r)
}

// AsInt16 interprets the data as []int16.
// WARNING: For mapped storages the slice aliases the mapping and is only
// valid while the storage is reachable and not closed.
func (r *RawTensor) AsInt16() []int16 {
	r.checkDType(Int16)
	return typed[int16](r)
}

// AsInt8 interprets the data as []int8.
// WARNING: For mapped storages the slice aliases the mapping and is only
// valid while the storage is reachable and not closed.
func (r *RawTensor) AsInt8() []int8 {
	r.checkDType(Int8)
	return typed[int8](r)
}

// AsUint8 interprets the data as []uint8.
// WARNING: For mapped storages the slice aliases the mapping and is only
// valid while the storage is reachable and not closed.
func (r *RawTensor) AsUint8() []uint8 {
	r.checkDType(Uint8)
	return typed[uint8](r)
}

// AsBool interprets the data as []bool.
// WARNING: For mapped storages the slice aliases the mapping and is only
// valid while the storage is reachable and not closed.
func (r *RawTensor) AsBool() []bool {
	r.checkDType(Bool)
	return typed[bool](r)
}

// rawTensorState is the persisted form of a RawTensor. The storage is
// written as a persistent reference; everything else is plain structure.
type rawTensorState struct {
	Storage *Storage `pickle:"storage"`
	Shape   []int    `pickle:"shape"`
	Stride  []int    `pickle:"stride"`
	Offset  int      `pickle:"offset"`
}

// MarshalPickle returns the encodable state of the tensor.
func (r *RawTensor) MarshalPickle() (any, error) {
	return rawTensorState{
		Storage: r.storage,
		Shape:   r.shape,
		Stride:  r.stride,
		Offset:  r.offset,
	}, nil
}

// UnmarshalPickle restores the tensor from its persisted state and checks
// that the view fits inside the restored storage.
func (r *RawTensor) UnmarshalPickle(decode func(any) error) error {
	var st rawTensorState
	if err := decode(&st); err != nil {
		return err
	}
	v, err := NewView(st.Storage, st.Shape, st.Stride, st.Offset)
	if err != nil {
		return fmt.Errorf("restore tensor: %w", err)
	}
	*r = *v
	return nil
}
