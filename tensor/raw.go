// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package tensor

import (
	"github.com/born-ml/mmpickle/internal/tensor"
)

// DType is the constraint for supported element types.
type DType = tensor.DType

// DataType represents runtime element type information.
type DataType = tensor.DataType

// Data types.
const (
	Float64 = tensor.Float64
	Float32 = tensor.Float32
	Int64   = tensor.Int64
	Int32   = tensor.Int32
	Int16   = tensor.Int16
	Int8    = tensor.Int8
	Uint8   = tensor.Uint8
	Bool    = tensor.Bool
)

// ParseDataType returns the data type with the given name, such as "float32".
func ParseDataType(name string) (DataType, error) {
	return tensor.ParseDataType(name)
}

// Device represents the compute device a storage lives on.
type Device = tensor.Device

// Devices.
const (
	CPU    = tensor.CPU
	CUDA   = tensor.CUDA
	Vulkan = tensor.Vulkan
	Metal  = tensor.Metal
	WebGPU = tensor.WebGPU
)

// Shape represents tensor dimensions.
type Shape = tensor.Shape

// Storage is a flat typed buffer with a stable identity.
//
// Storages created by the serialization package are memory-mapped from a
// buffer file: Mapped reports true, Path names the file, Flush writes dirty
// pages back in shared mode and Close unmaps early.
type Storage = tensor.Storage

// ErrStorageByValue is returned when a storage is pickled without the
// persistent ID hook that turns it into a buffer placeholder.
var ErrStorageByValue = tensor.ErrStorageByValue

// NewStorage allocates a zeroed storage of count elements.
func NewStorage(dtype DataType, count int, device Device) (*Storage, error) {
	return tensor.NewStorage(dtype, count, device)
}

// StorageFromBytes creates a storage holding a copy of data.
func StorageFromBytes(dtype DataType, data []byte, device Device) (*Storage, error) {
	return tensor.StorageFromBytes(dtype, data, device)
}

// RawTensor is a strided view onto a Storage.
//
// Example:
//
//	raw, _ := tensor.NewRaw(tensor.Shape{2, 3}, tensor.Float32, tensor.CPU)
//	data := raw.AsFloat32() // Type-safe access
//	view := raw.View()      // Shares raw's storage
type RawTensor = tensor.RawTensor

// NewRaw allocates a contiguous zeroed tensor on a fresh storage.
func NewRaw(shape Shape, dtype DataType, device Device) (*RawTensor, error) {
	return tensor.NewRaw(shape, dtype, device)
}

// FromStorage creates a contiguous tensor over the whole of s.
func FromStorage(s *Storage, shape Shape) (*RawTensor, error) {
	return tensor.FromStorage(s, shape)
}

// NewView creates a tensor over s with an explicit stride and offset,
// both in elements.
func NewView(s *Storage, shape Shape, stride []int, offset int) (*RawTensor, error) {
	return tensor.NewView(s, shape, stride, offset)
}

// FromSlice creates a CPU tensor holding a copy of data.
func FromSlice[T DType](data []T, shape Shape) (*RawTensor, error) {
	return tensor.FromSlice(data, shape)
}
