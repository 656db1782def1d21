// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package tensor provides the storages and tensors persisted by mmpickle.
//
// # Overview
//
// A Storage is a flat, typed buffer. A RawTensor is a strided view onto a
// Storage, and many tensors may view one storage:
//
//	w, _ := tensor.FromSlice([]float32{1, 2, 3, 4, 5, 6}, tensor.Shape{2, 3})
//	row, _ := w.Narrow(0, 1, 1) // [[4 5 6]], same storage as w
//	t := w.View()               // new tensor, same storage
//
// Storage identity is what the serialization package deduplicates on: w, row
// and t above are written as one buffer file and, after load, view one
// memory-mapped storage again.
//
// # Supported Data Types
//
// The DType constraint and the DataType enum cover:
//   - float32, float64 (floating-point)
//   - int8, int16, int32, int64 (signed integers)
//   - uint8 (unsigned integers, useful for images)
//   - bool (boolean masks)
//
// # Devices
//
// Only CPU storages are host-addressable. Storages on other devices can be
// described but not persisted.
package tensor
