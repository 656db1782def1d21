// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package serialization saves object graphs as a skeleton file plus one raw
// file per distinct storage, and loads them back with every storage
// memory-mapped from its file.
//
// # Directory Layout
//
//	model.pkl      the graph, with each storage replaced by a placeholder
//	param_<key>    one raw buffer per distinct storage, no header
//
// # Basic Usage
//
//	import (
//	    "github.com/born-ml/mmpickle/nn"
//	    "github.com/born-ml/mmpickle/serialization"
//	)
//
//	model := nn.NewLinear(784, 128)
//	if err := serialization.Save(model, "checkpoints/fc"); err != nil {
//	    log.Fatal(err)
//	}
//
//	var loaded *nn.Linear
//	if err := serialization.Load("checkpoints/fc", &loaded); err != nil {
//	    log.Fatal(err)
//	}
//
// Tensors that view the same storage are written once and share one mapped
// storage after load. In ModeShared (the default) writes through a loaded
// tensor reach the file; in ModePrivate they stay in process memory.
//
// # Inspection
//
// Inspect reads a save directory without mapping any buffer, and Verify
// checks every buffer file against its placeholder and recorded checksum.
package serialization
