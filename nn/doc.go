// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package nn provides small neural network modules that persist through
// the serialization package.
//
// # Overview
//
// This package contains:
//   - Layers: Linear, Embedding
//   - Activations: ReLU
//   - Containers: Sequential, TiedLM
//   - Utilities: Module interface, Parameter, Checkpoint
//   - Initialization: Xavier, Zeros, Randn
//
// # Basic Usage
//
//	model := nn.NewSequential(
//	    nn.NewLinear(784, 128),
//	    nn.NewReLU(),
//	    nn.NewLinear(128, 10),
//	)
//	if err := nn.SaveModel(model, "checkpoints/mlp"); err != nil {
//	    log.Fatal(err)
//	}
//
//	loaded, err := nn.LoadModel("checkpoints/mlp")
//
// # Weight Tying
//
// TiedLM reuses its embedding matrix as the output projection. The matrix
// is saved once and the loaded model still shares it between both layers.
package nn
