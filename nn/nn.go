// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package nn

import (
	"github.com/born-ml/mmpickle/internal/nn"
	"github.com/born-ml/mmpickle/serialization"
	"github.com/born-ml/mmpickle/tensor"
)

// Module interface defines the common interface for all neural network modules.
type Module = nn.Module

// Parameter represents a trainable parameter in a neural network.
type Parameter = nn.Parameter

// NewParameter creates a new parameter with the given name and tensor.
func NewParameter(name string, t *tensor.RawTensor) *Parameter {
	return nn.NewParameter(name, t)
}

// ErrMissingParameter is returned by LoadStateDict for an absent key.
var ErrMissingParameter = nn.ErrMissingParameter

// NumParameters counts the elements of m's parameters, counting a storage
// shared by several parameters once.
func NumParameters(m Module) int {
	return nn.NumParameters(m)
}

// Layers

// Linear represents a fully connected (dense) layer.
type Linear = nn.Linear

// NewLinear creates a new linear layer with Xavier initialization.
//
// Example:
//
//	layer := nn.NewLinear(784, 128)
func NewLinear(inFeatures, outFeatures int) *Linear {
	return nn.NewLinear(inFeatures, outFeatures)
}

// NewLinearWithWeight creates a linear layer around an existing weight of
// shape [out, in]. bias may be nil.
func NewLinearWithWeight(weight, bias *tensor.RawTensor) (*Linear, error) {
	return nn.NewLinearWithWeight(weight, bias)
}

// Embedding maps token ids to rows of a weight matrix.
type Embedding = nn.Embedding

// NewEmbedding creates an embedding table with normal initialization.
func NewEmbedding(numEmbeddings, embeddingDim int) *Embedding {
	return nn.NewEmbedding(numEmbeddings, embeddingDim)
}

// Activations

// ReLU represents the Rectified Linear Unit activation function.
type ReLU = nn.ReLU

// NewReLU creates a new ReLU activation layer.
func NewReLU() *ReLU {
	return nn.NewReLU()
}

// Containers

// Sequential chains modules together.
type Sequential = nn.Sequential

// NewSequential creates a new Sequential container.
func NewSequential(modules ...Module) *Sequential {
	return nn.NewSequential(modules...)
}

// TiedLM is a small language model whose output projection shares the
// embedding storage.
type TiedLM = nn.TiedLM

// NewTiedLM creates a TiedLM with the given vocabulary, width and hidden size.
func NewTiedLM(vocab, dim, hidden int) (*TiedLM, error) {
	return nn.NewTiedLM(vocab, dim, hidden)
}

// Initialization

// Xavier returns a float32 tensor with Xavier/Glorot uniform values.
func Xavier(fanIn, fanOut int, shape tensor.Shape) *tensor.RawTensor {
	return nn.Xavier(fanIn, fanOut, shape)
}

// Zeros returns a zero-filled float32 tensor.
func Zeros(shape tensor.Shape) *tensor.RawTensor {
	return nn.Zeros(shape)
}

// Randn returns a float32 tensor with standard normal values.
func Randn(shape tensor.Shape) *tensor.RawTensor {
	return nn.Randn(shape)
}

// Persistence

// Checkpoint is a model plus training state saved as one directory.
type Checkpoint = nn.Checkpoint

// LoadCheckpoint reads a checkpoint written by Checkpoint.Save.
func LoadCheckpoint(dir string, opts serialization.LoadOptions) (*Checkpoint, error) {
	return nn.LoadCheckpoint(dir, opts)
}

// SaveModel writes m into dir, replacing any previous save there.
func SaveModel(m Module, dir string) error {
	return nn.SaveModel(m, dir)
}

// LoadModel reads a model written by SaveModel or Checkpoint.Save.
func LoadModel(dir string) (Module, error) {
	return nn.LoadModel(dir)
}
