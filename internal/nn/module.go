// Package nn implements small neural network modules whose parameters are
// tensors over shared storages.
//
// This package provides building blocks for model graphs that are persisted
// with the serialization package:
//   - Module interface: Base interface for all NN components
//   - Parameter: Named tensor with a gradient flag
//   - Linear, Embedding: Layers with weights
//   - ReLU: Parameter-free activation
//   - Sequential: Container for stacking layers
//   - TiedLM: Language model whose output projection shares the embedding storage
//   - Checkpoint: Model plus training state, saved as one directory
package nn

import (
	"errors"
	"fmt"

	"github.com/born-ml/mmpickle/internal/pickle"
	"github.com/born-ml/mmpickle/internal/tensor"
)

// Module is the base interface for all neural network components.
//
// Modules can be composed to build complex architectures:
//
//	model := nn.NewSequential(
//	    nn.NewLinear(784, 128),
//	    nn.NewReLU(),
//	    nn.NewLinear(128, 10),
//	)
type Module interface {
	// Forward computes the output of the module given an input tensor.
	Forward(input *tensor.RawTensor) (*tensor.RawTensor, error)

	// Parameters returns all parameters of this module, including those of
	// nested modules.
	Parameters() []*Parameter

	// StateDict returns a map of parameter names to tensors.
	StateDict() map[string]*tensor.RawTensor

	// LoadStateDict copies tensors from stateDict into the module's
	// parameters. Shapes and types must match.
	LoadStateDict(stateDict map[string]*tensor.RawTensor) error
}

// Concrete module types are registered so they can sit in interface-typed
// fields such as Sequential.Layers.
func init() {
	pickle.Register((*Linear)(nil))
	pickle.Register((*Embedding)(nil))
	pickle.Register((*ReLU)(nil))
	pickle.Register((*Sequential)(nil))
	pickle.Register((*TiedLM)(nil))
}

// ErrMissingParameter is returned by LoadStateDict when a name is absent.
var ErrMissingParameter = errors.New("missing parameter in state dict")

// NumParameters returns the number of distinct parameter elements in m.
// Parameters that view the same storage are counted once.
func NumParameters(m Module) int {
	seen := make(map[*tensor.Storage]bool)
	n := 0
	for _, p := range m.Parameters() {
		s := p.Data.Storage()
		if seen[s] {
			continue
		}
		seen[s] = true
		n += p.Data.NumElements()
	}
	return n
}

// copyInto copies src into dst after checking dtype and shape.
func copyInto(name string, dst, src *tensor.RawTensor) error {
	if src == nil {
		return fmt.Errorf("%w: %s", ErrMissingParameter, name)
	}
	if dst.DType() != src.DType() {
		return fmt.Errorf("%s: dtype mismatch: expected %s, got %s", name, dst.DType(), src.DType())
	}
	if !dst.Shape().Equal(src.Shape()) {
		return fmt.Errorf("%s: shape mismatch: expected %v, got %v", name, dst.Shape(), src.Shape())
	}
	if !dst.IsContiguous() || !src.IsContiguous() {
		return fmt.Errorf("%s: state dict tensors must be contiguous", name)
	}
	copy(dst.Data(), src.Data())
	return nil
}

// subStateDict returns the entries of stateDict under prefix, with the
// prefix removed.
func subStateDict(stateDict map[string]*tensor.RawTensor, prefix string) map[string]*tensor.RawTensor {
	out := make(map[string]*tensor.RawTensor)
	for key, raw := range stateDict {
		if len(key) > len(prefix) && key[:len(prefix)] == prefix {
			out[key[len(prefix):]] = raw
		}
	}
	return out
}

// float32Data returns the elements of a contiguous float32 tensor.
func float32Data(name string, t *tensor.RawTensor) ([]float32, error) {
	if t.DType() != tensor.Float32 {
		return nil, fmt.Errorf("%s: expected float32 input, got %s", name, t.DType())
	}
	if !t.IsContiguous() {
		return nil, fmt.Errorf("%s: input must be contiguous", name)
	}
	return t.AsFloat32(), nil
}
