package nn

import (
	"github.com/born-ml/mmpickle/internal/tensor"
)

// ReLU is a Rectified Linear Unit activation module.
//
// Applies the element-wise function: f(x) = max(0, x)
//
// Example:
//
//	relu := nn.NewReLU()
//	output, err := relu.Forward(input) // All negative values become 0
type ReLU struct{}

// NewReLU creates a new ReLU activation module.
func NewReLU() *ReLU {
	return &ReLU{}
}

// Forward applies ReLU activation: f(x) = max(0, x).
func (r *ReLU) Forward(input *tensor.RawTensor) (*tensor.RawTensor, error) {
	x, err := float32Data("ReLU.Forward", input)
	if err != nil {
		return nil, err
	}
	out := Zeros(input.Shape())
	y := out.AsFloat32()
	for i, v := range x {
		y[i] = max(v, 0)
	}
	return out, nil
}

// Parameters returns an empty slice (ReLU has no trainable parameters).
func (r *ReLU) Parameters() []*Parameter {
	return []*Parameter{}
}

// StateDict returns an empty map (ReLU has no parameters).
func (r *ReLU) StateDict() map[string]*tensor.RawTensor {
	return make(map[string]*tensor.RawTensor)
}

// LoadStateDict is a no-op (ReLU has no parameters).
func (r *ReLU) LoadStateDict(_ map[string]*tensor.RawTensor) error {
	return nil
}
