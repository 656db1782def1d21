package nn

import (
	"github.com/born-ml/mmpickle/internal/tensor"
)

// Parameter represents a named parameter tensor in a neural network.
//
// Parameters typically hold the weights and biases of layers. Two parameters
// may view the same storage (see TiedLM); they are then saved once and
// still share their storage after loading.
//
// Example:
//
//	// Create a weight parameter
//	weight := nn.NewParameter("weight", weightTensor)
//
//	// Access the tensor
//	w := weight.Data.AsFloat32()
type Parameter struct {
	Name         string            `pickle:"name"`          // Parameter name (e.g., "weight", "bias")
	Data         *tensor.RawTensor `pickle:"data"`          // The parameter tensor
	RequiresGrad bool              `pickle:"requires_grad"` // Whether training updates this parameter
}

// NewParameter creates a new trainable parameter.
func NewParameter(name string, data *tensor.RawTensor) *Parameter {
	return &Parameter{
		Name:         name,
		Data:         data,
		RequiresGrad: true,
	}
}

// Freeze marks the parameter as not trainable.
func (p *Parameter) Freeze() {
	p.RequiresGrad = false
}
