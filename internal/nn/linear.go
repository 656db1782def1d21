package nn

import (
	"fmt"

	"github.com/born-ml/mmpickle/internal/parallel"
	"github.com/born-ml/mmpickle/internal/tensor"
)

// Linear implements a fully connected (dense) layer.
//
// Performs the transformation: y = x @ W.T + b
// where:
//   - x is the input tensor with shape [batch_size, in_features]
//   - W is the weight matrix with shape [out_features, in_features]
//   - b is the bias vector with shape [out_features]
//   - y is the output tensor with shape [batch_size, out_features]
//
// Example:
//
//	layer := nn.NewLinear(784, 128)
//	output, err := layer.Forward(input) // shape: [32, 128] for a [32, 784] input
type Linear struct {
	InFeatures  int        `pickle:"in_features"`
	OutFeatures int        `pickle:"out_features"`
	Weight      *Parameter `pickle:"weight"` // [out_features, in_features]
	Bias        *Parameter `pickle:"bias"`   // [out_features], nil without bias
}

// NewLinear creates a new Linear layer.
//
// Weights are initialized using Xavier/Glorot uniform distribution.
// Biases are initialized to zeros.
func NewLinear(inFeatures, outFeatures int) *Linear {
	return &Linear{
		InFeatures:  inFeatures,
		OutFeatures: outFeatures,
		Weight:      NewParameter("weight", Xavier(inFeatures, outFeatures, tensor.Shape{outFeatures, inFeatures})),
		Bias:        NewParameter("bias", Zeros(tensor.Shape{outFeatures})),
	}
}

// NewLinearWithWeight creates a Linear layer around an existing weight
// tensor of shape [out_features, in_features]. The tensor is used as is, so
// the layer shares its storage with any other view of it. bias may be nil.
func NewLinearWithWeight(weight, bias *tensor.RawTensor) (*Linear, error) {
	shape := weight.Shape()
	if len(shape) != 2 {
		return nil, fmt.Errorf("linear weight must be 2D, got shape %v", shape)
	}
	l := &Linear{
		InFeatures:  shape[1],
		OutFeatures: shape[0],
		Weight:      NewParameter("weight", weight),
	}
	if bias != nil {
		if !bias.Shape().Equal(tensor.Shape{shape[0]}) {
			return nil, fmt.Errorf("linear bias must have shape [%d], got %v", shape[0], bias.Shape())
		}
		l.Bias = NewParameter("bias", bias)
	}
	return l, nil
}

// Forward computes the output of the linear layer.
//
// Input shape: [batch_size, in_features]
// Output shape: [batch_size, out_features]
func (l *Linear) Forward(input *tensor.RawTensor) (*tensor.RawTensor, error) {
	inputShape := input.Shape()
	if len(inputShape) != 2 {
		return nil, fmt.Errorf("Linear.Forward: expected 2D input [batch, features], got shape %v", inputShape)
	}
	if inputShape[1] != l.InFeatures {
		return nil, fmt.Errorf("Linear.Forward: expected input with %d features, got %d", l.InFeatures, inputShape[1])
	}

	x, err := float32Data("Linear.Forward", input)
	if err != nil {
		return nil, err
	}
	w, err := float32Data("Linear.Forward weight", l.Weight.Data)
	if err != nil {
		return nil, err
	}
	var b []float32
	if l.Bias != nil {
		if b, err = float32Data("Linear.Forward bias", l.Bias.Data); err != nil {
			return nil, err
		}
	}

	batch := inputShape[0]
	out := Zeros(tensor.Shape{batch, l.OutFeatures})
	y := out.AsFloat32()
	parallel.For(batch, func(n int) {
		row := x[n*l.InFeatures : (n+1)*l.InFeatures]
		for o := range l.OutFeatures {
			wRow := w[o*l.InFeatures : (o+1)*l.InFeatures]
			var sum float32
			for i, v := range row {
				sum += v * wRow[i]
			}
			if b != nil {
				sum += b[o]
			}
			y[n*l.OutFeatures+o] = sum
		}
	}, parallel.DefaultConfig())
	return out, nil
}

// Parameters returns the trainable parameters of this layer.
//
// Returns [weight, bias] if bias is present, otherwise [weight].
func (l *Linear) Parameters() []*Parameter {
	if l.Bias != nil {
		return []*Parameter{l.Weight, l.Bias}
	}
	return []*Parameter{l.Weight}
}

// StateDict returns a map of parameter names to raw tensors.
func (l *Linear) StateDict() map[string]*tensor.RawTensor {
	stateDict := make(map[string]*tensor.RawTensor)
	stateDict["weight"] = l.Weight.Data
	if l.Bias != nil {
		stateDict["bias"] = l.Bias.Data
	}
	return stateDict
}

// LoadStateDict loads parameters from a state dictionary.
func (l *Linear) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	if err := copyInto("weight", l.Weight.Data, stateDict["weight"]); err != nil {
		return err
	}
	if l.Bias != nil {
		if err := copyInto("bias", l.Bias.Data, stateDict["bias"]); err != nil {
			return err
		}
	}
	return nil
}
