package nn

import (
	"math"
	"math/rand"

	"github.com/born-ml/mmpickle/internal/tensor"
)

// Xavier (Glorot) initialization for weights.
//
// Initializes weights with values drawn from a uniform distribution:
// U(-sqrt(6/(fan_in + fan_out)), sqrt(6/(fan_in + fan_out)))
//
// This initialization helps maintain variance of activations across layers.
func Xavier(fanIn, fanOut int, shape tensor.Shape) *tensor.RawTensor {
	// Xavier/Glorot bound: sqrt(6 / (fan_in + fan_out))
	bound := math.Sqrt(6.0 / float64(fanIn+fanOut))

	t := Zeros(shape)
	data := t.AsFloat32()
	for i := range data {
		// Random value in [-bound, bound]
		//nolint:gosec // Using math/rand for weight initialization (not security-critical)
		data[i] = float32((rand.Float64()*2.0 - 1.0) * bound)
	}
	return t
}

// Zeros creates a float32 CPU tensor filled with zeros.
//
// This is commonly used for bias initialization.
func Zeros(shape tensor.Shape) *tensor.RawTensor {
	t, err := tensor.NewRaw(shape, tensor.Float32, tensor.CPU)
	if err != nil {
		panic(err)
	}
	return t
}

// Randn creates a tensor with random values from standard normal distribution.
//
// Values are drawn from N(0, 1).
func Randn(shape tensor.Shape) *tensor.RawTensor {
	t := Zeros(shape)
	data := t.AsFloat32()
	for i := range data {
		//nolint:gosec // math/rand is appropriate for ML weight initialization
		data[i] = float32(rand.NormFloat64())
	}
	return t
}
