// Package optim implements optimization algorithms for training neural networks.
//
// This package provides:
//   - Optimizer interface: Base interface for all optimizers
//   - SGD: Stochastic Gradient Descent with momentum
//   - Adam: Adaptive Moment Estimation
//
// Optimizer state (velocities, moments) is exposed through StateDict so it
// can be stored in a checkpoint next to the model and mapped back on resume.
//
// Example usage:
//
//	optimizer := optim.NewAdam(model.Parameters(), optim.AdamConfig{
//	    LR: 0.001,
//	})
//
//	// grads maps each parameter's Data to its gradient
//	if err := optimizer.Step(grads); err != nil {
//	    return err
//	}
//
//	ckpt := &nn.Checkpoint{Model: model, State: optimizer.StateDict()}
package optim

import (
	"fmt"

	"github.com/born-ml/mmpickle/internal/nn"
	"github.com/born-ml/mmpickle/internal/tensor"
)

// Optimizer is the base interface for all optimization algorithms.
//
// Optimizers update model parameters in place based on computed gradients.
type Optimizer interface {
	// Step applies gradient updates to all parameters.
	//
	// grads maps a parameter's Data tensor to its gradient, which must have
	// the same shape. Parameters without a gradient are skipped.
	Step(grads map[*tensor.RawTensor]*tensor.RawTensor) error

	// GetLR returns the current learning rate.
	GetLR() float32

	// StateDict returns the optimizer buffers keyed by name.
	StateDict() map[string]*tensor.RawTensor

	// LoadStateDict adopts buffers produced by StateDict. The tensors are
	// used in place, so buffers loaded from a checkpoint stay mapped.
	LoadStateDict(map[string]*tensor.RawTensor) error
}

// Config is the base configuration for all optimizers.
type Config struct {
	LR float32 // Learning rate
}

// trainable returns the parameters that require gradients. Parameters
// sharing a storage are kept once, so tied weights are updated once.
func trainable(params []*nn.Parameter) []*nn.Parameter {
	seen := make(map[*tensor.Storage]bool)
	out := make([]*nn.Parameter, 0, len(params))
	for _, p := range params {
		if p == nil || !p.RequiresGrad {
			continue
		}
		if s := p.Data.Storage(); !seen[s] {
			seen[s] = true
			out = append(out, p)
		}
	}
	return out
}

// getGradient retrieves and checks the gradient for a parameter.
//
// Returns nil, nil if no gradient is found (parameter wasn't part of the computation).
func getGradient(param *nn.Parameter, grads map[*tensor.RawTensor]*tensor.RawTensor) ([]float32, error) {
	grad := grads[param.Data]
	if grad == nil {
		return nil, nil
	}
	if !grad.Shape().Equal(param.Data.Shape()) {
		return nil, fmt.Errorf("gradient shape mismatch for %s: expected %v, got %v", param.Name, param.Data.Shape(), grad.Shape())
	}
	if grad.DType() != tensor.Float32 || !grad.IsContiguous() {
		return nil, fmt.Errorf("gradient for %s must be a contiguous float32 tensor", param.Name)
	}
	if param.Data.DType() != tensor.Float32 || !param.Data.IsContiguous() {
		return nil, fmt.Errorf("parameter %s must be a contiguous float32 tensor", param.Name)
	}
	return grad.AsFloat32(), nil
}

// stateBuffer returns the state buffer of param, allocating zeros when
// absent.
func stateBuffer(state map[*nn.Parameter]*tensor.RawTensor, param *nn.Parameter) []float32 {
	buf, ok := state[param]
	if !ok {
		buf = nn.Zeros(param.Data.Shape())
		state[param] = buf
	}
	return buf.AsFloat32()
}

// loadBuffers fills state from stateDict entries named prefix.<index>.
func loadBuffers(params []*nn.Parameter, stateDict map[string]*tensor.RawTensor, prefix string) (map[*nn.Parameter]*tensor.RawTensor, error) {
	state := make(map[*nn.Parameter]*tensor.RawTensor)
	for i, param := range params {
		raw, ok := stateDict[fmt.Sprintf("%s.%d", prefix, i)]
		if !ok {
			// Initialized on first step.
			continue
		}
		if !raw.Shape().Equal(param.Data.Shape()) {
			return nil, fmt.Errorf("%s shape mismatch for parameter %d: expected %v, got %v",
				prefix, i, param.Data.Shape(), raw.Shape())
		}
		if raw.DType() != tensor.Float32 || !raw.IsContiguous() {
			return nil, fmt.Errorf("%s.%d must be a contiguous float32 tensor", prefix, i)
		}
		state[param] = raw
	}
	return state, nil
}

// saveBuffers exports state as prefix.<index> entries.
func saveBuffers(params []*nn.Parameter, state map[*nn.Parameter]*tensor.RawTensor, prefix string, into map[string]*tensor.RawTensor) {
	for i, param := range params {
		if buf, ok := state[param]; ok {
			into[fmt.Sprintf("%s.%d", prefix, i)] = buf
		}
	}
}
