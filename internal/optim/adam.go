package optim

import (
	"fmt"
	"math"

	"github.com/born-ml/mmpickle/internal/nn"
	"github.com/born-ml/mmpickle/internal/tensor"
)

// Adam implements the Adam (Adaptive Moment Estimation) optimizer.
//
// Update rule:
//
//	m_t = beta1 * m_{t-1} + (1-beta1) * gradient       // First moment
//	v_t = beta2 * v_{t-1} + (1-beta2) * gradient²      // Second moment
//	m_hat = m_t / (1 - beta1^t)                        // Bias correction
//	v_hat = v_t / (1 - beta2^t)                        // Bias correction
//	param = param - lr * m_hat / (sqrt(v_hat) + eps)  // Parameter update
//
// Reference: "Adam: A Method for Stochastic Optimization" (Kingma & Ba, 2014)
type Adam struct {
	params []*nn.Parameter
	lr     float32
	beta1  float32
	beta2  float32
	eps    float32
	t      int                                 // Timestep for bias correction
	m      map[*nn.Parameter]*tensor.RawTensor // First moment estimates
	v      map[*nn.Parameter]*tensor.RawTensor // Second moment estimates
}

// AdamConfig holds configuration for Adam optimizer.
type AdamConfig struct {
	LR    float32    // Learning rate (default: 0.001)
	Betas [2]float32 // Coefficients for computing running averages (default: [0.9, 0.999])
	Eps   float32    // Term for numerical stability (default: 1e-8)
}

// NewAdam creates a new Adam optimizer over the trainable parameters in params.
func NewAdam(params []*nn.Parameter, config AdamConfig) *Adam {
	if config.LR == 0 {
		config.LR = 0.001
	}
	if config.Betas == [2]float32{} {
		config.Betas = [2]float32{0.9, 0.999}
	}
	if config.Eps == 0 {
		config.Eps = 1e-8
	}

	return &Adam{
		params: trainable(params),
		lr:     config.LR,
		beta1:  config.Betas[0],
		beta2:  config.Betas[1],
		eps:    config.Eps,
		m:      make(map[*nn.Parameter]*tensor.RawTensor),
		v:      make(map[*nn.Parameter]*tensor.RawTensor),
	}
}

// Step performs a single optimization step.
func (a *Adam) Step(grads map[*tensor.RawTensor]*tensor.RawTensor) error {
	a.t++
	bc1 := 1 - float32(math.Pow(float64(a.beta1), float64(a.t)))
	bc2 := 1 - float32(math.Pow(float64(a.beta2), float64(a.t)))

	for _, param := range a.params {
		grad, err := getGradient(param, grads)
		if err != nil {
			return err
		}
		if grad == nil {
			continue
		}

		data := param.Data.AsFloat32()
		m := stateBuffer(a.m, param)
		v := stateBuffer(a.v, param)
		for i, g := range grad {
			m[i] = a.beta1*m[i] + (1-a.beta1)*g
			v[i] = a.beta2*v[i] + (1-a.beta2)*g*g
			mHat := m[i] / bc1
			vHat := v[i] / bc2
			data[i] -= a.lr * mHat / (float32(math.Sqrt(float64(vHat))) + a.eps)
		}
	}
	return nil
}

// GetLR returns the current learning rate.
func (a *Adam) GetLR() float32 {
	return a.lr
}

// SetLR updates the learning rate.
func (a *Adam) SetLR(lr float32) {
	a.lr = lr
}

// Timestep returns the number of steps taken.
func (a *Adam) Timestep() int {
	return a.t
}

// StateDict returns the optimizer state for serialization.
//
// State keys:
//   - "m.{param_index}": first moment
//   - "v.{param_index}": second moment
//   - "t": timestep, a one-element int64 tensor
func (a *Adam) StateDict() map[string]*tensor.RawTensor {
	stateDict := make(map[string]*tensor.RawTensor)
	saveBuffers(a.params, a.m, "m", stateDict)
	saveBuffers(a.params, a.v, "v", stateDict)

	t, err := tensor.FromSlice([]int64{int64(a.t)}, tensor.Shape{1})
	if err == nil {
		stateDict["t"] = t
	}
	return stateDict
}

// LoadStateDict restores the moments and timestep.
func (a *Adam) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	m, err := loadBuffers(a.params, stateDict, "m")
	if err != nil {
		return err
	}
	v, err := loadBuffers(a.params, stateDict, "v")
	if err != nil {
		return err
	}

	t := 0
	if raw, ok := stateDict["t"]; ok {
		if raw.DType() != tensor.Int64 || raw.NumElements() != 1 {
			return fmt.Errorf("timestep must be a one-element int64 tensor, got %s %v", raw.DType(), raw.Shape())
		}
		t = int(raw.AsInt64()[0])
	}

	a.m, a.v, a.t = m, v, t
	return nil
}
