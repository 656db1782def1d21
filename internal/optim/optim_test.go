package optim_test

import (
	"math"
	"testing"

	"github.com/born-ml/mmpickle/internal/nn"
	"github.com/born-ml/mmpickle/internal/optim"
	"github.com/born-ml/mmpickle/internal/serialization"
	"github.com/born-ml/mmpickle/internal/tensor"
)

// Helper to check float equality with tolerance.
func floatEqual(a, b, eps float32) bool {
	diff := a - b
	if diff < 0 {
		diff = -diff
	}
	return diff < eps
}

func scalarParam(t *testing.T, name string, v float32) *nn.Parameter {
	t.Helper()
	x, err := tensor.FromSlice([]float32{v}, tensor.Shape{1})
	if err != nil {
		t.Fatal(err)
	}
	return nn.NewParameter(name, x)
}

func gradLike(t *testing.T, p *nn.Parameter, values ...float32) map[*tensor.RawTensor]*tensor.RawTensor {
	t.Helper()
	g, err := tensor.FromSlice(values, p.Data.Shape())
	if err != nil {
		t.Fatal(err)
	}
	return map[*tensor.RawTensor]*tensor.RawTensor{p.Data: g}
}

// TestSGD_SimpleUpdate tests SGD without momentum.
func TestSGD_SimpleUpdate(t *testing.T) {
	param := scalarParam(t, "x", 2.0)
	optimizer := optim.NewSGD([]*nn.Parameter{param}, optim.SGDConfig{LR: 0.1})

	if err := optimizer.Step(gradLike(t, param, 1.0)); err != nil {
		t.Fatal(err)
	}

	// Expected: x_new = x_old - lr * grad = 2.0 - 0.1 * 1.0 = 1.9
	if actual := param.Data.AsFloat32()[0]; !floatEqual(actual, 1.9, 1e-6) {
		t.Errorf("SGD update: got %f, want 1.9", actual)
	}
	if len(optimizer.StateDict()) != 0 {
		t.Error("SGD without momentum should have no state")
	}
}

// TestSGD_WithMomentum tests SGD with momentum.
func TestSGD_WithMomentum(t *testing.T) {
	param := scalarParam(t, "x", 1.0)
	optimizer := optim.NewSGD([]*nn.Parameter{param}, optim.SGDConfig{LR: 0.1, Momentum: 0.9})

	// Step 1: v = 1, x = 1 - 0.1 = 0.9
	// Step 2: v = 0.9 + 1 = 1.9, x = 0.9 - 0.19 = 0.71
	for range 2 {
		if err := optimizer.Step(gradLike(t, param, 1.0)); err != nil {
			t.Fatal(err)
		}
	}
	if actual := param.Data.AsFloat32()[0]; !floatEqual(actual, 0.71, 1e-6) {
		t.Errorf("after 2 steps: got %f, want 0.71", actual)
	}
	if v := optimizer.StateDict()["velocity.0"]; v == nil || !floatEqual(v.AsFloat32()[0], 1.9, 1e-6) {
		t.Errorf("velocity.0 = %v, want 1.9", v)
	}
}

// TestSGD_SkipsFrozenAndMissing tests parameters without gradients are untouched.
func TestSGD_SkipsFrozenAndMissing(t *testing.T) {
	frozen := scalarParam(t, "frozen", 1.0)
	frozen.Freeze()
	idle := scalarParam(t, "idle", 1.0)

	optimizer := optim.NewSGD([]*nn.Parameter{frozen, idle}, optim.SGDConfig{LR: 1})
	if err := optimizer.Step(gradLike(t, frozen, 5.0)); err != nil {
		t.Fatal(err)
	}
	if frozen.Data.AsFloat32()[0] != 1 || idle.Data.AsFloat32()[0] != 1 {
		t.Error("frozen and gradient-less parameters should not change")
	}
}

// TestSGD_TiedWeightsUpdatedOnce tests parameters sharing a storage.
func TestSGD_TiedWeightsUpdatedOnce(t *testing.T) {
	model, err := nn.NewTiedLM(3, 2, 2)
	if err != nil {
		t.Fatal(err)
	}
	before := model.Embed.Weight.Data.AsFloat32()[0]

	optimizer := optim.NewSGD(model.Parameters(), optim.SGDConfig{LR: 1})
	grads := gradLike(t, model.Embed.Weight, 1, 1, 1, 1, 1, 1)
	g, _ := tensor.FromSlice([]float32{1, 1, 1, 1, 1, 1}, tensor.Shape{3, 2})
	grads[model.Head.Weight.Data] = g
	if err := optimizer.Step(grads); err != nil {
		t.Fatal(err)
	}

	if got := model.Head.Weight.Data.AsFloat32()[0]; !floatEqual(got, before-1, 1e-6) {
		t.Errorf("tied weight = %f, want %f", got, before-1)
	}
}

// TestSGD_GradientShapeMismatch tests invalid gradients are rejected.
func TestSGD_GradientShapeMismatch(t *testing.T) {
	param := scalarParam(t, "x", 1.0)
	optimizer := optim.NewSGD([]*nn.Parameter{param}, optim.SGDConfig{})

	g, _ := tensor.FromSlice([]float32{1, 2}, tensor.Shape{2})
	if err := optimizer.Step(map[*tensor.RawTensor]*tensor.RawTensor{param.Data: g}); err == nil {
		t.Error("expected error for gradient shape mismatch")
	}
	if optimizer.GetLR() != 0.01 {
		t.Errorf("default LR = %f, want 0.01", optimizer.GetLR())
	}
}

// TestAdam_FirstStep tests the bias-corrected first step moves by lr.
func TestAdam_FirstStep(t *testing.T) {
	param := scalarParam(t, "x", 1.0)
	optimizer := optim.NewAdam([]*nn.Parameter{param}, optim.AdamConfig{LR: 0.1})

	if err := optimizer.Step(gradLike(t, param, 0.5)); err != nil {
		t.Fatal(err)
	}

	// m_hat = g, v_hat = g², so the update is lr * g / |g| = 0.1.
	if actual := param.Data.AsFloat32()[0]; !floatEqual(actual, 0.9, 1e-5) {
		t.Errorf("Adam first step: got %f, want 0.9", actual)
	}
	if optimizer.Timestep() != 1 {
		t.Errorf("Timestep = %d, want 1", optimizer.Timestep())
	}
}

// TestAdam_StateDictRoundTrip tests moments and timestep survive LoadStateDict.
func TestAdam_StateDictRoundTrip(t *testing.T) {
	a := scalarParam(t, "x", 1.0)
	b := scalarParam(t, "x", 1.0)
	opt1 := optim.NewAdam([]*nn.Parameter{a}, optim.AdamConfig{})
	opt2 := optim.NewAdam([]*nn.Parameter{b}, optim.AdamConfig{})

	for range 3 {
		if err := opt1.Step(gradLike(t, a, 0.3)); err != nil {
			t.Fatal(err)
		}
	}
	copy(b.Data.AsFloat32(), a.Data.AsFloat32())
	if err := opt2.LoadStateDict(opt1.StateDict()); err != nil {
		t.Fatal(err)
	}
	if opt2.Timestep() != 3 {
		t.Fatalf("Timestep = %d, want 3", opt2.Timestep())
	}

	if err := opt1.Step(gradLike(t, a, -0.2)); err != nil {
		t.Fatal(err)
	}
	if err := opt2.Step(gradLike(t, b, -0.2)); err != nil {
		t.Fatal(err)
	}
	if a.Data.AsFloat32()[0] != b.Data.AsFloat32()[0] {
		t.Errorf("restored optimizer diverged: %f != %f", b.Data.AsFloat32()[0], a.Data.AsFloat32()[0])
	}
}

// TestResumeFromCheckpoint tests optimizer state saved in a checkpoint is
// mapped back and continues training identically.
func TestResumeFromCheckpoint(t *testing.T) {
	model := nn.NewLinear(3, 2)
	sgd := optim.NewSGD(model.Parameters(), optim.SGDConfig{LR: 0.05, Momentum: 0.9})

	grads := func(m *nn.Linear) map[*tensor.RawTensor]*tensor.RawTensor {
		gw, _ := tensor.FromSlice([]float32{1, -1, 0.5, 0, 2, -2}, tensor.Shape{2, 3})
		gb, _ := tensor.FromSlice([]float32{0.1, -0.1}, tensor.Shape{2})
		return map[*tensor.RawTensor]*tensor.RawTensor{m.Weight.Data: gw, m.Bias.Data: gb}
	}
	if err := sgd.Step(grads(model)); err != nil {
		t.Fatal(err)
	}

	dir := t.TempDir()
	ckpt := &nn.Checkpoint{Model: model, State: sgd.StateDict(), Step: 1}
	if err := ckpt.Save(dir); err != nil {
		t.Fatal(err)
	}

	opts := serialization.DefaultLoadOptions()
	opts.Mode = serialization.ModePrivate
	loaded, err := nn.LoadCheckpoint(dir, opts)
	if err != nil {
		t.Fatal(err)
	}
	resumedModel := loaded.Model.(*nn.Linear)
	resumed := optim.NewSGD(resumedModel.Parameters(), optim.SGDConfig{LR: 0.05, Momentum: 0.9})
	if err := resumed.LoadStateDict(loaded.State); err != nil {
		t.Fatal(err)
	}
	if !resumed.StateDict()["velocity.0"].Storage().Mapped() {
		t.Error("restored velocity should stay mapped from the checkpoint")
	}

	if err := sgd.Step(grads(model)); err != nil {
		t.Fatal(err)
	}
	if err := resumed.Step(grads(resumedModel)); err != nil {
		t.Fatal(err)
	}
	want := model.Weight.Data.AsFloat32()
	for i, v := range resumedModel.Weight.Data.AsFloat32() {
		if math.Abs(float64(v-want[i])) > 1e-6 {
			t.Errorf("weight[%d] = %f, want %f", i, v, want[i])
		}
	}
}
