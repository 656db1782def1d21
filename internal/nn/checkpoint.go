package nn

import (
	"errors"
	"fmt"
	"time"

	"github.com/born-ml/mmpickle/internal/serialization"
	"github.com/born-ml/mmpickle/internal/tensor"
)

// Checkpoint represents a complete training state snapshot.
//
// A checkpoint includes:
//   - The model itself, with its structure and parameters
//   - Extra state tensors (optimizer moments, running statistics, etc.)
//   - Training metadata (epoch, step, loss)
//   - Custom metadata
//
// The model is stored behind the Module interface, so LoadCheckpoint
// rebuilds it without the caller constructing an empty model first.
//
// Example:
//
//	ckpt := &nn.Checkpoint{
//	    Model:    model,
//	    Epoch:    10,
//	    Step:     5000,
//	    Loss:     0.123,
//	    Metadata: map[string]any{"lr": 0.001, "batch_size": 32},
//	}
//	err := ckpt.Save("checkpoints/epoch_10")
//
// To resume training:
//
//	ckpt, err := nn.LoadCheckpoint("checkpoints/epoch_10", serialization.DefaultLoadOptions())
//	startEpoch := ckpt.Epoch + 1
type Checkpoint struct {
	Model     Module                       `pickle:"model"`      // The neural network model
	State     map[string]*tensor.RawTensor `pickle:"state"`      // Extra tensors, may view model storages
	Epoch     int                          `pickle:"epoch"`      // Training epoch number
	Step      int64                        `pickle:"step"`       // Training step number
	Loss      float64                      `pickle:"loss"`       // Loss value at this checkpoint
	Metadata  map[string]any               `pickle:"metadata"`   // Additional training metadata
	CreatedAt time.Time                    `pickle:"created_at"` // When the checkpoint was created
}

// Save writes the checkpoint into dir, replacing a previous checkpoint
// there. CreatedAt is set when zero.
func (c *Checkpoint) Save(dir string) error {
	if c.Model == nil {
		return errors.New("checkpoint has no model")
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}

	opts := serialization.DefaultSaveOptions()
	opts.Overwrite = true
	opts.Meta = map[string]string{
		"model_type": fmt.Sprintf("%T", c.Model),
		"epoch":      fmt.Sprint(c.Epoch),
		"step":       fmt.Sprint(c.Step),
	}
	return serialization.SaveWithOptions(c, dir, opts)
}

// LoadCheckpoint reads a checkpoint written by Checkpoint.Save. The model's
// parameters are mapped from the checkpoint files.
func LoadCheckpoint(dir string, opts serialization.LoadOptions) (*Checkpoint, error) {
	var c *Checkpoint
	if err := serialization.LoadWithOptions(dir, &c, opts); err != nil {
		return nil, err
	}
	if c == nil || c.Model == nil {
		return nil, errors.New("checkpoint has no model")
	}
	return c, nil
}

// SaveModel writes m into dir with default options.
func SaveModel(m Module, dir string) error {
	return (&Checkpoint{Model: m}).Save(dir)
}

// LoadModel reads a model written by SaveModel or Checkpoint.Save.
func LoadModel(dir string) (Module, error) {
	c, err := LoadCheckpoint(dir, serialization.DefaultLoadOptions())
	if err != nil {
		return nil, err
	}
	return c.Model, nil
}
