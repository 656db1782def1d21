// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package optim provides optimizers whose state can be checkpointed.
//
// # Overview
//
//   - SGD: Stochastic Gradient Descent with optional momentum
//   - Adam: Adaptive Moment Estimation
//
// # Resuming Training
//
// StateDict returns the optimizer buffers as tensors. Storing them in a
// checkpoint writes them next to the model; LoadStateDict adopts the mapped
// tensors directly, so resumed moments live in the checkpoint files:
//
//	ckpt := &nn.Checkpoint{Model: model, State: opt.StateDict(), Epoch: epoch}
//	if err := ckpt.Save(dir); err != nil {
//	    return err
//	}
//
//	ckpt, err := nn.LoadCheckpoint(dir, serialization.DefaultLoadOptions())
//	opt := optim.NewSGD(ckpt.Model.Parameters(), cfg)
//	err = opt.LoadStateDict(ckpt.State)
package optim
