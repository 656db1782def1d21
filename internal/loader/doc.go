// Package loader imports weights stored in other formats.
//
// SafeTensors files (the Hugging Face standard) are read tensor by tensor
// into host storages and can be written out as a save directory whose
// skeleton is the name → tensor state dict:
//
//	n, err := loader.ImportSafeTensors("model.safetensors", "checkpoints/model", opts)
//
//	var state map[string]*tensor.RawTensor
//	err = serialization.Load("checkpoints/model", &state)
//
// F16 and BF16 tensors have no matching element type and are rejected.
package loader
