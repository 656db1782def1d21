// Package serialization saves object graphs as a skeleton plus one
// memory-mapped file per buffer, and loads them back with every buffer
// mapped from its file.
//
// A save directory holds:
//
//	Directory Layout:
//	  model.pkl      skeleton: the graph with each storage replaced by a placeholder
//	  param_<key>    one raw buffer per distinct storage, no header
//
// Each placeholder is a record
//
//	{"marker": "storage", "dtype": "float32", "key": "17", "count": 4}
//
// and the buffer file holds exactly count elements of dtype in native byte
// order. Storages are deduplicated by identity: every tensor viewing the
// same *tensor.Storage refers to one key, is written once, and after load
// refers to one mapped storage again.
//
// Example usage:
//
//	// Save a model
//	model := nn.NewLinear(784, 128)
//	if err := serialization.Save(model, "checkpoints/fc"); err != nil {
//	    log.Fatal(err)
//	}
//
//	// Load it back, mapped copy-on-write
//	var loaded *nn.Linear
//	opts := serialization.DefaultLoadOptions()
//	opts.Mode = serialization.ModePrivate
//	if err := serialization.LoadWithOptions("checkpoints/fc", &loaded, opts); err != nil {
//	    log.Fatal(err)
//	}
//
// Loaded storages stay mapped until they are closed or garbage collected.
// Saving into a directory whose files back storages being saved fails with
// ErrDirectoryInUse.
package serialization
