package serialization

import (
	"reflect"

	"github.com/born-ml/mmpickle/internal/pickle"
	"github.com/born-ml/mmpickle/internal/tensor"
)

var storageType = reflect.TypeFor[*tensor.Storage]()

func init() {
	pickle.Register((*tensor.Storage)(nil))
	pickle.Register((*tensor.RawTensor)(nil))
}

// persistentID returns the encoder hook that replaces every storage with its
// placeholder and records it in reg. Other pointers are walked normally.
func persistentID(reg *BufferRegistry) pickle.PersistentIDFunc {
	return func(v reflect.Value) (any, bool, error) {
		if v.Type() != storageType {
			return nil, false, nil
		}
		s := v.Interface().(*tensor.Storage)
		key, err := reg.Register(s)
		if err != nil {
			return nil, false, err
		}
		return newDescriptor(key, s), true, nil
	}
}

// encodeGraph walks root once, filling reg with every storage it reaches.
func encodeGraph(root any, reg *BufferRegistry) (*pickle.Skeleton, error) {
	enc := pickle.NewEncoder(pickle.EncoderOptions{PersistentID: persistentID(reg)})
	return enc.Encode(root)
}
