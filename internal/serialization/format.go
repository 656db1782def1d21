package serialization

import (
	"strings"

	"github.com/born-ml/mmpickle/internal/bufstore"
	"github.com/born-ml/mmpickle/internal/pickle"
	"github.com/born-ml/mmpickle/internal/tensor"
)

// Directory layout constants.
const (
	SkeletonName = "model.pkl"              // Skeleton file inside a save directory
	BufferPrefix = bufstore.FilePrefix      // Buffer files are BufferPrefix + key
	Protocol     = pickle.Protocol          // Skeleton protocol written by Save
	Marker       = "storage"                // Leading tag of every buffer placeholder
	checksumMeta = "mmpickle.sha256."       // Skeleton meta key prefix for buffer checksums
	reservedMeta = "mmpickle."              // Meta keys callers may not set
	tempPrefix   = "." + SkeletonName + "." // In-flight skeleton file is tempPrefix + uuid + tempSuffix
	tempSuffix   = ".tmp"
)

// Descriptor is the placeholder written into the skeleton in place of a
// storage. The element type and count are not stored in the buffer file, so
// the descriptor is the only record of them.
type Descriptor struct {
	Marker string `pickle:"marker" json:"marker"` // Always Marker
	DType  string `pickle:"dtype" json:"dtype"`   // tensor.DataType name, e.g. "float32"
	Key    string `pickle:"key" json:"key"`       // Buffer key, file is BufferPrefix + Key
	Count  int    `pickle:"count" json:"count"`   // Number of elements
}

// newDescriptor builds the placeholder for s stored under key.
func newDescriptor(key string, s *tensor.Storage) Descriptor {
	return Descriptor{
		Marker: Marker,
		DType:  s.DType().String(),
		Key:    key,
		Count:  s.Len(),
	}
}

// ByteSize returns the size of the described buffer in bytes, or -1 when
// the element type is unknown.
func (d Descriptor) ByteSize() int64 {
	dt, err := tensor.ParseDataType(d.DType)
	if err != nil {
		return -1
	}
	return int64(d.Count) * int64(dt.Size())
}

// checksumKey returns the meta key holding the checksum of buffer key.
func checksumKey(key string) string {
	return checksumMeta + key
}

// userMeta returns meta without the entries reserved for this package.
func userMeta(meta map[string]string) map[string]string {
	out := make(map[string]string, len(meta))
	for k, v := range meta {
		if !strings.HasPrefix(k, reservedMeta) {
			out[k] = v
		}
	}
	return out
}
