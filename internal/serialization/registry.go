package serialization

import (
	"fmt"
	"strconv"

	"github.com/born-ml/mmpickle/internal/tensor"
)

// BufferEntry is one storage scheduled for writing.
type BufferEntry struct {
	Key     string
	DType   tensor.DataType
	Count   int
	Storage *tensor.Storage
}

// BufferRegistry deduplicates storages by identity during one save.
//
// A registry is created empty for each save, filled by the encoder hook and
// drained by the buffer writes. It is not safe for concurrent use.
type BufferRegistry struct {
	keys    map[*tensor.Storage]string
	entries []BufferEntry
	bytes   int64
}

// NewBufferRegistry creates an empty registry.
func NewBufferRegistry() *BufferRegistry {
	return &BufferRegistry{keys: make(map[*tensor.Storage]string)}
}

// KeyFor returns the key of s. It is derived from the storage's
// process-unique ID, so the same storage always maps to the same key.
func KeyFor(s *tensor.Storage) string {
	return strconv.FormatUint(s.ID(), 10)
}

// Register returns the key of s, recording s on first encounter.
// Storages that are not host-addressable are rejected.
func (r *BufferRegistry) Register(s *tensor.Storage) (string, error) {
	if key, ok := r.keys[s]; ok {
		return key, nil
	}
	if !s.Device().HostAddressable() {
		return "", fmt.Errorf("%w: storage of %d×%s on %s",
			ErrUnsupportedBufferLocation, s.Len(), s.DType(), s.Device())
	}

	key := KeyFor(s)
	r.keys[s] = key
	r.entries = append(r.entries, BufferEntry{
		Key:     key,
		DType:   s.DType(),
		Count:   s.Len(),
		Storage: s,
	})
	r.bytes += int64(s.ByteSize())
	return key, nil
}

// Entries returns the registered storages in first-encounter order.
func (r *BufferRegistry) Entries() []BufferEntry {
	return r.entries
}

// Len returns the number of distinct storages.
func (r *BufferRegistry) Len() int {
	return len(r.entries)
}

// TotalBytes returns the combined size of all registered storages.
func (r *BufferRegistry) TotalBytes() int64 {
	return r.bytes
}
