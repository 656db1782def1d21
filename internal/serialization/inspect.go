package serialization

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/born-ml/mmpickle/internal/bufstore"
	"github.com/born-ml/mmpickle/internal/parallel"
)

// Manifest describes a save directory without mapping any buffer.
type Manifest struct {
	Dir        string            `json:"dir" yaml:"dir"`
	Protocol   int               `json:"protocol" yaml:"protocol"`
	SaveID     string            `json:"save_id,omitempty" yaml:"save_id,omitempty"`
	CreatedAt  time.Time         `json:"created_at" yaml:"created_at"`
	Meta       map[string]string `json:"meta,omitempty" yaml:"meta,omitempty"`
	Buffers    []BufferInfo      `json:"buffers" yaml:"buffers"`
	TotalBytes int64             `json:"total_bytes" yaml:"total_bytes"`
}

// BufferInfo describes one buffer referenced by a skeleton.
type BufferInfo struct {
	Key      string `json:"key" yaml:"key"`
	DType    string `json:"dtype" yaml:"dtype"`
	Count    int    `json:"count" yaml:"count"`
	Bytes    int64  `json:"bytes" yaml:"bytes"`         // Size the placeholder requires
	Refs     int    `json:"refs" yaml:"refs"`           // Placeholders naming this key
	File     string `json:"file" yaml:"file"`           // Buffer file name
	FileSize int64  `json:"file_size" yaml:"file_size"` // -1 when the file is missing
	Checksum string `json:"checksum,omitempty" yaml:"checksum,omitempty"`
}

// Present reports whether the buffer file exists.
func (b BufferInfo) Present() bool {
	return b.FileSize >= 0
}

// Complete reports whether the buffer file holds at least Bytes bytes.
func (b BufferInfo) Complete() bool {
	return b.FileSize >= b.Bytes
}

// Inspect reads the skeleton of dir and lists every buffer it references.
// Placeholders are validated; buffer files are only stat'ed.
func Inspect(dir string) (*Manifest, error) {
	skel, err := readSkeleton(dir)
	if err != nil {
		return nil, err
	}

	pids, err := skel.PersistentIDs()
	if err != nil {
		return nil, err
	}

	byKey := make(map[string]*BufferInfo)
	for _, raw := range pids {
		var d Descriptor
		if err := json.Unmarshal(raw, &d); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformedPlaceholder, err)
		}
		dt, err := ValidateDescriptor(d)
		if err != nil {
			return nil, err
		}

		if info, ok := byKey[d.Key]; ok {
			if info.DType != dt.String() || info.Count != d.Count {
				return nil, &ValidationError{
					Type:    "conflict",
					Key:     d.Key,
					Details: fmt.Sprintf("described as %d×%s and %d×%s", info.Count, info.DType, d.Count, dt),
					Err:     ErrMalformedPlaceholder,
				}
			}
			info.Refs++
			continue
		}

		info := &BufferInfo{
			Key:      d.Key,
			DType:    dt.String(),
			Count:    d.Count,
			Bytes:    d.ByteSize(),
			Refs:     1,
			File:     bufstore.FileName(d.Key),
			Checksum: skel.Meta[checksumKey(d.Key)],
		}
		size, err := bufstore.Size(dir, d.Key)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			info.FileSize = -1
		case err != nil:
			return nil, fmt.Errorf("failed to stat buffer %s: %w", d.Key, err)
		default:
			info.FileSize = size
		}
		byKey[d.Key] = info
	}

	m := &Manifest{
		Dir:       dir,
		Protocol:  skel.Protocol,
		SaveID:    skel.SaveID,
		CreatedAt: skel.CreatedAt,
		Meta:      userMeta(skel.Meta),
		Buffers:   make([]BufferInfo, 0, len(byKey)),
	}
	for _, info := range byKey {
		m.Buffers = append(m.Buffers, *info)
		m.TotalBytes += info.Bytes
	}
	sort.Slice(m.Buffers, func(i, j int) bool {
		a, b := m.Buffers[i].Key, m.Buffers[j].Key
		if len(a) != len(b) {
			return len(a) < len(b)
		}
		return a < b
	})
	return m, nil
}

// Verify checks that every buffer referenced by the skeleton of dir is
// present, large enough and, when checksums were recorded, intact.
// All problems are reported together.
func Verify(dir string) error {
	m, err := Inspect(dir)
	if err != nil {
		return err
	}

	return parallel.Do(len(m.Buffers), func(i int) error {
		b := m.Buffers[i]
		if !b.Complete() {
			return &bufstore.BufferError{
				Op:   "verify",
				Key:  b.Key,
				Path: bufstore.Path(dir, b.Key),
				Err:  fmt.Errorf("%w: file is %d bytes, need %d", ErrMissingOrTruncatedBuffer, max(b.FileSize, 0), b.Bytes),
			}
		}
		if b.Checksum == "" {
			return nil
		}
		sum, err := FileChecksum(bufstore.Path(dir, b.Key), b.Bytes)
		if err != nil {
			return fmt.Errorf("failed to hash buffer %s: %w", b.Key, err)
		}
		return ValidateChecksum(b.Key, sum, b.Checksum)
	}, parallel.IOConfig())
}

// HasChecksums reports whether every buffer in the manifest has a recorded
// checksum.
func (m *Manifest) HasChecksums() bool {
	for _, b := range m.Buffers {
		if strings.TrimSpace(b.Checksum) == "" {
			return false
		}
	}
	return true
}
