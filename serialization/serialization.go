// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package serialization

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/born-ml/mmpickle/internal/serialization"
)

// File names inside a save directory.
const (
	SkeletonName = serialization.SkeletonName
	BufferPrefix = serialization.BufferPrefix
)

// Mode selects how loaded buffers are mapped.
type Mode = serialization.Mode

// Load modes.
const (
	// ModeShared maps buffer files read-write; changes reach the files.
	ModeShared = serialization.ModeShared
	// ModePrivate maps buffer files copy-on-write; the files stay untouched.
	ModePrivate = serialization.ModePrivate
)

// SaveOptions configures SaveWithOptions.
type SaveOptions = serialization.SaveOptions

// LoadOptions configures LoadWithOptions.
type LoadOptions = serialization.LoadOptions

// DefaultSaveOptions returns options that refuse to overwrite and record
// buffer checksums.
func DefaultSaveOptions() SaveOptions {
	return serialization.DefaultSaveOptions()
}

// DefaultLoadOptions returns options for a shared mapping without checksum
// verification.
func DefaultLoadOptions() LoadOptions {
	return serialization.DefaultLoadOptions()
}

// Save writes root into dir with default options.
func Save(root any, dir string) error {
	return serialization.Save(root, dir)
}

// SaveWithOptions writes root into dir.
func SaveWithOptions(root any, dir string, opts SaveOptions) error {
	return serialization.SaveWithOptions(root, dir, opts)
}

// Load reads the graph saved in dir into out, which must be a non-nil
// pointer. out is only modified when Load succeeds.
func Load(dir string, out any) error {
	return serialization.Load(dir, out)
}

// LoadWithOptions reads the graph saved in dir into out.
func LoadWithOptions(dir string, out any, opts LoadOptions) error {
	return serialization.LoadWithOptions(dir, out, opts)
}

// Errors returned by Save, Load and Verify. Use errors.Is to match them.
var (
	ErrUnsupportedBufferLocation = serialization.ErrUnsupportedBufferLocation
	ErrMalformedPlaceholder      = serialization.ErrMalformedPlaceholder
	ErrMissingOrTruncatedBuffer  = serialization.ErrMissingOrTruncatedBuffer
	ErrDirectoryCreation         = serialization.ErrDirectoryCreation
	ErrSkeletonExists            = serialization.ErrSkeletonExists
	ErrDirectoryInUse            = serialization.ErrDirectoryInUse
	ErrChecksumMismatch          = serialization.ErrChecksumMismatch
	ErrReservedMeta              = serialization.ErrReservedMeta
)

// ValidationError describes a placeholder or buffer file that failed
// validation.
type ValidationError = serialization.ValidationError

// Descriptor is the placeholder recorded in the skeleton for one buffer.
type Descriptor = serialization.Descriptor

// Manifest summarizes a save directory.
type Manifest = serialization.Manifest

// BufferInfo describes one buffer of a Manifest.
type BufferInfo = serialization.BufferInfo

// Inspect reads the skeleton in dir and stats its buffer files without
// mapping them.
func Inspect(dir string) (*Manifest, error) {
	return serialization.Inspect(dir)
}

// Verify checks that every buffer file in dir is complete and, when the
// skeleton carries checksums, that its contents match.
func Verify(dir string) error {
	return serialization.Verify(dir)
}

// Metrics counts buffers and bytes moved by Save and Load.
type Metrics = serialization.Metrics

// NewMetrics creates Metrics registered with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	return serialization.NewMetrics(reg)
}
