package serialization

import (
	"io"
	"log/slog"

	"github.com/born-ml/mmpickle/internal/bufstore"
)

// Mode selects how buffer files are mapped on load.
type Mode = bufstore.Mode

// Load modes, re-exported from the buffer store.
const (
	ModeShared  = bufstore.ModeShared
	ModePrivate = bufstore.ModePrivate
)

// SaveOptions configures Save.
type SaveOptions struct {
	// Overwrite allows saving into a directory that already holds a
	// skeleton. Buffer files left over from the previous save are removed.
	Overwrite bool

	// Checksums records the SHA-256 of every buffer in the skeleton meta.
	Checksums bool

	// Meta is stored in the skeleton. Keys starting with "mmpickle." are
	// reserved.
	Meta map[string]string

	// Logger receives debug records for every file written. Nil discards.
	Logger *slog.Logger

	// Metrics is updated when non-nil.
	Metrics *Metrics
}

// DefaultSaveOptions returns the options used by Save.
func DefaultSaveOptions() SaveOptions {
	return SaveOptions{
		Checksums: true,
	}
}

func (o SaveOptions) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return discardLogger
}

// LoadOptions configures Load.
type LoadOptions struct {
	// Mode selects how buffer files are mapped.
	//   - ModeShared (default): writes reach the files and other processes
	//   - ModePrivate: copy-on-write, the files are never modified
	Mode Mode

	// VerifyChecksums hashes every buffer on first open and fails the load
	// on a mismatch. Skeletons saved without checksums are not verified.
	VerifyChecksums bool

	// Logger receives debug records for every buffer mapped. Nil discards.
	Logger *slog.Logger

	// Metrics is updated when non-nil.
	Metrics *Metrics
}

// DefaultLoadOptions returns the options used by Load.
func DefaultLoadOptions() LoadOptions {
	return LoadOptions{
		Mode: ModeShared,
	}
}

func (o LoadOptions) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return discardLogger
}

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))
