package serialization

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/born-ml/mmpickle/internal/bufstore"
	"github.com/born-ml/mmpickle/internal/parallel"
	"github.com/born-ml/mmpickle/internal/pickle"
)

// Save writes the object graph rooted at root into dir with default options.
func Save(root any, dir string) error {
	return SaveWithOptions(root, dir, DefaultSaveOptions())
}

// SaveWithOptions writes the object graph rooted at root into dir.
//
// The graph is encoded in a single traversal before anything touches the
// disk, so an unsupported storage or type fails the save with the directory
// unchanged. The skeleton is then written atomically, followed by one
// buffer file per distinct storage. A failure during the buffer writes
// leaves a skeleton that references incomplete buffers; the caller must
// discard the directory.
func SaveWithOptions(root any, dir string, opts SaveOptions) (err error) {
	start := time.Now()
	defer func() { opts.Metrics.recordOperation("save", start, err) }()
	log := opts.logger()

	if err := ValidateMeta(opts.Meta); err != nil {
		return err
	}

	reg := NewBufferRegistry()
	skel, err := encodeGraph(root, reg)
	if err != nil {
		return fmt.Errorf("failed to encode graph: %w", err)
	}
	if reg.Len() > MaxBufferCount {
		return &ValidationError{
			Type:    "too_many_buffers",
			Details: fmt.Sprintf("got %d, max %d", reg.Len(), MaxBufferCount),
		}
	}

	if err := prepareDir(dir, reg, opts.Overwrite); err != nil {
		return err
	}

	skel.SaveID = uuid.NewString()
	skel.Meta = make(map[string]string, len(opts.Meta)+reg.Len())
	for k, v := range opts.Meta {
		skel.Meta[k] = v
	}
	entries := reg.Entries()
	if opts.Checksums {
		sums := make([]string, len(entries))
		parallel.For(len(entries), func(i int) {
			sums[i] = FormatChecksum(ComputeChecksum(entries[i].Storage.Bytes()))
		}, parallel.IOConfig())
		for i, e := range entries {
			skel.Meta[checksumKey(e.Key)] = sums[i]
		}
	}

	data, err := skel.Marshal()
	if err != nil {
		return err
	}
	if err := writeSkeleton(dir, data); err != nil {
		return err
	}
	log.Debug("wrote skeleton", "dir", dir, "save_id", skel.SaveID, "bytes", len(data))

	// Buffers are written only once the skeleton is complete and closed.
	err = parallel.Do(len(entries), func(i int) error {
		e := entries[i]
		if err := bufstore.Write(dir, e.Key, e.Storage); err != nil {
			return err
		}
		opts.Metrics.recordBufferWritten(e.Storage.ByteSize())
		log.Debug("wrote buffer", "key", e.Key, "dtype", e.DType.String(), "count", e.Count)
		return nil
	}, parallel.IOConfig())
	if err != nil {
		return err
	}

	if opts.Overwrite {
		removeStaleBuffers(dir, reg, log)
	}

	log.Debug("saved graph", "dir", dir, "buffers", reg.Len(), "bytes", reg.TotalBytes())
	return nil
}

// prepareDir creates dir if needed and checks that the save may proceed.
func prepareDir(dir string, reg *BufferRegistry, overwrite bool) error {
	info, err := os.Stat(dir)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("%w: %w", ErrDirectoryCreation, err)
		}
		return nil
	case err != nil:
		return fmt.Errorf("%w: %w", ErrDirectoryCreation, err)
	case !info.IsDir():
		return fmt.Errorf("%w: %s is not a directory", ErrDirectoryCreation, dir)
	}

	if _, err := os.Stat(filepath.Join(dir, SkeletonName)); err == nil && !overwrite {
		return fmt.Errorf("%w: %s", ErrSkeletonExists, dir)
	}

	// Rewriting a buffer file that is currently mapped would truncate the
	// pages under the live storage.
	for _, e := range reg.Entries() {
		if !e.Storage.Mapped() {
			continue
		}
		backing, err := os.Stat(filepath.Dir(e.Storage.Path()))
		if err == nil && os.SameFile(info, backing) {
			return fmt.Errorf("%w: buffer %s is mapped from %s", ErrDirectoryInUse, e.Key, e.Storage.Path())
		}
	}
	return nil
}

// writeSkeleton writes data to a temporary file in dir, syncs it and
// renames it over the skeleton.
func writeSkeleton(dir string, data []byte) error {
	tmp := filepath.Join(dir, tempPrefix+uuid.NewString()+tempSuffix)

	//nolint:gosec // G304: tmp is built from dir and a fresh uuid
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDirectoryCreation, err)
	}

	fail := func(err error) error {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if _, err := f.Write(data); err != nil {
		return fail(fmt.Errorf("failed to write skeleton: %w", err))
	}
	if err := f.Sync(); err != nil {
		return fail(fmt.Errorf("failed to sync skeleton: %w", err))
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to close skeleton: %w", err)
	}
	if err := os.Rename(tmp, filepath.Join(dir, SkeletonName)); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to install skeleton: %w", err)
	}
	return nil
}

// removeStaleBuffers deletes buffer files in dir that the new skeleton does
// not reference.
func removeStaleBuffers(dir string, reg *BufferRegistry, log *slog.Logger) {
	live := make(map[string]bool, reg.Len())
	for _, e := range reg.Entries() {
		live[e.Key] = true
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		log.Warn("cannot list directory for stale buffers", "dir", dir, "error", err)
		return
	}
	for _, de := range entries {
		key, ok := strings.CutPrefix(de.Name(), BufferPrefix)
		if !ok || de.IsDir() || live[key] || bufstore.ValidateKey(key) != nil {
			continue
		}
		if err := os.Remove(filepath.Join(dir, de.Name())); err != nil {
			log.Warn("cannot remove stale buffer", "file", de.Name(), "error", err)
			continue
		}
		log.Debug("removed stale buffer", "file", de.Name())
	}
}

// Load rebuilds the graph saved in dir into the value pointed to by out,
// with default options.
func Load(dir string, out any) error {
	return LoadWithOptions(dir, out, DefaultLoadOptions())
}

// LoadWithOptions rebuilds the graph saved in dir into the value pointed to
// by out. Every storage in the result is a mapping of its buffer file.
//
// The graph is decoded into a fresh value and copied into out only on
// success; on failure out is untouched and every mapping opened by the
// call is released.
func LoadWithOptions(dir string, out any, opts LoadOptions) (err error) {
	start := time.Now()
	defer func() { opts.Metrics.recordOperation("load", start, err) }()
	log := opts.logger()

	rv := reflect.ValueOf(out)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return fmt.Errorf("load target must be a non-nil pointer, got %T", out)
	}

	skel, err := readSkeleton(dir)
	if err != nil {
		return err
	}

	checksums := make(map[string]string)
	if opts.VerifyChecksums {
		for k, v := range skel.Meta {
			if key, ok := strings.CutPrefix(k, checksumMeta); ok {
				checksums[key] = v
			}
		}
	}

	r := newResolver(dir, opts, checksums)
	fresh := reflect.New(rv.Elem().Type())
	if err := decodeGraph(skel, fresh.Interface(), r); err != nil {
		if rerr := r.release(); rerr != nil {
			log.Warn("failed to release buffers", "dir", dir, "error", rerr)
		}
		return fmt.Errorf("failed to load %s: %w", dir, err)
	}
	rv.Elem().Set(fresh.Elem())

	log.Debug("loaded graph", "dir", dir, "save_id", skel.SaveID, "buffers", len(r.cache))
	return nil
}

// readSkeleton reads and parses the skeleton file of dir.
func readSkeleton(dir string) (*pickle.Skeleton, error) {
	path := filepath.Join(dir, SkeletonName)
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open skeleton: %w", err)
	}
	if info.Size() > MaxSkeletonSize {
		return nil, &ValidationError{
			Type:    "skeleton_too_large",
			Details: fmt.Sprintf("%d bytes, max %d", info.Size(), MaxSkeletonSize),
		}
	}

	//nolint:gosec // G304: path is the skeleton inside the caller's directory
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read skeleton: %w", err)
	}
	skel, err := pickle.ParseSkeleton(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return skel, nil
}
