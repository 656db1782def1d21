package serialization

import (
	"errors"
	"fmt"
	"log/slog"
	"reflect"

	"github.com/born-ml/mmpickle/internal/bufstore"
	"github.com/born-ml/mmpickle/internal/pickle"
	"github.com/born-ml/mmpickle/internal/tensor"
)

// resolver turns placeholders back into mapped storages for one load.
// Each key is opened at most once; later placeholders for the same key
// resolve to the cached storage.
type resolver struct {
	dir       string
	mode      bufstore.Mode
	checksums map[string]string // key -> hex SHA-256, empty when not verifying
	logger    *slog.Logger
	metrics   *Metrics

	cache  map[string]*tensor.Storage
	opened []*tensor.Storage
}

func newResolver(dir string, opts LoadOptions, checksums map[string]string) *resolver {
	return &resolver{
		dir:       dir,
		mode:      opts.Mode,
		checksums: checksums,
		logger:    opts.logger(),
		metrics:   opts.Metrics,
		cache:     make(map[string]*tensor.Storage),
	}
}

// load implements pickle.PersistentLoadFunc.
func (r *resolver) load(decode func(any) error, want reflect.Type) (reflect.Value, error) {
	var d Descriptor
	if err := decode(&d); err != nil {
		return reflect.Value{}, fmt.Errorf("%w: %w", ErrMalformedPlaceholder, err)
	}
	dt, err := ValidateDescriptor(d)
	if err != nil {
		return reflect.Value{}, err
	}
	if want != storageType {
		return reflect.Value{}, &ValidationError{
			Type:    "target",
			Key:     d.Key,
			Details: fmt.Sprintf("placeholder found where %s is expected", want),
			Err:     ErrMalformedPlaceholder,
		}
	}

	if s, ok := r.cache[d.Key]; ok {
		if s.DType() != dt || s.Len() != d.Count {
			return reflect.Value{}, &ValidationError{
				Type: "conflict",
				Key:  d.Key,
				Details: fmt.Sprintf("described as %d×%s and %d×%s",
					s.Len(), s.DType(), d.Count, dt),
				Err: ErrMalformedPlaceholder,
			}
		}
		return reflect.ValueOf(s), nil
	}

	s, err := r.open(d.Key, dt, d.Count)
	if err != nil {
		return reflect.Value{}, err
	}
	r.cache[d.Key] = s
	return reflect.ValueOf(s), nil
}

func (r *resolver) open(key string, dt tensor.DataType, count int) (*tensor.Storage, error) {
	s, err := bufstore.Open(r.dir, key, dt, count, r.mode)
	if err != nil {
		return nil, err
	}
	r.opened = append(r.opened, s)

	if stored, ok := r.checksums[key]; ok {
		if err := ValidateChecksum(key, ComputeChecksum(s.Bytes()), stored); err != nil {
			return nil, err
		}
	}

	r.metrics.recordBufferMapped(s.ByteSize())
	r.logger.Debug("mapped buffer",
		"key", key, "dtype", dt.String(), "count", count, "mode", r.mode.String())
	return s, nil
}

// release unmaps every storage opened so far. It is used when a load fails
// so no mapping outlives the failed call.
func (r *resolver) release() error {
	var errs []error
	for _, s := range r.opened {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	r.opened = nil
	return errors.Join(errs...)
}

// decodeGraph rebuilds the graph in s into out, resolving placeholders with r.
func decodeGraph(s *pickle.Skeleton, out any, r *resolver) error {
	dec := pickle.NewDecoder(s, pickle.DecoderOptions{PersistentLoad: r.load})
	return dec.Decode(out)
}
