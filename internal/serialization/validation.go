package serialization

import (
	"fmt"
	"strings"

	"github.com/born-ml/mmpickle/internal/bufstore"
	"github.com/born-ml/mmpickle/internal/tensor"
)

// Validation limits for resource protection.
const (
	MaxSkeletonSize = 256 * 1024 * 1024 // 256MB - maximum skeleton file size
	MaxBufferCount  = 1_000_000         // Maximum number of distinct buffers in a skeleton
	MaxMetaSize     = 10 * 1024 * 1024  // 10MB - maximum total size of user meta
)

// ValidateDescriptor checks a decoded placeholder and returns its element
// type. Every failure matches ErrMalformedPlaceholder.
func ValidateDescriptor(d Descriptor) (tensor.DataType, error) {
	if d.Marker != Marker {
		return 0, &ValidationError{
			Type:    "marker",
			Key:     d.Key,
			Details: fmt.Sprintf("got %q, expected %q", d.Marker, Marker),
			Err:     ErrMalformedPlaceholder,
		}
	}

	// Keys become file names, so they must not escape the directory.
	if err := bufstore.ValidateKey(d.Key); err != nil {
		return 0, &ValidationError{
			Type:    "key",
			Key:     d.Key,
			Details: err.Error(),
			Err:     ErrMalformedPlaceholder,
		}
	}

	dt, err := tensor.ParseDataType(d.DType)
	if err != nil {
		return 0, &ValidationError{
			Type:    "dtype",
			Key:     d.Key,
			Details: err.Error(),
			Err:     ErrMalformedPlaceholder,
		}
	}

	if d.Count < 0 {
		return 0, &ValidationError{
			Type:    "count",
			Key:     d.Key,
			Details: fmt.Sprintf("negative element count %d", d.Count),
			Err:     ErrMalformedPlaceholder,
		}
	}

	return dt, nil
}

// ValidateMeta rejects user meta that uses reserved keys or is too large.
func ValidateMeta(meta map[string]string) error {
	size := 0
	for k, v := range meta {
		if strings.HasPrefix(k, reservedMeta) {
			return fmt.Errorf("%w: %q", ErrReservedMeta, k)
		}
		size += len(k) + len(v)
	}
	if size > MaxMetaSize {
		return &ValidationError{
			Type:    "meta_too_large",
			Details: fmt.Sprintf("%d bytes, max %d", size, MaxMetaSize),
		}
	}
	return nil
}
