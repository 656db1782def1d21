package bufstore

import (
	"fmt"

	"golang.org/x/exp/constraints"

	"github.com/born-ml/mmpickle/internal/tensor"
)

// mulChecked returns a*b and whether the product fits in T.
// Both operands must be non-negative.
func mulChecked[T constraints.Integer](a, b T) (T, bool) {
	if a == 0 || b == 0 {
		return 0, true
	}
	p := a * b
	return p, p/b == a && p >= a
}

// byteSize returns count*dtype.Size(), rejecting invalid types, negative
// counts and sizes that do not fit in an int.
func byteSize(dtype tensor.DataType, count int) (int, error) {
	if !dtype.Valid() {
		return 0, fmt.Errorf("invalid data type %d", dtype)
	}
	if count < 0 {
		return 0, fmt.Errorf("negative element count %d", count)
	}
	size, ok := mulChecked(count, dtype.Size())
	if !ok {
		return 0, fmt.Errorf("%d elements of %s overflow the address space", count, dtype)
	}
	return size, nil
}
