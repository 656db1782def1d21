package bufstore

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/mmpickle/internal/tensor"
)

func float32Storage(t *testing.T, values ...float32) *tensor.Storage {
	t.Helper()
	raw, err := tensor.FromSlice(values, tensor.Shape{len(values)})
	require.NoError(t, err)
	return raw.Storage()
}

func TestWriteCreatesExactFile(t *testing.T) {
	dir := t.TempDir()
	src := float32Storage(t, 1, 2, 3, 4)

	require.NoError(t, Write(dir, "42", src))

	data, err := os.ReadFile(filepath.Join(dir, "param_42"))
	require.NoError(t, err)
	assert.Len(t, data, 16)
	assert.Equal(t, src.Bytes(), data)

	size, err := Size(dir, "42")
	require.NoError(t, err)
	assert.EqualValues(t, 16, size)
}

func TestWriteTruncatesExistingFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(Path(dir, "7"), make([]byte, 100), 0o644))

	require.NoError(t, Write(dir, "7", float32Storage(t, 5)))

	size, err := Size(dir, "7")
	require.NoError(t, err)
	assert.EqualValues(t, 4, size)
}

func TestOpenSharedMapping(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Write(dir, "1", float32Storage(t, 1, 2, 3, 4)))

	s, err := Open(dir, "1", tensor.Float32, 4, ModeShared)
	require.NoError(t, err)
	defer s.Close()

	assert.True(t, s.Mapped())
	assert.Equal(t, Path(dir, "1"), s.Path())
	assert.Equal(t, tensor.CPU, s.Device())

	raw, err := tensor.FromStorage(s, tensor.Shape{4})
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2, 3, 4}, raw.AsFloat32())

	// Writes through a shared mapping reach the file.
	raw.AsFloat32()[0] = 10
	require.NoError(t, s.Flush())

	again, err := Open(dir, "1", tensor.Float32, 4, ModeShared)
	require.NoError(t, err)
	defer again.Close()
	back, err := tensor.FromStorage(again, tensor.Shape{4})
	require.NoError(t, err)
	assert.Equal(t, float32(10), back.AsFloat32()[0])
}

func TestOpenPrivateMappingDoesNotWriteBack(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Write(dir, "1", float32Storage(t, 1, 2)))

	s, err := Open(dir, "1", tensor.Float32, 2, ModePrivate)
	require.NoError(t, err)
	raw, err := tensor.FromStorage(s, tensor.Shape{2})
	require.NoError(t, err)
	raw.AsFloat32()[1] = 99
	require.NoError(t, s.Close())

	data, err := os.ReadFile(Path(dir, "1"))
	require.NoError(t, err)
	assert.Equal(t, float32Storage(t, 1, 2).Bytes(), data)
}

func TestOpenMissingOrTruncated(t *testing.T) {
	dir := t.TempDir()

	_, err := Open(dir, "404", tensor.Float32, 4, ModeShared)
	require.ErrorIs(t, err, ErrMissingOrTruncated)
	var be *BufferError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, "open", be.Op)
	assert.Equal(t, "404", be.Key)

	require.NoError(t, os.WriteFile(Path(dir, "short"), make([]byte, 15), 0o644))
	_, err = Open(dir, "short", tensor.Float32, 4, ModeShared)
	assert.ErrorIs(t, err, ErrMissingOrTruncated)

	// Longer files are accepted; only the leading elements are mapped.
	require.NoError(t, os.WriteFile(Path(dir, "long"), make([]byte, 20), 0o644))
	s, err := Open(dir, "long", tensor.Float32, 4, ModeShared)
	require.NoError(t, err)
	assert.Len(t, s.Bytes(), 16)
	require.NoError(t, s.Close())
}

func TestZeroLengthBuffer(t *testing.T) {
	dir := t.TempDir()
	empty, err := tensor.NewStorage(tensor.Int64, 0, tensor.CPU)
	require.NoError(t, err)

	require.NoError(t, Write(dir, "0", empty))
	size, err := Size(dir, "0")
	require.NoError(t, err)
	assert.Zero(t, size)

	s, err := Open(dir, "0", tensor.Int64, 0, ModeShared)
	require.NoError(t, err)
	assert.Equal(t, 0, s.Len())
	assert.NoError(t, s.Close())
}

func TestAllDataTypesRoundTrip(t *testing.T) {
	dir := t.TempDir()
	for _, dt := range tensor.DataTypes() {
		t.Run(dt.String(), func(t *testing.T) {
			src, err := tensor.NewStorage(dt, 3, tensor.CPU)
			require.NoError(t, err)
			for i := range src.Bytes() {
				src.Bytes()[i] = byte(i%2 + 1)
			}

			key := "dt" + dt.String()
			require.NoError(t, Write(dir, key, src))

			s, err := Open(dir, key, dt, 3, ModeShared)
			require.NoError(t, err)
			defer s.Close()
			assert.Equal(t, dt, s.DType())
			assert.Equal(t, src.Bytes(), s.Bytes())
		})
	}
}

func TestValidateKey(t *testing.T) {
	tests := []struct {
		key   string
		valid bool
	}{
		{"140234", true},
		{"a-b_C9", true},
		{"", false},
		{"../escape", false},
		{"a/b", false},
		{"sp ace", false},
		{string(make([]byte, MaxKeyLen+1)), false},
	}

	for _, tt := range tests {
		err := ValidateKey(tt.key)
		if tt.valid {
			assert.NoError(t, err, tt.key)
		} else {
			assert.ErrorIs(t, err, ErrInvalidKey, tt.key)
		}
	}

	err := Write(t.TempDir(), "../x", float32Storage(t, 1))
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestByteSize(t *testing.T) {
	size, err := byteSize(tensor.Float64, 10)
	require.NoError(t, err)
	assert.Equal(t, 80, size)

	_, err = byteSize(tensor.Float64, -1)
	assert.Error(t, err)

	_, err = byteSize(tensor.DataType(77), 1)
	assert.Error(t, err)

	_, err = byteSize(tensor.Float64, math.MaxInt/4)
	assert.Error(t, err)
}

func TestMulChecked(t *testing.T) {
	p, ok := mulChecked[int64](1<<31, 1<<31)
	assert.True(t, ok)
	assert.EqualValues(t, int64(1)<<62, p)

	_, ok = mulChecked[int64](1<<40, 1<<40)
	assert.False(t, ok)

	p, ok = mulChecked[uint8](0, 200)
	assert.True(t, ok)
	assert.Zero(t, p)
}
