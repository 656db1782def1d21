// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package serialization_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/mmpickle/serialization"
	"github.com/born-ml/mmpickle/tensor"
)

type pair struct {
	A *tensor.RawTensor `pickle:"a"`
	B *tensor.RawTensor `pickle:"b"`
}

func TestSaveLoadSharedStorage(t *testing.T) {
	a, err := tensor.FromSlice([]float32{1, 2, 3, 4}, tensor.Shape{2, 2})
	require.NoError(t, err)
	b, err := a.Narrow(0, 1, 1)
	require.NoError(t, err)

	dir := filepath.Join(t.TempDir(), "pair")
	require.NoError(t, serialization.Save(&pair{A: a, B: b}, dir))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2, "skeleton plus one shared buffer")

	var got *pair
	require.NoError(t, serialization.Load(dir, &got))
	assert.Same(t, got.A.Storage(), got.B.Storage())
	assert.True(t, got.A.Storage().Mapped())
	assert.Equal(t, []float32{3, 4}, got.B.AsFloat32())
}

func TestPrivateModeLeavesFilesUntouched(t *testing.T) {
	a, err := tensor.FromSlice([]int32{7, 8}, tensor.Shape{2})
	require.NoError(t, err)
	dir := t.TempDir()
	require.NoError(t, serialization.SaveWithOptions(&pair{A: a}, dir, serialization.DefaultSaveOptions()))

	opts := serialization.DefaultLoadOptions()
	opts.Mode = serialization.ModePrivate
	var got *pair
	require.NoError(t, serialization.LoadWithOptions(dir, &got, opts))
	got.A.AsInt32()[0] = -1

	var again *pair
	require.NoError(t, serialization.Load(dir, &again))
	assert.Equal(t, []int32{7, 8}, again.A.AsInt32())
}

func TestErrorsAndInspect(t *testing.T) {
	a, err := tensor.FromSlice([]uint8{1, 2, 3}, tensor.Shape{3})
	require.NoError(t, err)
	dir := t.TempDir()
	require.NoError(t, serialization.Save(&pair{A: a}, dir))

	assert.ErrorIs(t, serialization.Save(&pair{A: a}, dir), serialization.ErrSkeletonExists)

	man, err := serialization.Inspect(dir)
	require.NoError(t, err)
	require.Len(t, man.Buffers, 1)
	assert.Equal(t, "uint8", man.Buffers[0].DType)
	assert.True(t, man.HasChecksums())
	require.NoError(t, serialization.Verify(dir))

	require.NoError(t, os.Truncate(filepath.Join(dir, man.Buffers[0].File), 1))
	assert.ErrorIs(t, serialization.Verify(dir), serialization.ErrMissingOrTruncatedBuffer)

	var got *pair
	assert.ErrorIs(t, serialization.Load(dir, &got), serialization.ErrMissingOrTruncatedBuffer)
	assert.Nil(t, got)
}
