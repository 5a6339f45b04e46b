// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package ndarray

import (
	"testing"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromFlat(t *testing.T) {
	a, err := FromFlat([]uint8{1, 2, 3, 4, 5, 6}, 2, 3)
	require.NoError(t, err)
	assert.Equal(t, dtypes.Uint8, a.DType())
	assert.Equal(t, []int{2, 3}, a.Dimensions())
	assert.Equal(t, 2, a.Rank())
	assert.Equal(t, 6, a.Size())
	assert.Equal(t, uintptr(6), a.Memory())
	assert.Equal(t, 2, a.NumExamples())
	assert.Equal(t, 3, a.Dim(-1))

	_, err = FromFlat([]uint8{1, 2, 3}, 2, 2)
	require.Error(t, err)
	_, err = FromFlat([]uint8{}, -1)
	require.Error(t, err)

	sizes := MustFromFlat([]int64{10, 20}, 1, 2)
	assert.Equal(t, dtypes.Int64, sizes.DType())
	assert.Equal(t, uintptr(16), sizes.Memory())
	_, err = Flat[uint8](sizes)
	require.Error(t, err)
	assert.Equal(t, []int64{10, 20}, MustFlat[int64](sizes))
}

func TestFromDType(t *testing.T) {
	a, err := FromDType(dtypes.Int8, 3)
	require.NoError(t, err)
	assert.Equal(t, []int8{0, 0, 0}, MustFlat[int8](a))
	_, err = FromDType(dtypes.Bool, 3)
	require.Error(t, err)
}

func TestStack(t *testing.T) {
	a := MustFromFlat([]uint8{1, 2, 3, 4}, 2, 2)
	b := MustFromFlat([]uint8{5, 6, 7, 8}, 2, 2)
	stacked, err := Stack([]*Array{a, b})
	require.NoError(t, err)
	assert.Equal(t, []int{2, 2, 2}, stacked.Dimensions())
	assert.Equal(t, []uint8{1, 2, 3, 4, 5, 6, 7, 8}, MustFlat[uint8](stacked))
	assert.True(t, a.Equal(stacked.Example(0)))
	assert.True(t, b.Equal(stacked.Example(1)))

	_, err = Stack([]*Array{a, MustFromFlat([]uint8{1, 2}, 2)})
	require.Error(t, err)
	_, err = Stack(nil)
	require.Error(t, err)
}

func TestStackLast(t *testing.T) {
	a := MustFromFlat([]uint8{1, 2, 3, 4}, 2, 2)
	b := MustFromFlat([]uint8{5, 6, 7, 8}, 2, 2)
	stacked, err := StackLast([]*Array{a, b})
	require.NoError(t, err)
	assert.Equal(t, []int{2, 2, 2}, stacked.Dimensions())
	assert.Equal(t, []uint8{1, 5, 2, 6, 3, 7, 4, 8}, MustFlat[uint8](stacked))
}

func TestGather(t *testing.T) {
	a := MustFromFlat([]int32{0, 1, 10, 11, 20, 21, 30, 31}, 4, 2)
	g, err := a.Gather([]int{3, 1})
	require.NoError(t, err)
	assert.Equal(t, []int{2, 2}, g.Dimensions())
	assert.Equal(t, []int32{30, 31, 10, 11}, MustFlat[int32](g))

	empty, err := a.Gather(nil)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 2}, empty.Dimensions())

	_, err = a.Gather([]int{4})
	require.Error(t, err)
}

func TestEqual(t *testing.T) {
	a := MustFromFlat([]uint8{1, 2, 3, 4}, 2, 2)
	assert.True(t, a.Equal(MustFromFlat([]uint8{1, 2, 3, 4}, 2, 2)))
	assert.False(t, a.Equal(MustFromFlat([]uint8{1, 2, 3, 4}, 4)))
	assert.False(t, a.Equal(MustFromFlat([]int8{1, 2, 3, 4}, 2, 2)))
	assert.False(t, a.Equal(MustFromFlat([]uint8{1, 2, 3, 5}, 2, 2)))
	assert.Contains(t, a.String(), "[2 2]")
}

func TestExampleOutOfRange(t *testing.T) {
	a := MustFromFlat([]uint8{1, 2, 3, 4}, 2, 2)
	err := exceptions.TryCatch[error](func() { _ = a.Example(2) })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of range")
	err = exceptions.TryCatch[error](func() { _ = a.Example(1) })
	require.NoError(t, err)
}

func TestNumElements(t *testing.T) {
	size, err := NumElements([]int{2, 3, 4})
	require.NoError(t, err)
	assert.Equal(t, 24, size)

	size, err = NumElements(nil)
	require.NoError(t, err)
	assert.Equal(t, 1, size)

	size, err = NumElements([]int{1 << 62, 4, 0})
	require.NoError(t, err)
	assert.Zero(t, size)

	_, err = NumElements([]int{1 << 62, 4})
	require.ErrorContains(t, err, "overflow")
	_, err = NumElements([]int{3, -1})
	require.Error(t, err)

	_, err = FromDType(dtypes.Uint8, 1<<40, 1<<40)
	require.Error(t, err)
}
