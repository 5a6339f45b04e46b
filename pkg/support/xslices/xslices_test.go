// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package xslices

import (
	"flag"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMap(t *testing.T) {
	got := Map([]int{1, 2, 3}, func(e int) string { return strconv.Itoa(e * 2) })
	assert.Equal(t, []string{"2", "4", "6"}, got)
}

func TestIndicesWhere(t *testing.T) {
	labels := []int8{-1, 0, 1, 0, -1}
	assert.Equal(t, []int{1, 3}, IndicesWhere(labels, func(e int8) bool { return e == 0 }))
	assert.Equal(t, []int{}, IndicesWhere(labels, func(e int8) bool { return e == 7 }))
}

func TestSortedKeys(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, SortedKeys(map[string]int{"c": 0, "a": 1, "b": 2}))
}

func TestFlag(t *testing.T) {
	sizes := Flag("test_sizes", []int{64}, "sizes", strconv.Atoi)
	assert.Equal(t, []int{64}, *sizes)
	require.NoError(t, flag.Set("test_sizes", "128, 256"))
	assert.Equal(t, []int{128, 256}, *sizes)
	require.Error(t, flag.Set("test_sizes", "x"))
}
