// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package workerspool

import (
	"runtime"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPool_ForEach(t *testing.T) {
	for _, parallelism := range []int{0, 1, 3, -1} {
		pool := New(parallelism)
		results := make([]int, 100)
		err := pool.ForEach(len(results), func(idx int) error {
			results[idx] = idx * idx
			return nil
		})
		require.NoError(t, err)
		for idx, v := range results {
			require.Equalf(t, idx*idx, v, "parallelism=%d, index %d", parallelism, idx)
		}
	}
}

func TestPool_ForEachError(t *testing.T) {
	// Sequential: stops at the first error.
	pool := New(0)
	var calls atomic.Int32
	err := pool.ForEach(10, func(idx int) error {
		calls.Add(1)
		if idx == 3 {
			return errors.Errorf("failed #%d", idx)
		}
		return nil
	})
	require.Error(t, err)
	assert.Equal(t, "failed #3", err.Error())
	assert.Equal(t, int32(4), calls.Load())

	// Parallel: reports the error of the lowest failing index.
	pool = New(4)
	err = pool.ForEach(10, func(idx int) error {
		if idx == 2 || idx == 5 {
			return errors.Errorf("failed #%d", idx)
		}
		return nil
	})
	require.Error(t, err)
	assert.Contains(t, []string{"failed #2", "failed #5"}, err.Error())
}

func TestPool_MaxParallelism(t *testing.T) {
	const maxParallelism = 3
	pool := New(maxParallelism)
	assert.True(t, pool.IsEnabled())
	assert.Equal(t, maxParallelism, pool.MaxParallelism())

	var running, maxRunning atomic.Int32
	err := pool.ForEach(20, func(idx int) error {
		current := running.Add(1)
		for {
			seen := maxRunning.Load()
			if current <= seen || maxRunning.CompareAndSwap(seen, current) {
				break
			}
		}
		time.Sleep(time.Millisecond)
		runtime.Gosched()
		running.Add(-1)
		return nil
	})
	require.NoError(t, err)
	assert.LessOrEqual(t, int(maxRunning.Load()), maxParallelism)
	assert.GreaterOrEqual(t, int(maxRunning.Load()), 1)

	assert.False(t, New(0).IsEnabled())
	assert.Equal(t, runtime.NumCPU(), New(-1).MaxParallelism())
}
