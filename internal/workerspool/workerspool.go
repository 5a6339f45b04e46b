// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package workerspool limits the number of goroutines decoding images concurrently.
package workerspool

import (
	"runtime"
	"sync"
)

// Pool of workers with a soft limit on the number of tasks running in parallel.
type Pool struct {
	// maxParallelism is the limit of tasks running in parallel.
	// 0 disables parallelism (tasks run inline), and negative values means unlimited.
	maxParallelism int
	mu             sync.Mutex
	cond           sync.Cond // Should be signaled whenever numRunning is decreased.
	numRunning     int
}

// New returns a new Pool of workers with the given parallelism.
//
// If maxParallelism is 0, tasks are executed inline, sequentially.
// If it is negative, it uses runtime.NumCPU().
func New(maxParallelism int) *Pool {
	w := &Pool{}
	if maxParallelism < 0 {
		maxParallelism = runtime.NumCPU()
	}
	w.maxParallelism = maxParallelism
	w.cond = sync.Cond{L: &w.mu}
	return w
}

// IsEnabled returns whether parallelism is enabled (maxParallelism is != 0)
func (w *Pool) IsEnabled() bool {
	return w.maxParallelism != 0
}

// MaxParallelism returns the limit of tasks running in parallel. 0 means parallelism is disabled.
func (w *Pool) MaxParallelism() int {
	return w.maxParallelism
}

// lockedIsFull returns whether all available workers are in use.
//
// It must be called with Pool.mu acquired.
func (w *Pool) lockedIsFull() bool {
	return w.numRunning >= w.maxParallelism
}

// WaitToStart waits until there is a worker available to run the task, and starts it in a goroutine.
//
// If parallelism is disabled (maxParallelism is 0), it runs the task inline and returns when it is finished.
func (w *Pool) WaitToStart(task func()) {
	if w.maxParallelism == 0 {
		task()
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	for w.lockedIsFull() {
		w.cond.Wait()
	}
	w.numRunning++
	go func() {
		defer w.taskDone()
		task()
	}()
}

func (w *Pool) taskDone() {
	w.mu.Lock()
	w.numRunning--
	w.cond.Signal()
	w.mu.Unlock()
}

// ForEach calls fn(idx) for every idx in [0, n), using the pool workers, and waits for all of them to finish.
//
// It returns the error of the lowest index that failed. When parallelism is disabled, it stops at the first
// error. Otherwise, tasks not yet started when an error is observed are skipped.
func (w *Pool) ForEach(n int, fn func(idx int) error) error {
	if !w.IsEnabled() {
		for idx := range n {
			if err := fn(idx); err != nil {
				return err
			}
		}
		return nil
	}

	var (
		wg       sync.WaitGroup
		errMu    sync.Mutex
		firstErr error
		errIdx   = n
	)
	failed := func() bool {
		errMu.Lock()
		defer errMu.Unlock()
		return firstErr != nil
	}
	for idx := range n {
		if failed() {
			break
		}
		wg.Add(1)
		w.WaitToStart(func() {
			defer wg.Done()
			if err := fn(idx); err != nil {
				errMu.Lock()
				if idx < errIdx {
					firstErr, errIdx = err, idx
				}
				errMu.Unlock()
			}
		})
	}
	wg.Wait()
	return firstErr
}
