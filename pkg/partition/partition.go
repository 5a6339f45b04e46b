// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package partition splits aligned examples (X, Y) into train, validation and test sets, using a seeded
// k-fold plus holdout scheme.
//
// The examples are divided into k folds of equal size plus a test (holdout) bucket with the remainder.
// Fold i is used for validation, and the other k-1 folds for training. The assignment of examples to
// folds only depends on (n, k, testSplit, seed), so the same arguments always yield the same partition,
// and validation sets over i = 0..k-1 are disjoint and cover all non-test examples.
//
// Example:
//
//	split, err := partition.Data(images, masks, 5, 0, 0, partition.DefaultSeed)
//	if err != nil { ... }
//	trainImages, trainMasks := split.Train.X, split.Train.Y
package partition

import (
	"math"

	"github.com/gomlx/isic2018/pkg/core/ndarray"
	"github.com/gomlx/isic2018/pkg/support/xslices"
	"github.com/pkg/errors"
)

const (
	// DefaultNumFolds is the default number of folds k.
	DefaultNumFolds = 5

	// DefaultSeed used to shuffle the fold assignment.
	DefaultSeed uint32 = 42

	// DefaultTestSplit is the default fraction of the examples reserved for the test bucket.
	DefaultTestSplit = 1.0 / 6.0

	// TestLabel is the assignment label of examples in the test (holdout) bucket.
	TestLabel int8 = -1

	// MaxNumFolds is the largest k supported: labels are stored as int8.
	MaxNumFolds = math.MaxInt8
)

// Pair of aligned inputs and targets: X.Dim(0) == Y.Dim(0).
type Pair struct {
	X, Y *ndarray.Array
}

// Len returns the number of examples in the pair.
func (p Pair) Len() int {
	if p.X == nil {
		return 0
	}
	return p.X.NumExamples()
}

// Split holds the result of Data.
type Split struct {
	Train, Validation, Test Pair
}

// Indices selected for each of the sets of a Split, in increasing order.
type Indices struct {
	Train, Validation, Test []int
}

// FoldSize returns the number of examples in each of the k folds: floor(floor(n * (1 - testSplit)) / k).
func FoldSize(n, k int, testSplit float64) int {
	return int(float64(n)*(1.0-testSplit)) / k
}

func validate(n, k int, testSplit float64) error {
	if n < 0 {
		return errors.Errorf("invalid number of examples %d", n)
	}
	if k < 1 || k > MaxNumFolds {
		return errors.Errorf("invalid number of folds k=%d, it must be between 1 and %d", k, MaxNumFolds)
	}
	if math.IsNaN(testSplit) || testSplit < 0 || testSplit > 1 {
		return errors.Errorf("invalid testSplit=%g, it must be in the range [0, 1]", testSplit)
	}
	return nil
}

// Assign returns the label of each of the n examples: a fold in [0, k), or TestLabel for the test bucket.
//
// The label sequence is built with FoldSize(n, k, testSplit) copies of each fold, in fold order, followed
// by TestLabel for the remaining examples. Then it is shuffled with a MT19937 generator seeded with seed,
// exactly like `numpy.random.seed(seed); numpy.random.shuffle(labels)`.
func Assign(n, k int, testSplit float64, seed uint32) ([]int8, error) {
	if err := validate(n, k, testSplit); err != nil {
		return nil, err
	}
	foldSize := FoldSize(n, k, testSplit)
	labels := make([]int8, 0, n)
	for fold := range k {
		for range foldSize {
			labels = append(labels, int8(fold))
		}
	}
	for len(labels) < n {
		labels = append(labels, TestLabel)
	}
	Shuffle(seed, labels)
	return labels, nil
}

// Select returns the indices of the examples for validation (labels == i), test (labels == TestLabel)
// and training (everything else), each in increasing order.
func Select(labels []int8, i int) Indices {
	fold := int8(i)
	return Indices{
		Train:      xslices.IndicesWhere(labels, func(l int8) bool { return l != fold && l != TestLabel }),
		Validation: xslices.IndicesWhere(labels, func(l int8) bool { return l == fold }),
		Test:       xslices.IndicesWhere(labels, func(l int8) bool { return l == TestLabel }),
	}
}

// Data partitions the aligned examples x and y (indexed by their leading axis) using fold i of k for
// validation, and reserving approximately testSplit of the examples for test.
//
// It returns an error if 0 <= i < k doesn't hold, if testSplit is not in [0, 1] or if x and y
// don't have the same number of examples.
func Data(x, y *ndarray.Array, k, i int, testSplit float64, seed uint32) (split Split, err error) {
	if x == nil || y == nil {
		return split, errors.New("partition.Data requires non-nil x and y")
	}
	if x.Rank() == 0 || y.Rank() == 0 {
		return split, errors.Errorf("partition.Data requires x and y with a leading examples axis, got x=%s, y=%s", x, y)
	}
	n := x.Dim(0)
	if y.Dim(0) != n {
		return split, errors.Errorf("x and y must have the same number of examples, got x=%s, y=%s", x, y)
	}
	if err = validate(n, k, testSplit); err != nil {
		return split, err
	}
	if i < 0 || i >= k {
		return split, errors.Errorf("invalid validation fold i=%d, it must be in [0, k=%d)", i, k)
	}
	labels, err := Assign(n, k, testSplit, seed)
	if err != nil {
		return split, err
	}
	indices := Select(labels, i)
	if split.Train, err = gatherPair(x, y, indices.Train); err != nil {
		return split, errors.WithMessage(err, "gathering train set")
	}
	if split.Validation, err = gatherPair(x, y, indices.Validation); err != nil {
		return split, errors.WithMessage(err, "gathering validation set")
	}
	if split.Test, err = gatherPair(x, y, indices.Test); err != nil {
		return split, errors.WithMessage(err, "gathering test set")
	}
	return split, nil
}

func gatherPair(x, y *ndarray.Array, indices []int) (pair Pair, err error) {
	if pair.X, err = x.Gather(indices); err != nil {
		return
	}
	pair.Y, err = y.Gather(indices)
	return
}
