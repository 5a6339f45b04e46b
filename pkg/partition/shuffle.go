// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package partition

import "gonum.org/v1/gonum/mathext/prng"

// shuffler draws from a MT19937 generator the same way NumPy's legacy global generator does, so
// that `numpy.random.seed(seed); numpy.random.shuffle(x)` and Shuffle(seed, x) produce the same permutation.
type shuffler struct {
	source *prng.MT19937
}

func newShuffler(seed uint32) *shuffler {
	source := prng.NewMT19937()
	source.Seed(uint64(seed))
	return &shuffler{source: source}
}

// interval returns a uniformly distributed value in [0, max], by masked rejection sampling.
func (s *shuffler) interval(max uint64) uint64 {
	if max == 0 {
		return 0
	}
	mask := max
	mask |= mask >> 1
	mask |= mask >> 2
	mask |= mask >> 4
	mask |= mask >> 8
	mask |= mask >> 16
	mask |= mask >> 32
	if max <= 0xffffffff {
		for {
			value := uint64(s.source.Uint32()) & mask
			if value <= max {
				return value
			}
		}
	}
	for {
		value := s.source.Uint64() & mask
		if value <= max {
			return value
		}
	}
}

// Shuffle values in place, with a Fisher-Yates shuffle seeded with seed.
func Shuffle[T any](seed uint32, values []T) {
	s := newShuffler(seed)
	for i := len(values) - 1; i >= 1; i-- {
		j := int(s.interval(uint64(i)))
		values[i], values[j] = values[j], values[i]
	}
}
