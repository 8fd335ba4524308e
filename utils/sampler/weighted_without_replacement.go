// Copyright (C) 2019-2023, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package sampler

import (
	"errors"
	"math/rand"
	"sync"

	safemath "github.com/time-coin/timecoin/utils/math"
)

var (
	ErrOutOfRange = errors.New("out of range")

	_ WeightedWithoutReplacement = (*weightedWithoutReplacement)(nil)
)

// WeightedWithoutReplacement samples a set of indices proportionally to their
// weights, without returning the same index twice. Used to pick the
// validators queried in an Avalanche poll.
type WeightedWithoutReplacement interface {
	Initialize(weights []uint64) error
	// Sample returns up to [count] distinct indices. If fewer indices exist
	// than requested, all of them are returned.
	Sample(count int) ([]int, error)
}

// NewWeightedWithoutReplacement returns a sampler seeded from [source]; a nil
// source falls back to the global generator.
func NewWeightedWithoutReplacement(source rand.Source) WeightedWithoutReplacement {
	if source == nil {
		return &weightedWithoutReplacement{rng: rand.New(rand.NewSource(rand.Int63()))}
	}
	return &weightedWithoutReplacement{rng: rand.New(source)}
}

type weightedWithoutReplacement struct {
	lock sync.Mutex
	rng  *rand.Rand

	weights     []uint64
	totalWeight uint64
}

func (s *weightedWithoutReplacement) Initialize(weights []uint64) error {
	total := uint64(0)
	for _, weight := range weights {
		newTotal, err := safemath.Add64(total, weight)
		if err != nil {
			return err
		}
		total = newTotal
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	s.weights = make([]uint64, len(weights))
	copy(s.weights, weights)
	s.totalWeight = total
	return nil
}

func (s *weightedWithoutReplacement) Sample(count int) ([]int, error) {
	if count < 0 {
		return nil, ErrOutOfRange
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	// Work on copies so the sampler can be reused across rounds.
	weights := make([]uint64, len(s.weights))
	copy(weights, s.weights)
	remaining := s.totalWeight

	if count > len(weights) {
		count = len(weights)
	}

	indices := make([]int, 0, count)
	drawn := make(map[int]struct{}, count)
	for len(indices) < count && remaining > 0 {
		r := s.rng.Uint64() % remaining
		cumulative := uint64(0)
		for i, weight := range weights {
			if _, ok := drawn[i]; ok {
				continue
			}
			cumulative += weight
			if r < cumulative {
				indices = append(indices, i)
				drawn[i] = struct{}{}
				remaining -= weight
				break
			}
		}
	}
	return indices, nil
}
