// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package validators

import (
	"crypto/ed25519"
	"errors"
	"sync"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/time-coin/timecoin/ids"
	safemath "github.com/time-coin/timecoin/utils/math"
	"github.com/time-coin/timecoin/utils/sampler"
)

var (
	ErrZeroWeight      = errors.New("validator weight must be positive")
	ErrDuplicateID     = errors.New("duplicate validator")
	ErrMissingID       = errors.New("validator not in set")
	errInsufficientSet = errors.New("not enough validators to sample")

	_ Set = (*set)(nil)
)

// Validator is one staked masternode
type Validator struct {
	NodeID    ids.NodeID
	PublicKey ed25519.PublicKey
	Weight    uint64
}

// Set holds the validators eligible to vote, with their stake weights. A Set
// is mutated as masternodes join and leave; per-slot immutable snapshots are
// taken by the VFP layer.
type Set interface {
	// Add a validator. Fails on duplicates and zero weight.
	Add(nodeID ids.NodeID, publicKey ed25519.PublicKey, weight uint64) error

	// Get returns the validator and whether it is present
	Get(nodeID ids.NodeID) (*Validator, bool)

	Contains(nodeID ids.NodeID) bool

	// Remove drops a validator from the set
	Remove(nodeID ids.NodeID) error

	// Len returns the number of validators
	Len() int

	// TotalWeight returns the summed stake of the set
	TotalWeight() uint64

	// List returns the validators ordered by NodeID. The ordering is
	// consensus critical: AVS snapshots and VRF tie-breaks iterate it.
	List() []*Validator

	// Sample returns up to [size] distinct validators, weighted by stake
	Sample(size int) ([]*Validator, error)
}

func NewSet() Set {
	return &set{
		vdrs: make(map[ids.NodeID]*Validator),
	}
}

type set struct {
	lock        sync.RWMutex
	vdrs        map[ids.NodeID]*Validator
	totalWeight uint64
}

func (s *set) Add(nodeID ids.NodeID, publicKey ed25519.PublicKey, weight uint64) error {
	if weight == 0 {
		return ErrZeroWeight
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	if _, ok := s.vdrs[nodeID]; ok {
		return ErrDuplicateID
	}
	newTotal, err := safemath.Add64(s.totalWeight, weight)
	if err != nil {
		return err
	}
	s.vdrs[nodeID] = &Validator{
		NodeID:    nodeID,
		PublicKey: publicKey,
		Weight:    weight,
	}
	s.totalWeight = newTotal
	return nil
}

func (s *set) Get(nodeID ids.NodeID) (*Validator, bool) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	vdr, ok := s.vdrs[nodeID]
	if !ok {
		return nil, false
	}
	cp := *vdr
	return &cp, true
}

func (s *set) Contains(nodeID ids.NodeID) bool {
	s.lock.RLock()
	defer s.lock.RUnlock()

	_, ok := s.vdrs[nodeID]
	return ok
}

func (s *set) Remove(nodeID ids.NodeID) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	vdr, ok := s.vdrs[nodeID]
	if !ok {
		return ErrMissingID
	}
	delete(s.vdrs, nodeID)
	s.totalWeight -= vdr.Weight
	return nil
}

func (s *set) Len() int {
	s.lock.RLock()
	defer s.lock.RUnlock()

	return len(s.vdrs)
}

func (s *set) TotalWeight() uint64 {
	s.lock.RLock()
	defer s.lock.RUnlock()

	return s.totalWeight
}

func (s *set) List() []*Validator {
	s.lock.RLock()
	defer s.lock.RUnlock()

	return s.listLocked()
}

func (s *set) listLocked() []*Validator {
	vdrs := maps.Values(s.vdrs)
	slices.SortFunc(vdrs, func(a, b *Validator) int {
		return a.NodeID.Compare(b.NodeID)
	})
	out := make([]*Validator, len(vdrs))
	for i, vdr := range vdrs {
		cp := *vdr
		out[i] = &cp
	}
	return out
}

func (s *set) Sample(size int) ([]*Validator, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	if size <= 0 {
		return nil, errInsufficientSet
	}
	vdrs := s.listLocked()
	weights := make([]uint64, len(vdrs))
	for i, vdr := range vdrs {
		weights[i] = vdr.Weight
	}
	smplr := sampler.NewWeightedWithoutReplacement(nil)
	if err := smplr.Initialize(weights); err != nil {
		return nil, err
	}
	indices, err := smplr.Sample(size)
	if err != nil {
		return nil, err
	}
	sampled := make([]*Validator, len(indices))
	for i, idx := range indices {
		sampled[i] = vdrs[idx]
	}
	return sampled, nil
}
