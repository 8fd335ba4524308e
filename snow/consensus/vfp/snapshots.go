// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package vfp

import (
	"crypto/ed25519"
	"errors"
	"sync"

	"github.com/time-coin/timecoin/ids"
	"github.com/time-coin/timecoin/snow/validators"
	"github.com/time-coin/timecoin/utils/constants"
)

var ErrSnapshotEvicted = errors.New("avs snapshot evicted or never taken")

// SnapshotValidator is one entry of a frozen validator set
type SnapshotValidator struct {
	NodeID    ids.NodeID
	PublicKey ed25519.PublicKey
	Weight    uint64
}

// Snapshot freezes the active validator set of one slot. It is the single
// source of truth for vote weighting at that slot.
type Snapshot struct {
	SlotIndex   uint64
	Validators  []SnapshotValidator
	TotalWeight uint64

	byID map[ids.NodeID]*SnapshotValidator
}

// Get returns the snapshot entry for [nodeID]
func (s *Snapshot) Get(nodeID ids.NodeID) (*SnapshotValidator, bool) {
	vdr, ok := s.byID[nodeID]
	return vdr, ok
}

// Snapshots retains the most recent snapshot window keyed by slot index
type Snapshots struct {
	lock    sync.RWMutex
	bySlot  map[uint64]*Snapshot
	newest  uint64
	hasData bool
}

func NewSnapshots() *Snapshots {
	return &Snapshots{
		bySlot: make(map[uint64]*Snapshot),
	}
}

// Take freezes [vdrs] as the snapshot of [slotIndex] and evicts snapshots
// older than the retention window. Taking the same slot twice is idempotent.
func (s *Snapshots) Take(slotIndex uint64, vdrs validators.Set) *Snapshot {
	s.lock.Lock()
	defer s.lock.Unlock()

	if snap, ok := s.bySlot[slotIndex]; ok {
		return snap
	}

	listed := vdrs.List()
	snap := &Snapshot{
		SlotIndex:  slotIndex,
		Validators: make([]SnapshotValidator, len(listed)),
		byID:       make(map[ids.NodeID]*SnapshotValidator, len(listed)),
	}
	for i, vdr := range listed {
		snap.Validators[i] = SnapshotValidator{
			NodeID:    vdr.NodeID,
			PublicKey: vdr.PublicKey,
			Weight:    vdr.Weight,
		}
		snap.TotalWeight += vdr.Weight
	}
	for i := range snap.Validators {
		snap.byID[snap.Validators[i].NodeID] = &snap.Validators[i]
	}
	s.bySlot[slotIndex] = snap

	if !s.hasData || slotIndex > s.newest {
		s.newest = slotIndex
		s.hasData = true
	}
	for slot := range s.bySlot {
		if slot+constants.SnapshotWindow <= s.newest {
			delete(s.bySlot, slot)
		}
	}
	return snap
}

// Get returns the snapshot for [slotIndex], or ErrSnapshotEvicted if it fell
// out of the window or was never taken.
func (s *Snapshots) Get(slotIndex uint64) (*Snapshot, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	snap, ok := s.bySlot[slotIndex]
	if !ok {
		return nil, ErrSnapshotEvicted
	}
	return snap, nil
}

// Len returns how many snapshots are retained
func (s *Snapshots) Len() int {
	s.lock.RLock()
	defer s.lock.RUnlock()

	return len(s.bySlot)
}
