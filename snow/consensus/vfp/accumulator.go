// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package vfp

import (
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/time-coin/timecoin/ids"
	"github.com/time-coin/timecoin/utils/logging"
)

var (
	ErrWrongChain     = errors.New("finality vote for a different chain")
	ErrVoterNotInAVS  = errors.New("voter absent from slot snapshot")
	ErrWeightMismatch = errors.New("claimed weight differs from snapshot")
	ErrDuplicateVoter = errors.New("voter already recorded for this tx")

	_ Accumulator = (*accumulator)(nil)
)

// ProofSink receives finished proofs
type ProofSink interface {
	ProofReady(proof *Proof)
}

// Accumulator aggregates stake-weighted finality votes into verifiable
// proofs. A vote is weighed against the AVS snapshot of its slot; votes from
// voters outside that snapshot, or for evicted slots, are rejected. The
// threshold rule is decided here so that a proof, together with the snapshot,
// lets any third party verify finality without replaying Avalanche sampling.
type Accumulator interface {
	// Add records [vote]. Returns the accumulated weight for the vote's
	// (txid, slot) after the add; duplicate voters are idempotent errors.
	Add(vote *FinalityVote) (uint64, error)

	// Proof returns the finished proof for [txID], if the threshold has been
	// reached.
	Proof(txID ids.ID) (*Proof, bool)
}

// Threshold is the fraction of total stake that certifies finality
type Threshold struct {
	Numerator   uint64
	Denominator uint64
}

func DefaultThreshold() Threshold {
	return Threshold{Numerator: 2, Denominator: 3}
}

// Required returns the minimum accumulated weight: ceil(total * num / den)
func (t Threshold) Required(totalWeight uint64) uint64 {
	return (totalWeight*t.Numerator + t.Denominator - 1) / t.Denominator
}

type txVotes struct {
	slotIndex uint64
	voters    map[ids.NodeID]*FinalityVote
	weight    uint64
}

type accumulator struct {
	chainID   uint32
	threshold Threshold
	snapshots *Snapshots
	sink      ProofSink
	log       logging.Logger

	lock   sync.Mutex
	votes  map[ids.ID]*txVotes
	proofs map[ids.ID]*Proof
}

func NewAccumulator(
	chainID uint32,
	threshold Threshold,
	snapshots *Snapshots,
	sink ProofSink,
	log logging.Logger,
) Accumulator {
	return &accumulator{
		chainID:   chainID,
		threshold: threshold,
		snapshots: snapshots,
		sink:      sink,
		log:       log,
		votes:     make(map[ids.ID]*txVotes),
		proofs:    make(map[ids.ID]*Proof),
	}
}

func (a *accumulator) Add(vote *FinalityVote) (uint64, error) {
	if vote.ChainID != a.chainID {
		return 0, ErrWrongChain
	}
	snap, err := a.snapshots.Get(vote.SlotIndex)
	if err != nil {
		return 0, err
	}
	vdr, ok := snap.Get(vote.Voter)
	if !ok {
		return 0, ErrVoterNotInAVS
	}
	if vdr.Weight != vote.VoterWeight {
		return 0, ErrWeightMismatch
	}
	if err := vote.VerifySignature(vdr.PublicKey); err != nil {
		return 0, err
	}

	a.lock.Lock()
	defer a.lock.Unlock()

	tv, ok := a.votes[vote.TxID]
	if !ok {
		tv = &txVotes{
			slotIndex: vote.SlotIndex,
			voters:    make(map[ids.NodeID]*FinalityVote),
		}
		a.votes[vote.TxID] = tv
	}
	if _, ok := tv.voters[vote.Voter]; ok {
		return tv.weight, ErrDuplicateVoter
	}
	tv.voters[vote.Voter] = vote
	tv.weight += vdr.Weight

	if _, done := a.proofs[vote.TxID]; !done && tv.weight >= a.threshold.Required(snap.TotalWeight) {
		proof := newProof(vote.TxID, tv)
		a.proofs[vote.TxID] = proof
		delete(a.votes, vote.TxID)
		a.log.Debug("finality proof emitted",
			zap.Stringer("txID", vote.TxID),
			zap.Uint64("weight", proof.AccumulatedWeight),
		)
		if a.sink != nil {
			// Deliver off the accumulator lock.
			go a.sink.ProofReady(proof)
		}
	}
	return tv.weight, nil
}

func (a *accumulator) Proof(txID ids.ID) (*Proof, bool) {
	a.lock.Lock()
	defer a.lock.Unlock()

	proof, ok := a.proofs[txID]
	return proof, ok
}
