// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package vfp

import (
	"errors"

	"golang.org/x/exp/slices"

	"github.com/time-coin/timecoin/ids"
	"github.com/time-coin/timecoin/utils/wrappers"
)

var (
	ErrProofWeight   = errors.New("proof weight below threshold")
	ErrProofVoteSlot = errors.New("proof vote from a different slot")

	errProofTooLarge = errors.New("proof exceeds maximum size")
)

const maxProofSize = 1 << 20

// Proof certifies that a supermajority of the stake at [SlotIndex] signed
// finality for [TxID]. Independent of Avalanche's sampling outcome: this is
// the cryptographic certificate layered above the probabilistic one.
type Proof struct {
	TxID              ids.ID          `json:"txID"`
	SlotIndex         uint64          `json:"slotIndex"`
	AccumulatedWeight uint64          `json:"accumulatedWeight"`
	Votes             []*FinalityVote `json:"votes"`
}

func newProof(txID ids.ID, tv *txVotes) *Proof {
	proof := &Proof{
		TxID:              txID,
		SlotIndex:         tv.slotIndex,
		AccumulatedWeight: tv.weight,
		Votes:             make([]*FinalityVote, 0, len(tv.voters)),
	}
	for _, vote := range tv.voters {
		proof.Votes = append(proof.Votes, vote)
	}
	// Deterministic vote order so serialized proofs are comparable.
	slices.SortFunc(proof.Votes, func(a, b *FinalityVote) int {
		return a.Voter.Compare(b.Voter)
	})
	return proof
}

// Verify re-checks the proof against [snap], the AVS snapshot of its slot,
// and [threshold]. Any party holding the snapshot can run this without
// having observed the Avalanche rounds.
func (p *Proof) Verify(snap *Snapshot, threshold Threshold) error {
	seen := make(map[ids.NodeID]struct{}, len(p.Votes))
	weight := uint64(0)
	for _, vote := range p.Votes {
		if vote.SlotIndex != p.SlotIndex || vote.TxID != p.TxID {
			return ErrProofVoteSlot
		}
		if _, dup := seen[vote.Voter]; dup {
			return ErrDuplicateVoter
		}
		vdr, ok := snap.Get(vote.Voter)
		if !ok {
			return ErrVoterNotInAVS
		}
		if err := vote.VerifySignature(vdr.PublicKey); err != nil {
			return err
		}
		seen[vote.Voter] = struct{}{}
		weight += vdr.Weight
	}
	if weight < threshold.Required(snap.TotalWeight) {
		return ErrProofWeight
	}
	return nil
}

// Marshal returns the persistence encoding of the proof
func (p *Proof) Marshal() ([]byte, error) {
	packer := wrappers.Packer{MaxSize: maxProofSize}
	packer.PackFixedBytes(p.TxID.Bytes())
	packer.PackLong(p.SlotIndex)
	packer.PackLong(p.AccumulatedWeight)
	packer.PackInt(uint32(len(p.Votes)))
	for _, vote := range p.Votes {
		voteBytes, err := vote.Marshal()
		if err != nil {
			return nil, err
		}
		packer.PackBytes(voteBytes)
	}
	if packer.Err != nil {
		return nil, errProofTooLarge
	}
	return packer.Bytes, nil
}

// UnmarshalProof parses a persisted proof
func UnmarshalProof(bytes []byte) (*Proof, error) {
	packer := wrappers.Packer{Bytes: bytes, MaxSize: maxProofSize}
	p := &Proof{}
	p.TxID, _ = ids.ToID(packer.UnpackFixedBytes(ids.IDLen))
	p.SlotIndex = packer.UnpackLong()
	p.AccumulatedWeight = packer.UnpackLong()
	numVotes := packer.UnpackInt()
	for i := uint32(0); i < numVotes && packer.Err == nil; i++ {
		voteBytes := packer.UnpackLimitedBytes(maxVoteSize)
		if packer.Err != nil {
			break
		}
		vote, err := UnmarshalVote(voteBytes)
		if err != nil {
			return nil, err
		}
		p.Votes = append(p.Votes, vote)
	}
	if packer.Err != nil {
		return nil, packer.Err
	}
	return p, nil
}
