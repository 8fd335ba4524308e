// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package tsdc

import (
	"crypto/ed25519"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/time-coin/timecoin/blocks"
	"github.com/time-coin/timecoin/ids"
	"github.com/time-coin/timecoin/snow/consensus/vfp"
	"github.com/time-coin/timecoin/utils/logging"
	"github.com/time-coin/timecoin/utils/set"
	"github.com/time-coin/timecoin/vrf"
)

// State of one proposal in the voting machine
type State byte

const (
	StateSeen State = iota
	StatePrepared
	StatePrecommitted
	StateFinalized
	StateRejected
)

func (s State) String() string {
	switch s {
	case StateSeen:
		return "seen"
	case StatePrepared:
		return "prepared"
	case StatePrecommitted:
		return "precommitted"
	case StateFinalized:
		return "finalized"
	case StateRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

var (
	ErrNotLeaderForSlot  = errors.New("proposer lost the slot lottery")
	ErrBadTimestamp      = errors.New("proposal timestamp outside slot window")
	ErrWrongParent       = errors.New("proposal does not extend the current tip")
	ErrBadVRF            = errors.New("leader vrf proof invalid")
	ErrUnknownProposer   = errors.New("proposer absent from slot snapshot")
	ErrStaleSlot         = errors.New("proposal for an expired slot")
	ErrDuplicateProposal = errors.New("proposal already tracked")
)

// TipSource exposes the committed chain head
type TipSource interface {
	Tip() (height uint64, hash ids.ID)
}

// BlockTxVerifier runs the full admission pipeline over a proposal's body,
// including the coinbase amount check. Implemented by the node against the
// mempool and ledger.
type BlockTxVerifier interface {
	VerifyBlockTxs(blk *blocks.Block) error
}

// Committer finalizes a block: append to the chain store, archive its
// spent outpoints, distribute rewards, advance the tip.
type Committer interface {
	Commit(blk *blocks.Block) error
}

// VoteBroadcaster ships this node's votes to every peer
type VoteBroadcaster interface {
	BroadcastBlockVote(vote *BlockVote)
}

type proposal struct {
	blk   *blocks.Block
	state State

	// First vote per voter wins; duplicates are idempotent.
	prepareVoters   set.Set[ids.NodeID]
	precommitVoters set.Set[ids.NodeID]
	prepareWeight   uint64
	precommitWeight uint64
}

// Voter runs the prepare/precommit state machine for every proposal of the
// current slot. Majorities are strict stake majorities (weight*2 > total),
// per the Avalanche-style rule that replaces the classical 2/3 bound.
type Voter struct {
	chainID   uint32
	nodeID    ids.NodeID
	signKey   ed25519.PrivateKey
	clock     *SlotClock
	snapshots *vfp.Snapshots
	tips      TipSource
	verifier  BlockTxVerifier
	committer Committer
	sender    VoteBroadcaster
	log       logging.Logger
	metrics   *Metrics

	lock sync.Mutex
	// proposal cache, one slot of retention
	proposals map[ids.ID]*proposal
	// best candidate per slot by VRF score
	bestBySlot map[uint64]ids.ID
}

func NewVoter(
	chainID uint32,
	nodeID ids.NodeID,
	signKey ed25519.PrivateKey,
	clock *SlotClock,
	snapshots *vfp.Snapshots,
	tips TipSource,
	verifier BlockTxVerifier,
	committer Committer,
	sender VoteBroadcaster,
	log logging.Logger,
	metrics *Metrics,
) *Voter {
	return &Voter{
		chainID:    chainID,
		nodeID:     nodeID,
		signKey:    signKey,
		clock:      clock,
		snapshots:  snapshots,
		tips:       tips,
		verifier:   verifier,
		committer:  committer,
		sender:     sender,
		log:        log,
		metrics:    metrics,
		proposals:  make(map[ids.ID]*proposal),
		bestBySlot: make(map[uint64]ids.ID),
	}
}

// State returns the voting state of [blockHash]
func (v *Voter) State(blockHash ids.ID) (State, bool) {
	v.lock.Lock()
	defer v.lock.Unlock()

	prop, ok := v.proposals[blockHash]
	if !ok {
		return 0, false
	}
	return prop.state, true
}

// HandleProposal ingests a BlockProposal. On success the proposal is Seen,
// validated, Prepared, and this node's PrepareVote is broadcast. A proposal
// that loses the VRF comparison against an already-tracked candidate for the
// same slot is dropped with ErrNotLeaderForSlot.
func (v *Voter) HandleProposal(blk *blocks.Block) error {
	header := blk.Header
	slot := header.SlotIndex

	// Guards: slot window, parent linkage, leader lottery, header form.
	if !v.clock.InWindow(slot, header.Timestamp) || !v.clock.InWindow(slot, v.clock.Now()) {
		return ErrBadTimestamp
	}
	tipHeight, tipHash := v.tips.Tip()
	if header.PrevHash != tipHash || header.Height != tipHeight+1 {
		return ErrWrongParent
	}
	snap, err := v.snapshots.Get(slot)
	if err != nil {
		return err
	}
	proposer, ok := snap.Get(header.Leader)
	if !ok {
		return ErrUnknownProposer
	}
	if err := blk.VerifySignature(proposer.PublicKey); err != nil {
		return err
	}
	// The VRF key is the proposer's Ed25519 key per the shared-secret scheme.
	input := vrf.LeaderInput(header.PrevHash, slot)
	if err := vrf.Verify(proposer.PublicKey, input, header.VRFOutput, header.VRFProof); err != nil {
		return ErrBadVRF
	}

	blockHash := blk.ID()
	v.lock.Lock()
	if _, ok := v.proposals[blockHash]; ok {
		v.lock.Unlock()
		return ErrDuplicateProposal
	}
	if bestHash, ok := v.bestBySlot[slot]; ok {
		best := v.proposals[bestHash]
		if vrf.CompareCandidates(
			header.VRFOutput, header.Leader,
			best.blk.Header.VRFOutput, best.blk.Header.Leader,
		) <= 0 {
			v.lock.Unlock()
			return ErrNotLeaderForSlot
		}
		// The newcomer wins the lottery: stop supporting the old candidate.
		if best.state < StatePrecommitted {
			best.state = StateRejected
		}
	}
	prop := &proposal{
		blk:   blk,
		state: StateSeen,
	}
	v.proposals[blockHash] = prop
	v.bestBySlot[slot] = blockHash
	v.lock.Unlock()

	// Local validation of the body runs outside the voter lock; it hits the
	// ledger and verifies signatures.
	if err := v.verifier.VerifyBlockTxs(blk); err != nil {
		v.lock.Lock()
		prop.state = StateRejected
		v.lock.Unlock()
		return err
	}

	v.lock.Lock()
	if prop.state != StateSeen {
		v.lock.Unlock()
		return nil
	}
	prop.state = StatePrepared
	v.lock.Unlock()

	v.log.Debug("proposal prepared",
		zap.Stringer("blockHash", blockHash),
		zap.Uint64("slot", slot),
		zap.Stringer("leader", header.Leader),
	)
	v.castVote(PhasePrepare, blockHash, slot)
	return nil
}

// castVote signs, broadcasts and self-applies a vote
func (v *Voter) castVote(phase Phase, blockHash ids.ID, slot uint64) {
	vote := &BlockVote{
		ChainID:   v.chainID,
		Phase:     phase,
		BlockHash: blockHash,
		SlotIndex: slot,
		Voter:     v.nodeID,
	}
	vote.Sign(v.signKey)
	v.sender.BroadcastBlockVote(vote)
	// Our own vote counts like any other.
	if err := v.HandleVote(vote); err != nil {
		v.log.Debug("self vote not recorded",
			zap.Stringer("blockHash", blockHash),
			zap.Error(err),
		)
	}
}

// HandleVote accumulates a prepare or precommit vote. Votes verify against
// the AVS snapshot of the block's slot; duplicates are idempotent.
func (v *Voter) HandleVote(vote *BlockVote) error {
	if vote.ChainID != v.chainID {
		return vfp.ErrWrongChain
	}
	snap, err := v.snapshots.Get(vote.SlotIndex)
	if err != nil {
		return err
	}
	voter, ok := snap.Get(vote.Voter)
	if !ok {
		return vfp.ErrVoterNotInAVS
	}
	if err := vote.VerifySignature(voter.PublicKey); err != nil {
		return err
	}

	v.lock.Lock()
	prop, ok := v.proposals[vote.BlockHash]
	if !ok || prop.state == StateRejected || prop.state == StateFinalized {
		v.lock.Unlock()
		return nil
	}

	switch vote.Phase {
	case PhasePrepare:
		if prop.prepareVoters.Contains(vote.Voter) {
			v.lock.Unlock()
			return nil
		}
		prop.prepareVoters.Add(vote.Voter)
		prop.prepareWeight += voter.Weight
	case PhasePrecommit:
		if prop.precommitVoters.Contains(vote.Voter) {
			v.lock.Unlock()
			return nil
		}
		prop.precommitVoters.Add(vote.Voter)
		prop.precommitWeight += voter.Weight
	}

	var (
		enterPrecommit bool
		enterFinalized bool
		blk            *blocks.Block
		slot           = vote.SlotIndex
	)
	if prop.state == StatePrepared && prop.prepareWeight*2 > snap.TotalWeight {
		prop.state = StatePrecommitted
		enterPrecommit = true
	}
	if prop.state == StatePrecommitted && prop.precommitWeight*2 > snap.TotalWeight {
		prop.state = StateFinalized
		enterFinalized = true
		blk = prop.blk
	}
	v.lock.Unlock()

	if enterPrecommit {
		if v.metrics != nil {
			v.metrics.Precommits.Inc()
		}
		// Casting our precommit re-enters HandleVote and may finalize.
		v.castVote(PhasePrecommit, vote.BlockHash, slot)
	}
	if enterFinalized {
		if v.metrics != nil {
			v.metrics.Commits.Inc()
		}
		v.log.Info("block finalized",
			zap.Stringer("blockHash", vote.BlockHash),
			zap.Uint64("height", blk.Header.Height),
		)
		if err := v.committer.Commit(blk); err != nil {
			v.log.Error("block commit failed",
				zap.Stringer("blockHash", vote.BlockHash),
				zap.Error(err),
			)
			return err
		}
		v.clearSlot(slot)
	}
	return nil
}

// OnSlotExpired drops every proposal of [slot] that did not finalize. The
// next leader builds atop the unchanged tip with the slot index advanced.
func (v *Voter) OnSlotExpired(slot uint64) {
	v.lock.Lock()
	defer v.lock.Unlock()

	for hash, prop := range v.proposals {
		if prop.blk.Header.SlotIndex == slot && prop.state != StateFinalized {
			prop.state = StateRejected
			delete(v.proposals, hash)
		}
	}
	delete(v.bestBySlot, slot)
}

// clearSlot prunes the proposal cache after a commit
func (v *Voter) clearSlot(slot uint64) {
	v.lock.Lock()
	defer v.lock.Unlock()

	for hash, prop := range v.proposals {
		if prop.blk.Header.SlotIndex == slot {
			delete(v.proposals, hash)
		}
	}
	delete(v.bestBySlot, slot)
}
