// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package node

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/time-coin/timecoin/blocks"
	"github.com/time-coin/timecoin/chainstore"
	"github.com/time-coin/timecoin/ids"
	"github.com/time-coin/timecoin/message"
	"github.com/time-coin/timecoin/network"
	"github.com/time-coin/timecoin/snow/consensus/avalanche"
	"github.com/time-coin/timecoin/snow/consensus/snowball"
	"github.com/time-coin/timecoin/snow/consensus/tsdc"
	"github.com/time-coin/timecoin/snow/consensus/vfp"
	"github.com/time-coin/timecoin/snow/validators"
	"github.com/time-coin/timecoin/txs"
	"github.com/time-coin/timecoin/utils/hashing"
	"github.com/time-coin/timecoin/utils/wrappers"
	"github.com/time-coin/timecoin/utxoledger"
)

var (
	_ network.Handler      = (*Node)(nil)
	_ avalanche.Events     = (*Node)(nil)
	_ vfp.ProofSink        = (*Node)(nil)
	_ tsdc.BlockTxVerifier = (*Node)(nil)
	_ tsdc.Committer       = (*Node)(nil)

	errBadCoinbaseValue = errors.New("coinbase value does not conserve fees")
	errWrongBlockReward = errors.New("header block reward mismatch")
)

// HandleInbound dispatches one authenticated message. It runs on the peer's
// read goroutine; crypto-heavy paths are pushed onto the worker pool.
func (n *Node) HandleInbound(peer *network.Peer, msg *message.Message) {
	switch msg.Op {
	case message.TxVoteResponseOp, message.TipOp, message.BlockOp:
		n.Net.DeliverResponse(msg)

	case message.TxBroadcastOp:
		payload := msg.Payload
		n.workers.Send(func() {
			n.handleTxBroadcast(peer, payload)
		})

	case message.TxVoteRequestOp:
		req, err := message.UnmarshalVoteRequest(msg.Payload)
		if err != nil {
			n.Registry.Punish(peer.NodeID, validators.PenaltyMalformed)
			return
		}
		resp := &message.VoteResponse{
			TxID:   req.TxID,
			Accept: n.Engine.Preference(req.TxID) == snowball.Accept,
		}
		respBytes, err := resp.Marshal()
		if err != nil {
			return
		}
		peer.Send(&message.Message{
			Op:        message.TxVoteResponseOp,
			RequestID: msg.RequestID,
			Payload:   respBytes,
		})

	case message.FinalityVoteOp:
		payload := msg.Payload
		n.workers.Send(func() {
			n.handleFinalityVote(peer, payload)
		})

	case message.BlockProposalOp:
		payload := msg.Payload
		n.workers.Send(func() {
			n.handleBlockProposal(peer, payload)
		})

	case message.PrepareVoteOp, message.PrecommitVoteOp:
		payload := msg.Payload
		op := msg.Op
		n.workers.Send(func() {
			n.handleBlockVote(peer, op, payload)
		})

	case message.GetTipOp:
		height, tipHash := n.Chain.Tip()
		tip := &message.Tip{
			Height:      height,
			TipHash:     tipHash,
			GenesisHash: n.Chain.GenesisHash(),
		}
		tipBytes, err := tip.Marshal()
		if err != nil {
			return
		}
		peer.Send(&message.Message{
			Op:        message.TipOp,
			RequestID: msg.RequestID,
			Payload:   tipBytes,
		})

	case message.GetBlockOp:
		req, err := message.UnmarshalGetBlock(msg.Payload)
		if err != nil {
			n.Registry.Punish(peer.NodeID, validators.PenaltyMalformed)
			return
		}
		blk, err := n.Chain.GetBlockAtHeight(req.Height)
		if err != nil {
			return
		}
		peer.Send(&message.Message{
			Op:        message.BlockOp,
			RequestID: msg.RequestID,
			Payload:   blk.Bytes(),
		})

	default:
		n.Registry.Punish(peer.NodeID, validators.PenaltyMalformed)
	}
}

func (n *Node) handleTxBroadcast(peer *network.Peer, payload []byte) {
	tx, err := txs.Parse(payload)
	if err != nil {
		n.Registry.Punish(peer.NodeID, validators.PenaltyMalformed)
		return
	}
	if err := n.SubmitTransaction(tx); err != nil {
		// Caller errors on gossiped transactions are normal churn.
		n.Log.Debug("gossiped tx not admitted",
			zap.Stringer("txID", tx.ID()),
			zap.Error(err),
		)
	}
}

// SubmitTransaction runs the admission pipeline and, on success, starts the
// Avalanche loop and gossips the transaction.
func (n *Node) SubmitTransaction(tx *txs.Tx) error {
	if err := n.Mempool.Add(tx); err != nil {
		return err
	}
	if err := n.Engine.Issue(context.Background(), tx.ID()); err != nil &&
		!errors.Is(err, avalanche.ErrAlreadyIssued) {
		return err
	}
	n.Net.BroadcastTransaction(tx)
	return nil
}

func (n *Node) handleFinalityVote(peer *network.Peer, payload []byte) {
	vote, err := vfp.UnmarshalVote(payload)
	if err != nil {
		n.Registry.Punish(peer.NodeID, validators.PenaltyMalformed)
		return
	}
	if _, err := n.Accumulator.Add(vote); err != nil {
		if errors.Is(err, vfp.ErrInvalidVoteSig) {
			n.Registry.Punish(peer.NodeID, validators.PenaltyInvalidSignature)
		}
	}
}

func (n *Node) handleBlockProposal(peer *network.Peer, payload []byte) {
	blk, err := blocks.Parse(payload)
	if err != nil {
		n.Registry.Punish(peer.NodeID, validators.PenaltyMalformed)
		return
	}
	if err := n.Voter.HandleProposal(blk); err != nil {
		switch {
		case errors.Is(err, tsdc.ErrBadVRF), errors.Is(err, blocks.ErrInvalidBlockSig):
			n.Registry.Punish(peer.NodeID, validators.PenaltyInvalidSignature)
		case errors.Is(err, tsdc.ErrWrongParent):
			// Possibly a competing chain; evaluate it as a fork.
			n.considerFork(blk)
		}
	}
}

func (n *Node) handleBlockVote(peer *network.Peer, op message.Op, payload []byte) {
	vote, err := tsdc.UnmarshalBlockVote(payload)
	if err != nil {
		n.Registry.Punish(peer.NodeID, validators.PenaltyMalformed)
		return
	}
	expectedPhase := tsdc.PhasePrepare
	if op == message.PrecommitVoteOp {
		expectedPhase = tsdc.PhasePrecommit
	}
	if vote.Phase != expectedPhase {
		n.Registry.Punish(peer.NodeID, validators.PenaltyConflictingVotes)
		return
	}
	if err := n.Voter.HandleVote(vote); err != nil {
		if errors.Is(err, tsdc.ErrInvalidBlockVoteSig) {
			n.Registry.Punish(peer.NodeID, validators.PenaltyInvalidSignature)
		}
	}
}

// TxAccepted implements avalanche.Events: broadcast our finality vote so the
// VFP layer can assemble a proof.
func (n *Node) TxAccepted(txID ids.ID) {
	entry, ok := n.Mempool.Get(txID)
	if !ok {
		return
	}
	slot := n.SlotClock.CurrentSlot()
	self, err := n.Snapshots.Get(slot)
	if err != nil {
		return
	}
	vdr, ok := self.Get(n.ID)
	if !ok {
		return
	}
	commitment := ids.ID(hashing.ComputeHash256(entry.Tx.Bytes()))
	vote := &vfp.FinalityVote{
		ChainID:      n.cfg.ChainID,
		TxID:         txID,
		TxCommitment: commitment,
		SlotIndex:    slot,
		Voter:        n.ID,
		VoterWeight:  vdr.Weight,
	}
	vote.Sign(n.signKey)
	if _, err := n.Accumulator.Add(vote); err != nil && !errors.Is(err, vfp.ErrDuplicateVoter) {
		n.Log.Debug("own finality vote rejected", zap.Error(err))
	}
	n.Net.BroadcastFinalityVote(vote)
}

// TxRejected implements avalanche.Events
func (n *Node) TxRejected(txID ids.ID) {
	n.Log.Debug("transaction rejected by consensus", zap.Stringer("txID", txID))
}

// ProofReady implements vfp.ProofSink: persist the finality proof so RPC
// clients can serve it alongside the tip.
func (n *Node) ProofReady(proof *vfp.Proof) {
	bytes, err := proof.Marshal()
	if err != nil {
		n.Log.Error("proof marshal failed", zap.Error(err))
		return
	}
	if err := n.finalityDB.Put(proof.TxID.Bytes(), bytes); err != nil {
		n.Log.Error("proof persist failed",
			zap.Stringer("txID", proof.TxID),
			zap.Error(err),
		)
	}
}

// VerifyBlockTxs implements tsdc.BlockTxVerifier: the full §4.2 admission
// pipeline over the proposal body plus the coinbase conservation rule.
func (n *Node) VerifyBlockTxs(blk *blocks.Block) error {
	if err := blk.VerifyStructure(); err != nil {
		return err
	}
	if blk.Header.BlockReward != tsdc.Subsidy(blk.Header.Height) {
		return errWrongBlockReward
	}

	fees := uint64(0)
	for _, tx := range blk.NonCoinbaseTxs() {
		if err := tx.SyntacticVerify(); err != nil {
			return err
		}
		inputValue := uint64(0)
		for i, in := range tx.Inputs {
			utxo, err := n.Ledger.Get(in.UTXOID)
			if err != nil {
				return fmt.Errorf("tx %s input %d: %w", tx.ID(), i, err)
			}
			switch utxo.State {
			case utxoledger.Unspent:
			case utxoledger.Locked:
				if utxo.SpenderTxID != tx.ID() {
					return fmt.Errorf("tx %s input %d: %w", tx.ID(), i, utxoledger.ErrAlreadyLocked)
				}
			default:
				return fmt.Errorf("tx %s input %d: %w", tx.ID(), i, utxoledger.ErrNotUnspent)
			}
			if err := txs.VerifyInputSignature(tx, uint32(i), utxo.Value, utxo.PubKey); err != nil {
				return err
			}
			inputValue += utxo.Value
		}
		fee, err := tx.Fee(inputValue)
		if err != nil {
			return err
		}
		fees += fee
	}

	coinbaseValue, err := blk.Coinbase().SumOutputs()
	if err != nil {
		return err
	}
	if coinbaseValue != blk.Header.BlockReward+fees {
		return errBadCoinbaseValue
	}
	return nil
}

// Commit implements tsdc.Committer: the block reached its precommit
// threshold. Spend and archive its inputs, create its outputs, append it to
// the chain and prune the finalized pool.
func (n *Node) Commit(blk *blocks.Block) error {
	spends := make(map[ids.ID][]txs.UTXOID, len(blk.Txs)-1)
	for _, tx := range blk.NonCoinbaseTxs() {
		inputs := tx.InputUTXOIDs()
		for _, utxoID := range inputs {
			// Locally admitted transactions already hold their locks;
			// TryLock is idempotent for the same spender.
			if err := n.Ledger.TryLock(utxoID, tx.ID()); err != nil {
				return fmt.Errorf("committing %s: %w", tx.ID(), err)
			}
		}
		outputs := make([]*utxoledger.UTXO, len(tx.Outputs))
		for i, out := range tx.Outputs {
			outputs[i] = &utxoledger.UTXO{
				UTXOID: txs.UTXOID{TxID: tx.ID(), OutputIndex: uint32(i)},
				Value:  out.Value,
				PubKey: out.PubKey,
			}
		}
		if err := n.Ledger.CommitSpends(tx.ID(), inputs, outputs); err != nil {
			return fmt.Errorf("committing %s: %w", tx.ID(), err)
		}
		spends[tx.ID()] = inputs
	}

	coinbase := blk.Coinbase()
	coinbaseOutputs := make([]*utxoledger.UTXO, len(coinbase.Outputs))
	for i, out := range coinbase.Outputs {
		coinbaseOutputs[i] = &utxoledger.UTXO{
			UTXOID: txs.UTXOID{TxID: coinbase.ID(), OutputIndex: uint32(i)},
			Value:  out.Value,
			PubKey: out.PubKey,
		}
	}
	if err := n.Ledger.AddUTXOs(coinbaseOutputs); err != nil {
		return err
	}
	if err := n.Ledger.Archive(spends); err != nil {
		return err
	}
	if err := n.Chain.Commit(blk); err != nil {
		return err
	}

	for _, tx := range blk.NonCoinbaseTxs() {
		n.Mempool.Remove(tx.ID(), false)
	}
	n.persistValidatorRecords()

	n.Log.Info("block committed",
		zap.Uint64("height", blk.Header.Height),
		zap.Stringer("blockHash", blk.ID()),
		zap.Int("txs", len(blk.Txs)-1),
	)
	return nil
}

// persistValidatorRecords writes the current validator set into the registry
// namespace so restarts remember peer stake.
func (n *Node) persistValidatorRecords() {
	for _, vdr := range n.VdrSet.List() {
		p := wrappers.Packer{MaxSize: 128}
		p.PackBytes(vdr.PublicKey)
		p.PackLong(vdr.Weight)
		if p.Err != nil {
			continue
		}
		if err := n.registryDB.Put(vdr.NodeID.Bytes(), p.Bytes); err != nil {
			n.Log.Debug("validator record persist failed", zap.Error(err))
			return
		}
	}
}

// considerFork handles a proposal that does not extend our tip: if its chain
// out-scores ours and a stake majority of peers reports it, reorg.
func (n *Node) considerFork(blk *blocks.Block) {
	tipHeight, _ := n.Chain.Tip()
	if blk.Header.Height == 0 || blk.Header.Height > tipHeight+1 {
		return
	}
	ancestorHeight := blk.Header.Height - 1
	if tipHeight-ancestorHeight > n.cfg.MaxReorgDepth {
		// Reorgs past the cap are refused outright; penalize the context.
		n.Registry.Punish(blk.Header.Leader, chainstoreReorgPenalty)
		return
	}
	local, err := n.Chain.GetBlockAtHeight(ancestorHeight)
	if err != nil || local.ID() != blk.Header.PrevHash {
		// Unknown ancestry; the block is ignored (the syncer also stops at
		// such a divergence).
		return
	}
	if err := n.Resolver.Consider(context.Background(), ancestorHeight, []*blocks.Block{blk}); err != nil &&
		!errors.Is(err, chainstore.ErrPeersPreferLocal) &&
		!errors.Is(err, chainstore.ErrInsufficientPeers) {
		n.Log.Debug("fork not adopted",
			zap.Stringer("blockHash", blk.ID()),
			zap.Error(err),
		)
	}
}

// chainstoreReorgPenalty is the reputation cost of proposing a reorg past
// the depth cap.
const chainstoreReorgPenalty = 10
