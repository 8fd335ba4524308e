// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package tsdc

import (
	"crypto/ed25519"
	"errors"
	"fmt"

	"github.com/time-coin/timecoin/blocks"
	"github.com/time-coin/timecoin/ids"
	"github.com/time-coin/timecoin/mempool"
	"github.com/time-coin/timecoin/snow/consensus/vfp"
	"github.com/time-coin/timecoin/txs"
	"github.com/time-coin/timecoin/utils/constants"
	"github.com/time-coin/timecoin/vrf"
)

var errMissingEntry = errors.New("finalized tx missing from mempool")

// headerHeadroom reserves space in the block byte budget for the header,
// coinbase and framing.
const headerHeadroom = 16 * 1024

// Producer assembles block proposals from the finalized pool when this node
// holds the slot lottery.
type Producer struct {
	nodeID  ids.NodeID
	signKey ed25519.PrivateKey
	vrfKey  *vrf.Key

	mempool  mempool.Mempool
	clock    *SlotClock
	maxBytes int
	maxTxs   int
}

func NewProducer(
	nodeID ids.NodeID,
	signKey ed25519.PrivateKey,
	vrfKey *vrf.Key,
	pool mempool.Mempool,
	clock *SlotClock,
	maxBytes int,
	maxTxs int,
) *Producer {
	if maxBytes <= 0 {
		maxBytes = constants.BlockMaxBytes
	}
	if maxTxs <= 0 {
		maxTxs = constants.BlockTxLimit
	}
	return &Producer{
		nodeID:   nodeID,
		signKey:  signKey,
		vrfKey:   vrfKey,
		mempool:  pool,
		clock:    clock,
		maxBytes: maxBytes,
		maxTxs:   maxTxs,
	}
}

// Evaluate returns this node's lottery ticket for [slot] atop [parentHash]
func (p *Producer) Evaluate(parentHash ids.ID, slot uint64) (output []byte, proof []byte, err error) {
	return p.vrfKey.Evaluate(vrf.LeaderInput(parentHash, slot))
}

// BuildBlock packs the finalized pool into a signed proposal for [slot]
// extending the parent at [parentHeight] with hash [parentHash]. The AVS
// snapshot of the slot fixes the reward split.
func (p *Producer) BuildBlock(
	slot uint64,
	parentHeight uint64,
	parentHash ids.ID,
	snap *vfp.Snapshot,
) (*blocks.Block, error) {
	vrfOutput, vrfProof, err := p.Evaluate(parentHash, slot)
	if err != nil {
		return nil, err
	}

	height := parentHeight + 1
	selected := p.mempool.SelectFinalized(p.maxBytes-headerHeadroom, p.maxTxs)
	fees := uint64(0)
	for _, tx := range selected {
		entry, ok := p.mempool.Get(tx.ID())
		if !ok {
			return nil, fmt.Errorf("%w: %s", errMissingEntry, tx.ID())
		}
		fees += entry.Fee
	}

	subsidy := Subsidy(height)
	coinbase, err := p.buildCoinbase(height, subsidy+fees, snap)
	if err != nil {
		return nil, err
	}

	blockTxs := append([]*txs.Tx{coinbase}, selected...)
	txIDs := make([]ids.ID, len(blockTxs))
	for i, tx := range blockTxs {
		txIDs[i] = tx.ID()
	}

	blk := &blocks.Block{
		Header: blocks.Header{
			Version:     blocks.Version,
			Height:      height,
			PrevHash:    parentHash,
			MerkleRoot:  blocks.MerkleRoot(txIDs),
			Timestamp:   p.clock.SlotTimestamp(slot),
			SlotIndex:   slot,
			Leader:      p.nodeID,
			VRFOutput:   vrfOutput,
			VRFProof:    vrfProof,
			BlockReward: subsidy,
		},
		Txs: blockTxs,
	}
	if err := blk.Initialize(); err != nil {
		return nil, err
	}
	blk.Sign(p.signKey)
	return blk, blk.Initialize()
}

// buildCoinbase mints [total] base units to the snapshot's masternodes.
// Shares below the dust floor are folded into the leader's output so the
// coinbase value is conserved exactly.
func (p *Producer) buildCoinbase(height uint64, total uint64, snap *vfp.Snapshot) (*txs.Tx, error) {
	shares := DistributeRewards(total, snap, p.nodeID)

	folded := uint64(0)
	outputs := make([]txs.Output, 0, len(shares))
	for _, share := range shares {
		if share.NodeID == p.nodeID {
			continue
		}
		if share.Amount < constants.MinDust {
			folded += share.Amount
			continue
		}
		vdr, ok := snap.Get(share.NodeID)
		if !ok {
			folded += share.Amount
			continue
		}
		outputs = append(outputs, txs.Output{Value: share.Amount, PubKey: vdr.PublicKey})
	}

	leaderAmount := folded
	for _, share := range shares {
		if share.NodeID == p.nodeID {
			leaderAmount += share.Amount
		}
	}
	if leaderAmount > 0 {
		self, ok := snap.Get(p.nodeID)
		if !ok {
			return nil, fmt.Errorf("leader %s absent from snapshot", p.nodeID)
		}
		outputs = append(outputs, txs.Output{Value: leaderAmount, PubKey: self.PublicKey})
	}

	coinbase := &txs.Tx{
		Version: txs.Version,
		Outputs: outputs,
		// The height makes each coinbase unique even when the reward split
		// repeats across blocks.
		LockTime: height,
	}
	return coinbase, coinbase.Initialize()
}
