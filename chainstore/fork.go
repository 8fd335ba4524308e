// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package chainstore

import (
	"context"
	"errors"
	"math/big"

	"go.uber.org/zap"

	"github.com/time-coin/timecoin/blocks"
	"github.com/time-coin/timecoin/ids"
	"github.com/time-coin/timecoin/utils/constants"
	"github.com/time-coin/timecoin/utils/logging"
	"github.com/time-coin/timecoin/vrf"
)

var (
	ErrReorgTooDeep      = errors.New("reorg deeper than the allowed maximum")
	ErrNoCommonAncestor  = errors.New("no common ancestor within reorg depth")
	ErrInsufficientPeers = errors.New("not enough peers responded to gate the reorg")
	ErrPeersPreferLocal  = errors.New("peer majority does not report the competing tip")
)

// TipReport is one peer's answer to a GetTip query, weighted by its stake
type TipReport struct {
	NodeID ids.NodeID
	Height uint64
	Hash   ids.ID
	Stake  uint64
}

// PeerSampler queries a fresh random sample of peers for their current tip
type PeerSampler interface {
	SampleTips(ctx context.Context, min int) ([]TipReport, error)
}

// minReorgWitnesses is the smallest peer sample that may approve a reorg
const minReorgWitnesses = 5

// CumulativeScore sums the VRF outputs of [chain] as 256-bit integers. The
// fork-choice rule prefers the suffix with the greater total lottery weight.
func CumulativeScore(chain []*blocks.Block) *big.Int {
	total := new(big.Int)
	for _, blk := range chain {
		total.Add(total, vrf.Score(blk.Header.VRFOutput))
	}
	return total
}

// CompareChains orders two competing suffixes rooted at the same ancestor:
// greater cumulative VRF score first, then greater height, then
// lexicographically smaller tip hash. Positive means [a] wins.
func CompareChains(a, b []*blocks.Block) int {
	if cmp := CumulativeScore(a).Cmp(CumulativeScore(b)); cmp != 0 {
		return cmp
	}
	heightA, heightB := uint64(0), uint64(0)
	if len(a) > 0 {
		heightA = a[len(a)-1].Header.Height
	}
	if len(b) > 0 {
		heightB = b[len(b)-1].Header.Height
	}
	switch {
	case heightA > heightB:
		return 1
	case heightA < heightB:
		return -1
	}
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	// Smaller hash wins, so invert.
	return b[len(b)-1].ID().Compare(a[len(a)-1].ID())
}

// Resolver executes consensus-gated reorgs
type Resolver struct {
	store   Store
	ledger  LedgerWriter
	sampler PeerSampler
	log     logging.Logger
}

func NewResolver(store Store, ledger LedgerWriter, sampler PeerSampler, log logging.Logger) *Resolver {
	return &Resolver{
		store:   store,
		ledger:  ledger,
		sampler: sampler,
		log:     log,
	}
}

// Consider evaluates a foreign suffix rooted at [ancestorHeight]. The suffix
// must link from the block after the ancestor up to the foreign tip. When the
// foreign chain wins fork choice and a stake-majority of sampled peers
// reports it, the local chain rolls back to the ancestor and replays the
// foreign blocks.
func (r *Resolver) Consider(ctx context.Context, ancestorHeight uint64, foreign []*blocks.Block) error {
	if len(foreign) == 0 {
		return nil
	}
	tipHeight, tipHash := r.store.Tip()
	if foreign[len(foreign)-1].ID() == tipHash {
		return nil
	}

	// Depth guard runs before any peer traffic.
	if tipHeight < ancestorHeight || tipHeight-ancestorHeight > constants.MaxReorgDepth {
		return ErrReorgTooDeep
	}

	local := make([]*blocks.Block, 0, tipHeight-ancestorHeight)
	for h := ancestorHeight + 1; h <= tipHeight; h++ {
		blk, err := r.store.GetBlockAtHeight(h)
		if err != nil {
			return err
		}
		local = append(local, blk)
	}

	if CompareChains(foreign, local) <= 0 {
		// The local chain wins outright; drop the foreign block.
		return nil
	}

	// A single-block extension race does not need peer consensus; anything
	// deeper does.
	if len(local) > 1 || len(foreign) > 1 {
		reports, err := r.sampler.SampleTips(ctx, minReorgWitnesses)
		if err != nil {
			return err
		}
		if len(reports) < minReorgWitnesses {
			return ErrInsufficientPeers
		}
		foreignTip := foreign[len(foreign)-1].ID()
		totalStake, agreeStake := uint64(0), uint64(0)
		for _, report := range reports {
			totalStake += report.Stake
			if report.Hash == foreignTip {
				agreeStake += report.Stake
			}
		}
		if agreeStake*2 <= totalStake {
			return ErrPeersPreferLocal
		}
	}

	r.log.Info("executing reorg",
		zap.Uint64("ancestorHeight", ancestorHeight),
		zap.Int("rollback", len(local)),
		zap.Int("replay", len(foreign)),
	)

	// Roll the losing suffix back, newest first, then replay the winner.
	for i := len(local) - 1; i >= 0; i-- {
		if _, err := r.store.Pop(); err != nil {
			return err
		}
		if err := UnapplyBlock(r.ledger, local[i]); err != nil {
			return err
		}
	}
	for _, blk := range foreign {
		if err := ApplyBlock(r.ledger, blk); err != nil {
			return err
		}
		if err := r.store.Commit(blk); err != nil {
			return err
		}
	}
	return nil
}
