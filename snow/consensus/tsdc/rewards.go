// Copyright (C) 2019-2023, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package tsdc

import (
	"math"
	"math/big"

	"github.com/time-coin/timecoin/ids"
	"github.com/time-coin/timecoin/snow/consensus/vfp"
)

// subsidyScale converts whole coins of subsidy into base units
const subsidyScale = 100_000_000

// Subsidy returns the block reward at [height] in base units:
// floor(100 * (1 + ln(height))) * 10^8. Height zero (genesis) mints nothing.
func Subsidy(height uint64) uint64 {
	if height == 0 {
		return 0
	}
	coins := uint64(math.Floor(100 * (1 + math.Log(float64(height)))))
	return coins * subsidyScale
}

// RewardShare is one masternode's cut of a block reward
type RewardShare struct {
	NodeID ids.NodeID
	Amount uint64
}

// DistributeRewards splits [total] across the snapshot's validators
// proportionally to stake, using floor division. The rounding residue goes to
// [leader], so the split is deterministic across nodes and sums exactly to
// [total].
func DistributeRewards(total uint64, snap *vfp.Snapshot, leader ids.NodeID) []RewardShare {
	if total == 0 || snap.TotalWeight == 0 || len(snap.Validators) == 0 {
		return nil
	}

	shares := make([]RewardShare, 0, len(snap.Validators))
	distributed := uint64(0)
	leaderIdx := -1
	for _, vdr := range snap.Validators {
		amount := mulDiv(total, vdr.Weight, snap.TotalWeight)
		distributed += amount
		if vdr.NodeID == leader {
			leaderIdx = len(shares)
		}
		shares = append(shares, RewardShare{NodeID: vdr.NodeID, Amount: amount})
	}

	residue := total - distributed
	if residue > 0 {
		if leaderIdx >= 0 {
			shares[leaderIdx].Amount += residue
		} else {
			// Leader absent from the snapshot cannot happen for a valid
			// block; fall back to the first validator to conserve value.
			shares[0].Amount += residue
		}
	}
	return shares
}

// mulDiv computes floor(a*b/c) without intermediate overflow
func mulDiv(a, b, c uint64) uint64 {
	result := new(big.Int).SetUint64(a)
	result.Mul(result, new(big.Int).SetUint64(b))
	result.Div(result, new(big.Int).SetUint64(c))
	if !result.IsUint64() {
		return math.MaxUint64
	}
	return result.Uint64()
}
