// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package node

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/time-coin/timecoin/chainstore"
	"github.com/time-coin/timecoin/ids"
)

const (
	syncInterval     = 30 * time.Second
	blockFetchLimit  = 256
	blockFetchWindow = 5 * time.Second
)

// runSyncer periodically samples peer tips and back-fills committed blocks
// when the network is ahead of us. Each fetched block must extend the current
// tip (Chain.Commit checks linkage and height again); its VRF proof and leader
// signature are not verified on this path.
func (n *Node) runSyncer(ctx context.Context) {
	ticker := time.NewTicker(syncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		n.syncOnce(ctx)
	}
}

func (n *Node) syncOnce(ctx context.Context) {
	reports, err := n.Net.SampleTips(ctx, 1)
	if err != nil || len(reports) == 0 {
		return
	}

	// Follow the stake-heaviest reported tip that is ahead of us.
	localHeight, _ := n.Chain.Tip()
	var best *chainstore.TipReport
	stakeByTip := make(map[ids.ID]uint64)
	for i := range reports {
		report := reports[i]
		if report.Height <= localHeight {
			continue
		}
		stakeByTip[report.Hash] += report.Stake
		if best == nil || stakeByTip[report.Hash] > stakeByTip[best.Hash] {
			best = &reports[i]
		}
	}
	if best == nil {
		return
	}

	n.Log.Info("syncing",
		zap.Uint64("localHeight", localHeight),
		zap.Uint64("peerHeight", best.Height),
		zap.Stringer("peer", best.NodeID),
	)

	fetched := 0
	for height := localHeight + 1; height <= best.Height && fetched < blockFetchLimit; height++ {
		if ctx.Err() != nil {
			return
		}
		blk, err := n.Net.RequestBlock(ctx, best.NodeID, height, blockFetchWindow)
		if err != nil {
			n.Log.Debug("block fetch failed",
				zap.Uint64("height", height),
				zap.Error(err),
			)
			return
		}
		_, tipHash := n.Chain.Tip()
		if blk.Header.PrevHash != tipHash {
			// The peer's chain diverges below our tip; stop here instead of
			// committing blindly. No fork resolution is attempted here.
			n.Log.Debug("sync hit a fork", zap.Uint64("height", height))
			return
		}
		if err := chainstore.ApplyBlock(n.Ledger, blk); err != nil {
			n.Log.Warn("sync apply failed",
				zap.Uint64("height", height),
				zap.Error(err),
			)
			return
		}
		if err := n.Chain.Commit(blk); err != nil {
			n.Log.Warn("sync commit failed",
				zap.Uint64("height", height),
				zap.Error(err),
			)
			return
		}
		fetched++
	}
}
