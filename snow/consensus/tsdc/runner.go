// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package tsdc

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/time-coin/timecoin/blocks"
	"github.com/time-coin/timecoin/snow/consensus/vfp"
	"github.com/time-coin/timecoin/snow/validators"
	"github.com/time-coin/timecoin/utils/constants"
	"github.com/time-coin/timecoin/utils/logging"
)

// ProposalSender ships a freshly built proposal to every peer
type ProposalSender interface {
	BroadcastProposal(blk *blocks.Block)
}

// Runner drives the slot loop: at each boundary it freezes the AVS snapshot,
// expires the previous slot's proposals, and enters this node's candidacy
// for the new slot. Leadership is settled comparatively: every eligible
// masternode publishes its lottery ticket with its proposal, and voters
// support the highest ticket.
type Runner struct {
	clock     *SlotClock
	snapshots *vfp.Snapshots
	vdrs      validators.Set
	producer  *Producer
	voter     *Voter
	tips      TipSource
	sender    ProposalSender
	log       logging.Logger
	metrics   *Metrics

	lastTipHeight uint64
}

func NewRunner(
	clock *SlotClock,
	snapshots *vfp.Snapshots,
	vdrs validators.Set,
	producer *Producer,
	voter *Voter,
	tips TipSource,
	sender ProposalSender,
	log logging.Logger,
	metrics *Metrics,
) *Runner {
	return &Runner{
		clock:     clock,
		snapshots: snapshots,
		vdrs:      vdrs,
		producer:  producer,
		voter:     voter,
		tips:      tips,
		sender:    sender,
		log:       log,
		metrics:   metrics,
	}
}

// Run blocks until [ctx] is canceled
func (r *Runner) Run(ctx context.Context) {
	// Snapshot the slot we wake up in so votes for in-flight proposals can
	// be weighed immediately.
	r.snapshots.Take(r.clock.CurrentSlot(), r.vdrs)

	timer := time.NewTimer(r.clock.UntilNextSlot())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		slot := r.clock.CurrentSlot()
		r.onSlot(slot)
		timer.Reset(r.clock.UntilNextSlot())
	}
}

func (r *Runner) onSlot(slot uint64) {
	snap := r.snapshots.Take(slot, r.vdrs)

	// A slot that closed without advancing the tip is skipped for good; the
	// stale proposals are dropped and the next leader builds on the same
	// parent.
	tipHeight, _ := r.tips.Tip()
	if tipHeight == r.lastTipHeight && r.metrics != nil {
		r.metrics.SkippedSlots.Inc()
	}
	r.lastTipHeight = tipHeight
	if slot > 0 {
		r.voter.OnSlotExpired(slot - 1)
	}

	if len(snap.Validators) < constants.MasternodeActiveThreshold {
		r.log.Debug("not enough active masternodes for block production",
			zap.Int("active", len(snap.Validators)),
			zap.Int("required", constants.MasternodeActiveThreshold),
		)
		return
	}
	if _, ok := snap.Get(r.producer.nodeID); !ok {
		return
	}

	tipHeight, tipHash := r.tips.Tip()
	blk, err := r.producer.BuildBlock(slot, tipHeight, tipHash, snap)
	if err != nil {
		r.log.Error("block build failed",
			zap.Uint64("slot", slot),
			zap.Error(err),
		)
		return
	}
	if r.metrics != nil {
		r.metrics.Proposals.Inc()
	}
	r.log.Info("proposing block",
		zap.Uint64("slot", slot),
		zap.Uint64("height", blk.Header.Height),
		zap.Stringer("blockHash", blk.ID()),
	)
	r.sender.BroadcastProposal(blk)
	if err := r.voter.HandleProposal(blk); err != nil {
		r.log.Debug("own proposal not preferred",
			zap.Stringer("blockHash", blk.ID()),
			zap.Error(err),
		)
	}
}
