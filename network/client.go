// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package network

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/time-coin/timecoin/blocks"
	"github.com/time-coin/timecoin/chainstore"
	"github.com/time-coin/timecoin/ids"
	"github.com/time-coin/timecoin/message"
	"github.com/time-coin/timecoin/snow/consensus/avalanche"
	"github.com/time-coin/timecoin/snow/consensus/tsdc"
	"github.com/time-coin/timecoin/snow/consensus/vfp"
	"github.com/time-coin/timecoin/snow/validators"
	"github.com/time-coin/timecoin/txs"
)

var (
	_ avalanche.VoteClient   = (*Network)(nil)
	_ tsdc.ProposalSender    = (*Network)(nil)
	_ tsdc.VoteBroadcaster   = (*Network)(nil)
	_ chainstore.PeerSampler = (*Network)(nil)
)

const tipQueryTimeout = 3 * time.Second

// BroadcastTransaction gossips an admitted transaction
func (n *Network) BroadcastTransaction(tx *txs.Tx) {
	n.Broadcast(message.TxBroadcastOp, tx.Bytes())
}

// BroadcastFinalityVote gossips this node's finality vote
func (n *Network) BroadcastFinalityVote(vote *vfp.FinalityVote) {
	bytes, err := vote.Marshal()
	if err != nil {
		n.log.Error("finality vote marshal failed", zap.Error(err))
		return
	}
	n.Broadcast(message.FinalityVoteOp, bytes)
}

// BroadcastProposal implements tsdc.ProposalSender
func (n *Network) BroadcastProposal(blk *blocks.Block) {
	n.Broadcast(message.BlockProposalOp, blk.Bytes())
}

// BroadcastBlockVote implements tsdc.VoteBroadcaster
func (n *Network) BroadcastBlockVote(vote *tsdc.BlockVote) {
	bytes, err := vote.Marshal()
	if err != nil {
		n.log.Error("block vote marshal failed", zap.Error(err))
		return
	}
	op := message.PrepareVoteOp
	if vote.Phase == tsdc.PhasePrecommit {
		op = message.PrecommitVoteOp
	}
	n.Broadcast(op, bytes)
}

// RequestVotes implements the Avalanche engine's VoteClient: one query round
// against [vdrs]. Validators without a live connection count as missing.
func (n *Network) RequestVotes(
	ctx context.Context,
	txID ids.ID,
	vdrs []*validators.Validator,
	timeout time.Duration,
) (int, int, int) {
	type result struct {
		accept bool
		ok     bool
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	payload := (&message.VoteRequest{TxID: txID}).Marshal()
	results := make(chan result, len(vdrs))
	var wg sync.WaitGroup
	for _, vdr := range vdrs {
		peer, ok := n.peer(vdr.NodeID)
		if !ok {
			results <- result{}
			continue
		}
		wg.Add(1)
		go func(peer *Peer) {
			defer wg.Done()
			requestID, ch := n.registerRequest()
			defer n.unregisterRequest(requestID)

			if !peer.Send(&message.Message{
				Op:        message.TxVoteRequestOp,
				RequestID: requestID,
				Payload:   payload,
			}) {
				results <- result{}
				return
			}
			select {
			case <-ctx.Done():
				results <- result{}
			case msg := <-ch:
				resp, err := message.UnmarshalVoteResponse(msg.Payload)
				if err != nil || resp.TxID != txID {
					n.registry.Punish(peer.NodeID, validators.PenaltyMalformed)
					results <- result{}
					return
				}
				results <- result{accept: resp.Accept, ok: true}
			}
		}(peer)
	}
	wg.Wait()

	accept, reject, missing := 0, 0, 0
	for range vdrs {
		r := <-results
		switch {
		case !r.ok:
			missing++
		case r.accept:
			accept++
		default:
			reject++
		}
	}
	return accept, reject, missing
}

// SampleTips implements chainstore.PeerSampler: query a fresh random sample
// of up to 2*[min] peers (every connected peer when fewer are connected) for
// their current tip, weighted by their stake in the final tally.
func (n *Network) SampleTips(ctx context.Context, min int) ([]chainstore.TipReport, error) {
	peers := n.PeerList()
	rand.Shuffle(len(peers), func(i, j int) {
		peers[i], peers[j] = peers[j], peers[i]
	})
	sampleSize := min * 2
	if sampleSize > len(peers) {
		sampleSize = len(peers)
	}
	sample := peers[:sampleSize]

	ctx, cancel := context.WithTimeout(ctx, tipQueryTimeout)
	defer cancel()

	reports := make(chan chainstore.TipReport, len(sample))
	var wg sync.WaitGroup
	for _, peer := range sample {
		wg.Add(1)
		go func(peer *Peer) {
			defer wg.Done()
			requestID, ch := n.registerRequest()
			defer n.unregisterRequest(requestID)

			if !peer.Send(&message.Message{Op: message.GetTipOp, RequestID: requestID}) {
				return
			}
			select {
			case <-ctx.Done():
			case msg := <-ch:
				tip, err := message.UnmarshalTip(msg.Payload)
				if err != nil || tip.GenesisHash != n.cfg.GenesisHash {
					n.registry.Punish(peer.NodeID, validators.PenaltyMalformed)
					return
				}
				reports <- chainstore.TipReport{
					NodeID: peer.NodeID,
					Height: tip.Height,
					Hash:   tip.TipHash,
					Stake:  peer.Stake,
				}
			}
		}(peer)
	}
	wg.Wait()
	close(reports)

	out := make([]chainstore.TipReport, 0, len(sample))
	for report := range reports {
		out = append(out, report)
	}
	return out, nil
}

// RequestBlock fetches the block at [height] from [nodeID]
func (n *Network) RequestBlock(ctx context.Context, nodeID ids.NodeID, height uint64, timeout time.Duration) (*blocks.Block, error) {
	peer, ok := n.peer(nodeID)
	if !ok {
		return nil, ErrPeerNotConnected
	}
	requestID, ch := n.registerRequest()
	defer n.unregisterRequest(requestID)

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if !peer.Send(&message.Message{
		Op:        message.GetBlockOp,
		RequestID: requestID,
		Payload:   (&message.GetBlock{Height: height}).Marshal(),
	}) {
		return nil, context.DeadlineExceeded
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case msg := <-ch:
		return blocks.Parse(msg.Payload)
	}
}
