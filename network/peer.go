// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package network

import (
	"context"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/time-coin/timecoin/ids"
	"github.com/time-coin/timecoin/message"
	"github.com/time-coin/timecoin/snow/validators"
	"github.com/time-coin/timecoin/utils/logging"
	"github.com/time-coin/timecoin/utils/timer/mockable"
)

const (
	// PingFrequency is the keepalive cadence
	PingFrequency = 30 * time.Second

	// maxMissedPongs disconnects a silent peer after three missed pongs
	maxMissedPongs = 3

	sendQueueLen = 256
)

// Handler receives every authenticated inbound message. Dispatch happens on
// the peer's read goroutine; handlers hand heavy work off themselves.
type Handler interface {
	HandleInbound(peer *Peer, msg *message.Message)
}

// Peer is one authenticated connection. Exactly one exists per remote node;
// the network enforces the dedup rule before a Peer is started.
type Peer struct {
	NodeID ids.NodeID
	Stake  uint64

	conn     net.Conn
	inbound  bool
	registry validators.Registry
	handler  Handler
	metrics  *Metrics
	log      logging.Logger
	clock    *mockable.Clock

	sendQueue chan *message.Message

	pingLock   sync.Mutex
	pingNonces map[uint64]struct{}
	nextNonce  uint64

	startOnce sync.Once
	closeOnce sync.Once
	closed    chan struct{}
	onClosed  func(*Peer)

	wg sync.WaitGroup
}

func newPeer(
	conn net.Conn,
	nodeID ids.NodeID,
	stake uint64,
	inbound bool,
	registry validators.Registry,
	handler Handler,
	metrics *Metrics,
	log logging.Logger,
	clock *mockable.Clock,
	onClosed func(*Peer),
) *Peer {
	return &Peer{
		NodeID:     nodeID,
		Stake:      stake,
		conn:       conn,
		inbound:    inbound,
		registry:   registry,
		handler:    handler,
		metrics:    metrics,
		log:        log,
		clock:      clock,
		sendQueue:  make(chan *message.Message, sendQueueLen),
		pingNonces: make(map[uint64]struct{}),
		closed:     make(chan struct{}),
		onClosed:   onClosed,
	}
}

// Start launches the read, write and keepalive loops
func (p *Peer) Start(ctx context.Context) {
	p.startOnce.Do(func() {
		p.wg.Add(3)
		go p.readLoop()
		go p.writeLoop()
		go p.pingLoop(ctx)
	})
}

// Send enqueues [msg]. A full queue drops the message and reports false;
// sustained pressure from this peer is the caller's signal to punish it.
func (p *Peer) Send(msg *message.Message) bool {
	select {
	case <-p.closed:
		return false
	case p.sendQueue <- msg:
		return true
	default:
		if p.metrics != nil {
			p.metrics.DroppedSends.Inc()
		}
		return false
	}
}

// Close tears the connection down once; safe from any goroutine
func (p *Peer) Close() {
	p.closeOnce.Do(func() {
		close(p.closed)
		_ = p.conn.Close()
		if p.onClosed != nil {
			p.onClosed(p)
		}
	})
}

// AwaitClosed blocks until every peer goroutine exited
func (p *Peer) AwaitClosed() {
	p.wg.Wait()
}

func (p *Peer) readLoop() {
	defer func() {
		p.Close()
		p.wg.Done()
	}()

	for {
		msg, err := message.ReadFrame(p.conn)
		if err != nil {
			select {
			case <-p.closed:
			default:
				p.log.Debug("read failed",
					zap.Stringer("nodeID", p.NodeID),
					zap.Error(err),
				)
			}
			return
		}
		if p.metrics != nil {
			p.metrics.MsgsReceived.Inc()
		}
		p.registry.Touch(p.NodeID)

		switch msg.Op {
		case message.PingOp:
			p.Send(&message.Message{Op: message.PongOp, Nonce: msg.Nonce})
			continue
		case message.PongOp:
			p.pingLock.Lock()
			delete(p.pingNonces, msg.Nonce)
			p.pingLock.Unlock()
			continue
		}

		// Every other op consumes a rate-limit token.
		if !p.registry.AllowRequest(p.NodeID) {
			if banned := p.registry.Punish(p.NodeID, validators.PenaltyRateLimit); banned {
				p.log.Warn("peer banned for flooding", zap.Stringer("nodeID", p.NodeID))
				return
			}
			continue
		}

		// Broadcast-type messages carry replay nonces.
		switch msg.Op {
		case message.TxBroadcastOp, message.FinalityVoteOp, message.BlockProposalOp,
			message.PrepareVoteOp, message.PrecommitVoteOp:
			if err := p.registry.CheckNonce(p.NodeID, msg.Nonce); err != nil {
				p.registry.Punish(p.NodeID, validators.PenaltyMalformed)
				continue
			}
		}

		p.handler.HandleInbound(p, msg)
	}
}

func (p *Peer) writeLoop() {
	defer func() {
		p.Close()
		p.wg.Done()
	}()

	for {
		select {
		case <-p.closed:
			return
		case msg := <-p.sendQueue:
			if err := message.WriteFrame(p.conn, msg); err != nil {
				return
			}
			if p.metrics != nil {
				p.metrics.MsgsSent.Inc()
			}
		}
	}
}

func (p *Peer) pingLoop(ctx context.Context) {
	defer func() {
		p.Close()
		p.wg.Done()
	}()

	ticker := time.NewTicker(PingFrequency)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.closed:
			return
		case <-ticker.C:
		}

		p.pingLock.Lock()
		if len(p.pingNonces) >= maxMissedPongs {
			p.pingLock.Unlock()
			p.log.Debug("peer unresponsive",
				zap.Stringer("nodeID", p.NodeID),
				zap.Int("missedPongs", maxMissedPongs),
			)
			return
		}
		p.nextNonce++
		nonce := p.nextNonce
		p.pingNonces[nonce] = struct{}{}
		p.pingLock.Unlock()

		p.Send(&message.Message{Op: message.PingOp, Nonce: nonce})
	}
}
