// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package network

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/time-coin/timecoin/ids"
	"github.com/time-coin/timecoin/message"
	"github.com/time-coin/timecoin/snow/validators"
	"github.com/time-coin/timecoin/utils/logging"
	"github.com/time-coin/timecoin/utils/timer/mockable"
	"github.com/time-coin/timecoin/version"
)

const (
	// HandshakeTimeout bounds the whole handshake exchange
	HandshakeTimeout = 10 * time.Second

	dialRetryInterval = 15 * time.Second
)

var (
	ErrBadMagic         = errors.New("handshake magic mismatch")
	ErrWrongNetwork     = errors.New("handshake network mismatch")
	ErrWrongGenesis     = errors.New("handshake genesis mismatch")
	ErrBadHandshakeSig  = errors.New("handshake signature invalid")
	ErrSelfConnection   = errors.New("connected to self")
	ErrDuplicatePeer    = errors.New("peer already connected")
	ErrPeerNotConnected = errors.New("peer not connected")
)

// Config wires the transport
type Config struct {
	NetworkName string
	ChainID     uint32
	GenesisHash ids.ID
	ListenAddr  string
	SeedPeers   []string
	MinStake    uint64

	// Identity
	NodeID  ids.NodeID
	SignKey ed25519.PrivateKey
	Stake   uint64
}

// Network owns every peer connection and implements the consensus-facing
// send surfaces: transaction vote queries, proposal and vote broadcast, and
// tip sampling for reorg gating.
type Network struct {
	cfg      Config
	registry validators.Registry
	handler  Handler
	metrics  *Metrics
	log      logging.Logger
	clock    *mockable.Clock

	listener net.Listener

	peersLock sync.RWMutex
	peers     map[ids.NodeID]*Peer

	requestsLock sync.Mutex
	nextRequest  uint32
	requests     map[uint32]chan *message.Message

	wg sync.WaitGroup
}

func New(
	cfg Config,
	registry validators.Registry,
	handler Handler,
	metrics *Metrics,
	log logging.Logger,
	clock *mockable.Clock,
) *Network {
	return &Network{
		cfg:      cfg,
		registry: registry,
		handler:  handler,
		metrics:  metrics,
		log:      log,
		clock:    clock,
		peers:    make(map[ids.NodeID]*Peer),
		requests: make(map[uint32]chan *message.Message),
	}
}

// Dispatch starts the listener and seed dialers, blocking until [ctx] ends
func (n *Network) Dispatch(ctx context.Context) error {
	listener, err := net.Listen("tcp", n.cfg.ListenAddr)
	if err != nil {
		return err
	}
	n.listener = listener
	n.log.Info("listening", zap.String("addr", listener.Addr().String()))

	for _, seed := range n.cfg.SeedPeers {
		seed := seed
		n.wg.Add(1)
		go func() {
			defer n.wg.Done()
			n.dialLoop(ctx, seed)
		}()
	}

	go func() {
		<-ctx.Done()
		_ = listener.Close()
		n.closeAllPeers()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				n.wg.Wait()
				return nil
			}
			n.log.Warn("accept failed", zap.Error(err))
			continue
		}
		n.wg.Add(1)
		go func() {
			defer n.wg.Done()
			if err := n.upgrade(ctx, conn, true); err != nil {
				n.log.Debug("inbound handshake failed", zap.Error(err))
				if n.metrics != nil {
					n.metrics.FailedHandshakes.Inc()
				}
				_ = conn.Close()
			}
		}()
	}
}

// dialLoop keeps one outbound connection alive to [addr]. Every seed is
// dialled whichever of the two addresses is smaller; when both sides connect,
// the duplicate is resolved after the handshake by keepExisting.
func (n *Network) dialLoop(ctx context.Context, addr string) {
	for ctx.Err() == nil {
		conn, err := (&net.Dialer{Timeout: HandshakeTimeout}).DialContext(ctx, "tcp", addr)
		if err == nil {
			if err := n.upgrade(ctx, conn, false); err != nil {
				n.log.Debug("outbound handshake failed",
					zap.String("addr", addr),
					zap.Error(err),
				)
				if n.metrics != nil {
					n.metrics.FailedHandshakes.Inc()
				}
				_ = conn.Close()
			}
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(dialRetryInterval):
		}
	}
}

// upgrade runs the handshake over [conn] and registers the peer
func (n *Network) upgrade(ctx context.Context, conn net.Conn, inbound bool) error {
	deadline := time.Now().Add(HandshakeTimeout)
	_ = conn.SetDeadline(deadline)
	defer func() {
		_ = conn.SetDeadline(time.Time{})
	}()

	ours := &message.Handshake{
		Magic:           message.Magic,
		ProtocolVersion: version.CurrentProtocol,
		NetworkName:     n.cfg.NetworkName,
		ChainID:         n.cfg.ChainID,
		GenesisHash:     n.cfg.GenesisHash,
		PublicKey:       n.cfg.SignKey.Public().(ed25519.PublicKey),
		Stake:           n.cfg.Stake,
		ChallengeNonce:  rand.Uint64(),
	}
	ours.Signature = ed25519.Sign(n.cfg.SignKey, ours.SignedBytes())
	oursBytes, err := ours.Marshal()
	if err != nil {
		return err
	}
	if err := message.WriteFrame(conn, &message.Message{Op: message.HandshakeOp, Payload: oursBytes}); err != nil {
		return err
	}

	theirMsg, err := message.ReadFrame(conn)
	if err != nil {
		return err
	}
	if theirMsg.Op != message.HandshakeOp {
		return message.ErrBadFrame
	}
	theirs, err := message.UnmarshalHandshake(theirMsg.Payload)
	if err != nil {
		return err
	}
	if err := n.verifyHandshake(theirs); err != nil {
		return err
	}

	nodeID := ids.NodeIDFromPublicKey(theirs.PublicKey)
	if nodeID == n.cfg.NodeID {
		return ErrSelfConnection
	}
	if err := n.registry.Admit(nodeID, theirs.PublicKey, theirs.Stake, n.cfg.MinStake); err != nil {
		return err
	}

	// Final ACK completes the exchange on both sides.
	if err := message.WriteFrame(conn, &message.Message{Op: message.HandshakeAckOp}); err != nil {
		return err
	}
	if ack, err := message.ReadFrame(conn); err != nil {
		return err
	} else if ack.Op != message.HandshakeAckOp {
		return message.ErrBadFrame
	}

	peer := newPeer(
		conn,
		nodeID,
		theirs.Stake,
		inbound,
		n.registry,
		n.handler,
		n.metrics,
		n.log,
		n.clock,
		n.removePeer,
	)

	n.peersLock.Lock()
	if existing, ok := n.peers[nodeID]; ok {
		// At most one connection per peer pair. The connection initiated by
		// the smaller address wins; the loser closes after its final ACK.
		if keepExisting(existing, peer, conn) {
			n.peersLock.Unlock()
			return ErrDuplicatePeer
		}
		delete(n.peers, nodeID)
		existing.Close()
	}
	n.peers[nodeID] = peer
	if n.metrics != nil {
		n.metrics.NumPeers.Set(float64(len(n.peers)))
	}
	n.peersLock.Unlock()

	peer.Start(ctx)
	n.log.Info("peer connected",
		zap.Stringer("nodeID", nodeID),
		zap.Uint64("stake", theirs.Stake),
		zap.Bool("inbound", inbound),
	)
	return nil
}

// keepExisting decides the winner of a connection race deterministically on
// both sides: the connection whose initiator has the smaller address stays.
func keepExisting(existing *Peer, candidate *Peer, conn net.Conn) bool {
	initiatorAddr := func(p *Peer, c net.Conn) string {
		if p.inbound {
			return c.RemoteAddr().String()
		}
		return c.LocalAddr().String()
	}
	existingInit := initiatorAddr(existing, existing.conn)
	candidateInit := initiatorAddr(candidate, conn)
	return strings.Compare(existingInit, candidateInit) <= 0
}

func (n *Network) verifyHandshake(h *message.Handshake) error {
	switch {
	case h.Magic != message.Magic:
		return ErrBadMagic
	case h.NetworkName != n.cfg.NetworkName || h.ChainID != n.cfg.ChainID:
		return ErrWrongNetwork
	case h.GenesisHash != n.cfg.GenesisHash:
		return fmt.Errorf("%w: theirs %s, ours %s", ErrWrongGenesis, h.GenesisHash, n.cfg.GenesisHash)
	}
	if err := version.Compatible(h.ProtocolVersion); err != nil {
		return err
	}
	if len(h.PublicKey) != ed25519.PublicKeySize ||
		len(h.Signature) != ed25519.SignatureSize ||
		!ed25519.Verify(h.PublicKey, h.SignedBytes(), h.Signature) {
		return ErrBadHandshakeSig
	}
	return nil
}

func (n *Network) removePeer(peer *Peer) {
	n.peersLock.Lock()
	if current, ok := n.peers[peer.NodeID]; ok && current == peer {
		delete(n.peers, peer.NodeID)
		if n.metrics != nil {
			n.metrics.NumPeers.Set(float64(len(n.peers)))
		}
	}
	n.peersLock.Unlock()
	n.log.Info("peer disconnected", zap.Stringer("nodeID", peer.NodeID))
}

func (n *Network) closeAllPeers() {
	n.peersLock.Lock()
	peers := make([]*Peer, 0, len(n.peers))
	for _, peer := range n.peers {
		peers = append(peers, peer)
	}
	n.peersLock.Unlock()

	for _, peer := range peers {
		peer.Close()
		peer.AwaitClosed()
	}
}

// peer returns the connection to [nodeID], if any
func (n *Network) peer(nodeID ids.NodeID) (*Peer, bool) {
	n.peersLock.RLock()
	defer n.peersLock.RUnlock()

	peer, ok := n.peers[nodeID]
	return peer, ok
}

// PeerList returns a snapshot of connected peers
func (n *Network) PeerList() []*Peer {
	n.peersLock.RLock()
	defer n.peersLock.RUnlock()

	peers := make([]*Peer, 0, len(n.peers))
	for _, peer := range n.peers {
		peers = append(peers, peer)
	}
	return peers
}

// Broadcast sends [msg] to every connected peer, stamping a fresh nonce
func (n *Network) Broadcast(op message.Op, payload []byte) {
	msg := &message.Message{
		Op:      op,
		Nonce:   rand.Uint64(),
		Payload: payload,
	}
	for _, peer := range n.PeerList() {
		peer.Send(msg)
	}
}

// registerRequest allocates a request id and its response channel
func (n *Network) registerRequest() (uint32, chan *message.Message) {
	n.requestsLock.Lock()
	defer n.requestsLock.Unlock()

	n.nextRequest++
	requestID := n.nextRequest
	ch := make(chan *message.Message, 1)
	n.requests[requestID] = ch
	return requestID, ch
}

func (n *Network) unregisterRequest(requestID uint32) {
	n.requestsLock.Lock()
	delete(n.requests, requestID)
	n.requestsLock.Unlock()
}

// DeliverResponse routes a response message to its outstanding request. The
// node's inbound handler calls this for response-type ops.
func (n *Network) DeliverResponse(msg *message.Message) {
	n.requestsLock.Lock()
	ch, ok := n.requests[msg.RequestID]
	if ok {
		delete(n.requests, msg.RequestID)
	}
	n.requestsLock.Unlock()
	if ok {
		ch <- msg
	}
}
