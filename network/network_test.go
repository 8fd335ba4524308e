// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package network

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/time-coin/timecoin/ids"
	"github.com/time-coin/timecoin/message"
	"github.com/time-coin/timecoin/snow/validators"
	"github.com/time-coin/timecoin/utils/logging"
	"github.com/time-coin/timecoin/utils/timer/mockable"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type collectingHandler struct {
	lock sync.Mutex
	msgs []*message.Message
	seen chan struct{}
}

func newCollectingHandler() *collectingHandler {
	return &collectingHandler{seen: make(chan struct{}, 64)}
}

func (h *collectingHandler) HandleInbound(_ *Peer, msg *message.Message) {
	h.lock.Lock()
	h.msgs = append(h.msgs, msg)
	h.lock.Unlock()
	h.seen <- struct{}{}
}

func newTestRegistry() validators.Registry {
	return validators.NewRegistry(validators.NewSet(), &mockable.Clock{}, 10_000)
}

// newPipePeer builds a started peer over one end of a net.Pipe
func newPipePeer(t *testing.T, conn net.Conn, handler Handler) *Peer {
	t.Helper()
	peer := newPeer(
		conn,
		ids.NodeID{0x01},
		100,
		true,
		newTestRegistry(),
		handler,
		nil,
		logging.NoLog{},
		&mockable.Clock{},
		nil,
	)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	peer.Start(ctx)
	return peer
}

func TestPeerRoundTrip(t *testing.T) {
	require := require.New(t)

	connA, connB := net.Pipe()
	handlerA := newCollectingHandler()
	handlerB := newCollectingHandler()
	peerA := newPipePeer(t, connA, handlerA)
	peerB := newPipePeer(t, connB, handlerB)
	defer func() {
		peerA.Close()
		peerB.Close()
		peerA.AwaitClosed()
		peerB.AwaitClosed()
	}()

	require.True(peerA.Send(&message.Message{
		Op:      message.TxBroadcastOp,
		Nonce:   42,
		Payload: []byte("tx-bytes"),
	}))

	select {
	case <-handlerB.seen:
	case <-time.After(5 * time.Second):
		t.Fatal("message never delivered")
	}
	handlerB.lock.Lock()
	defer handlerB.lock.Unlock()
	require.Len(handlerB.msgs, 1)
	require.Equal(message.TxBroadcastOp, handlerB.msgs[0].Op)
	require.Equal([]byte("tx-bytes"), handlerB.msgs[0].Payload)
}

func TestPeerAnswersPing(t *testing.T) {
	require := require.New(t)

	connA, connB := net.Pipe()
	handlerA := newCollectingHandler()
	peerA := newPipePeer(t, connA, handlerA)
	defer func() {
		peerA.Close()
		_ = connB.Close()
		peerA.AwaitClosed()
	}()

	// raw ping over the far end of the pipe: the peer pongs with the nonce
	go func() {
		_ = message.WriteFrame(connB, &message.Message{Op: message.PingOp, Nonce: 77})
	}()

	msg, err := message.ReadFrame(connB)
	require.NoError(err)
	require.Equal(message.PongOp, msg.Op)
	require.Equal(uint64(77), msg.Nonce)
}

func TestPeerDropsReplayedNonce(t *testing.T) {
	connA, connB := net.Pipe()
	handler := newCollectingHandler()
	peer := newPipePeer(t, connA, handler)
	defer func() {
		peer.Close()
		_ = connB.Close()
		peer.AwaitClosed()
	}()

	send := func() {
		_ = message.WriteFrame(connB, &message.Message{
			Op:      message.BlockProposalOp,
			Nonce:   99,
			Payload: []byte("blk"),
		})
	}
	go send()
	select {
	case <-handler.seen:
	case <-time.After(5 * time.Second):
		t.Fatal("first delivery missing")
	}

	// identical nonce within the window is silently dropped
	go send()
	select {
	case <-handler.seen:
		t.Fatal("replayed nonce was delivered")
	case <-time.After(300 * time.Millisecond):
	}
}

func TestHandshakeVerification(t *testing.T) {
	require := require.New(t)

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(err)

	cfg := Config{
		NetworkName: "devnet",
		ChainID:     1337,
		GenesisHash: ids.ID{0x01},
	}
	n := New(cfg, newTestRegistry(), newCollectingHandler(), nil, logging.NoLog{}, &mockable.Clock{})

	valid := func() *message.Handshake {
		h := &message.Handshake{
			Magic:           message.Magic,
			ProtocolVersion: 1 << 16,
			NetworkName:     "devnet",
			ChainID:         1337,
			GenesisHash:     ids.ID{0x01},
			PublicKey:       pub,
			Stake:           5_000,
			ChallengeNonce:  7,
		}
		h.Signature = ed25519.Sign(priv, h.SignedBytes())
		return h
	}

	require.NoError(n.verifyHandshake(valid()))

	h := valid()
	h.Magic = "MIME"
	h.Signature = ed25519.Sign(priv, h.SignedBytes())
	require.ErrorIs(n.verifyHandshake(h), ErrBadMagic)

	h = valid()
	h.NetworkName = "mainnet"
	h.Signature = ed25519.Sign(priv, h.SignedBytes())
	require.ErrorIs(n.verifyHandshake(h), ErrWrongNetwork)

	// two peers with different genesis hashes refuse to peer
	h = valid()
	h.GenesisHash = ids.ID{0x02}
	h.Signature = ed25519.Sign(priv, h.SignedBytes())
	require.ErrorIs(n.verifyHandshake(h), ErrWrongGenesis)

	// stake claim must be covered by the signature
	h = valid()
	h.Stake = 1_000_000
	require.ErrorIs(n.verifyHandshake(h), ErrBadHandshakeSig)
}

func TestHandshakeRoundTrip(t *testing.T) {
	require := require.New(t)

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(err)
	h := &message.Handshake{
		Magic:           message.Magic,
		ProtocolVersion: 1<<16 | 3,
		NetworkName:     "testnet",
		ChainID:         5,
		GenesisHash:     ids.ID{0xaa},
		PublicKey:       pub,
		Stake:           1234,
		ChallengeNonce:  99,
	}
	h.Signature = ed25519.Sign(priv, h.SignedBytes())

	bytes, err := h.Marshal()
	require.NoError(err)
	parsed, err := message.UnmarshalHandshake(bytes)
	require.NoError(err)
	require.Equal(h, parsed)
}
