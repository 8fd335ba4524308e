// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package validators

import (
	"crypto/ed25519"
	"crypto/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/time-coin/timecoin/ids"
	"github.com/time-coin/timecoin/utils/timer/mockable"
)

func newTestRegistry(t *testing.T) (Registry, *mockable.Clock) {
	clock := &mockable.Clock{}
	clock.Set(time.Unix(1_700_000_000, 0))
	return NewRegistry(NewSet(), clock, 100), clock
}

func testKey(t *testing.T) ed25519.PublicKey {
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	return pub
}

func TestAdmitStakeThreshold(t *testing.T) {
	require := require.New(t)

	r, _ := newTestRegistry(t)
	nodeID := ids.NodeID{1}

	require.ErrorIs(r.Admit(nodeID, testKey(t), 999, 1000), ErrStakeTooLow)
	require.NoError(r.Admit(nodeID, testKey(t), 1000, 1000))
	require.True(r.Set().Contains(nodeID))

	// re-admission after reconnect is a no-op
	require.NoError(r.Admit(nodeID, testKey(t), 5000, 1000))
}

func TestPunishBansAtThreshold(t *testing.T) {
	require := require.New(t)

	r, clock := newTestRegistry(t)
	nodeID := ids.NodeID{1}
	require.NoError(r.Admit(nodeID, testKey(t), 1000, 1000))

	// smaller penalties accumulate without banning
	require.False(r.Punish(nodeID, PenaltyInvalidSignature))
	rep, err := r.Reputation(nodeID)
	require.NoError(err)
	require.Equal(-20, rep)

	// a conflicting-votes penalty pushes past the -50 threshold
	require.True(r.Punish(nodeID, PenaltyConflictingVotes))
	require.True(r.IsBanned(nodeID))
	require.False(r.Set().Contains(nodeID))
	require.ErrorIs(r.Admit(nodeID, testKey(t), 1000, 1000), ErrBanned)

	// the ban expires after an hour
	clock.Set(clock.Time().Add(BanDuration + time.Second))
	require.False(r.IsBanned(nodeID))
	require.NoError(r.Admit(nodeID, testKey(t), 1000, 1000))
}

func TestNonceReplayWindow(t *testing.T) {
	require := require.New(t)

	r, clock := newTestRegistry(t)
	nodeID := ids.NodeID{1}

	require.NoError(r.CheckNonce(nodeID, 42))
	require.ErrorIs(r.CheckNonce(nodeID, 42), ErrReplayedNonce)

	// a different peer may reuse the nonce
	require.NoError(r.CheckNonce(ids.NodeID{2}, 42))

	// outside the window the nonce is fresh again
	clock.Set(clock.Time().Add(NonceWindow + time.Second))
	require.NoError(r.CheckNonce(nodeID, 42))
}

func TestRateLimiter(t *testing.T) {
	require := require.New(t)

	r, _ := newTestRegistry(t)
	nodeID := ids.NodeID{1}

	// the burst allowance drains, then requests are refused
	allowed := 0
	for i := 0; i < 200; i++ {
		if r.AllowRequest(nodeID) {
			allowed++
		}
	}
	require.GreaterOrEqual(allowed, 100)
	require.Less(allowed, 110)
}

func TestSetSampleWeighted(t *testing.T) {
	require := require.New(t)

	set := NewSet()
	require.NoError(set.Add(ids.NodeID{1}, testKey(t), 1))
	require.NoError(set.Add(ids.NodeID{2}, testKey(t), 1_000_000))

	// sampling everyone returns everyone exactly once
	sampled, err := set.Sample(2)
	require.NoError(err)
	require.Len(sampled, 2)
	seen := map[ids.NodeID]int{}
	for _, vdr := range sampled {
		seen[vdr.NodeID]++
	}
	require.Equal(1, seen[ids.NodeID{1}])
	require.Equal(1, seen[ids.NodeID{2}])

	// oversampling clamps to the set size
	sampled, err = set.Sample(10)
	require.NoError(err)
	require.Len(sampled, 2)
}

func TestSetListSorted(t *testing.T) {
	require := require.New(t)

	set := NewSet()
	require.NoError(set.Add(ids.NodeID{9}, testKey(t), 10))
	require.NoError(set.Add(ids.NodeID{1}, testKey(t), 20))
	require.NoError(set.Add(ids.NodeID{5}, testKey(t), 30))

	listed := set.List()
	require.Len(listed, 3)
	require.Equal(ids.NodeID{1}, listed[0].NodeID)
	require.Equal(ids.NodeID{5}, listed[1].NodeID)
	require.Equal(ids.NodeID{9}, listed[2].NodeID)
	require.Equal(uint64(60), set.TotalWeight())
}
