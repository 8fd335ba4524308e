// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package vfp

import (
	"crypto/ed25519"
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/time-coin/timecoin/ids"
	"github.com/time-coin/timecoin/snow/validators"
	"github.com/time-coin/timecoin/utils/constants"
	"github.com/time-coin/timecoin/utils/logging"
)

const testChainID = 7

type testValidator struct {
	nodeID ids.NodeID
	pub    ed25519.PublicKey
	priv   ed25519.PrivateKey
}

func newValidators(t *testing.T, n int, weight uint64) ([]testValidator, validators.Set) {
	require := require.New(t)

	vdrs := validators.NewSet()
	out := make([]testValidator, n)
	for i := range out {
		pub, priv, err := ed25519.GenerateKey(rand.Reader)
		require.NoError(err)
		out[i] = testValidator{nodeID: ids.NodeID{byte(i + 1)}, pub: pub, priv: priv}
		require.NoError(vdrs.Add(out[i].nodeID, pub, weight))
	}
	return out, vdrs
}

func (v testValidator) vote(txID ids.ID, slot uint64, weight uint64) *FinalityVote {
	vote := &FinalityVote{
		ChainID:      testChainID,
		TxID:         txID,
		TxCommitment: txID.Prefix(0),
		SlotIndex:    slot,
		Voter:        v.nodeID,
		VoterWeight:  weight,
	}
	vote.Sign(v.priv)
	return vote
}

func TestAccumulatorEmitsProofAtThreshold(t *testing.T) {
	require := require.New(t)

	vdrs, set := newValidators(t, 3, 100)
	snapshots := NewSnapshots()
	snapshots.Take(5, set)
	acc := NewAccumulator(testChainID, DefaultThreshold(), snapshots, nil, logging.NoLog{})

	txID := ids.ID{0x11}

	weight, err := acc.Add(vdrs[0].vote(txID, 5, 100))
	require.NoError(err)
	require.Equal(uint64(100), weight)
	_, ok := acc.Proof(txID)
	require.False(ok)

	// threshold is ceil(300 * 2/3) = 200
	weight, err = acc.Add(vdrs[1].vote(txID, 5, 100))
	require.NoError(err)
	require.Equal(uint64(200), weight)

	proof, ok := acc.Proof(txID)
	require.True(ok)
	require.Equal(uint64(200), proof.AccumulatedWeight)
	require.Len(proof.Votes, 2)

	// the proof verifies against the snapshot alone
	snap, err := snapshots.Get(5)
	require.NoError(err)
	require.NoError(proof.Verify(snap, DefaultThreshold()))
}

func TestAccumulatorIdempotentVotes(t *testing.T) {
	require := require.New(t)

	vdrs, set := newValidators(t, 3, 100)
	snapshots := NewSnapshots()
	snapshots.Take(5, set)
	acc := NewAccumulator(testChainID, DefaultThreshold(), snapshots, nil, logging.NoLog{})

	txID := ids.ID{0x11}
	vote := vdrs[0].vote(txID, 5, 100)

	weight, err := acc.Add(vote)
	require.NoError(err)
	require.Equal(uint64(100), weight)

	// the same voter again changes nothing
	weight, err = acc.Add(vote)
	require.ErrorIs(err, ErrDuplicateVoter)
	require.Equal(uint64(100), weight)
}

func TestAccumulatorRejections(t *testing.T) {
	require := require.New(t)

	vdrs, set := newValidators(t, 3, 100)
	snapshots := NewSnapshots()
	snapshots.Take(5, set)
	acc := NewAccumulator(testChainID, DefaultThreshold(), snapshots, nil, logging.NoLog{})

	txID := ids.ID{0x11}

	// wrong chain
	wrongChain := vdrs[0].vote(txID, 5, 100)
	wrongChain.ChainID = testChainID + 1
	_, err := acc.Add(wrongChain)
	require.ErrorIs(err, ErrWrongChain)

	// evicted / unknown slot
	_, err = acc.Add(vdrs[0].vote(txID, 6, 100))
	require.ErrorIs(err, ErrSnapshotEvicted)

	// voter not in the snapshot
	outsiderPub, outsiderPriv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(err)
	outsider := testValidator{nodeID: ids.NodeID{0x99}, pub: outsiderPub, priv: outsiderPriv}
	_, err = acc.Add(outsider.vote(txID, 5, 100))
	require.ErrorIs(err, ErrVoterNotInAVS)

	// claimed weight must match the snapshot
	_, err = acc.Add(vdrs[0].vote(txID, 5, 999))
	require.ErrorIs(err, ErrWeightMismatch)

	// tampered signature
	bad := vdrs[0].vote(txID, 5, 100)
	bad.Signature[0] ^= 0xff
	_, err = acc.Add(bad)
	require.ErrorIs(err, ErrInvalidVoteSig)
}

func TestSnapshotWindowEviction(t *testing.T) {
	require := require.New(t)

	_, set := newValidators(t, 2, 50)
	snapshots := NewSnapshots()
	for slot := uint64(0); slot < constants.SnapshotWindow+10; slot++ {
		snapshots.Take(slot, set)
	}
	require.Equal(constants.SnapshotWindow, snapshots.Len())

	_, err := snapshots.Get(5)
	require.ErrorIs(err, ErrSnapshotEvicted)
	_, err = snapshots.Get(constants.SnapshotWindow + 9)
	require.NoError(err)
}

func TestProofRoundTrip(t *testing.T) {
	require := require.New(t)

	vdrs, set := newValidators(t, 3, 100)
	snapshots := NewSnapshots()
	snapshots.Take(5, set)
	acc := NewAccumulator(testChainID, DefaultThreshold(), snapshots, nil, logging.NoLog{})

	txID := ids.ID{0x42}
	for _, vdr := range vdrs {
		_, _ = acc.Add(vdr.vote(txID, 5, 100))
	}
	proof, ok := acc.Proof(txID)
	require.True(ok)

	bytes, err := proof.Marshal()
	require.NoError(err)
	parsed, err := UnmarshalProof(bytes)
	require.NoError(err)
	require.Equal(proof.TxID, parsed.TxID)
	require.Equal(proof.AccumulatedWeight, parsed.AccumulatedWeight)
	require.Equal(len(proof.Votes), len(parsed.Votes))

	snap, err := snapshots.Get(5)
	require.NoError(err)
	require.NoError(parsed.Verify(snap, DefaultThreshold()))
}
