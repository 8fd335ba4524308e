// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package vrf

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/time-coin/timecoin/ids"
)

func TestEvaluateDeterministic(t *testing.T) {
	require := require.New(t)

	key, err := GenerateKey()
	require.NoError(err)
	input := LeaderInput(ids.ID{0xaa}, 11)

	out1, proof1, err := key.Evaluate(input)
	require.NoError(err)
	out2, proof2, err := key.Evaluate(input)
	require.NoError(err)
	require.Equal(out1, out2)
	require.Equal(proof1, proof2)

	// a different slot yields a different ticket
	out3, _, err := key.Evaluate(LeaderInput(ids.ID{0xaa}, 12))
	require.NoError(err)
	require.NotEqual(out1, out3)
}

func TestVerify(t *testing.T) {
	require := require.New(t)

	key, err := GenerateKey()
	require.NoError(err)
	pub, err := key.PublicKey()
	require.NoError(err)

	input := LeaderInput(ids.ID{0xaa}, 11)
	output, proof, err := key.Evaluate(input)
	require.NoError(err)

	require.NoError(Verify(pub, input, output, proof))

	// flipping one output byte fails verification
	tampered := append([]byte{}, output...)
	tampered[0] ^= 0xff
	require.ErrorIs(Verify(pub, input, tampered, proof), ErrInvalidProof)

	// altering the input fails verification
	require.ErrorIs(Verify(pub, LeaderInput(ids.ID{0xab}, 11), output, proof), ErrInvalidProof)

	// a different key's public does not verify the proof
	otherKey, err := GenerateKey()
	require.NoError(err)
	otherPub, err := otherKey.PublicKey()
	require.NoError(err)
	require.ErrorIs(Verify(otherPub, input, output, proof), ErrInvalidProof)
}

func TestKeyRoundTrip(t *testing.T) {
	require := require.New(t)

	key, err := GenerateKey()
	require.NoError(err)
	restored, err := NewKey(key.Bytes())
	require.NoError(err)

	input := LeaderInput(ids.Empty, 1)
	out1, _, err := key.Evaluate(input)
	require.NoError(err)
	out2, _, err := restored.Evaluate(input)
	require.NoError(err)
	require.Equal(out1, out2)
}

func TestCompareCandidates(t *testing.T) {
	require := require.New(t)

	small := ids.NodeID{0x01}
	large := ids.NodeID{0xff}

	// higher score wins regardless of ID
	require.Positive(CompareCandidates([]byte{2}, large, []byte{1}, small))
	require.Negative(CompareCandidates([]byte{1}, large, []byte{2}, small))

	// equal scores: smaller node ID wins
	require.Positive(CompareCandidates([]byte{7}, small, []byte{7}, large))
	require.Negative(CompareCandidates([]byte{7}, large, []byte{7}, small))
	require.Zero(CompareCandidates([]byte{7}, small, []byte{7}, small))
}
