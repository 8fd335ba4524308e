// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package tsdc

import (
	"crypto/ed25519"
	"crypto/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/time-coin/timecoin/database/memdb"
	"github.com/time-coin/timecoin/ids"
	"github.com/time-coin/timecoin/mempool"
	"github.com/time-coin/timecoin/snow/consensus/vfp"
	"github.com/time-coin/timecoin/snow/validators"
	"github.com/time-coin/timecoin/txs"
	"github.com/time-coin/timecoin/utils/timer/mockable"
	"github.com/time-coin/timecoin/utxoledger"
	"github.com/time-coin/timecoin/vrf"
)

func TestBuildBlock(t *testing.T) {
	require := require.New(t)

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(err)
	vrfKey, err := vrf.NewKey(priv)
	require.NoError(err)
	nodeID := ids.NodeIDFromPublicKey(pub)

	clock := &mockable.Clock{}
	clock.Set(time.Unix(6_600, 0))
	slotClock := NewSlotClock(clock, 600*time.Second)

	ledger := utxoledger.New(memdb.New(), clock)
	pool := mempool.New(mempool.Config{}, ledger, clock, nil)

	// two finalized transfers with different fee rates
	fees := uint64(0)
	for i := byte(1); i <= 2; i++ {
		utxoID := txs.UTXOID{TxID: ids.ID{i}, OutputIndex: 0}
		require.NoError(ledger.AddUTXOs([]*utxoledger.UTXO{{
			UTXOID: utxoID,
			Value:  100_000,
			PubKey: pub,
		}}))
		tx := &txs.Tx{
			Version: txs.Version,
			Inputs:  []txs.Input{{UTXOID: utxoID}},
			Outputs: []txs.Output{{Value: 100_000 - uint64(i)*10_000, PubKey: pub}},
		}
		require.NoError(tx.Initialize())
		tx.Inputs[0].Sig = txs.SignInput(priv, tx.ID(), 0, utxoID, 100_000)
		require.NoError(tx.Initialize())
		require.NoError(pool.Add(tx))
		require.True(pool.MarkFinalized(tx.ID()))
		fees += uint64(i) * 10_000
	}

	set := validators.NewSet()
	require.NoError(set.Add(nodeID, pub, 100))
	otherPub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(err)
	require.NoError(set.Add(ids.NodeIDFromPublicKey(otherPub), otherPub, 100))
	snap := vfp.NewSnapshots().Take(11, set)

	producer := NewProducer(nodeID, priv, vrfKey, pool, slotClock, 0, 0)
	parentHash := ids.ID{0xaa}
	blk, err := producer.BuildBlock(11, 10, parentHash, snap)
	require.NoError(err)

	require.NoError(blk.VerifyStructure())
	require.NoError(blk.VerifySignature(pub))
	require.Equal(uint64(11), blk.Header.Height)
	require.Equal(parentHash, blk.Header.PrevHash)
	require.Equal(Subsidy(11), blk.Header.BlockReward)
	require.Equal(nodeID, blk.Header.Leader)

	// the VRF ticket verifies against the leader key
	input := vrf.LeaderInput(parentHash, 11)
	require.NoError(vrf.Verify(pub, input, blk.Header.VRFOutput, blk.Header.VRFProof))

	// coinbase conserves subsidy plus fees exactly
	coinbaseValue, err := blk.Coinbase().SumOutputs()
	require.NoError(err)
	require.Equal(Subsidy(11)+fees, coinbaseValue)

	// transfers are packed by descending fee rate
	body := blk.NonCoinbaseTxs()
	require.Len(body, 2)
	first, _ := pool.Get(body[0].ID())
	second, _ := pool.Get(body[1].ID())
	require.Greater(first.FeePerByte, second.FeePerByte)
}
