// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package mempool

import (
	"crypto/ed25519"
	"crypto/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/time-coin/timecoin/database/memdb"
	"github.com/time-coin/timecoin/ids"
	"github.com/time-coin/timecoin/txs"
	"github.com/time-coin/timecoin/utils/constants"
	"github.com/time-coin/timecoin/utils/timer/mockable"
	"github.com/time-coin/timecoin/utxoledger"
)

type testEnv struct {
	require *require.Assertions
	ledger  utxoledger.Ledger
	mempool Mempool
	clock   *mockable.Clock
	pub     ed25519.PublicKey
	priv    ed25519.PrivateKey
}

func newTestEnv(t *testing.T) *testEnv {
	require := require.New(t)

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(err)

	clock := &mockable.Clock{}
	clock.Set(time.Unix(1_700_000_000, 0))
	ledger := utxoledger.New(memdb.New(), clock)
	return &testEnv{
		require: require,
		ledger:  ledger,
		mempool: New(Config{}, ledger, clock, nil),
		clock:   clock,
		pub:     pub,
		priv:    priv,
	}
}

// fund creates an unspent output of [value] owned by the env key
func (e *testEnv) fund(b byte, value uint64) txs.UTXOID {
	utxoID := txs.UTXOID{TxID: ids.ID{b}, OutputIndex: 0}
	e.require.NoError(e.ledger.AddUTXOs([]*utxoledger.UTXO{{
		UTXOID: utxoID,
		Value:  value,
		PubKey: e.pub,
	}}))
	return utxoID
}

// spend builds a signed transaction consuming [utxoID] worth [inValue] and
// producing one output of [outValue]
func (e *testEnv) spend(utxoID txs.UTXOID, inValue, outValue uint64) *txs.Tx {
	tx := &txs.Tx{
		Version: txs.Version,
		Inputs:  []txs.Input{{UTXOID: utxoID}},
		Outputs: []txs.Output{{Value: outValue, PubKey: e.pub}},
	}
	e.require.NoError(tx.Initialize())
	tx.Inputs[0].Sig = txs.SignInput(e.priv, tx.ID(), 0, utxoID, inValue)
	e.require.NoError(tx.Initialize())
	return tx
}

func TestAdmission(t *testing.T) {
	e := newTestEnv(t)
	utxoID := e.fund(1, 10_000)
	tx := e.spend(utxoID, 10_000, 8_000)

	e.require.NoError(e.mempool.Add(tx))
	e.require.True(e.mempool.Has(tx.ID()))

	entry, ok := e.mempool.Get(tx.ID())
	e.require.True(ok)
	e.require.Equal(uint64(2_000), entry.Fee)

	// input is now locked by the admitted transaction
	got, err := e.ledger.Get(utxoID)
	e.require.NoError(err)
	e.require.Equal(utxoledger.Locked, got.State)
	e.require.Equal(tx.ID(), got.SpenderTxID)
}

func TestAdmissionRejectsUnknownUTXO(t *testing.T) {
	e := newTestEnv(t)
	tx := e.spend(txs.UTXOID{TxID: ids.ID{0x99}}, 10_000, 8_000)

	err := e.mempool.Add(tx)
	e.require.ErrorIs(err, ErrMissingUTXO)
	e.require.True(e.mempool.WasRejected(tx.ID()))

	// replays short-circuit out of the rejection cache
	e.require.ErrorIs(e.mempool.Add(tx), ErrRecentlyRejected)
}

func TestAdmissionRejectsZeroFee(t *testing.T) {
	e := newTestEnv(t)
	utxoID := e.fund(1, 10_000)
	tx := e.spend(utxoID, 10_000, 10_000)
	e.require.ErrorIs(e.mempool.Add(tx), txs.ErrInsufficientFee)
}

func TestAdmissionRejectsDust(t *testing.T) {
	e := newTestEnv(t)
	utxoID := e.fund(1, 10_000)
	tx := e.spend(utxoID, 10_000, constants.MinDust-1)
	e.require.ErrorIs(e.mempool.Add(tx), txs.ErrDustOutput)
}

func TestDoubleSpendAtAdmission(t *testing.T) {
	e := newTestEnv(t)
	utxoID := e.fund(1, 10_000)

	txA := e.spend(utxoID, 10_000, 8_000)
	txB := e.spend(utxoID, 10_000, 7_000)

	e.require.NoError(e.mempool.Add(txA))
	e.require.ErrorIs(e.mempool.Add(txB), ErrConflict)

	// the loser is cached, the winner is untouched
	e.require.True(e.mempool.WasRejected(txB.ID()))
	e.require.True(e.mempool.Has(txA.ID()))
	e.require.False(e.mempool.Has(txB.ID()))
}

func TestRejectionCacheExpires(t *testing.T) {
	e := newTestEnv(t)
	tx := e.spend(txs.UTXOID{TxID: ids.ID{0x99}}, 10_000, 8_000)
	e.require.ErrorIs(e.mempool.Add(tx), ErrMissingUTXO)
	e.require.True(e.mempool.WasRejected(tx.ID()))

	e.clock.Set(e.clock.Time().Add(rejectionTTL + time.Second))
	e.require.False(e.mempool.WasRejected(tx.ID()))
}

func TestSelectFinalizedOrdering(t *testing.T) {
	e := newTestEnv(t)

	// three funded outputs, spends with ascending fees
	low := e.spend(e.fund(1, 10_000), 10_000, 9_900)  // fee 100
	mid := e.spend(e.fund(2, 10_000), 10_000, 9_000)  // fee 1000
	high := e.spend(e.fund(3, 10_000), 10_000, 5_000) // fee 5000

	for _, tx := range []*txs.Tx{low, mid, high} {
		e.require.NoError(e.mempool.Add(tx))
		e.require.True(e.mempool.MarkFinalized(tx.ID()))
	}

	selected := e.mempool.SelectFinalized(1<<20, 10)
	e.require.Len(selected, 3)
	e.require.Equal(high.ID(), selected[0].ID())
	e.require.Equal(mid.ID(), selected[1].ID())
	e.require.Equal(low.ID(), selected[2].ID())

	// pending transactions are never selected
	pendingTx := e.spend(e.fund(4, 10_000), 10_000, 1_500)
	e.require.NoError(e.mempool.Add(pendingTx))
	selected = e.mempool.SelectFinalized(1<<20, 10)
	e.require.Len(selected, 3)

	// count cap applies in fee order
	selected = e.mempool.SelectFinalized(1<<20, 2)
	e.require.Len(selected, 2)
	e.require.Equal(high.ID(), selected[0].ID())
}

func TestEviction(t *testing.T) {
	require := require.New(t)

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(err)

	clock := &mockable.Clock{}
	clock.Set(time.Unix(1_700_000_000, 0))
	ledger := utxoledger.New(memdb.New(), clock)
	pool := New(Config{MaxEntries: 2}, ledger, clock, nil)
	e := &testEnv{require: require, ledger: ledger, mempool: pool, clock: clock, pub: pub, priv: priv}

	cheap := e.spend(e.fund(1, 10_000), 10_000, 9_900)
	mid := e.spend(e.fund(2, 10_000), 10_000, 9_000)
	rich := e.spend(e.fund(3, 10_000), 10_000, 5_000)

	require.NoError(pool.Add(cheap))
	require.NoError(pool.Add(mid))
	require.NoError(pool.Add(rich))

	// the lowest fee-rate entry was evicted and its input released
	require.Equal(2, pool.Len())
	require.False(pool.Has(cheap.ID()))
	got, err := ledger.Get(cheap.Inputs[0].UTXOID)
	require.NoError(err)
	require.Equal(utxoledger.Unspent, got.State)
}
