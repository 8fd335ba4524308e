// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package utxoledger

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/time-coin/timecoin/database/memdb"
	"github.com/time-coin/timecoin/ids"
	"github.com/time-coin/timecoin/txs"
	"github.com/time-coin/timecoin/utils/timer/mockable"
)

func newTestLedger(t *testing.T, utxos ...*UTXO) Ledger {
	l := New(memdb.New(), &mockable.Clock{})
	require.NoError(t, l.AddUTXOs(utxos))
	return l
}

func testUTXO(b byte, value uint64) *UTXO {
	return &UTXO{
		UTXOID: txs.UTXOID{TxID: ids.ID{b}, OutputIndex: 0},
		Value:  value,
		PubKey: make([]byte, 32),
	}
}

func TestTryLockTransitions(t *testing.T) {
	require := require.New(t)

	utxo := testUTXO(1, 5000)
	l := newTestLedger(t, utxo)
	spenderA := ids.ID{0xa}
	spenderB := ids.ID{0xb}

	require.NoError(l.TryLock(utxo.UTXOID, spenderA))

	// idempotent for the lock holder, exclusive for everyone else
	require.NoError(l.TryLock(utxo.UTXOID, spenderA))
	require.ErrorIs(l.TryLock(utxo.UTXOID, spenderB), ErrAlreadyLocked)

	// only the holder's unlock releases
	require.NoError(l.Unlock(utxo.UTXOID, spenderB))
	require.ErrorIs(l.TryLock(utxo.UTXOID, spenderB), ErrAlreadyLocked)
	require.NoError(l.Unlock(utxo.UTXOID, spenderA))
	require.NoError(l.TryLock(utxo.UTXOID, spenderB))
}

func TestTryLockMissing(t *testing.T) {
	l := newTestLedger(t)
	require.ErrorIs(t, l.TryLock(txs.UTXOID{TxID: ids.ID{9}}, ids.ID{1}), ErrNotFound)
}

func TestSingleSpendUnderContention(t *testing.T) {
	require := require.New(t)

	utxo := testUTXO(1, 5000)
	l := newTestLedger(t, utxo)

	const spenders = 16
	var wg sync.WaitGroup
	results := make([]error, spenders)
	for i := 0; i < spenders; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = l.TryLock(utxo.UTXOID, ids.ID{byte(i + 1)})
		}()
	}
	wg.Wait()

	winners := 0
	for _, err := range results {
		if err == nil {
			winners++
		} else {
			require.ErrorIs(err, ErrAlreadyLocked)
		}
	}
	require.Equal(1, winners)
}

func TestCommitSpends(t *testing.T) {
	require := require.New(t)

	in1 := testUTXO(1, 5000)
	in2 := testUTXO(2, 6000)
	l := newTestLedger(t, in1, in2)
	spender := ids.ID{0xcc}

	require.NoError(l.TryLock(in1.UTXOID, spender))

	// in2 is not locked: the batch fails and in1 stays locked but unspent
	out := testUTXO(3, 4000)
	err := l.CommitSpends(spender, []txs.UTXOID{in1.UTXOID, in2.UTXOID}, []*UTXO{out})
	require.ErrorIs(err, ErrNotLocked)

	got, err := l.Get(in1.UTXOID)
	require.NoError(err)
	require.Equal(Locked, got.State)
	_, err = l.Get(out.UTXOID)
	require.ErrorIs(err, ErrNotFound)

	require.NoError(l.TryLock(in2.UTXOID, spender))
	require.NoError(l.CommitSpends(spender, []txs.UTXOID{in1.UTXOID, in2.UTXOID}, []*UTXO{out}))

	got, err = l.Get(in1.UTXOID)
	require.NoError(err)
	require.Equal(Spent, got.State)
	got, err = l.Get(out.UTXOID)
	require.NoError(err)
	require.Equal(Unspent, got.State)
}

func TestArchiveAndRollback(t *testing.T) {
	require := require.New(t)

	in := testUTXO(1, 5000)
	l := newTestLedger(t, in)
	spender := ids.ID{0xdd}
	out := testUTXO(4, 3000)

	require.NoError(l.TryLock(in.UTXOID, spender))
	require.NoError(l.CommitSpends(spender, []txs.UTXOID{in.UTXOID}, []*UTXO{out}))
	require.NoError(l.Archive(map[ids.ID][]txs.UTXOID{spender: {in.UTXOID}}))

	got, err := l.Get(in.UTXOID)
	require.NoError(err)
	require.Equal(Archived, got.State)

	// archived outpoints cannot be re-locked
	require.ErrorIs(l.TryLock(in.UTXOID, ids.ID{0xee}), ErrNotUnspent)

	// reorg path: consumed comes back unspent, created disappears
	consumed := *got
	require.NoError(l.Rollback(spender, []*UTXO{&consumed}, []txs.UTXOID{out.UTXOID}))

	got, err = l.Get(in.UTXOID)
	require.NoError(err)
	require.Equal(Unspent, got.State)
	_, err = l.Get(out.UTXOID)
	require.ErrorIs(err, ErrNotFound)
}

func TestReleaseLocks(t *testing.T) {
	require := require.New(t)

	a := testUTXO(1, 5000)
	b := testUTXO(2, 5000)
	l := newTestLedger(t, a, b)
	spender := ids.ID{0x11}

	require.NoError(l.TryLock(a.UTXOID, spender))
	require.NoError(l.TryLock(b.UTXOID, spender))
	l.ReleaseLocks(spender)

	other := ids.ID{0x22}
	require.NoError(l.TryLock(a.UTXOID, other))
	require.NoError(l.TryLock(b.UTXOID, other))
}

func TestUTXOPersistence(t *testing.T) {
	require := require.New(t)

	db := memdb.New()
	clock := &mockable.Clock{}
	l := New(db, clock)
	utxo := testUTXO(7, 9000)
	require.NoError(l.AddUTXOs([]*UTXO{utxo}))
	require.NoError(l.TryLock(utxo.UTXOID, ids.ID{0x33}))

	// a fresh ledger over the same database sees the locked record
	l2 := New(db, clock)
	got, err := l2.Get(utxo.UTXOID)
	require.NoError(err)
	require.Equal(Locked, got.State)
	require.Equal(ids.ID{0x33}, got.SpenderTxID)
	require.Equal(uint64(9000), got.Value)
}
