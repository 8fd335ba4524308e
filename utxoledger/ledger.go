// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package utxoledger

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/time-coin/timecoin/database"
	"github.com/time-coin/timecoin/ids"
	"github.com/time-coin/timecoin/txs"
	"github.com/time-coin/timecoin/utils/timer/mockable"
)

const numShards = 64

var (
	ErrNotFound      = errors.New("utxo not found")
	ErrAlreadyLocked = errors.New("utxo already locked")
	ErrNotUnspent    = errors.New("utxo not unspent")
	ErrNotLocked     = errors.New("utxo not locked by spender")
	ErrInputMissing  = errors.New("input utxo missing")
	ErrNotSpent      = errors.New("utxo not spent")

	_ Ledger = (*ledger)(nil)
)

// Ledger owns every output. All state transitions go through it; callers
// never hold references that survive a commit.
//
// Single-spend invariant: for any outpoint at most one transaction holds the
// lock, and Unspent -> Locked -> (Spent | Unspent) are the only transitions,
// with Spent -> Archived once the spender is committed.
type Ledger interface {
	// Get returns a copy of the outpoint's record
	Get(utxoID txs.UTXOID) (*UTXO, error)

	// TryLock transitions Unspent -> Locked for [spender]. Atomic against
	// any other TryLock of the same outpoint.
	TryLock(utxoID txs.UTXOID, spender ids.ID) error

	// Unlock transitions Locked -> Unspent only if [spender] holds the lock;
	// otherwise it is a no-op.
	Unlock(utxoID txs.UTXOID, spender ids.ID) error

	// CommitSpends atomically marks every input Spent (requiring [spender]'s
	// lock) and inserts [newOutputs] as Unspent. On failure no state changes.
	CommitSpends(spender ids.ID, inputs []txs.UTXOID, newOutputs []*UTXO) error

	// Archive transitions the spent inputs of the given transactions to
	// Archived after block commitment.
	Archive(spends map[ids.ID][]txs.UTXOID) error

	// AddUTXOs inserts brand new Unspent outputs (genesis, coinbase)
	AddUTXOs(utxos []*UTXO) error

	// Rollback reverts one committed transaction during a reorg: re-creates
	// its consumed outpoints as Unspent and deletes its created outputs.
	Rollback(spender ids.ID, consumed []*UTXO, created []txs.UTXOID) error

	// ReleaseLocks force-unlocks every outpoint locked by [spender]
	ReleaseLocks(spender ids.ID)
}

type shard struct {
	lock  sync.RWMutex
	utxos map[ids.ID]*UTXO
}

type ledger struct {
	db     database.Database
	clock  *mockable.Clock
	shards [numShards]shard
}

// New returns a ledger backed by [db], loading nothing eagerly; records are
// pulled in from disk on first access.
func New(db database.Database, clock *mockable.Clock) Ledger {
	l := &ledger{
		db:    db,
		clock: clock,
	}
	for i := range l.shards {
		l.shards[i].utxos = make(map[ids.ID]*UTXO)
	}
	return l
}

func (l *ledger) shardFor(inputID ids.ID) *shard {
	return &l.shards[inputID[0]%numShards]
}

// fetch returns the live record for [utxoID], consulting the database on a
// cache miss. The shard lock must be held.
func (l *ledger) fetch(s *shard, utxoID txs.UTXOID) (*UTXO, error) {
	inputID := utxoID.InputID()
	if utxo, ok := s.utxos[inputID]; ok {
		return utxo, nil
	}
	bytes, err := l.db.Get(inputID.Bytes())
	if err == database.ErrNotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("utxo read failed: %w", err)
	}
	utxo, err := unmarshalUTXO(bytes)
	if err != nil {
		return nil, err
	}
	s.utxos[inputID] = utxo
	return utxo, nil
}

func (l *ledger) persist(utxo *UTXO) error {
	bytes, err := utxo.marshal()
	if err != nil {
		return err
	}
	return l.db.Put(utxo.InputID().Bytes(), bytes)
}

func (l *ledger) Get(utxoID txs.UTXOID) (*UTXO, error) {
	s := l.shardFor(utxoID.InputID())
	s.lock.Lock()
	defer s.lock.Unlock()

	utxo, err := l.fetch(s, utxoID)
	if err != nil {
		return nil, err
	}
	cp := *utxo
	return &cp, nil
}

func (l *ledger) TryLock(utxoID txs.UTXOID, spender ids.ID) error {
	s := l.shardFor(utxoID.InputID())
	s.lock.Lock()
	defer s.lock.Unlock()

	utxo, err := l.fetch(s, utxoID)
	if err != nil {
		return err
	}
	switch utxo.State {
	case Locked:
		if utxo.SpenderTxID == spender {
			return nil
		}
		return ErrAlreadyLocked
	case Spent, Archived:
		return ErrNotUnspent
	}

	utxo.State = Locked
	utxo.SpenderTxID = spender
	utxo.AcquiredAt = l.clock.Unix()
	return l.persist(utxo)
}

func (l *ledger) Unlock(utxoID txs.UTXOID, spender ids.ID) error {
	s := l.shardFor(utxoID.InputID())
	s.lock.Lock()
	defer s.lock.Unlock()

	utxo, err := l.fetch(s, utxoID)
	if err != nil {
		return err
	}
	if utxo.State != Locked || utxo.SpenderTxID != spender {
		return nil
	}
	utxo.State = Unspent
	utxo.SpenderTxID = ids.Empty
	utxo.AcquiredAt = 0
	return l.persist(utxo)
}

// lockShards acquires the shard locks covering [inputIDs] in ascending shard
// order, so concurrent multi-outpoint batches cannot deadlock.
func (l *ledger) lockShards(inputIDs []ids.ID) func() {
	seen := make(map[int]struct{}, len(inputIDs))
	indices := make([]int, 0, len(inputIDs))
	for _, inputID := range inputIDs {
		idx := int(inputID[0] % numShards)
		if _, ok := seen[idx]; !ok {
			seen[idx] = struct{}{}
			indices = append(indices, idx)
		}
	}
	sort.Ints(indices)
	for _, idx := range indices {
		l.shards[idx].lock.Lock()
	}
	return func() {
		for _, idx := range indices {
			l.shards[idx].lock.Unlock()
		}
	}
}

func (l *ledger) CommitSpends(spender ids.ID, inputs []txs.UTXOID, newOutputs []*UTXO) error {
	inputIDs := make([]ids.ID, 0, len(inputs)+len(newOutputs))
	for _, in := range inputs {
		inputIDs = append(inputIDs, in.InputID())
	}
	for _, out := range newOutputs {
		inputIDs = append(inputIDs, out.InputID())
	}
	unlock := l.lockShards(inputIDs)
	defer unlock()

	// Validation pass first so a failure leaves every record untouched.
	spent := make([]*UTXO, len(inputs))
	for i, in := range inputs {
		s := l.shardFor(in.InputID())
		utxo, err := l.fetch(s, in)
		if err == ErrNotFound {
			return ErrInputMissing
		}
		if err != nil {
			return err
		}
		if utxo.State != Locked || utxo.SpenderTxID != spender {
			return ErrNotLocked
		}
		spent[i] = utxo
	}

	batch := l.db.NewBatch()
	for _, utxo := range spent {
		utxo.State = Spent
		bytes, err := utxo.marshal()
		if err != nil {
			return err
		}
		if err := batch.Put(utxo.InputID().Bytes(), bytes); err != nil {
			return err
		}
	}
	for _, out := range newOutputs {
		out.State = Unspent
		s := l.shardFor(out.InputID())
		s.utxos[out.InputID()] = out
		bytes, err := out.marshal()
		if err != nil {
			return err
		}
		if err := batch.Put(out.InputID().Bytes(), bytes); err != nil {
			return err
		}
	}
	return batch.Write()
}

func (l *ledger) Archive(spends map[ids.ID][]txs.UTXOID) error {
	batch := l.db.NewBatch()
	for spender, inputs := range spends {
		for _, in := range inputs {
			s := l.shardFor(in.InputID())
			s.lock.Lock()
			utxo, err := l.fetch(s, in)
			if err == nil && utxo.State == Spent && utxo.SpenderTxID == spender {
				utxo.State = Archived
				if bytes, merr := utxo.marshal(); merr == nil {
					err = batch.Put(utxo.InputID().Bytes(), bytes)
				} else {
					err = merr
				}
			} else if err == nil {
				err = ErrNotSpent
			}
			s.lock.Unlock()
			if err != nil {
				return err
			}
		}
	}
	return batch.Write()
}

func (l *ledger) AddUTXOs(utxos []*UTXO) error {
	batch := l.db.NewBatch()
	for _, utxo := range utxos {
		utxo.State = Unspent
		s := l.shardFor(utxo.InputID())
		s.lock.Lock()
		s.utxos[utxo.InputID()] = utxo
		s.lock.Unlock()
		bytes, err := utxo.marshal()
		if err != nil {
			return err
		}
		if err := batch.Put(utxo.InputID().Bytes(), bytes); err != nil {
			return err
		}
	}
	return batch.Write()
}

func (l *ledger) Rollback(spender ids.ID, consumed []*UTXO, created []txs.UTXOID) error {
	batch := l.db.NewBatch()
	for _, utxo := range consumed {
		utxo.State = Unspent
		utxo.SpenderTxID = ids.Empty
		utxo.AcquiredAt = 0
		s := l.shardFor(utxo.InputID())
		s.lock.Lock()
		s.utxos[utxo.InputID()] = utxo
		s.lock.Unlock()
		bytes, err := utxo.marshal()
		if err != nil {
			return err
		}
		if err := batch.Put(utxo.InputID().Bytes(), bytes); err != nil {
			return err
		}
	}
	for _, utxoID := range created {
		inputID := utxoID.InputID()
		s := l.shardFor(inputID)
		s.lock.Lock()
		delete(s.utxos, inputID)
		s.lock.Unlock()
		if err := batch.Delete(inputID.Bytes()); err != nil {
			return err
		}
	}
	return batch.Write()
}

func (l *ledger) ReleaseLocks(spender ids.ID) {
	for i := range l.shards {
		s := &l.shards[i]
		s.lock.Lock()
		for _, utxo := range s.utxos {
			if utxo.State == Locked && utxo.SpenderTxID == spender {
				utxo.State = Unspent
				utxo.SpenderTxID = ids.Empty
				utxo.AcquiredAt = 0
				_ = l.persist(utxo)
			}
		}
		s.lock.Unlock()
	}
}
