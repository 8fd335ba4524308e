// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package mempool

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/btree"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/time-coin/timecoin/ids"
	"github.com/time-coin/timecoin/txs"
	"github.com/time-coin/timecoin/utils/timer/mockable"
	"github.com/time-coin/timecoin/utxoledger"
)

const (
	DefaultMaxEntries = 10_000
	DefaultMaxBytes   = 300 * 1024 * 1024

	rejectionTTL = 10 * time.Minute

	btreeDegree = 16
)

var (
	ErrCoinbase         = errors.New("coinbase transactions are not relayable")
	ErrDuplicateTx      = errors.New("transaction already in mempool")
	ErrRecentlyRejected = errors.New("transaction recently rejected")
	ErrConflict         = errors.New("transaction conflicts with a pending spend")
	ErrMissingUTXO      = errors.New("transaction references an unknown utxo")
	ErrNotUnspent       = errors.New("transaction references a spent utxo")
	ErrMempoolFull      = errors.New("mempool is full")

	_ Mempool = (*mempool)(nil)
)

// Status tracks a held transaction through Avalanche
type Status byte

const (
	StatusPending Status = iota
	StatusFinalized
)

// Entry is a validated transaction held by the mempool
type Entry struct {
	Tx         *txs.Tx
	ArrivalTs  time.Time
	Fee        uint64
	FeePerByte float64
	Status     Status
}

// Mempool validates and holds pending transactions and provides the
// deterministic selection used for block building.
type Mempool interface {
	// Add runs the admission pipeline: structural checks, UTXO existence and
	// signatures, fee rules, then input locking. On success the entry is
	// held with StatusPending.
	Add(tx *txs.Tx) error

	// Get returns the entry for [txID], if held
	Get(txID ids.ID) (*Entry, bool)

	Has(txID ids.ID) bool

	// MarkFinalized flips [txID] into the finalized pool
	MarkFinalized(txID ids.ID) bool

	// Remove drops [txID]. When [unlockInputs] is set its input locks are
	// released (rejection path); committed transactions keep their locks for
	// the ledger commit.
	Remove(txID ids.ID, unlockInputs bool)

	// MarkRejected drops [txID], releases its locks and enters it into the
	// rejection cache.
	MarkRejected(txID ids.ID)

	// WasRejected reports whether [txID] is in the rejection cache
	WasRejected(txID ids.ID) bool

	// PendingTxIDs lists transactions still undergoing Avalanche voting
	PendingTxIDs() []ids.ID

	// SelectFinalized returns up to [maxCount] finalized transactions whose
	// combined size is at most [maxBytes], in descending fee-per-byte order
	// with ties broken by ascending txid.
	SelectFinalized(maxBytes int, maxCount int) []*txs.Tx

	// ConflictsWith returns the held transaction spending [utxoID], if any
	ConflictsWith(utxoID txs.UTXOID) (ids.ID, bool)

	Len() int
}

// feeIndexKey orders entries by descending fee rate, ascending txid
type feeIndexKey struct {
	feePerByte float64
	txID       ids.ID
}

func feeIndexLess(a, b feeIndexKey) bool {
	if a.feePerByte != b.feePerByte {
		return a.feePerByte > b.feePerByte
	}
	return a.txID.Compare(b.txID) < 0
}

// Metrics reports mempool occupancy
type Metrics struct {
	NumTxs    prometheus.Gauge
	NumBytes  prometheus.Gauge
	Evictions prometheus.Counter
}

func NewMetrics(namespace string, registerer prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		NumTxs: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "txs",
			Help:      "transactions currently held",
		}),
		NumBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "bytes",
			Help:      "byte footprint of held transactions",
		}),
		Evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evictions",
			Help:      "entries evicted due to mempool pressure",
		}),
	}
	for _, c := range []prometheus.Collector{m.NumTxs, m.NumBytes, m.Evictions} {
		if err := registerer.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

type Config struct {
	MaxEntries int
	MaxBytes   int
}

type mempool struct {
	cfg     Config
	ledger  utxoledger.Ledger
	clock   *mockable.Clock
	metrics *Metrics

	lock      sync.RWMutex
	entries   map[ids.ID]*Entry
	spenders  map[ids.ID]ids.ID // outpoint inputID -> txID holding it
	feeIndex  *btree.BTreeG[feeIndexKey]
	byteCount int

	rejected *rejectionCache
}

func New(cfg Config, ledger utxoledger.Ledger, clock *mockable.Clock, metrics *Metrics) Mempool {
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = DefaultMaxEntries
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = DefaultMaxBytes
	}
	return &mempool{
		cfg:      cfg,
		ledger:   ledger,
		clock:    clock,
		metrics:  metrics,
		entries:  make(map[ids.ID]*Entry),
		spenders: make(map[ids.ID]ids.ID),
		feeIndex: btree.NewG(btreeDegree, feeIndexLess),
		rejected: newRejectionCache(clock, rejectionTTL),
	}
}

func (m *mempool) Add(tx *txs.Tx) error {
	txID := tx.ID()
	if tx.IsCoinbase() {
		return ErrCoinbase
	}
	if m.rejected.Contains(txID) {
		return ErrRecentlyRejected
	}
	if m.Has(txID) {
		return ErrDuplicateTx
	}
	if err := tx.SyntacticVerify(); err != nil {
		m.rejected.Add(txID)
		return err
	}

	// Semantic pass: every input exists, is unspent (or locked by us from a
	// retry) and carries a verifying signature.
	inputValue := uint64(0)
	for i, in := range tx.Inputs {
		utxo, err := m.ledger.Get(in.UTXOID)
		if err != nil {
			m.rejected.Add(txID)
			return fmt.Errorf("%w: %s", ErrMissingUTXO, err)
		}
		if utxo.State != utxoledger.Unspent &&
			!(utxo.State == utxoledger.Locked && utxo.SpenderTxID == txID) {
			m.rejected.Add(txID)
			if utxo.State == utxoledger.Locked {
				return ErrConflict
			}
			return ErrNotUnspent
		}
		if err := txs.VerifyInputSignature(tx, uint32(i), utxo.Value, utxo.PubKey); err != nil {
			m.rejected.Add(txID)
			return err
		}
		inputValue += utxo.Value
	}
	fee, err := tx.Fee(inputValue)
	if err != nil {
		m.rejected.Add(txID)
		return err
	}

	// Lock inputs in canonical order; on any failure release what was taken.
	acquired := make([]txs.UTXOID, 0, len(tx.Inputs))
	for _, in := range tx.Inputs {
		if err := m.ledger.TryLock(in.UTXOID, txID); err != nil {
			for _, got := range acquired {
				_ = m.ledger.Unlock(got, txID)
			}
			m.rejected.Add(txID)
			if errors.Is(err, utxoledger.ErrAlreadyLocked) {
				return ErrConflict
			}
			return err
		}
		acquired = append(acquired, in.UTXOID)
	}

	entry := &Entry{
		Tx:         tx,
		ArrivalTs:  m.clock.Time(),
		Fee:        fee,
		FeePerByte: float64(fee) / float64(tx.Size()),
		Status:     StatusPending,
	}

	m.lock.Lock()
	if _, ok := m.entries[txID]; ok {
		m.lock.Unlock()
		return ErrDuplicateTx
	}
	m.entries[txID] = entry
	for _, in := range tx.Inputs {
		m.spenders[in.UTXOID.InputID()] = txID
	}
	m.feeIndex.ReplaceOrInsert(feeIndexKey{feePerByte: entry.FeePerByte, txID: txID})
	m.byteCount += tx.Size()
	evicted := m.evictLocked()
	m.updateMetricsLocked()
	m.lock.Unlock()

	for _, evictedID := range evicted {
		m.ledger.ReleaseLocks(evictedID)
	}
	return nil
}

// evictLocked drops the lowest-fee-rate pending entries until the caps hold.
// Must be called with m.lock held; returns the txids whose input locks the
// caller must release.
func (m *mempool) evictLocked() []ids.ID {
	var evicted []ids.ID
	for len(m.entries) > m.cfg.MaxEntries || m.byteCount > m.cfg.MaxBytes {
		var victim feeIndexKey
		found := false
		m.feeIndex.Descend(func(key feeIndexKey) bool {
			if entry, ok := m.entries[key.txID]; ok && entry.Status == StatusPending {
				victim = key
				found = true
				return false
			}
			return true
		})
		if !found {
			break
		}
		m.removeLocked(victim.txID)
		evicted = append(evicted, victim.txID)
		if m.metrics != nil {
			m.metrics.Evictions.Inc()
		}
	}
	return evicted
}

func (m *mempool) removeLocked(txID ids.ID) {
	entry, ok := m.entries[txID]
	if !ok {
		return
	}
	delete(m.entries, txID)
	for _, in := range entry.Tx.Inputs {
		if m.spenders[in.UTXOID.InputID()] == txID {
			delete(m.spenders, in.UTXOID.InputID())
		}
	}
	m.feeIndex.Delete(feeIndexKey{feePerByte: entry.FeePerByte, txID: txID})
	m.byteCount -= entry.Tx.Size()
}

func (m *mempool) updateMetricsLocked() {
	if m.metrics == nil {
		return
	}
	m.metrics.NumTxs.Set(float64(len(m.entries)))
	m.metrics.NumBytes.Set(float64(m.byteCount))
}

func (m *mempool) Get(txID ids.ID) (*Entry, bool) {
	m.lock.RLock()
	defer m.lock.RUnlock()

	entry, ok := m.entries[txID]
	return entry, ok
}

func (m *mempool) Has(txID ids.ID) bool {
	m.lock.RLock()
	defer m.lock.RUnlock()

	_, ok := m.entries[txID]
	return ok
}

func (m *mempool) MarkFinalized(txID ids.ID) bool {
	m.lock.Lock()
	defer m.lock.Unlock()

	entry, ok := m.entries[txID]
	if !ok {
		return false
	}
	entry.Status = StatusFinalized
	return true
}

func (m *mempool) Remove(txID ids.ID, unlockInputs bool) {
	m.lock.Lock()
	entry, ok := m.entries[txID]
	if ok {
		m.removeLocked(txID)
	}
	m.updateMetricsLocked()
	m.lock.Unlock()

	if ok && unlockInputs {
		for _, in := range entry.Tx.Inputs {
			_ = m.ledger.Unlock(in.UTXOID, txID)
		}
	}
}

func (m *mempool) MarkRejected(txID ids.ID) {
	m.Remove(txID, true)
	m.rejected.Add(txID)
}

func (m *mempool) WasRejected(txID ids.ID) bool {
	return m.rejected.Contains(txID)
}

func (m *mempool) PendingTxIDs() []ids.ID {
	m.lock.RLock()
	defer m.lock.RUnlock()

	pending := make([]ids.ID, 0, len(m.entries))
	for txID, entry := range m.entries {
		if entry.Status == StatusPending {
			pending = append(pending, txID)
		}
	}
	return pending
}

func (m *mempool) SelectFinalized(maxBytes int, maxCount int) []*txs.Tx {
	m.lock.RLock()
	defer m.lock.RUnlock()

	selected := make([]*txs.Tx, 0, maxCount)
	remaining := maxBytes
	m.feeIndex.Ascend(func(key feeIndexKey) bool {
		entry, ok := m.entries[key.txID]
		if !ok || entry.Status != StatusFinalized {
			return true
		}
		if entry.Tx.Size() > remaining {
			return true
		}
		selected = append(selected, entry.Tx)
		remaining -= entry.Tx.Size()
		return len(selected) < maxCount
	})
	return selected
}

func (m *mempool) ConflictsWith(utxoID txs.UTXOID) (ids.ID, bool) {
	m.lock.RLock()
	defer m.lock.RUnlock()

	txID, ok := m.spenders[utxoID.InputID()]
	return txID, ok
}

func (m *mempool) Len() int {
	m.lock.RLock()
	defer m.lock.RUnlock()

	return len(m.entries)
}
