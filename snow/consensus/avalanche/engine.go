// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package avalanche

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/time-coin/timecoin/ids"
	"github.com/time-coin/timecoin/mempool"
	"github.com/time-coin/timecoin/snow/consensus/snowball"
	"github.com/time-coin/timecoin/snow/validators"
	"github.com/time-coin/timecoin/utils/logging"
)

var (
	ErrAlreadyIssued = errors.New("transaction already issued")

	_ VoteResponder = (*Engine)(nil)
)

// VoteClient performs one round of subsampled queries. Implemented by the
// network layer; mocked in tests.
type VoteClient interface {
	// RequestVotes asks [vdrs] for their preference on [txID] and blocks
	// until every response arrived or the query timeout elapsed.
	// Non-responders are reported separately so the engine can count them
	// against the current preference.
	RequestVotes(ctx context.Context, txID ids.ID, vdrs []*validators.Validator, timeout time.Duration) (accept int, reject int, missing int)
}

// VoteResponder answers other validators' queries with this node's current
// preference.
type VoteResponder interface {
	Preference(txID ids.ID) snowball.Preference
}

// Events receives terminal transitions. Calls are made from per-transaction
// goroutines.
type Events interface {
	// TxAccepted fires when a transaction finalizes with preference accept
	TxAccepted(txID ids.ID)
	// TxRejected fires when a transaction finalizes with preference reject
	// or exhausts its rounds
	TxRejected(txID ids.ID)
}

type txState struct {
	sb *snowball.Snowball
}

// Engine drives every pending transaction toward finalized or rejected with
// repeated stake-weighted subsampled polls. Each transaction runs an
// independent loop; at most one round per transaction is in flight.
type Engine struct {
	params  snowball.Parameters
	vdrs    validators.Set
	client  VoteClient
	mempool mempool.Mempool
	events  Events
	log     logging.Logger
	metrics *Metrics

	lock sync.Mutex
	txs  map[ids.ID]*txState

	wg sync.WaitGroup
}

func New(
	params snowball.Parameters,
	vdrs validators.Set,
	client VoteClient,
	pool mempool.Mempool,
	events Events,
	log logging.Logger,
	metrics *Metrics,
) (*Engine, error) {
	if err := params.Verify(); err != nil {
		return nil, err
	}
	return &Engine{
		params:  params,
		vdrs:    vdrs,
		client:  client,
		mempool: pool,
		events:  events,
		log:     log,
		metrics: metrics,
		txs:     make(map[ids.ID]*txState),
	}, nil
}

// Issue starts the voting loop for [txID]. The transaction must already be
// admitted to the mempool; its initial preference is accept.
func (e *Engine) Issue(ctx context.Context, txID ids.ID) error {
	e.lock.Lock()
	if _, ok := e.txs[txID]; ok {
		e.lock.Unlock()
		return ErrAlreadyIssued
	}
	state := &txState{
		sb: snowball.NewSnowball(snowball.Accept, e.params.Beta),
	}
	e.txs[txID] = state
	e.lock.Unlock()

	e.wg.Add(1)
	go e.run(ctx, txID, state)
	return nil
}

// Preference implements VoteResponder. Unknown transactions and transactions
// in the rejection cache answer reject; a held transaction answers the local
// snowball color.
func (e *Engine) Preference(txID ids.ID) snowball.Preference {
	e.lock.Lock()
	state, ok := e.txs[txID]
	e.lock.Unlock()

	if ok {
		return state.sb.Preference()
	}
	if e.mempool.Has(txID) {
		return snowball.Accept
	}
	return snowball.Reject
}

// ForceReject finalizes [txID] at reject. Used when a conflicting
// transaction finalized first.
func (e *Engine) ForceReject(txID ids.ID) {
	e.lock.Lock()
	state, ok := e.txs[txID]
	if ok {
		state.sb.ForceReject()
	}
	e.lock.Unlock()
}

// Shutdown waits for every transaction loop to observe cancellation
func (e *Engine) Shutdown() {
	e.wg.Wait()
}

func (e *Engine) run(ctx context.Context, txID ids.ID, state *txState) {
	defer e.wg.Done()

	timer := time.NewTimer(0)
	defer timer.Stop()
	<-timer.C

	for round := 0; round < e.params.MaxRounds; round++ {
		if ctx.Err() != nil {
			e.drop(txID)
			return
		}

		e.lock.Lock()
		finalized := state.sb.Finalized()
		pref := state.sb.Preference()
		e.lock.Unlock()
		if finalized {
			break
		}

		k := e.params.EffectiveK(e.vdrs.Len())
		if k == 0 {
			// No one to ask; wait for validators to appear.
			if !e.sleep(ctx, timer, e.params.RoundInterval) {
				e.drop(txID)
				return
			}
			continue
		}
		sample, err := e.vdrs.Sample(k)
		if err != nil {
			e.log.Debug("sampling failed",
				zap.Stringer("txID", txID),
				zap.Error(err),
			)
			if !e.sleep(ctx, timer, e.params.RoundInterval) {
				e.drop(txID)
				return
			}
			continue
		}

		accept, reject, missing := e.client.RequestVotes(ctx, txID, sample, e.params.QueryTimeout)

		// A silent validator counts against the current preference.
		if pref == snowball.Accept {
			reject += missing
		} else {
			accept += missing
		}

		alpha := e.params.AlphaFor(len(sample))
		e.lock.Lock()
		state.sb.RecordPoll(accept, reject, alpha)
		finalized = state.sb.Finalized()
		conf := state.sb.Confidence()
		e.lock.Unlock()

		if e.metrics != nil {
			e.metrics.Rounds.Inc()
		}
		e.log.Verbo("poll recorded",
			zap.Stringer("txID", txID),
			zap.Int("round", round),
			zap.Int("accept", accept),
			zap.Int("reject", reject),
			zap.Int("confidence", conf),
		)

		if finalized {
			break
		}
		if !e.sleep(ctx, timer, e.params.RoundInterval) {
			e.drop(txID)
			return
		}
	}

	e.lock.Lock()
	accepted := state.sb.Finalized() && state.sb.Preference() == snowball.Accept
	delete(e.txs, txID)
	e.lock.Unlock()

	if accepted {
		if e.metrics != nil {
			e.metrics.Finalized.Inc()
		}
		e.log.Debug("transaction finalized", zap.Stringer("txID", txID))
		e.mempool.MarkFinalized(txID)
		e.events.TxAccepted(txID)
		return
	}

	// Rejected outright or undecided after max rounds: release the input
	// locks and remember the txid so replays short-circuit.
	if e.metrics != nil {
		e.metrics.Rejected.Inc()
	}
	e.log.Debug("transaction rejected", zap.Stringer("txID", txID))
	e.mempool.MarkRejected(txID)
	e.events.TxRejected(txID)
}

// drop abandons a transaction on shutdown without a terminal decision,
// releasing its locks.
func (e *Engine) drop(txID ids.ID) {
	e.lock.Lock()
	delete(e.txs, txID)
	e.lock.Unlock()
	e.mempool.Remove(txID, true)
}

func (e *Engine) sleep(ctx context.Context, timer *time.Timer, d time.Duration) bool {
	timer.Reset(d)
	select {
	case <-ctx.Done():
		if !timer.Stop() {
			<-timer.C
		}
		return false
	case <-timer.C:
		return true
	}
}
