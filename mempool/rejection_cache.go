// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package mempool

import (
	"sync"
	"time"

	"github.com/time-coin/timecoin/ids"
	"github.com/time-coin/timecoin/utils/timer/mockable"
)

// rejectionCache remembers recently rejected txids so replayed submissions
// are refused before any signature work.
type rejectionCache struct {
	lock  sync.Mutex
	clock *mockable.Clock
	ttl   time.Duration

	rejectedAt map[ids.ID]time.Time
}

func newRejectionCache(clock *mockable.Clock, ttl time.Duration) *rejectionCache {
	return &rejectionCache{
		clock:      clock,
		ttl:        ttl,
		rejectedAt: make(map[ids.ID]time.Time),
	}
}

func (rc *rejectionCache) Add(txID ids.ID) {
	now := rc.clock.Time()
	rc.lock.Lock()
	defer rc.lock.Unlock()

	// Opportunistically drop expired entries so the map tracks the flood
	// window rather than history.
	for id, at := range rc.rejectedAt {
		if now.Sub(at) > rc.ttl {
			delete(rc.rejectedAt, id)
		}
	}
	rc.rejectedAt[txID] = now
}

func (rc *rejectionCache) Contains(txID ids.ID) bool {
	rc.lock.Lock()
	defer rc.lock.Unlock()

	at, ok := rc.rejectedAt[txID]
	if !ok {
		return false
	}
	if rc.clock.Time().Sub(at) > rc.ttl {
		delete(rc.rejectedAt, txID)
		return false
	}
	return true
}
