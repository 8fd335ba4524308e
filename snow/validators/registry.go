// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package validators

import (
	"errors"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/time-coin/timecoin/ids"
	"github.com/time-coin/timecoin/utils/timer/mockable"
)

// Reputation penalties per misbehavior category
const (
	PenaltyRateLimit        = 5
	PenaltyMalformed        = 10
	PenaltyInvalidSignature = 20
	PenaltyConflictingVotes = 50

	// BanThreshold: at or below this reputation the peer is refused
	BanThreshold = -50

	// MinReputation and MaxReputation clamp the score
	MinReputation = -100
	MaxReputation = 100

	// BanDuration is how long a banned peer is refused connections
	BanDuration = time.Hour

	// NonceWindow is the replay-rejection horizon
	NonceWindow = 10 * time.Minute

	// DefaultRateLimitPerMinute caps per-peer inbound requests
	DefaultRateLimitPerMinute = 100
)

var (
	ErrBanned         = errors.New("peer is banned")
	ErrReplayedNonce  = errors.New("nonce replayed within window")
	ErrStakeTooLow    = errors.New("stake below admission threshold")
	ErrRateLimited    = errors.New("rate limit exceeded")
	ErrUnknownPeer    = errors.New("unknown peer")

	_ Registry = (*registry)(nil)
)

// Registry tracks the behavior of connected peers: reputation, bans, replay
// nonces and rate limits. It wraps the validator Set with admission policy.
type Registry interface {
	// Admit registers [nodeID] if its verified stake clears [minStake] and
	// it is not banned.
	Admit(nodeID ids.NodeID, publicKey []byte, stake uint64, minStake uint64) error

	// Punish decrements reputation by [penalty]; at or below BanThreshold
	// the peer is banned. Returns true if this punishment banned the peer.
	Punish(nodeID ids.NodeID, penalty int) bool

	// IsBanned reports whether [nodeID] is currently refused
	IsBanned(nodeID ids.NodeID) bool

	// CheckNonce records [nonce] from [nodeID], rejecting replays inside
	// NonceWindow.
	CheckNonce(nodeID ids.NodeID, nonce uint64) error

	// AllowRequest consumes one rate-limit token for [nodeID]. A false
	// return means the message must be dropped and the peer punished.
	AllowRequest(nodeID ids.NodeID) bool

	// Touch records message activity for [nodeID]
	Touch(nodeID ids.NodeID)

	// Reputation returns the current score
	Reputation(nodeID ids.NodeID) (int, error)

	// Set returns the underlying validator set
	Set() Set
}

type peerRecord struct {
	reputation  int
	lastSeen    time.Time
	bannedUntil time.Time
	limiter     *rate.Limiter
	nonces      map[uint64]time.Time
}

type registry struct {
	clock      *mockable.Clock
	vdrs       Set
	ratePerMin int

	lock  sync.Mutex
	peers map[ids.NodeID]*peerRecord
}

func NewRegistry(vdrs Set, clock *mockable.Clock, ratePerMinute int) Registry {
	if ratePerMinute <= 0 {
		ratePerMinute = DefaultRateLimitPerMinute
	}
	return &registry{
		clock:      clock,
		vdrs:       vdrs,
		ratePerMin: ratePerMinute,
		peers:      make(map[ids.NodeID]*peerRecord),
	}
}

func (r *registry) record(nodeID ids.NodeID) *peerRecord {
	rec, ok := r.peers[nodeID]
	if !ok {
		rec = &peerRecord{
			limiter: rate.NewLimiter(rate.Limit(float64(r.ratePerMin)/60.0), r.ratePerMin),
			nonces:  make(map[uint64]time.Time),
		}
		r.peers[nodeID] = rec
	}
	return rec
}

func (r *registry) Admit(nodeID ids.NodeID, publicKey []byte, stake uint64, minStake uint64) error {
	if stake < minStake {
		return ErrStakeTooLow
	}

	r.lock.Lock()
	rec := r.record(nodeID)
	banned := r.clock.Time().Before(rec.bannedUntil)
	r.lock.Unlock()

	if banned {
		return ErrBanned
	}
	err := r.vdrs.Add(nodeID, publicKey, stake)
	if errors.Is(err, ErrDuplicateID) {
		// Re-admission after a reconnect keeps the existing stake record.
		return nil
	}
	return err
}

func (r *registry) Punish(nodeID ids.NodeID, penalty int) bool {
	r.lock.Lock()
	defer r.lock.Unlock()

	rec := r.record(nodeID)
	rec.reputation -= penalty
	if rec.reputation < MinReputation {
		rec.reputation = MinReputation
	}
	if rec.reputation <= BanThreshold && r.clock.Time().After(rec.bannedUntil) {
		rec.bannedUntil = r.clock.Time().Add(BanDuration)
		// A ban clears the slate once it expires.
		rec.reputation = 0
		_ = r.vdrs.Remove(nodeID)
		return true
	}
	return false
}

func (r *registry) IsBanned(nodeID ids.NodeID) bool {
	r.lock.Lock()
	defer r.lock.Unlock()

	rec, ok := r.peers[nodeID]
	return ok && r.clock.Time().Before(rec.bannedUntil)
}

func (r *registry) CheckNonce(nodeID ids.NodeID, nonce uint64) error {
	now := r.clock.Time()

	r.lock.Lock()
	defer r.lock.Unlock()

	rec := r.record(nodeID)
	for n, seen := range rec.nonces {
		if now.Sub(seen) > NonceWindow {
			delete(rec.nonces, n)
		}
	}
	if _, ok := rec.nonces[nonce]; ok {
		return ErrReplayedNonce
	}
	rec.nonces[nonce] = now
	return nil
}

func (r *registry) AllowRequest(nodeID ids.NodeID) bool {
	r.lock.Lock()
	rec := r.record(nodeID)
	r.lock.Unlock()

	return rec.limiter.Allow()
}

func (r *registry) Touch(nodeID ids.NodeID) {
	r.lock.Lock()
	defer r.lock.Unlock()

	r.record(nodeID).lastSeen = r.clock.Time()
}

func (r *registry) Reputation(nodeID ids.NodeID) (int, error) {
	r.lock.Lock()
	defer r.lock.Unlock()

	rec, ok := r.peers[nodeID]
	if !ok {
		return 0, ErrUnknownPeer
	}
	return rec.reputation, nil
}

func (r *registry) Set() Set {
	return r.vdrs
}
