// Copyright (C) 2019-2023, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package snowball

import (
	"fmt"
	"time"
)

const (
	DefaultK             = 20
	MinK                 = 5
	DefaultBeta          = 15
	DefaultMaxRounds     = 30
	DefaultRoundInterval = 100 * time.Millisecond
	DefaultQueryTimeout  = 2 * time.Second

	// alphaNumerator/alphaDenominator derive the per-round quorum from K
	alphaNumerator   = 7
	alphaDenominator = 10
)

// Parameters of the repeated subsampled voting loop
type Parameters struct {
	// K is the sample size per round
	K int
	// Alpha is the per-round quorum; zero means derive ceil(K * 0.7)
	Alpha int
	// Beta is the consecutive-success count that finalizes a decision
	Beta int
	// MaxRounds bounds the voting loop; a transaction still undecided after
	// MaxRounds is rejected
	MaxRounds int
	// RoundInterval is the pause between consecutive rounds of one tx
	RoundInterval time.Duration
	// QueryTimeout bounds the wait for vote responses in one round
	QueryTimeout time.Duration
}

func DefaultParameters() Parameters {
	return Parameters{
		K:             DefaultK,
		Beta:          DefaultBeta,
		MaxRounds:     DefaultMaxRounds,
		RoundInterval: DefaultRoundInterval,
		QueryTimeout:  DefaultQueryTimeout,
	}
}

// AlphaFor returns the quorum for a sample of [k] respondents
func (p Parameters) AlphaFor(k int) int {
	if p.Alpha > 0 {
		return p.Alpha
	}
	return (k*alphaNumerator + alphaDenominator - 1) / alphaDenominator
}

// EffectiveK shrinks the sample size to the available validator count, never
// below MinK unless fewer validators exist.
func (p Parameters) EffectiveK(numValidators int) int {
	k := p.K
	if numValidators < k {
		k = numValidators
	}
	if k < MinK && numValidators >= MinK {
		k = MinK
	}
	return k
}

// Verify returns an error if the parameters are degenerate
func (p Parameters) Verify() error {
	switch {
	case p.K <= 0:
		return fmt.Errorf("k = %d: fails the condition that: 0 < k", p.K)
	case p.Alpha > p.K:
		return fmt.Errorf("k = %d, alpha = %d: fails the condition that: alpha <= k", p.K, p.Alpha)
	case p.Beta <= 0:
		return fmt.Errorf("beta = %d: fails the condition that: 0 < beta", p.Beta)
	case p.MaxRounds < p.Beta:
		return fmt.Errorf("maxRounds = %d, beta = %d: fails the condition that: beta <= maxRounds", p.MaxRounds, p.Beta)
	case p.RoundInterval <= 0:
		return fmt.Errorf("roundInterval = %s: fails the condition that: 0 < roundInterval", p.RoundInterval)
	case p.QueryTimeout <= 0:
		return fmt.Errorf("queryTimeout = %s: fails the condition that: 0 < queryTimeout", p.QueryTimeout)
	default:
		return nil
	}
}
