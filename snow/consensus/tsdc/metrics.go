// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package tsdc

import "github.com/prometheus/client_golang/prometheus"

// Metrics counts block production and voting progress
type Metrics struct {
	Proposals    prometheus.Counter
	Precommits   prometheus.Counter
	Commits      prometheus.Counter
	SkippedSlots prometheus.Counter
}

func NewMetrics(namespace string, registerer prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		Proposals: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "proposals",
			Help:      "block proposals built by this node",
		}),
		Precommits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "precommits",
			Help:      "proposals that reached the precommit phase",
		}),
		Commits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commits",
			Help:      "blocks committed to the chain",
		}),
		SkippedSlots: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "skipped_slots",
			Help:      "slots that closed without a committed block",
		}),
	}
	for _, c := range []prometheus.Collector{m.Proposals, m.Precommits, m.Commits, m.SkippedSlots} {
		if err := registerer.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}
