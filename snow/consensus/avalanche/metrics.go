// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package avalanche

import "github.com/prometheus/client_golang/prometheus"

// Metrics counts voting activity
type Metrics struct {
	Rounds    prometheus.Counter
	Finalized prometheus.Counter
	Rejected  prometheus.Counter
}

func NewMetrics(namespace string, registerer prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		Rounds: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rounds",
			Help:      "voting rounds executed",
		}),
		Finalized: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "finalized_txs",
			Help:      "transactions finalized with preference accept",
		}),
		Rejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rejected_txs",
			Help:      "transactions rejected or expired",
		}),
	}
	for _, c := range []prometheus.Collector{m.Rounds, m.Finalized, m.Rejected} {
		if err := registerer.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}
