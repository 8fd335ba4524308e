// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package network

import "github.com/prometheus/client_golang/prometheus"

// Metrics tracks transport activity
type Metrics struct {
	NumPeers         prometheus.Gauge
	MsgsSent         prometheus.Counter
	MsgsReceived     prometheus.Counter
	DroppedSends     prometheus.Counter
	FailedHandshakes prometheus.Counter
}

func NewMetrics(namespace string, registerer prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		NumPeers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "peers",
			Help:      "connected authenticated peers",
		}),
		MsgsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "msgs_sent",
			Help:      "messages written to peers",
		}),
		MsgsReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "msgs_received",
			Help:      "messages read from peers",
		}),
		DroppedSends: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dropped_sends",
			Help:      "messages dropped due to full send queues",
		}),
		FailedHandshakes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "failed_handshakes",
			Help:      "connections dropped during the handshake",
		}),
	}
	for _, c := range []prometheus.Collector{m.NumPeers, m.MsgsSent, m.MsgsReceived, m.DroppedSends, m.FailedHandshakes} {
		if err := registerer.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}
