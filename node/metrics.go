// Copyright 2026 The Rillrate Authors
// SPDX-License-Identifier: Apache-2.0

package node

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// metrics holds the node's Prometheus collectors.
type metrics struct {
	providers prometheus.Gauge
	sessions  prometheus.Gauge
	paths     prometheus.Gauge
	rejected  *prometheus.CounterVec
	relayed   *prometheus.CounterVec
	evicted   *prometheus.CounterVec

	handler http.Handler
}

func newMetrics(registerer prometheus.Registerer) *metrics {
	var gatherer prometheus.Gatherer
	if registerer == nil {
		registry := prometheus.NewRegistry()
		registerer, gatherer = registry, registry
	} else if g, ok := registerer.(prometheus.Gatherer); ok {
		gatherer = g
	}

	m := &metrics{
		providers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "rillrate",
			Subsystem: "node",
			Name:      "providers",
			Help:      "Connected providers.",
		}),
		sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "rillrate",
			Subsystem: "node",
			Name:      "sessions",
			Help:      "Connected dashboard sessions.",
		}),
		paths: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "rillrate",
			Subsystem: "node",
			Name:      "paths",
			Help:      "Paths declared by connected providers.",
		}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rillrate",
			Subsystem: "node",
			Name:      "rejected_connections_total",
			Help:      "Connections refused at admission, by class.",
		}, []string{"class"}),
		relayed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rillrate",
			Subsystem: "node",
			Name:      "responses_total",
			Help:      "Responses sent to dashboards, by kind.",
		}, []string{"kind"}),
		evicted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rillrate",
			Subsystem: "node",
			Name:      "evicted_connections_total",
			Help:      "Connections closed because a limit was lowered, by class.",
		}, []string{"class"}),
	}
	registerer.MustRegister(m.providers, m.sessions, m.paths, m.rejected, m.relayed, m.evicted)

	if gatherer != nil {
		m.handler = promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
	} else {
		m.handler = http.NotFoundHandler()
	}
	return m
}
