// SPDX-License-Identifier: MIT

// Package metrics exposes the Prometheus collectors of the daemon.
// Collectors are package-level promauto variables grouped by concern.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "snapdog_http_requests_total",
		Help: "Total number of HTTP API requests",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "snapdog_http_request_duration_seconds",
		Help:    "HTTP API request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	ReconciliationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "snapdog_reconciliations_total",
		Help: "Total number of zone grouping reconciliation passes",
	}, []string{"outcome"})

	ReconciliationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "snapdog_reconciliation_duration_seconds",
		Help:    "Zone grouping reconciliation pass duration",
		Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
	})

	StatePublishesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "snapdog_state_publishes_total",
		Help: "Total number of status publishes per integration",
	}, []string{"integration", "result"})
)

// RecordReconciliation records one reconciliation pass outcome
// ("healthy", "reconciled", "degraded").
func RecordReconciliation(outcome string, seconds float64) {
	ReconciliationsTotal.WithLabelValues(outcome).Inc()
	ReconciliationDuration.Observe(seconds)
}

// RecordStatePublish records one status publish attempt.
func RecordStatePublish(integration, result string) {
	StatePublishesTotal.WithLabelValues(integration, result).Inc()
}
