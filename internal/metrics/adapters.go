// SPDX-License-Identifier: MIT

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	AdapterConnected = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "snapdog_adapter_connected",
		Help: "Adapter connection state (1 connected, 0 disconnected)",
	}, []string{"adapter"})

	AdapterReconnectsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "snapdog_adapter_reconnects_total",
		Help: "Total number of adapter reconnect attempts",
	}, []string{"adapter"})

	AdapterRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "snapdog_adapter_requests_total",
		Help: "Total number of outbound adapter calls",
	}, []string{"adapter", "operation", "result"})

	AdapterRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "snapdog_adapter_request_duration_seconds",
		Help:    "Outbound adapter call latency",
		Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
	}, []string{"adapter", "operation"})

	PublishQueueDropsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "snapdog_publish_queue_drops_total",
		Help: "Total number of outbound status publishes dropped by bounded queues",
	}, []string{"adapter", "reason"})

	CircuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "snapdog_circuit_breaker_state",
		Help: "Circuit breaker state (0 closed, 1 half-open, 2 open)",
	}, []string{"name"})

	CircuitBreakerTripsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "snapdog_circuit_breaker_trips_total",
		Help: "Total number of circuit breaker trips",
	}, []string{"name", "reason"})
)

// SetAdapterConnected flips the connection gauge for an adapter.
func SetAdapterConnected(adapter string, connected bool) {
	v := 0.0
	if connected {
		v = 1.0
	}
	AdapterConnected.WithLabelValues(adapter).Set(v)
}

// RecordReconnect counts one reconnect attempt for an adapter.
func RecordReconnect(adapter string) {
	AdapterReconnectsTotal.WithLabelValues(adapter).Inc()
}

// RecordAdapterRequest records one outbound adapter call with its outcome.
func RecordAdapterRequest(adapter, operation, result string) {
	AdapterRequestsTotal.WithLabelValues(adapter, operation, result).Inc()
}

// RecordPublishDrop counts one dropped outbound status publish.
func RecordPublishDrop(adapter, reason string) {
	if reason == "" {
		reason = "full"
	}
	PublishQueueDropsTotal.WithLabelValues(adapter, reason).Inc()
}

// SetCircuitBreakerState updates the state gauge for a named breaker.
func SetCircuitBreakerState(name, state string) {
	var v float64
	switch state {
	case "half-open":
		v = 1
	case "open":
		v = 2
	}
	CircuitBreakerState.WithLabelValues(name).Set(v)
}

// RecordCircuitBreakerTrip counts one breaker trip with its reason.
func RecordCircuitBreakerTrip(name, reason string) {
	CircuitBreakerTripsTotal.WithLabelValues(name, reason).Inc()
}
