// SPDX-License-Identifier: MIT

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CommandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "snapdog_commands_total",
		Help: "Total number of commands dispatched through the mediator",
	}, []string{"command", "source", "result"})

	CommandDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "snapdog_command_duration_seconds",
		Help:    "Command handler latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"command"})

	CommandsDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "snapdog_commands_dropped_total",
		Help: "Total number of inbound commands dropped (backpressure or parse failure)",
	}, []string{"source", "reason"})

	NotificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "snapdog_notifications_total",
		Help: "Total number of notifications fanned out by the mediator",
	}, []string{"notification"})

	SubscriberFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "snapdog_subscriber_failures_total",
		Help: "Total number of notification subscriber failures (logged and swallowed)",
	}, []string{"notification", "subscriber"})
)

// RecordCommand records one mediator dispatch.
func RecordCommand(command, source, result string) {
	CommandsTotal.WithLabelValues(command, source, result).Inc()
}

// RecordCommandDropped records an inbound command that never reached a handler.
func RecordCommandDropped(source, reason string) {
	if reason == "" {
		reason = "unknown"
	}
	CommandsDroppedTotal.WithLabelValues(source, reason).Inc()
}
