// SPDX-License-Identifier: MIT

// Package telemetry provides OpenTelemetry tracing for the daemon.
package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Common attribute keys for consistent tracing across the application.
const (
	// Command attributes
	CommandNameKey   = "command.name"
	CommandSourceKey = "command.source"
	CommandTargetKey = "command.target"

	// Zone attributes
	ZoneIndexKey    = "zone.index"
	ZonePlaybackKey = "zone.playback"

	// Client attributes
	ClientIndexKey = "client.index"
	ClientZoneKey  = "client.zone"

	// Snapcast RPC attributes
	RPCMethodKey = "snapcast.method"

	// Error attributes
	ErrorKey     = "error"
	ErrorKindKey = "error.kind"
)

// CommandAttributes creates span attributes for a dispatched command.
func CommandAttributes(name, source, target string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String(CommandNameKey, name),
		attribute.String(CommandSourceKey, source),
	}
	if target != "" {
		attrs = append(attrs, attribute.String(CommandTargetKey, target))
	}
	return attrs
}

// ZoneAttributes creates zone-related span attributes.
func ZoneAttributes(index int, playback string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int(ZoneIndexKey, index),
		attribute.String(ZonePlaybackKey, playback),
	}
}

// ClientAttributes creates client-related span attributes.
func ClientAttributes(index, zone int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int(ClientIndexKey, index),
		attribute.Int(ClientZoneKey, zone),
	}
}

// ErrorAttributes creates error-related span attributes.
func ErrorAttributes(_ error, kind string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Bool(ErrorKey, true),
		attribute.String(ErrorKindKey, kind),
	}
}
