// SPDX-License-Identifier: MIT
package telemetry

import (
	"errors"
	"testing"

	"go.opentelemetry.io/otel/attribute"
)

func TestCommandAttributes(t *testing.T) {
	tests := []struct {
		name    string
		cmd     string
		source  string
		target  string
		wantLen int
	}{
		{
			name:    "with target",
			cmd:     "zone.set_volume",
			source:  "api",
			target:  "zone/2",
			wantLen: 3,
		},
		{
			name:    "without target",
			cmd:     "snapcast.server_update",
			source:  "internal",
			target:  "",
			wantLen: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			attrs := CommandAttributes(tt.cmd, tt.source, tt.target)

			if len(attrs) != tt.wantLen {
				t.Errorf("Expected %d attributes, got %d", tt.wantLen, len(attrs))
			}

			verifyAttribute(t, attrs, CommandNameKey, tt.cmd)
			verifyAttribute(t, attrs, CommandSourceKey, tt.source)
			if tt.target != "" {
				verifyAttribute(t, attrs, CommandTargetKey, tt.target)
			}
		})
	}
}

func TestZoneAttributes(t *testing.T) {
	attrs := ZoneAttributes(3, "playing")

	if len(attrs) != 2 {
		t.Fatalf("Expected 2 attributes, got %d", len(attrs))
	}

	verifyIntAttribute(t, attrs, ZoneIndexKey, 3)
	verifyAttribute(t, attrs, ZonePlaybackKey, "playing")
}

func TestClientAttributes(t *testing.T) {
	attrs := ClientAttributes(2, 1)

	if len(attrs) != 2 {
		t.Fatalf("Expected 2 attributes, got %d", len(attrs))
	}

	verifyIntAttribute(t, attrs, ClientIndexKey, 2)
	verifyIntAttribute(t, attrs, ClientZoneKey, 1)
}

func TestErrorAttributes(t *testing.T) {
	err := errors.New("test error")
	attrs := ErrorAttributes(err, "unavailable")

	if len(attrs) != 2 {
		t.Fatalf("Expected 2 attributes, got %d", len(attrs))
	}

	verifyBoolAttribute(t, attrs, ErrorKey, true)
	verifyAttribute(t, attrs, ErrorKindKey, "unavailable")
}

func TestAttributeKeys_Consistency(t *testing.T) {
	keys := []string{
		CommandNameKey,
		CommandSourceKey,
		CommandTargetKey,
		ZoneIndexKey,
		ZonePlaybackKey,
		ClientIndexKey,
		ClientZoneKey,
		RPCMethodKey,
		ErrorKey,
		ErrorKindKey,
	}

	for _, key := range keys {
		if key == "" {
			t.Errorf("Expected non-empty attribute key")
		}
	}
}

// Helper functions for attribute verification

func verifyAttribute(t *testing.T, attrs []attribute.KeyValue, key, expectedValue string) {
	t.Helper()
	for _, attr := range attrs {
		if string(attr.Key) == key {
			if attr.Value.AsString() != expectedValue {
				t.Errorf("Expected %s=%s, got %s", key, expectedValue, attr.Value.AsString())
			}
			return
		}
	}
	t.Errorf("Attribute %s not found", key)
}

func verifyIntAttribute(t *testing.T, attrs []attribute.KeyValue, key string, expectedValue int) {
	t.Helper()
	for _, attr := range attrs {
		if string(attr.Key) == key {
			if attr.Value.AsInt64() != int64(expectedValue) {
				t.Errorf("Expected %s=%d, got %d", key, expectedValue, attr.Value.AsInt64())
			}
			return
		}
	}
	t.Errorf("Attribute %s not found", key)
}

func verifyBoolAttribute(t *testing.T, attrs []attribute.KeyValue, key string, expectedValue bool) {
	t.Helper()
	for _, attr := range attrs {
		if string(attr.Key) == key {
			if attr.Value.AsBool() != expectedValue {
				t.Errorf("Expected %s=%t, got %t", key, expectedValue, attr.Value.AsBool())
			}
			return
		}
	}
	t.Errorf("Attribute %s not found", key)
}
