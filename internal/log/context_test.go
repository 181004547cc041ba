// SPDX-License-Identifier: MIT

package log

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
)

func TestContextWithRequestID(t *testing.T) {
	tests := []struct {
		name string
		ctx  context.Context
		id   string
		want string
	}{
		{name: "nil context", ctx: nil, id: "req-123", want: "req-123"},
		{name: "background context", ctx: context.Background(), id: "req-456", want: "req-456"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := ContextWithRequestID(tt.ctx, tt.id)
			if got := RequestIDFromContext(ctx); got != tt.want {
				t.Errorf("RequestIDFromContext = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRequestIDFromContext_Missing(t *testing.T) {
	if got := RequestIDFromContext(context.Background()); got != "" {
		t.Errorf("expected empty request id, got %q", got)
	}
	if got := RequestIDFromContext(nil); got != "" {
		t.Errorf("expected empty request id for nil ctx, got %q", got)
	}
}

func TestWithContextEnrichesLogger(t *testing.T) {
	var buf bytes.Buffer
	base := zerolog.New(&buf)

	ctx := ContextWithRequestID(context.Background(), "req-1")
	ctx = ContextWithCorrelationID(ctx, "corr-2")

	enriched := WithContext(ctx, base)
	enriched.Info().Msg("hello")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("invalid log line: %v", err)
	}
	if line["request_id"] != "req-1" {
		t.Errorf("request_id = %v", line["request_id"])
	}
	if line["correlation_id"] != "corr-2" {
		t.Errorf("correlation_id = %v", line["correlation_id"])
	}
}

func TestWithContextNoFieldsReturnsSame(t *testing.T) {
	var buf bytes.Buffer
	base := zerolog.New(&buf)

	plain := WithContext(context.Background(), base)
	plain.Info().Msg("plain")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("invalid log line: %v", err)
	}
	if _, ok := line["request_id"]; ok {
		t.Error("unexpected request_id field")
	}
}
