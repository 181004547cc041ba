// SPDX-License-Identifier: MIT

package log

import (
	"strings"
	"testing"
)

func TestErrorBuffer_Framing(t *testing.T) {
	ClearRecentErrors()
	b := &errorBuffer{}

	// Split write: half line, then the rest plus newline.
	part1 := `{"time":"2026-08-01T00:00:00Z","level":"error","component":"mqtt","event":"publish.failed","message":"part1`
	part2 := `_part2"}` + "\n"

	_, _ = b.Write([]byte(part1))
	b.mu.Lock()
	n := len(b.entries)
	b.mu.Unlock()
	if n != 0 {
		t.Fatalf("expected 0 entries after partial write, got %d", n)
	}

	_, _ = b.Write([]byte(part2))
	b.mu.Lock()
	entries := append([]Entry(nil), b.entries...)
	b.mu.Unlock()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry after full write, got %d", len(entries))
	}
	if entries[0].Fields["event"] != "publish.failed" {
		t.Errorf("expected event publish.failed, got %v", entries[0].Fields["event"])
	}
	if entries[0].Message != "part1_part2" {
		t.Errorf("unexpected message %q", entries[0].Message)
	}
}

func TestErrorBuffer_FiltersLevels(t *testing.T) {
	b := &errorBuffer{}
	lines := `{"level":"info","message":"ignored"}` + "\n" +
		`{"level":"error","message":"kept"}` + "\n" +
		`{"level":"debug","message":"ignored too"}` + "\n"

	_, _ = b.Write([]byte(lines))
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(b.entries))
	}
	if b.entries[0].Message != "kept" {
		t.Errorf("unexpected entry %+v", b.entries[0])
	}
}

func TestErrorBuffer_Bounds(t *testing.T) {
	b := &errorBuffer{}

	// Oversized partial line without newline must not grow unboundedly.
	giant := strings.Repeat("A", maxPartialBytes+1)
	_, _ = b.Write([]byte(giant))
	if b.partial.Len() != 0 {
		t.Error("partial buffer should have been reset after overflow")
	}

	// Ring keeps only the newest maxRecentErrors entries.
	for i := 0; i < maxRecentErrors+10; i++ {
		_, _ = b.Write([]byte(`{"level":"error","message":"e"}` + "\n"))
	}
	if len(b.entries) != maxRecentErrors {
		t.Fatalf("expected %d entries, got %d", maxRecentErrors, len(b.entries))
	}
}
