// SPDX-License-Identifier: MIT

package log

import (
	"bytes"
	"encoding/json"
	"sync"
)

// maxRecentErrors bounds the in-memory error ring served by the API.
const maxRecentErrors = 100

// maxPartialBytes bounds the partial-line buffer; a JSON log line larger
// than this is dropped rather than buffered forever.
const maxPartialBytes = 64 * 1024

// Entry is one parsed structured log line retained in the error ring.
type Entry struct {
	Time    string         `json:"time"`
	Level   string         `json:"level"`
	Message string         `json:"message"`
	Fields  map[string]any `json:"fields,omitempty"`
}

// errorBuffer is an io.Writer that tails the structured log stream and
// retains the most recent error-level entries. zerolog may split or batch
// writes, so it reassembles newline-framed JSON before parsing.
type errorBuffer struct {
	mu      sync.Mutex
	partial bytes.Buffer
	entries []Entry
}

var recent = &errorBuffer{}

func (b *errorBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.partial.Write(p)
	for {
		raw := b.partial.Bytes()
		idx := bytes.IndexByte(raw, '\n')
		if idx < 0 {
			if b.partial.Len() > maxPartialBytes {
				b.partial.Reset()
			}
			return len(p), nil
		}
		line := make([]byte, idx)
		copy(line, raw[:idx])
		b.partial.Next(idx + 1)
		b.ingest(line)
	}
}

func (b *errorBuffer) ingest(line []byte) {
	var fields map[string]any
	if err := json.Unmarshal(line, &fields); err != nil {
		return
	}
	level, _ := fields["level"].(string)
	if level != "error" && level != "fatal" {
		return
	}
	e := Entry{Level: level}
	e.Time, _ = fields["time"].(string)
	e.Message, _ = fields["message"].(string)
	delete(fields, "time")
	delete(fields, "level")
	delete(fields, "message")
	e.Fields = fields

	b.entries = append(b.entries, e)
	if len(b.entries) > maxRecentErrors {
		b.entries = b.entries[len(b.entries)-maxRecentErrors:]
	}
}

// RecentErrors returns a copy of the retained error entries, oldest first.
func RecentErrors() []Entry {
	recent.mu.Lock()
	defer recent.mu.Unlock()
	return append([]Entry(nil), recent.entries...)
}

// ClearRecentErrors empties the error ring. Test helper.
func ClearRecentErrors() {
	recent.mu.Lock()
	defer recent.mu.Unlock()
	recent.entries = nil
	recent.partial.Reset()
}
