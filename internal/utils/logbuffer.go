package utils

import (
	"bytes"
	"encoding/json"
	"sync"
)

// LogBuffer is an io.Writer that keeps the last N JSON log records.
type LogBuffer struct {
	mu      sync.Mutex
	max     int
	entries []map[string]any
}

func NewLogBuffer(max int) *LogBuffer {
	return &LogBuffer{max: max, entries: make([]map[string]any, 0, max)}
}

// Write expects one JSON object per line; anything else is stored as a plain msg.
func (b *LogBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, line := range bytes.Split(bytes.TrimSpace(p), []byte("\n")) {
		if len(line) == 0 {
			continue
		}
		entry := map[string]any{}
		if err := json.Unmarshal(line, &entry); err != nil {
			entry = map[string]any{"msg": string(line)}
		}
		b.entries = append(b.entries, entry)
		if len(b.entries) > b.max {
			b.entries = b.entries[len(b.entries)-b.max:]
		}
	}
	return len(p), nil
}

// Entries returns a copy, oldest first.
func (b *LogBuffer) Entries() []map[string]any {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]map[string]any, len(b.entries))
	copy(out, b.entries)
	return out
}
