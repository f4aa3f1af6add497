// Package devlog keeps the most recent log lines in memory for the debug endpoint.
package devlog

import (
	"bytes"
	"sync"
)

// DefaultCapacity is used when a ring is created with a non-positive capacity.
const DefaultCapacity = 200

// Ring is a bounded buffer of the last log lines written to it.
// It implements io.Writer so it can sit next to the regular log sink.
type Ring struct {
	mu    sync.Mutex
	lines [][]byte
	pos   int // next slot to write
	count int
}

// NewRing creates a ring holding up to capacity lines.
func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Ring{lines: make([][]byte, capacity)}
}

// Write stores p as one line. zerolog issues one Write per event.
// The slice is copied; callers may reuse p.
func (r *Ring) Write(p []byte) (int, error) {
	line := bytes.TrimRight(p, "\n")
	entry := make([]byte, len(line))
	copy(entry, line)

	r.mu.Lock()
	r.lines[r.pos] = entry
	r.pos = (r.pos + 1) % len(r.lines)
	if r.count < len(r.lines) {
		r.count++
	}
	r.mu.Unlock()

	return len(p), nil
}

// Entries returns up to n of the newest lines, oldest first.
// n <= 0 returns everything held.
func (r *Ring) Entries(n int) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	if n <= 0 || n > r.count {
		n = r.count
	}
	out := make([]string, n)
	start := (r.pos - n + len(r.lines)) % len(r.lines)
	for i := 0; i < n; i++ {
		out[i] = string(r.lines[(start+i)%len(r.lines)])
	}
	return out
}

// Len returns the number of lines held.
func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// Cap returns the maximum number of lines held.
func (r *Ring) Cap() int {
	return len(r.lines)
}

// Reset drops every line.
func (r *Ring) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.lines {
		r.lines[i] = nil
	}
	r.pos = 0
	r.count = 0
}
