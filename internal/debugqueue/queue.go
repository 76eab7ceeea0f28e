// Package debugqueue buffers diagnostic lines between the chat path and the tick that
// writes them out.
package debugqueue

import (
	"sync"
	"time"
)

const (
	// DefaultCapacity is the number of entries kept before the oldest is dropped.
	DefaultCapacity = 1000
	// BatchSize is the number of entries written per tick.
	BatchSize = 10
)

// Queue is a fixed-size ring of diagnostic lines. When full, pushing evicts the oldest.
type Queue struct {
	mu      sync.Mutex
	buf     []string
	head    int // next write position
	size    int
	dropped int
	now     func() time.Time
}

// New creates a queue holding up to capacity entries.
func New(capacity int) *Queue {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Queue{buf: make([]string, capacity), now: time.Now}
}

// Push adds a line prefixed with the local time. It reports whether an older entry was evicted.
func (q *Queue) Push(message string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	entry := q.now().Format(time.RFC3339) + " - " + message
	q.buf[q.head] = entry
	q.head = (q.head + 1) % len(q.buf)
	if q.size == len(q.buf) {
		q.dropped++
		return true
	}
	q.size++
	return false
}

// Drain removes and returns up to n of the oldest entries.
func (q *Queue) Drain(n int) []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.drainLocked(n)
}

// DrainAll removes and returns every entry.
func (q *Queue) DrainAll() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.drainLocked(q.size)
}

func (q *Queue) drainLocked(n int) []string {
	if n > q.size {
		n = q.size
	}
	if n <= 0 {
		return nil
	}
	tail := (q.head - q.size + len(q.buf)) % len(q.buf)
	out := make([]string, n)
	for i := 0; i < n; i++ {
		idx := (tail + i) % len(q.buf)
		out[i] = q.buf[idx]
		q.buf[idx] = ""
	}
	q.size -= n
	return out
}

// Len returns the number of queued entries.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size
}

// Dropped returns and resets the eviction count.
func (q *Queue) Dropped() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := q.dropped
	q.dropped = 0
	return n
}
