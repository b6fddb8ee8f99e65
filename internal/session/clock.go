package session

import (
	"sync"
	"time"

	"github.com/yanmxa/genmotion/internal/message"
)

// Clock hands out the sequence numbers and timestamps that order a
// session's log. Every append takes its seq from the same clock, so items
// produced in the same millisecond keep the order they were produced in.
type Clock struct {
	mu  sync.Mutex
	seq uint64
	now func() time.Time
}

// NewClock returns a clock starting at zero. A nil now uses time.Now.
func NewClock(now func() time.Time) *Clock {
	if now == nil {
		now = time.Now
	}
	return &Clock{now: now}
}

// Next returns the next sequence number.
func (c *Clock) Next() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	return c.seq
}

// Stamp returns the next sequence number with the current timestamp.
func (c *Clock) Stamp() (uint64, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	return c.seq, message.Timestamp(c.now())
}

// Now returns the current timestamp without advancing the sequence.
func (c *Clock) Now() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return message.Timestamp(c.now())
}

// Current returns the last sequence number handed out.
func (c *Clock) Current() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seq
}

// Reset moves the counter to seq. Used when a session is restored and by
// tests that need deterministic numbering.
func (c *Clock) Reset(seq uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq = seq
}
