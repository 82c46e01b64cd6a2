// Package dateutil implements the Date generator: a one-second-memoized
// RFC-1123 timestamp the Channel inserts into every finalized response
// header set.
package dateutil

import (
	"sync"
	"time"
)

// TimeFormat hard-codes GMT as the time format's zone, matching
// http.TimeFormat and RFC 1123.
const TimeFormat = "Mon, 02 Jan 2006 15:04:05 GMT"

// Generator memoizes the formatted current time for one second so a busy
// connection serving many responses per second does not re-format on every
// single one.
type Generator struct {
	now func() time.Time

	mu       sync.Mutex
	lastSec  int64
	lastText string
}

// New returns a Generator using the real wall clock. Tests inject a fake
// clock via NewWithClock.
func New() *Generator { return NewWithClock(time.Now) }

// NewWithClock lets tests and handlers supply a deterministic clock.
func NewWithClock(now func() time.Time) *Generator {
	return &Generator{now: now}
}

// Format returns the RFC-1123 Date header value, reusing the cached string
// if still within the same whole second.
func (g *Generator) Format() string {
	t := g.now().UTC()
	sec := t.Unix()

	g.mu.Lock()
	defer g.mu.Unlock()
	if sec == g.lastSec && g.lastText != "" {
		return g.lastText
	}
	g.lastSec = sec
	g.lastText = t.Format(TimeFormat)
	return g.lastText
}
