package testutil

import (
	"fmt"
	"sync"
	"time"

	"docsign/internal/docsign"
)

var (
	_ docsign.Clock       = (*StubClock)(nil)
	_ docsign.IDGenerator = (*StubIDGenerator)(nil)
)

// StubClock is a docsign.Clock that only moves when told to, so signing
// dates and notification order are reproducible.
type StubClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewStubClock starts a StubClock at start.
func NewStubClock(start time.Time) *StubClock {
	return &StubClock{now: start.UTC()}
}

// FixedClock is the clock most tests sign under: 2024-01-15 10:30 UTC.
func FixedClock() *StubClock {
	return NewStubClock(time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC))
}

func (c *StubClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d. Tests use it to separate
// notifications that would otherwise share a timestamp.
func (c *StubClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// StubIDGenerator hands out document and notification IDs in the same
// UUID form as docsign.UUIDGenerator, numbered from 1 so a failing test
// names a predictable record.
type StubIDGenerator struct {
	mu   sync.Mutex
	next uint64
}

func NewStubIDGenerator() *StubIDGenerator {
	return &StubIDGenerator{}
}

// New returns 00000000-0000-4000-8000-000000000001, then ...0002, and so on.
func (g *StubIDGenerator) New() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.next++
	return fmt.Sprintf("00000000-0000-4000-8000-%012d", g.next)
}
