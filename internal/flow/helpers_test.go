// internal/flow/helpers_test.go
package flow

import (
	"sync"
	"time"
)

// fakeClock advances instantly whenever someone waits on it, so poll loops run in
// virtual time and elapsed values are exact.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	c.now = c.now.Add(d)
	now := c.now
	c.mu.Unlock()

	ch := make(chan time.Time, 1)
	ch <- now
	return ch
}

// Advance simulates time spent inside a sample.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// scriptedSource hands out each queued code once.
type scriptedSource struct {
	mu    sync.Mutex
	codes []string
}

func (s *scriptedSource) Poll() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.codes) == 0 {
		return "", false
	}
	code := s.codes[0]
	s.codes = s.codes[1:]
	return code, true
}
