package util

import (
	"sync"
	"time"
)

type Clock interface {
	NowUtc() time.Time
}

type RealClock struct{}

func NewRealClock() *RealClock {
	return &RealClock{}
}

func (c *RealClock) NowUtc() time.Time {
	return time.Now().UTC()
}

type StubClock struct {
	now  time.Time
	lock sync.Mutex
}

func NewStubClock() *StubClock {
	clock := &StubClock{}
	clock.UpdateNow()
	return clock
}

func (c *StubClock) NowUtc() time.Time {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.now
}

func (c *StubClock) SetNow(now time.Time) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.now = now.UTC()
}

func (c *StubClock) UpdateNow() time.Time {
	now := time.Now().UTC()
	c.SetNow(now)
	return now
}

// Advance moves the stub forward by d and returns the new time.
func (c *StubClock) Advance(d time.Duration) time.Time {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.now = c.now.Add(d)
	return c.now
}

// MonotonicClock hands out strictly increasing timestamps, truncated to
// microseconds so they survive a round trip through Postgres.
type MonotonicClock struct {
	base Clock
	last time.Time
	lock sync.Mutex
}

func NewMonotonicClock(base Clock) *MonotonicClock {
	return &MonotonicClock{base: base}
}

func (c *MonotonicClock) NowUtc() time.Time {
	c.lock.Lock()
	defer c.lock.Unlock()

	now := c.base.NowUtc().Truncate(time.Microsecond)
	if !now.After(c.last) {
		now = c.last.Add(time.Microsecond)
	}
	c.last = now
	return now
}
