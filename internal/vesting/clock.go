package vesting

import (
	"context"
	"sync"
	"time"
)

// Clock is the time oracle. Now returns unix seconds.
type Clock interface {
	Now(ctx context.Context) (uint64, error)
}

// ClockFunc adapts a function to Clock.
type ClockFunc func(ctx context.Context) (uint64, error)

// Now implements Clock.
func (f ClockFunc) Now(ctx context.Context) (uint64, error) { return f(ctx) }

// SystemClock reads the local wall clock.
type SystemClock struct{}

// Now implements Clock.
func (SystemClock) Now(context.Context) (uint64, error) {
	return uint64(time.Now().Unix()), nil
}

// MonotonicClock never reports a time earlier than one it already returned.
type MonotonicClock struct {
	inner Clock

	mu   sync.Mutex
	last uint64
}

// NewMonotonicClock wraps inner with a non-decreasing guard.
func NewMonotonicClock(inner Clock) *MonotonicClock {
	return &MonotonicClock{inner: inner}
}

// Now implements Clock.
func (c *MonotonicClock) Now(ctx context.Context) (uint64, error) {
	now, err := c.inner.Now(ctx)
	if err != nil {
		return 0, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if now < c.last {
		return c.last, nil
	}
	c.last = now
	return now, nil
}

// ManualClock is advanced explicitly. It backs simulations and tests.
type ManualClock struct {
	mu  sync.Mutex
	now uint64
}

// NewManualClock starts a manual clock at start.
func NewManualClock(start uint64) *ManualClock {
	return &ManualClock{now: start}
}

// Now implements Clock.
func (c *ManualClock) Now(context.Context) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now, nil
}

// Advance moves the clock forward by d, rounded down to whole seconds.
func (c *ManualClock) Advance(d time.Duration) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now += uint64(d / time.Second)
	return c.now
}

// AdvanceSeconds moves the clock forward by n seconds.
func (c *ManualClock) AdvanceSeconds(n uint64) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now += n
	return c.now
}
