package agent

import (
	"context"
	"sync"
	"time"
)

// latch is a one-way, level-triggered signal. Once set it stays set, so
// a waiter that arrives after the event still observes it. Used for the
// registration state, which never reverts once acknowledged.
type latch struct {
	once sync.Once
	ch   chan struct{}
}

func newLatch() *latch {
	return &latch{ch: make(chan struct{})}
}

// set trips the latch. Safe to call multiple times.
func (l *latch) set() {
	l.once.Do(func() { close(l.ch) })
}

// isSet reports whether the latch has been tripped.
func (l *latch) isSet() bool {
	select {
	case <-l.ch:
		return true
	default:
		return false
	}
}

// wait blocks until the latch trips, the timeout elapses, or ctx is
// cancelled. Returns true only if the latch tripped.
func (l *latch) wait(ctx context.Context, timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-l.ch:
		return true
	case <-timer.C:
		return false
	case <-ctx.Done():
		return false
	}
}
