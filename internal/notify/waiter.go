package notify

import (
	"context"
	"time"
)

// Waiter blocks a worker until a wake hint arrives or the timeout elapses.
// Hints are best-effort: delivery may be lost or duplicated, so callers must
// always poll the queue afterwards.
type Waiter interface {
	// Wait returns the drained hint payloads, which may be empty on timeout.
	Wait(ctx context.Context, timeout time.Duration) []string
	Close() error
}

// Publisher mirrors enqueue-side wake hints onto an external bus for
// deployments where LISTEN does not survive connection pooling.
type Publisher interface {
	Publish(ctx context.Context, payload string) error
}

// SleepWaiter is the degenerate Waiter used when no bus is configured and in
// tests: it just sleeps out the timeout.
type SleepWaiter struct{}

func (SleepWaiter) Wait(ctx context.Context, timeout time.Duration) []string {
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
	return nil
}

func (SleepWaiter) Close() error { return nil }
