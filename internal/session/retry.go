package session

import (
	"context"
	"time"
)

// Policy describes how an operation is retried. The zero value retries
// every 5 seconds forever.
type Policy struct {
	// Interval is the fixed delay between attempts. Defaults to 5s.
	Interval time.Duration

	// MaxAttempts bounds the number of attempts; 0 means unbounded.
	MaxAttempts int

	// Sleep waits for the given duration or until the context is cancelled.
	// Tests inject a fake to avoid real delays. Defaults to a context-aware
	// timer wait.
	Sleep func(ctx context.Context, d time.Duration) error
}

// withDefaults returns a copy of p with zero fields replaced.
func (p Policy) withDefaults() Policy {
	if p.Interval <= 0 {
		p.Interval = 5 * time.Second
	}
	if p.Sleep == nil {
		p.Sleep = sleepContext
	}
	return p
}

// Run invokes fn until it succeeds, the context is cancelled, or
// MaxAttempts is exhausted. The last attempt error is returned in the
// bounded case; context cancellation always wins.
func (p Policy) Run(ctx context.Context, fn func(ctx context.Context) error) error {
	p = p.withDefaults()

	var lastErr error
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if p.MaxAttempts > 0 && attempt >= p.MaxAttempts {
			return lastErr
		}
		if err := p.Sleep(ctx, p.Interval); err != nil {
			return err
		}
	}
}

// sleepContext blocks for d or until ctx is cancelled.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
