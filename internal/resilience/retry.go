// Package resilience retries transient failures with capped exponential
// backoff.
package resilience

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
)

// Policy bounds a retry loop.
type Policy struct {
	// Attempts counts the first try. 1 disables retries.
	Attempts int
	// Base is the delay before the first retry; later delays double.
	Base time.Duration
	// Max caps any single delay.
	Max time.Duration
	// Jitter spreads each delay by up to this fraction either way.
	Jitter float64
}

// DefaultPolicy suits a webhook call or a database dial.
func DefaultPolicy() Policy {
	return Policy{Attempts: 3, Base: 250 * time.Millisecond, Max: 5 * time.Second, Jitter: 0.2}
}

func (p Policy) withDefaults() Policy {
	d := DefaultPolicy()
	if p.Attempts <= 0 {
		p.Attempts = d.Attempts
	}
	if p.Base <= 0 {
		p.Base = d.Base
	}
	if p.Max <= 0 {
		p.Max = d.Max
	}
	if p.Jitter < 0 {
		p.Jitter = 0
	}
	return p
}

// Backoff returns the delay after the given zero-based failed attempt.
func (p Policy) Backoff(attempt int) time.Duration {
	p = p.withDefaults()
	delay := float64(p.Base) * math.Pow(2, float64(attempt))
	if delay > float64(p.Max) {
		delay = float64(p.Max)
	}
	if p.Jitter > 0 {
		delay += (rand.Float64()*2 - 1) * delay * p.Jitter
	}
	if delay < 0 {
		delay = 0
	}
	return time.Duration(delay)
}

// Do calls fn until it succeeds, fails with an error Retryable rejects, the
// context ends or the attempts run out. The last error is returned.
func Do(ctx context.Context, p Policy, op string, fn func(context.Context) error) error {
	p = p.withDefaults()

	var err error
	for attempt := 0; attempt < p.Attempts; attempt++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if ctx.Err() != nil || !Retryable(err) || attempt == p.Attempts-1 {
			return err
		}

		delay := p.Backoff(attempt)
		zap.L().Warn("resilience: retrying",
			zap.String("op", op),
			zap.Int("attempt", attempt+1),
			zap.Duration("delay", delay),
			zap.Error(err),
		)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-timer.C:
		}
	}
	return err
}
