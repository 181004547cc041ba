// SPDX-License-Identifier: MIT

package resilience

import (
	"context"
	"math/rand"
	"time"
)

// BackoffPolicy describes an exponential backoff schedule with jitter.
type BackoffPolicy struct {
	Base   time.Duration // first delay
	Factor float64       // growth per attempt
	Cap    time.Duration // upper bound before jitter
	// Jitter is the relative spread applied to each delay: 0.25 means
	// the delay is scaled uniformly within ±25%.
	Jitter float64
	// AdditiveJitter adds a uniform [0, AdditiveJitter) on top. The
	// startup orchestrator uses this (+0-1 s) instead of relative jitter.
	AdditiveJitter time.Duration
}

// DefaultBackoff is the adapter reconnect schedule: 1 s base, factor 2,
// ±25% jitter, capped at 30 s.
var DefaultBackoff = BackoffPolicy{
	Base:   time.Second,
	Factor: 2,
	Cap:    30 * time.Second,
	Jitter: 0.25,
}

// StartupBackoff is the startup validation schedule: 1 s base, factor 2,
// +0-1 s additive jitter, capped at 30 s.
var StartupBackoff = BackoffPolicy{
	Base:           time.Second,
	Factor:         2,
	Cap:            30 * time.Second,
	AdditiveJitter: time.Second,
}

// Delay computes the backoff delay for the given zero-based attempt.
func (p BackoffPolicy) Delay(attempt int) time.Duration {
	d := float64(p.Base)
	for i := 0; i < attempt; i++ {
		d *= p.Factor
		if d >= float64(p.Cap) {
			d = float64(p.Cap)
			break
		}
	}
	if p.Jitter > 0 {
		spread := d * p.Jitter
		d = d - spread + rand.Float64()*2*spread
	}
	if p.AdditiveJitter > 0 {
		d += rand.Float64() * float64(p.AdditiveJitter)
	}
	if d > float64(p.Cap)+float64(p.AdditiveJitter) {
		d = float64(p.Cap) + float64(p.AdditiveJitter)
	}
	return time.Duration(d)
}

// Retry runs fn up to attempts times, sleeping per policy between tries.
// It returns nil on the first success, the last error otherwise, and
// aborts early when ctx is cancelled.
func Retry(ctx context.Context, attempts int, policy BackoffPolicy, fn func(ctx context.Context) error) error {
	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			timer := time.NewTimer(policy.Delay(attempt - 1))
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
		if err = fn(ctx); err == nil {
			return nil
		}
	}
	return err
}
