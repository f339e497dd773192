package config

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Backoff materializes the policy as an exponential backoff. Each scan cycle
// gets a fresh instance; the retry budget is per cycle, not cumulative.
func (p RetryPolicy) Backoff() *backoff.ExponentialBackOff {
	bo := backoff.NewExponentialBackOff()

	if p.InitialInterval > 0 {
		bo.InitialInterval = p.InitialInterval
	}

	if p.Multiplier > 1 {
		bo.Multiplier = p.Multiplier
	}

	if p.MaxInterval > 0 {
		bo.MaxInterval = p.MaxInterval
	}

	bo.MaxElapsedTime = 0 // attempts are bounded by MaxAttempts, not wall time
	bo.Reset()

	return bo
}

// NoRetry is a deterministic policy for tests and passive targets.
func NoRetry() RetryPolicy {
	return RetryPolicy{MaxAttempts: 0, InitialInterval: time.Millisecond, Multiplier: 1.5}
}
