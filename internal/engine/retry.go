package engine

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/penguin-run/penguin/pkg/types"
)

const (
	defaultMaxAttempts       = 3
	defaultBackoffInitial    = time.Second
	defaultBackoffMax        = 30 * time.Second
	defaultBackoffMaxElapsed = 2 * time.Minute
)

// newRetryBackoff builds the exponential-backoff-with-jitter policy used to
// retry a GatewayUnavailable failure within one iteration. cfg's duration
// strings are parsed with a fallback to the teacher's original constants
// when absent or malformed.
func newRetryBackoff(ctx context.Context, cfg types.RetryConfig) backoff.BackOff {
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = parseDurationOr(cfg.BackoffInitial, defaultBackoffInitial)
	b.MaxInterval = parseDurationOr(cfg.BackoffMax, defaultBackoffMax)
	b.MaxElapsedTime = parseDurationOr(cfg.BackoffMaxElapsed, defaultBackoffMaxElapsed)
	b.RandomizationFactor = 0.5
	b.Multiplier = 2.0
	b.Reset()

	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(maxAttempts)), ctx)
}

func parseDurationOr(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
