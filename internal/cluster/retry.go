package cluster

import (
	"context"
	"time"

	"github.com/caesium-cloud/sweep/pkg/log"
	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy bounds how often a failing cluster call is repeated.
type RetryPolicy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultRetryPolicy mirrors the interactive default of five trials.
var DefaultRetryPolicy = RetryPolicy{
	MaxAttempts:     5,
	InitialInterval: 2 * time.Second,
	MaxInterval:     time.Minute,
}

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// Do runs op until it succeeds, returns a permanent error, the
// attempts are exhausted or ctx is done. The last error is returned.
func (p RetryPolicy) Do(ctx context.Context, op func() error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	b := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		b.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		b.MaxInterval = p.MaxInterval
	}
	b.MaxElapsedTime = 0

	attempt := 0
	return backoff.RetryNotify(
		func() error {
			attempt++
			return op()
		},
		backoff.WithContext(backoff.WithMaxRetries(b, uint64(attempts-1)), ctx),
		func(err error, wait time.Duration) {
			log.Warn("cluster call failed, retrying", "attempt", attempt, "of", attempts, "wait", wait, "error", err)
		},
	)
}
