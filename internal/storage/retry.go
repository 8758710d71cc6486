package storage

import (
	"context"
	"math/rand"
	"time"

	"github.com/avast/retry-go/v4"
)

// retryAttempts, retryBaseDelay, and retryMaxJitter implement the backoff
// policy adapter calls retry under: 3 attempts, exponential backoff from a
// 2s base, each delay moved by a random jitter of up to ±25% of the base
// (spec §4.3).
const (
	retryAttempts  = 3
	retryBaseDelay = 2 * time.Second
	retryMaxJitter = retryBaseDelay / 4
)

// WithRetry runs fn, retrying only when it returns a TRANSIENT
// AdapterError. A PERMANENT error or any other error type is returned
// immediately without retrying.
func WithRetry(ctx context.Context, fn func() error) error {
	return retry.Do(
		fn,
		retry.Context(ctx),
		retry.Attempts(retryAttempts),
		retry.DelayType(func(n uint, err error, config *retry.Config) time.Duration {
			jitter := time.Duration(rand.Int63n(int64(2*retryMaxJitter)+1)) - retryMaxJitter
			return retry.BackOffDelay(n, err, config) + jitter
		}),
		retry.Delay(retryBaseDelay),
		retry.RetryIf(IsTransient),
		retry.LastErrorOnly(true),
	)
}
