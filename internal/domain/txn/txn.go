// Package txn holds the write-conflict error shared by every store and the
// bounded retry used around optimistic writes.
package txn

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/go-faster/errors"
)

// ErrConflict is returned by stores when a conditional write lost a race: a
// compare-and-swap missed, or the database aborted a serializable transaction.
var ErrConflict = errors.New("transaction conflict")

// RetryPolicy bounds how often a conflicting operation is re-run.
type RetryPolicy struct {
	MaxTries        uint
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultPolicy is used by the cart and checkout services.
var DefaultPolicy = RetryPolicy{
	MaxTries:        3,
	InitialInterval: 20 * time.Millisecond,
	MaxInterval:     250 * time.Millisecond,
}

// Retry runs op until it succeeds, fails with an error other than
// ErrConflict, or the policy is exhausted. The last error is returned as is,
// so callers can still match ErrConflict.
func Retry[T any](ctx context.Context, p RetryPolicy, op func(ctx context.Context) (T, error)) (T, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialInterval
	b.MaxInterval = p.MaxInterval

	tries := p.MaxTries
	if tries == 0 {
		tries = 1
	}

	return backoff.Retry(ctx, func() (T, error) {
		v, err := op(ctx)
		if err != nil && !errors.Is(err, ErrConflict) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}, backoff.WithBackOff(b), backoff.WithMaxTries(tries))
}
