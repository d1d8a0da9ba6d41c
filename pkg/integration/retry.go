package integration

import (
	"context"
	"errors"
	"fmt"

	"github.com/cenkalti/backoff/v5"

	senerrors "github.com/ondutyhq/sentinel/internal/errors"
)

// RetryPolicy bounds backoff/v5's exponential-with-jitter retry loop around
// an adapter call. Only senerrors.KindTransient failures are retried — a
// semantic or forbidden error surfaces immediately (spec.md §7).
type RetryPolicy struct {
	MaxRetries uint
}

// DefaultRetryPolicy matches spec.md §7's "adapter retries up to N" guidance.
var DefaultRetryPolicy = RetryPolicy{MaxRetries: 3}

// Do runs fn, retrying transient failures with exponential backoff and
// jitter up to p.MaxRetries times. A non-transient error (or context
// cancellation) returns immediately without further attempts.
func (p RetryPolicy) Do(ctx context.Context, adapterName string, fn func(ctx context.Context) error) error {
	op := func() (struct{}, error) {
		err := fn(ctx)
		if err == nil {
			return struct{}{}, nil
		}
		if senerrors.IsRetryable(err) {
			return struct{}{}, err
		}
		return struct{}{}, backoff.Permanent(err)
	}

	_, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(p.MaxRetries+1),
	)
	if err == nil {
		return nil
	}

	var permanent *backoff.PermanentError
	if errors.As(err, &permanent) {
		return permanent.Unwrap()
	}
	return senerrors.Transient("retry", adapterName, fmt.Errorf("exhausted retries: %w", err))
}
