package llm

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// retry runs op with exponential backoff while retryable reports true.
// Other errors are treated as permanent and fail immediately.
func retry(ctx context.Context, op func() error, retryable func(error) bool) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 30 * time.Second

	return backoff.Retry(func() error {
		err := op()
		if err != nil && !retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(b, ctx))
}
