package store

import (
	"context"
	"time"

	"github.com/omega-realm/economy/internal/apperr"
)

// RetryOnConflict runs fn until it succeeds, fails with a non-retryable
// error, or has been retried attempts times. Backoff grows linearly.
func RetryOnConflict(ctx context.Context, attempts int, backoff time.Duration, fn func() error) error {
	err := fn()
	for i := 1; i <= attempts && apperr.Retryable(err); i++ {
		timer := time.NewTimer(backoff * time.Duration(i))
		select {
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-timer.C:
		}
		err = fn()
	}
	return err
}
