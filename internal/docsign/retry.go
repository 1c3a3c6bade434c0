package docsign

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// permanentError is implemented by errors that must not be retried, such as
// a 4xx response from a remote API.
type permanentError interface {
	Permanent() bool
}

func isPermanent(err error) bool {
	var pe permanentError
	return errors.As(err, &pe) && pe.Permanent()
}

func permanent(err error) error {
	return backoff.Permanent(err)
}

// retry runs fn with a per-attempt timeout and exponential backoff between
// attempts. Context cancellation stops retrying.
func (s *Service) retry(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.opts.InitialBackoff
	b.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(s.opts.MaxRetries)), ctx)

	attempt := 0
	return backoff.RetryNotify(func() error {
		attempt++
		actx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
		defer cancel()
		err := fn(actx)
		if err != nil && ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		return err
	}, policy, func(err error, wait time.Duration) {
		s.logger.Warn("retrying", "op", op, "attempt", attempt, "wait", wait, "error", err)
	})
}
