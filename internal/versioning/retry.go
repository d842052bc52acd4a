package versioning

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/specialistvlad/sosappend/internal/blobstore"
	"github.com/specialistvlad/sosappend/internal/ctxlog"
)

// RetryPolicy bounds retries of unavailable-store errors.
type RetryPolicy struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxElapsedTime  time.Duration
	// MaxRetries caps the number of retries after the first attempt.
	MaxRetries uint64
}

// DefaultRetryPolicy is used when a Config leaves Retry zero.
var DefaultRetryPolicy = RetryPolicy{
	InitialInterval: 200 * time.Millisecond,
	MaxInterval:     5 * time.Second,
	MaxElapsedTime:  time.Minute,
	MaxRetries:      6,
}

func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = p.InitialInterval
	eb.MaxInterval = p.MaxInterval
	eb.MaxElapsedTime = p.MaxElapsedTime
	var b backoff.BackOff = eb
	if p.MaxRetries > 0 {
		b = backoff.WithMaxRetries(b, p.MaxRetries)
	}
	return backoff.WithContext(b, ctx)
}

// retry runs op until it succeeds, fails with anything but
// blobstore.ErrUnavailable, or the policy gives up.
func (m *Manager) retry(ctx context.Context, name string, op func() error) error {
	attempt := 0
	return backoff.RetryNotify(func() error {
		attempt++
		err := op()
		if err == nil || errors.Is(err, blobstore.ErrUnavailable) {
			return err
		}
		return backoff.Permanent(err)
	}, m.cfg.Retry.backOff(ctx), func(err error, wait time.Duration) {
		ctxlog.FromContext(ctx).Warn("Result store unavailable, retrying.",
			"op", name, "attempt", attempt, "wait", wait, "error", err)
		if m.cfg.OnRetry != nil {
			m.cfg.OnRetry(name)
		}
	})
}
