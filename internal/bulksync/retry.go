package bulksync

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/partsline/catalog/internal/catalog"
)

const (
	defaultMaxRetries = 3
	defaultBaseDelay  = 2 * time.Second
	defaultMaxDelay   = 8 * time.Second
)

// transientPatterns cover errors that did not come through the catalog store.
var transientPatterns = []string{
	"timeout",
	"timed out",
	"connection",
	"pool exhausted",
	"too many clients",
	"too many connections",
}

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var se *catalog.StoreError
	if errors.As(err, &se) {
		return se.Kind == catalog.KindTransient
	}
	msg := strings.ToLower(err.Error())
	for _, p := range transientPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

// Retrier retries single store calls that fail transiently.
type Retrier struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	Sleep      func(ctx context.Context, d time.Duration) error
	Logger     *slog.Logger
}

// NewRetrier returns a Retrier with three retries and 2s linear backoff capped at 8s.
func NewRetrier(logger *slog.Logger) *Retrier {
	return &Retrier{
		MaxRetries: defaultMaxRetries,
		BaseDelay:  defaultBaseDelay,
		MaxDelay:   defaultMaxDelay,
		Sleep:      sleepContext,
		Logger:     logger,
	}
}

// Delay returns the wait before retry number attempt (1-based).
func (r *Retrier) Delay(attempt int) time.Duration {
	d := r.BaseDelay * time.Duration(attempt)
	if d > r.MaxDelay {
		return r.MaxDelay
	}
	return d
}

// Do runs fn, retrying transient failures.
func (r *Retrier) Do(ctx context.Context, op string, fn func(context.Context) error) error {
	_, err := retry(ctx, r, op, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

func retry[T any](ctx context.Context, r *Retrier, op string, fn func(context.Context) (T, error)) (T, error) {
	for attempt := 0; ; attempt++ {
		v, err := fn(ctx)
		if err == nil || attempt >= r.MaxRetries || !IsTransient(err) {
			return v, err
		}
		wait := r.Delay(attempt + 1)
		if r.Logger != nil {
			r.Logger.Warn("transient store failure, retrying",
				slog.String("op", op),
				slog.Int("attempt", attempt+1),
				slog.Duration("wait", wait),
				slog.Any("error", err))
		}
		sleep := r.Sleep
		if sleep == nil {
			sleep = sleepContext
		}
		if serr := sleep(ctx, wait); serr != nil {
			var zero T
			return zero, err
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
