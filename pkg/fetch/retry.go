package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"syscall"
	"time"

	"lootscout/pkg/config"
)

// maxRetryAfter caps how long a Retry-After header may stall a source.
const maxRetryAfter = 60 * time.Second

// Retrier repeats a Retriever on transient failures with exponential backoff.
type Retrier struct {
	Policy config.RetryPolicy
	Log    *slog.Logger

	sleep func(context.Context, time.Duration) error
}

func NewRetrier(policy config.RetryPolicy, log *slog.Logger) *Retrier {
	if log == nil {
		log = slog.Default()
	}
	return &Retrier{Policy: policy, Log: log, sleep: sleepCtx}
}

// Do returns the first successful document and the number of attempts made.
// Non-transient errors stop immediately; running out of attempts wraps the
// last error in ErrRetriesExhausted.
func (r *Retrier) Do(ctx context.Context, req Request, rt Retriever) (*Document, int, error) {
	sleep := r.sleep
	if sleep == nil {
		sleep = sleepCtx
	}
	maxAttempts := r.Policy.MaxRetries + 1

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, attempt - 1, err
		}

		doc, err := rt.Retrieve(ctx, req)
		if err == nil {
			return doc, attempt, nil
		}
		if !isTransient(ctx, err) {
			return nil, attempt, err
		}
		lastErr = err

		if attempt == maxAttempts {
			break
		}

		d := r.Policy.Delay(attempt)
		var se *StatusError
		if errors.As(err, &se) && se.StatusCode == http.StatusTooManyRequests && se.RetryAfter > 0 {
			d = se.RetryAfter
		}

		r.Log.Warn("transient fetch failure",
			"source", req.Source,
			"attempt", attempt,
			"max_attempts", maxAttempts,
			"retry_in", d,
			"url", req.URL,
			"err", err,
		)

		if err := sleep(ctx, d); err != nil {
			return nil, attempt, err
		}
	}

	return nil, maxAttempts, fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, maxAttempts, lastErr)
}

func isTransient(ctx context.Context, err error) bool {
	if err == nil || ctx.Err() != nil {
		return false
	}

	var se *StatusError
	if errors.As(err, &se) {
		return shouldRetryStatus(se.StatusCode)
	}

	if errors.Is(err, ErrMarkerTimeout) ||
		errors.Is(err, ErrNavigateTimeout) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}

func shouldRetryStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	sec, err := strconv.Atoi(v)
	if err != nil || sec <= 0 {
		return 0
	}
	d := time.Duration(sec) * time.Second
	if d > maxRetryAfter {
		d = maxRetryAfter
	}
	return d
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
