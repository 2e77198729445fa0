package retry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"
)

// Policy bounds a single upstream call: per-attempt deadline, attempt
// budget, and exponential backoff seed.
type Policy struct {
	Timeout     time.Duration // per-attempt deadline; <= 0 means the parent ctx alone
	MaxAttempts int           // total attempts; <= 0 means 1
	BaseDelay   time.Duration // backoff is BaseDelay * 2^(attempt-1)
	NoDelay     bool          // skip backoff entirely for deterministic runs
}

// HTTPError marks a non-2xx upstream response so Do can classify it
// without re-parsing error strings.
type HTTPError struct {
	Status int
	Body   string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("upstream status %d: %s", e.Status, e.Body)
}

// Do runs attempt under p. Each attempt gets its own deadline; on timeout
// only that attempt's call is canceled. Transient failures (timeouts,
// connection resets, 429 and 5xx responses) are retried with exponential
// backoff; other 4xx responses and error bodies carrying the provider's
// "400"/"Invalid" markers fail immediately without consuming the
// remaining attempts. Exhausting the budget returns the last error seen.
func Do[T any](ctx context.Context, p Policy, attempt func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	var lastErr error
	for i := 1; i <= attempts; i++ {
		actx := ctx
		var cancel context.CancelFunc
		if p.Timeout > 0 {
			actx, cancel = context.WithTimeout(ctx, p.Timeout)
		}
		v, err := attempt(actx)
		if cancel != nil {
			cancel()
		}
		if err == nil {
			return v, nil
		}
		lastErr = err
		if Permanent(err) || ctx.Err() != nil {
			return zero, lastErr
		}
		if i < attempts && !p.NoDelay && p.BaseDelay > 0 {
			t := time.NewTimer(p.BaseDelay << (i - 1))
			select {
			case <-ctx.Done():
				t.Stop()
				return zero, lastErr
			case <-t.C:
			}
		}
	}
	return zero, lastErr
}

// Permanent reports whether err should short-circuit the retry loop.
func Permanent(err error) bool {
	var he *HTTPError
	if errors.As(err, &he) {
		switch {
		case he.Status == http.StatusTooManyRequests:
			return false
		case he.Status >= 500:
			return false
		case he.Status >= 400:
			return true
		}
		if strings.Contains(he.Body, "400") || strings.Contains(he.Body, "Invalid") {
			return true
		}
		return false
	}
	if Timeout(err) {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "400") || strings.Contains(msg, "Invalid")
}

// Timeout reports whether err is a deadline or transport timeout. The
// aggregator uses this to distinguish 504 exhaustion from plain failure.
func Timeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
