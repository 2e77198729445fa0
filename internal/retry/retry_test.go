package retry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"
)

func TestDo_RetriesTransientThenSucceeds(t *testing.T) {
	calls := 0
	got, err := Do(context.Background(), Policy{MaxAttempts: 3, NoDelay: true}, func(ctx context.Context) (int, error) {
		calls++
		if calls < 3 {
			return 0, &HTTPError{Status: http.StatusBadGateway}
		}
		return 42, nil
	})
	if err != nil || got != 42 {
		t.Fatalf("got %d, %v", got, err)
	}
	if calls != 3 {
		t.Fatalf("calls = %d", calls)
	}
}

func TestDo_RetriesRateLimiting(t *testing.T) {
	calls := 0
	_, err := Do(context.Background(), Policy{MaxAttempts: 2, NoDelay: true}, func(ctx context.Context) (int, error) {
		calls++
		return 0, &HTTPError{Status: http.StatusTooManyRequests}
	})
	if err == nil {
		t.Fatal("expected exhaustion error")
	}
	if calls != 2 {
		t.Fatalf("429 should be retried, calls = %d", calls)
	}
}

func TestDo_ClientErrorFailsImmediately(t *testing.T) {
	calls := 0
	_, err := Do(context.Background(), Policy{MaxAttempts: 3, NoDelay: true}, func(ctx context.Context) (int, error) {
		calls++
		return 0, &HTTPError{Status: http.StatusNotFound}
	})
	var he *HTTPError
	if !errors.As(err, &he) || he.Status != http.StatusNotFound {
		t.Fatalf("err = %v", err)
	}
	if calls != 1 {
		t.Fatalf("4xx must not be retried, calls = %d", calls)
	}
}

func TestDo_InvalidMarkerFailsImmediately(t *testing.T) {
	for _, msg := range []string{"Invalid API key", "error 400 from upstream"} {
		calls := 0
		_, err := Do(context.Background(), Policy{MaxAttempts: 3, NoDelay: true}, func(ctx context.Context) (int, error) {
			calls++
			return 0, fmt.Errorf("%s", msg)
		})
		if err == nil || calls != 1 {
			t.Fatalf("%q: calls = %d, err = %v", msg, calls, err)
		}
	}
}

func TestDo_AttemptDeadlineCancelsOnlyThatAttempt(t *testing.T) {
	calls := 0
	got, err := Do(context.Background(), Policy{Timeout: 20 * time.Millisecond, MaxAttempts: 2, NoDelay: true}, func(ctx context.Context) (string, error) {
		calls++
		if calls == 1 {
			<-ctx.Done() // simulate a hung upstream call
			return "", ctx.Err()
		}
		return "ok", nil
	})
	if err != nil || got != "ok" {
		t.Fatalf("got %q, %v", got, err)
	}
	if calls != 2 {
		t.Fatalf("calls = %d", calls)
	}
}

func TestDo_SurfacesLastErrorOnExhaustion(t *testing.T) {
	calls := 0
	_, err := Do(context.Background(), Policy{MaxAttempts: 2, NoDelay: true}, func(ctx context.Context) (int, error) {
		calls++
		return 0, fmt.Errorf("attempt %d reset by peer", calls)
	})
	if err == nil || err.Error() != "attempt 2 reset by peer" {
		t.Fatalf("err = %v", err)
	}
}

func TestDo_ParentCancellationStopsRetrying(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	_, err := Do(ctx, Policy{MaxAttempts: 5, BaseDelay: time.Millisecond}, func(ctx context.Context) (int, error) {
		calls++
		cancel()
		return 0, &HTTPError{Status: http.StatusInternalServerError}
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Fatalf("calls = %d", calls)
	}
}

func TestTimeout_Classification(t *testing.T) {
	if !Timeout(context.DeadlineExceeded) {
		t.Fatal("deadline should classify as timeout")
	}
	if !Timeout(fmt.Errorf("wrapped: %w", context.DeadlineExceeded)) {
		t.Fatal("wrapped deadline should classify as timeout")
	}
	if Timeout(errors.New("connection reset by peer")) {
		t.Fatal("reset is transient but not a timeout")
	}
}
