package httpx

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"testing"
	"time"
)

type fakeNetErr struct{ timeout bool }

func (e *fakeNetErr) Error() string   { return "fake net error" }
func (e *fakeNetErr) Timeout() bool   { return e.timeout }
func (e *fakeNetErr) Temporary() bool { return e.timeout }

func TestIsRetryableError(t *testing.T) {
	live := context.Background()
	if IsRetryableError(live, nil) {
		t.Fatalf("nil error must not be retryable")
	}
	if !IsRetryableError(live, &fakeNetErr{timeout: true}) {
		t.Fatalf("timeout net error should be retryable")
	}
	if IsRetryableError(live, errors.New("plain")) {
		t.Fatalf("plain error should not be retryable")
	}
}

// A per-attempt client timeout wraps context.DeadlineExceeded but must
// stay retryable while the caller's own context is still live.
func TestIsRetryableErrorAttemptTimeout(t *testing.T) {
	attemptErr := &url.Error{Op: "Get", URL: "http://down", Err: context.DeadlineExceeded}
	if !attemptErr.Timeout() {
		t.Fatalf("test premise broken: url.Error should report timeout")
	}
	if !IsRetryableError(context.Background(), attemptErr) {
		t.Fatalf("attempt timeout should be retryable while the caller waits")
	}
}

func TestIsRetryableErrorCallerGaveUp(t *testing.T) {
	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	if IsRetryableError(cancelled, context.Canceled) {
		t.Fatalf("caller cancellation must propagate, not retry")
	}

	expired, cancel2 := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel2()
	if IsRetryableError(expired, &fakeNetErr{timeout: true}) {
		t.Fatalf("expired caller deadline must propagate even for timeout errors")
	}
}

func TestIsRetryableStatus(t *testing.T) {
	for _, code := range []int{429, 500, 502, 503, 599} {
		if !IsRetryableStatus(code) {
			t.Errorf("status %d should be retryable", code)
		}
	}
	for _, code := range []int{200, 201, 400, 401, 403, 404, 422} {
		if IsRetryableStatus(code) {
			t.Errorf("status %d should not be retryable", code)
		}
	}
}

func TestRetryAfterDuration(t *testing.T) {
	resp := &http.Response{Header: http.Header{}}
	resp.Header.Set("Retry-After", "3")
	got := RetryAfterDuration(resp, 250*time.Millisecond, 10*time.Second)
	if got != 3*time.Second {
		t.Fatalf("expected 3s, got %v", got)
	}
	resp.Header.Set("Retry-After", "120")
	got = RetryAfterDuration(resp, 250*time.Millisecond, 5*time.Second)
	if got != 5*time.Second {
		t.Fatalf("expected cap at 5s, got %v", got)
	}
	got = RetryAfterDuration(nil, 250*time.Millisecond, 5*time.Second)
	if got != 250*time.Millisecond {
		t.Fatalf("expected fallback, got %v", got)
	}
}

func TestSleepCancellable(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := Sleep(ctx, time.Minute); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if err := Sleep(context.Background(), time.Millisecond); err != nil {
		t.Fatalf("expected nil after sleep, got %v", err)
	}
}
