package aiservice

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/eduforge/knowledge-backend/internal/pkg/ctxutil"
	"github.com/eduforge/knowledge-backend/internal/pkg/logger"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return log
}

func TestSendRetriesExhausted(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewWithHTTPClient(testLogger(t), nil, srv.URL, srv.Client())
	status, _, err := c.Send(context.Background(), http.MethodPost, srv.URL+"/api/build-graph", []byte(`{}`), nil)
	if err == nil {
		t.Fatalf("expected surfaced error after exhausted retries")
	}
	if status != http.StatusServiceUnavailable {
		t.Fatalf("expected last status 503, got %d", status)
	}
	if got := atomic.LoadInt32(&attempts); got != 3 {
		t.Fatalf("expected exactly 3 attempts, got %d", got)
	}
}

func TestSendRecoversAfterOneFailure(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c := NewWithHTTPClient(testLogger(t), nil, srv.URL, srv.Client())
	status, body, err := c.Send(context.Background(), http.MethodPost, srv.URL+"/api/build-graph", []byte(`{}`), nil)
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	if string(body) != `{"ok":true}` {
		t.Fatalf("unexpected body %q", body)
	}
	if got := atomic.LoadInt32(&attempts); got != 2 {
		t.Fatalf("expected exactly 2 attempts, got %d", got)
	}
}

// A per-attempt timeout is the most common transient failure; it must
// burn one attempt, not the whole call.
func TestSendRetriesAfterAttemptTimeout(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) == 1 {
			time.Sleep(400 * time.Millisecond)
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c := NewWithHTTPClient(testLogger(t), nil, srv.URL, &http.Client{Timeout: 100 * time.Millisecond})
	status, body, err := c.Send(context.Background(), http.MethodPost, srv.URL+"/api/build-graph", []byte(`{}`), nil)
	if err != nil {
		t.Fatalf("expected recovery after attempt timeout, got %v", err)
	}
	if status != http.StatusOK || string(body) != `{"ok":true}` {
		t.Fatalf("unexpected status/body: %d %q", status, body)
	}
	if got := atomic.LoadInt32(&attempts); got != 2 {
		t.Fatalf("expected exactly 2 attempts, got %d", got)
	}
}

func TestSendDoesNotRetryClientErrors(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"message":"bad input"}`))
	}))
	defer srv.Close()

	c := NewWithHTTPClient(testLogger(t), nil, srv.URL, srv.Client())
	status, body, err := c.Send(context.Background(), http.MethodPost, srv.URL+"/api/embedding", []byte(`{}`), nil)
	if err != nil {
		t.Fatalf("4xx should surface as status, not error: %v", err)
	}
	if status != http.StatusBadRequest || len(body) == 0 {
		t.Fatalf("unexpected status/body: %d %q", status, body)
	}
	if got := atomic.LoadInt32(&attempts); got != 1 {
		t.Fatalf("expected exactly 1 attempt, got %d", got)
	}
}

func TestSendCancelledDuringBackoff(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	c := NewWithHTTPClient(testLogger(t), nil, srv.URL, srv.Client())
	_, _, err := c.Send(ctx, http.MethodPost, srv.URL+"/api/build-graph", []byte(`{}`), nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled from cancelled backoff, got %v", err)
	}
	if got := atomic.LoadInt32(&attempts); got != 1 {
		t.Fatalf("expected 1 attempt before cancellation, got %d", got)
	}
}

func TestTraceHeadersForwarded(t *testing.T) {
	var gotTrace, gotRequest string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotTrace = r.Header.Get("X-Trace-ID")
		gotRequest = r.Header.Get("X-Request-ID")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	ctx := ctxutil.WithTraceData(context.Background(), &ctxutil.TraceData{
		TraceID:   "trace-123",
		RequestID: "req-456",
	})
	c := NewWithHTTPClient(testLogger(t), nil, srv.URL, srv.Client())
	if _, _, err := c.Send(ctx, http.MethodPost, srv.URL+"/api/embedding", nil, nil); err != nil {
		t.Fatalf("send: %v", err)
	}
	if gotTrace != "trace-123" || gotRequest != "req-456" {
		t.Fatalf("trace headers not forwarded: trace=%q request=%q", gotTrace, gotRequest)
	}
}

func TestBuildGraphParsesResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/build-graph" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"success":true,"message":"ok","entityCount":5,"relationCount":3}`))
	}))
	defer srv.Close()

	c := NewWithHTTPClient(testLogger(t), nil, srv.URL, srv.Client())
	resp, err := c.BuildGraph(context.Background(), BuildGraphRequest{DocumentID: "d1", UserID: "u1"})
	if err != nil {
		t.Fatalf("build graph: %v", err)
	}
	if !resp.Success || resp.EntityCount != 5 || resp.RelationCount != 3 {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestBuildGraphUnparseableBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	c := NewWithHTTPClient(testLogger(t), nil, srv.URL, srv.Client())
	if _, err := c.BuildGraph(context.Background(), BuildGraphRequest{}); err == nil {
		t.Fatalf("expected error for unparseable body")
	}
}

func TestEmbed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"embedding":[0.1,0.2,0.3]}`))
	}))
	defer srv.Close()

	c := NewWithHTTPClient(testLogger(t), nil, srv.URL, srv.Client())
	vec, err := c.Embed(context.Background(), "fractions")
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	if len(vec) != 3 || vec[1] != 0.2 {
		t.Fatalf("unexpected vector %v", vec)
	}
}
