// Package aiservice is the shared resilient HTTP client for the external
// extraction/embedding service. Both the ingestion pipeline and semantic
// search go through it.
package aiservice

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/eduforge/knowledge-backend/internal/observability"
	"github.com/eduforge/knowledge-backend/internal/pkg/ctxutil"
	"github.com/eduforge/knowledge-backend/internal/pkg/envutil"
	"github.com/eduforge/knowledge-backend/internal/pkg/httpx"
	"github.com/eduforge/knowledge-backend/internal/pkg/logger"
)

const (
	maxAttempts    = 3
	backoffBase    = 250 * time.Millisecond
	maxRetryAfter  = 30 * time.Second
	headerTraceID  = "X-Trace-ID"
	headerRequest  = "X-Request-ID"
	pathBuildGraph = "/api/build-graph"
	pathDeleteDoc  = "/api/delete-document-nodes"
	pathEmbedding  = "/api/embedding"
)

type BuildGraphRequest struct {
	DocumentID string `json:"documentId"`
	UserID     string `json:"userId"`
	Content    string `json:"content"`
	Title      string `json:"title"`
	Subject    string `json:"subject,omitempty"`
	Grade      string `json:"grade,omitempty"`
}

type BuildGraphResponse struct {
	Success       bool   `json:"success"`
	Message       string `json:"message"`
	EntityCount   int    `json:"entityCount"`
	RelationCount int    `json:"relationCount"`
}

type Client interface {
	// Send issues one logical request with retry/backoff. err is non-nil
	// for transport failures and for retryable statuses that survived all
	// attempts; other statuses (including non-retryable 4xx) come back as
	// (status, body, nil) for the caller to interpret.
	Send(ctx context.Context, method, url string, body []byte, headers map[string]string) (int, []byte, error)

	BuildGraph(ctx context.Context, req BuildGraphRequest) (*BuildGraphResponse, error)
	DeleteDocumentNodes(ctx context.Context, documentID string) error
	Embed(ctx context.Context, text string) ([]float64, error)
}

type client struct {
	log        *logger.Logger
	metrics    *observability.Metrics
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewClient(log *logger.Logger, metrics *observability.Metrics) (Client, error) {
	baseURL := envutil.String("AI_SERVICE_BASE_URL", "")
	if baseURL == "" {
		return nil, fmt.Errorf("AI_SERVICE_BASE_URL is not set")
	}
	attemptTimeout := envutil.Duration("AI_SERVICE_ATTEMPT_TIMEOUT", 120*time.Second)
	return &client{
		log:     log.With("client", "AIService"),
		metrics: metrics,
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  envutil.String("AI_SERVICE_API_KEY", ""),
		httpClient: &http.Client{
			Timeout: attemptTimeout,
		},
	}, nil
}

// NewWithHTTPClient exists for tests that need to point at an httptest
// server or swap the transport.
func NewWithHTTPClient(log *logger.Logger, metrics *observability.Metrics, baseURL string, hc *http.Client) Client {
	if hc == nil {
		hc = &http.Client{Timeout: 120 * time.Second}
	}
	return &client{
		log:        log.With("client", "AIService"),
		metrics:    metrics,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: hc,
	}
}

func (c *client) Send(ctx context.Context, method, url string, body []byte, headers map[string]string) (int, []byte, error) {
	ctx = ctxutil.Default(ctx)
	operation := operationName(url)

	var lastStatus int
	var lastBody []byte
	var lastErr error

	backoff := backoffBase
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		status, respBody, resp, err := c.doAttempt(ctx, operation, method, url, body, headers)
		lastStatus, lastBody, lastErr = status, respBody, err

		if err != nil {
			if !httpx.IsRetryableError(ctx, err) {
				return 0, nil, err
			}
		} else if !httpx.IsRetryableStatus(status) {
			return status, respBody, nil
		}

		if attempt == maxAttempts {
			break
		}

		sleepFor := httpx.Jitter(backoff)
		if err == nil {
			sleepFor = httpx.RetryAfterDuration(resp, sleepFor, maxRetryAfter)
		}
		c.log.Debug("retrying downstream call",
			"operation", operation, "attempt", attempt, "status", status, "error", err, "backoff", sleepFor)
		if serr := httpx.Sleep(ctx, sleepFor); serr != nil {
			return 0, nil, serr
		}
		backoff *= 2
	}

	if lastErr != nil {
		return 0, nil, fmt.Errorf("ai-service %s: %w (after %d attempts)", operation, lastErr, maxAttempts)
	}
	return lastStatus, lastBody, fmt.Errorf("ai-service %s: status %d after %d attempts", operation, lastStatus, maxAttempts)
}

// doAttempt performs a single HTTP exchange and records one downstream
// observation regardless of outcome.
func (c *client) doAttempt(ctx context.Context, operation, method, url string, body []byte, headers map[string]string) (int, []byte, *http.Response, error) {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return 0, nil, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	if td := ctxutil.GetTraceData(ctx); td != nil {
		if td.TraceID != "" {
			req.Header.Set(headerTraceID, td.TraceID)
		}
		if td.RequestID != "" {
			req.Header.Set(headerRequest, td.RequestID)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.ObserveDownstream(operation, 0, time.Since(start))
		return 0, nil, nil, err
	}
	defer resp.Body.Close()

	respBody, readErr := io.ReadAll(resp.Body)
	c.metrics.ObserveDownstream(operation, resp.StatusCode, time.Since(start))
	if readErr != nil {
		// A torn body is indistinguishable from a flaky connection; retry it.
		return resp.StatusCode, nil, resp, &bodyReadError{cause: readErr}
	}
	return resp.StatusCode, respBody, resp, nil
}

func (c *client) BuildGraph(ctx context.Context, req BuildGraphRequest) (*BuildGraphResponse, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal build-graph request: %w", err)
	}
	status, body, err := c.Send(ctx, http.MethodPost, c.baseURL+pathBuildGraph, payload, nil)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("build-graph: unexpected status %d: %s", status, truncate(body, 200))
	}
	var out BuildGraphResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("build-graph: unparseable response: %w", err)
	}
	return &out, nil
}

func (c *client) DeleteDocumentNodes(ctx context.Context, documentID string) error {
	payload, err := json.Marshal(map[string]string{"documentId": documentID})
	if err != nil {
		return err
	}
	status, _, err := c.Send(ctx, http.MethodPost, c.baseURL+pathDeleteDoc, payload, nil)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("delete-document-nodes: unexpected status %d", status)
	}
	return nil
}

func (c *client) Embed(ctx context.Context, text string) ([]float64, error) {
	payload, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return nil, err
	}
	status, body, err := c.Send(ctx, http.MethodPost, c.baseURL+pathEmbedding, payload, nil)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("embedding: unexpected status %d: %s", status, truncate(body, 200))
	}
	var out struct {
		Embedding []float64 `json:"embedding"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("embedding: unparseable response: %w", err)
	}
	if len(out.Embedding) == 0 {
		return nil, fmt.Errorf("embedding: empty vector in response")
	}
	return out.Embedding, nil
}

type bodyReadError struct{ cause error }

func (e *bodyReadError) Error() string   { return "read response body: " + e.cause.Error() }
func (e *bodyReadError) Unwrap() error   { return e.cause }
func (e *bodyReadError) Timeout() bool   { return true }
func (e *bodyReadError) Temporary() bool { return true }

func operationName(url string) string {
	trimmed := strings.TrimRight(url, "/")
	if i := strings.LastIndex(trimmed, "/"); i >= 0 {
		return trimmed[i+1:]
	}
	return trimmed
}

func truncate(b []byte, n int) string {
	s := string(b)
	if len(s) > n {
		return s[:n] + "..."
	}
	return s
}
