package observability

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/eduforge/knowledge-backend/internal/pkg/envutil"
	"github.com/eduforge/knowledge-backend/internal/pkg/logger"
)

// Metrics is the in-process registry exposed in Prometheus text format.
// Every method is nil-safe so call sites never guard on enablement.
type Metrics struct {
	apiRequests *CounterVec
	apiLatency  *HistogramVec
	apiInflight *Gauge

	downstreamRequests *CounterVec
	downstreamLatency  *HistogramVec

	ingestTotal  *CounterVec
	searchTotal  *CounterVec
	graphQueries *CounterVec

	redisUp   *Gauge
	redisPing *Gauge
}

var (
	metricsOnce sync.Once
	instance    *Metrics
)

func Get(log *logger.Logger) *Metrics {
	metricsOnce.Do(func() {
		if !envutil.Bool("OBS_METRICS_ENABLED", true) {
			return
		}
		instance = &Metrics{
			apiRequests: NewCounterVec("kb_api_requests_total", "Total API requests by method/route/status.", []string{"method", "route", "status"}),
			apiLatency: NewHistogramVec(
				"kb_api_request_duration_seconds",
				"API request latency in seconds by method/route/status.",
				[]string{"method", "route", "status"},
				[]float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			),
			apiInflight: NewGauge("kb_api_inflight_requests", "In-flight API requests."),
			downstreamRequests: NewCounterVec(
				"kb_downstream_requests_total",
				"Downstream AI-service attempts by operation/status (0 = transport failure).",
				[]string{"operation", "status"},
			),
			downstreamLatency: NewHistogramVec(
				"kb_downstream_request_duration_seconds",
				"Downstream AI-service attempt latency in seconds by operation/status.",
				[]string{"operation", "status"},
				[]float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
			),
			ingestTotal:  NewCounterVec("kb_ingest_documents_total", "Ingestion outcomes by status.", []string{"status"}),
			searchTotal:  NewCounterVec("kb_search_requests_total", "Semantic search requests by source path.", []string{"source"}),
			graphQueries: NewCounterVec("kb_graph_queries_total", "Graph queries by scope/outcome.", []string{"scope", "outcome"}),
			redisUp:      NewGauge("kb_redis_up", "Redis connectivity (1=up, 0=down)."),
			redisPing:    NewGauge("kb_redis_ping_seconds", "Redis ping latency in seconds."),
		}
		if log != nil {
			log.Info("Observability metrics enabled")
		}
	})
	return instance
}

func (m *Metrics) ObserveAPI(method, route, status string, dur time.Duration) {
	if m == nil {
		return
	}
	m.apiRequests.Inc(method, route, status)
	m.apiLatency.Observe(dur.Seconds(), method, route, status)
}

func (m *Metrics) ApiInflightInc() {
	if m == nil {
		return
	}
	m.apiInflight.Inc()
}

func (m *Metrics) ApiInflightDec() {
	if m == nil {
		return
	}
	m.apiInflight.Dec()
}

// ObserveDownstream records one downstream attempt. status is the HTTP
// status code, or 0 when the transport failed before a response.
func (m *Metrics) ObserveDownstream(operation string, status int, dur time.Duration) {
	if m == nil {
		return
	}
	s := fmt.Sprintf("%d", status)
	m.downstreamRequests.Inc(operation, s)
	m.downstreamLatency.Observe(dur.Seconds(), operation, s)
}

func (m *Metrics) IncIngest(status string) {
	if m == nil {
		return
	}
	m.ingestTotal.Inc(status)
}

func (m *Metrics) IncSearch(source string) {
	if m == nil {
		return
	}
	m.searchTotal.Inc(source)
}

func (m *Metrics) IncGraphQuery(scope, outcome string) {
	if m == nil {
		return
	}
	m.graphQueries.Inc(scope, outcome)
}

func (m *Metrics) StartServer(ctx context.Context, log *logger.Logger, addr string) {
	if m == nil {
		return
	}
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           http.HandlerFunc(m.WriteHTTP),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = srv.Shutdown(shutdownCtx)
		cancel()
	}()
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			if log != nil {
				log.Error("metrics server failed", "error", err, "addr", addr)
			}
		}
	}()
}

func (m *Metrics) WriteHTTP(w http.ResponseWriter, r *http.Request) {
	if m == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	_ = m.WritePrometheus(w)
}

func (m *Metrics) WritePrometheus(w io.Writer) error {
	if m == nil {
		return nil
	}
	collectors := []interface{ WritePrometheus(io.Writer) error }{
		m.apiRequests,
		m.apiLatency,
		m.apiInflight,
		m.downstreamRequests,
		m.downstreamLatency,
		m.ingestTotal,
		m.searchTotal,
		m.graphQueries,
		m.redisUp,
		m.redisPing,
	}
	for _, c := range collectors {
		if err := c.WritePrometheus(w); err != nil {
			return err
		}
	}
	return nil
}

// StartRedisCollector pings Redis on an interval and publishes
// connectivity/latency gauges. Purely advisory; failures only flip the gauge.
func (m *Metrics) StartRedisCollector(ctx context.Context, log *logger.Logger, rdb *redis.Client) {
	if m == nil || rdb == nil {
		return
	}
	interval := envutil.Duration("OBS_REDIS_PING_INTERVAL", 15*time.Second)
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				start := time.Now()
				pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
				err := rdb.Ping(pingCtx).Err()
				cancel()
				if err != nil {
					m.redisUp.Set(0)
					if log != nil {
						log.Debug("redis ping failed", "error", err)
					}
					continue
				}
				m.redisUp.Set(1)
				m.redisPing.Set(time.Since(start).Seconds())
			}
		}
	}()
}
