// Package metrics exposes the Prometheus metrics of an ingestion run.
// Metrics are defined in their respective packages (client, cache, ratelimit,
// pagination, aggregate, flatfile, pipeline, warehouse) and registered via promauto;
// this package only serves them.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Registry is the default Prometheus registry used by the pipeline.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

const shutdownTimeout = 5 * time.Second

// Handler returns the /metrics handler for the default gatherer.
func Handler() http.Handler {
	return promhttp.Handler()
}

// NewMux returns a mux serving /metrics and /health.
func NewMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "OK")
	})
	return mux
}

// Server serves NewMux on an address until its context ends.
type Server struct {
	srv      *http.Server
	listener net.Listener
	logger   zerolog.Logger
}

// Listen binds addr. Use ":0" for an ephemeral port.
func Listen(addr string, logger zerolog.Logger) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("metrics listen %s: %w", addr, err)
	}
	return &Server{
		srv: &http.Server{
			Handler:           NewMux(),
			ReadHeaderTimeout: 5 * time.Second,
		},
		listener: ln,
		logger:   logger,
	}, nil
}

// Addr returns the bound address.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Serve blocks until ctx is cancelled, then shuts the server down.
func (s *Server) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.Addr()).Msg("Serving metrics")
		errCh <- s.srv.Serve(s.listener)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("metrics shutdown: %w", err)
		}
		return nil
	}
}

// Metrics Documentation
//
// Request Metrics (pkg/client):
//   - ingest_requests_total{endpoint, status} (Counter): Requests by endpoint and HTTP status
//   - ingest_request_duration_seconds{endpoint} (Histogram): Request duration by endpoint
//   - ingest_errors_total{class} (Counter): Errors by class (client, server, rate_limit, network, decode)
//
// Rate Limit Metrics (pkg/ratelimit):
//   - ingest_rate_limit_remaining (Gauge): Requests left in the server's window
//   - ingest_rate_limit_waits_total{reason} (Counter): Waits by reason (pacing, quota)
//   - ingest_rate_limit_wait_seconds (Histogram): Time spent waiting
//
// Cache Metrics (pkg/cache):
//   - ingest_cache_hits_total / ingest_cache_misses_total (Counter)
//   - ingest_cache_stored_bytes_total (Counter): Bytes written to Redis
//   - ingest_cache_errors_total{operation} (Counter): Redis failures
//
// Walk Metrics (pkg/pagination, pkg/aggregate):
//   - ingest_pagination_walks_total{reason} (Counter): Walks by stop reason
//   - ingest_pages_total / ingest_records_total / ingest_empty_pages_total (Counter)
//
// Output Metrics (pkg/flatfile):
//   - ingest_rows_written_total (Counter): CSV rows written
//   - ingest_write_errors_total (Counter): Failed CSV writes
//
// Pipeline Metrics (pkg/pipeline, pkg/warehouse):
//   - pipeline_stage_duration_seconds{stage, status} (Histogram)
//   - warehouse_rows_loaded_total{table} (Counter)
//   - warehouse_scripts_total{status} (Counter)
//
// Example Prometheus Queries:
//
//   # Cache Hit Rate
//   sum(rate(ingest_cache_hits_total[5m])) /
//   (sum(rate(ingest_cache_hits_total[5m])) + sum(rate(ingest_cache_misses_total[5m])))
//
//   # Request Error Rate
//   sum by (class) (rate(ingest_errors_total[5m]))
//
//   # P95 Request Latency
//   histogram_quantile(0.95, rate(ingest_request_duration_seconds_bucket[5m]))
