// Package metrics exposes the Prometheus metrics of the fetch pipeline.
// All metrics are defined in their respective packages (client, ratelimit,
// pagination, details, checkpoint, sink) via promauto and registered in the
// default registry.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Registry is the default Prometheus registry used by the pipeline.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Metrics Documentation
//
// Request Metrics (pkg/client):
//   - tmdb_requests_total{endpoint, status} (Counter): Requests by endpoint and HTTP status
//   - tmdb_request_duration_seconds{endpoint} (Histogram): Request duration by endpoint
//   - tmdb_errors_total{class} (Counter): Errors by class (client, server, rate_limit, network)
//
// Retry Metrics (pkg/client):
//   - tmdb_retries_total{operation} (Counter): Retries by sub-resource
//   - tmdb_retry_backoff_seconds{operation} (Histogram): Backoff slept before a retry
//   - tmdb_retry_exhausted_total{operation} (Counter): Sub-resources that failed every attempt
//
// Rate Limit Metrics (pkg/ratelimit):
//   - tmdb_rate_limit_waits_total (Counter): Requests held back by a 429 hold-off
//   - tmdb_rate_limit_throttles_total (Counter): 429 responses received
//
// Pipeline Metrics (pkg/pagination, pkg/details):
//   - pagination_pages_total{status} (Counter): Discover pages fetched / failed
//   - pagination_windows_skipped_total (Counter): Windows at or above the page ceiling
//   - details_records_total{status} (Counter): Records complete / degraded / failed
//
// Storage Metrics (pkg/checkpoint, pkg/sink):
//   - checkpoint_operations_total{operation, result} (Counter)
//   - checkpoint_errors_total{operation} (Counter)
//   - checkpoint_stored_ids{type} (Gauge)
//   - sink_documents_total{collection} (Counter)
//
// Example Prometheus Queries:
//
//   # Degraded record ratio
//   rate(details_records_total{status="degraded"}[5m]) / rate(details_records_total[5m])
//
//   # Request Error Rate
//   rate(tmdb_errors_total[5m])
//
//   # P95 Request Latency
//   histogram_quantile(0.95, rate(tmdb_request_duration_seconds_bucket[5m]))

// Handler returns the HTTP handler serving the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Serve exposes /metrics on addr until ctx is done.
func Serve(ctx context.Context, addr string, logger zerolog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info().Str("addr", addr).Msg("Serving metrics")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}
