// Package telemetry provides application-level observability for the SSO server.
//
// # Prometheus Metrics Endpoint
//
// All metrics are registered against the default Prometheus registry and are
// served on the side-channel HTTP server started by the serve command:
//
//	GET http://<host>:<SSO_TELEMETRY_METRICS_PROMETHEUS_PORT>/metrics
//	GET http://<host>:<SSO_TELEMETRY_METRICS_PROMETHEUS_PORT>/ping
//
// Default port: 9090. The endpoint is NOT served by the Gin router, so metrics
// remain reachable when the API port is saturated or rate limited.
//
// # Metric Groups
//
//   - HTTP request counters and latency histograms (labelled by route template, not raw URL)
//   - Authentication attempts by method and result
//   - Tokens issued by kind
//   - Audit write failures and retention deletes
//   - Database connection pool gauge (polled every 30 s)
//
// # Label Cardinality
//
// HTTP metrics use c.FullPath() (route template such as /v1/user/:user_id)
// rather than the raw request URL so user ids never become label values.
package telemetry

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace prefixes every metric name.
const Namespace = "sso"

// HTTP metrics, labelled by method, route template and status code.
//
// Example PromQL queries:
//   - Request rate (req/s, 5 m window):  rate(sso_http_requests_total[5m])
//   - Error rate (%):                    sum(rate(sso_http_requests_total{status=~"5.."}[5m])) / sum(rate(sso_http_requests_total[5m])) * 100
//   - p99 latency per route:             histogram_quantile(0.99, sum by (path, le) (rate(sso_http_request_duration_seconds_bucket[5m])))
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests processed, by method, route template, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Histogram of HTTP request latencies, by method and route template.",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "path"},
	)
)

// Authentication metrics.
//
// AuthAttemptsTotal is labelled by method (key, token, local, github,
// microsoft, totp) and result (success, failure). A sudden rise in
// failures for one method is the usual signal of credential stuffing.
//
// Example PromQL queries:
//   - Failure ratio per method:  sum by (method) (rate(sso_auth_attempts_total{result="failure"}[5m])) / sum by (method) (rate(sso_auth_attempts_total[5m]))
//
// TokensIssuedTotal counts signed tokens by kind (access, refresh, register,
// reset_password, revoke).
var (
	AuthAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "auth_attempts_total",
			Help:      "Total number of authentication attempts, by method and result.",
		},
		[]string{"method", "result"},
	)

	TokensIssuedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "tokens_issued_total",
			Help:      "Total number of tokens signed, by token kind.",
		},
		[]string{"kind"},
	)
)

// Audit metrics.
//
// AuditWriteFailuresTotal is incremented whenever an audit row could not be
// written and the failure was swallowed. Any sustained increase means audit
// records are being lost and should page.
//
// AuditRetentionDeletedTotal counts rows removed by the retention job.
var (
	AuditWriteFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "audit_write_failures_total",
			Help:      "Total number of audit rows that failed to be written.",
		},
	)

	AuditRetentionDeletedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "audit_retention_deleted_total",
			Help:      "Total number of audit rows deleted by the retention job.",
		},
	)
)

// DBOpenConnections is a Gauge that tracks the number of open connections currently
// held by the sql.DB connection pool. It is sampled every 30 seconds by
// StartDBStatsCollector rather than per-request to avoid the overhead of sql.DB.Stats().
//
// Example PromQL queries:
//   - Pool utilisation (%): sso_db_open_connections / <SSO_DATABASE_MAX_CONNECTIONS> * 100
var DBOpenConnections = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: Namespace,
		Name:      "db_open_connections",
		Help:      "Current number of open database connections in the pool.",
	},
)

// RecordAuthAttempt increments AuthAttemptsTotal for method with a result
// derived from err.
func RecordAuthAttempt(method string, err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	AuthAttemptsTotal.WithLabelValues(method, result).Inc()
}

// StartDBStatsCollector launches a background goroutine that samples sql.DB connection
// pool statistics every interval and updates the DBOpenConnections gauge. The
// goroutine exits when ctx is cancelled or the database becomes unreachable.
func StartDBStatsCollector(ctx context.Context, db *sql.DB, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	DBOpenConnections.Set(float64(db.Stats().OpenConnections))
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			if err := db.PingContext(ctx); err != nil {
				slog.Warn("db stats collector: database unreachable, stopping collector", "error", err)
				return
			}
			DBOpenConnections.Set(float64(db.Stats().OpenConnections))
		}
	}()
}
