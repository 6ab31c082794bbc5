// Package telemetry provides application-level observability for the policy tracker.
//
// # Prometheus Metrics Endpoint
//
// All metrics are registered against the default Prometheus registry and are
// served on the side-channel HTTP server started by cmd/server:
//
//	GET http://<host>:<PT_TELEMETRY_METRICS_PROMETHEUS_PORT>/metrics
//
// Default port: 9090. The endpoint is not served by the Gin router.
//
// # Metric Groups
//
//   - HTTP request counters and latency histograms (labelled by route template, not raw URL)
//   - Acknowledgement lifecycle counters (issued, completed, conflicting completions, escalations)
//   - Overdue acknowledgement gauge, refreshed by the escalation sweep
//   - Background job durations and reminder email counters
//   - Report export counters
//   - Database connection pool gauge (polled every 30 s)
//
// # Label Cardinality
//
// HTTP metrics use c.FullPath() (route template such as /api/policies/:id)
// rather than the raw request URL so ids never become label values.
package telemetry

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics, labelled by method, route template and status code.
//
// Example PromQL queries:
//   - Error rate (%):       sum(rate(http_requests_total{status=~"5.."}[5m])) / sum(rate(http_requests_total[5m])) * 100
//   - p99 latency per route: histogram_quantile(0.99, sum by (path, le) (rate(http_request_duration_seconds_bucket[5m])))
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests processed, by method, route template, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, by method and route template.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "path"},
	)
)

// Acknowledgement lifecycle metrics.
//
// AcknowledgementRequestsCreatedTotal is labelled by trigger (ONBOARD, PERIODIC, MANUAL).
// AcknowledgementCompletionConflictsTotal counts completions rejected because the
// request was already completed; a rising rate points at clients retrying blindly.
// AlertEscalationsTotal is labelled by source: "api" for manual escalations and
// "sweep" for the background escalator.
//
// Example PromQL queries:
//   - Completions per day:   increase(acknowledgements_completed_total[1d])
//   - Alert on backlog:      overdue_acknowledgements > 50
var (
	AcknowledgementRequestsCreatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "acknowledgement_requests_created_total",
			Help: "Total number of acknowledgement requests issued, by trigger type.",
		},
		[]string{"trigger"},
	)

	AcknowledgementsCompletedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "acknowledgements_completed_total",
			Help: "Total number of acknowledgement requests completed.",
		},
	)

	AcknowledgementCompletionConflictsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "acknowledgement_completion_conflicts_total",
			Help: "Total number of completion attempts rejected because the request was already completed.",
		},
	)

	AlertEscalationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alert_escalations_total",
			Help: "Total number of alert escalations created, by source.",
		},
		[]string{"source"},
	)

	OverdueAcknowledgements = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "overdue_acknowledgements",
			Help: "Number of incomplete acknowledgement requests past their due date, across all companies.",
		},
	)
)

// Background job and report metrics.
var (
	BackgroundJobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "background_job_duration_seconds",
			Help:    "Duration of a single background job run, by job name.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"job"},
	)

	BackgroundJobPanicsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "background_job_panics_total",
			Help: "Total number of recovered panics in background work, by job name.",
		},
		[]string{"job"},
	)

	ReminderEmailsSentTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reminder_emails_sent_total",
			Help: "Total number of acknowledgement reminder emails successfully sent.",
		},
	)

	ReminderEmailsFailedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reminder_emails_failed_total",
			Help: "Total number of reminder emails that could not be delivered, by kind (permanent or transient).",
		},
		[]string{"kind"},
	)

	ReportExportsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "report_exports_total",
			Help: "Total number of compliance report exports, by format.",
		},
		[]string{"format"},
	)
)

// DBOpenConnections tracks the number of open connections held by the pool.
// It is sampled every 30 seconds by StartDBStatsCollector.
var DBOpenConnections = promauto.NewGauge(
	prometheus.GaugeOpts{
		Name: "db_open_connections",
		Help: "Current number of open database connections in the pool.",
	},
)

// ObserveJob records how long a background job run took.
func ObserveJob(job string, started time.Time) {
	BackgroundJobDuration.WithLabelValues(job).Observe(time.Since(started).Seconds())
}

// StartDBStatsCollector samples sql.DB pool statistics every 30 seconds into
// DBOpenConnections until ctx is cancelled.
func StartDBStatsCollector(ctx context.Context, db *sql.DB) {
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := db.PingContext(ctx); err != nil {
					slog.Warn("db stats collector: database unreachable", "error", err)
					continue
				}
				DBOpenConnections.Set(float64(db.Stats().OpenConnections))
			}
		}
	}()
}
