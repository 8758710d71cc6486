// Package metrics exposes Prometheus counters and histograms for the
// backup/restore pipeline, served at GET /metrics. The teacher module
// declares prometheus/client_golang as a direct dependency but never
// imports it; this package gives it an actual job.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dbsentinel_runs_total",
			Help: "Total number of completed runs by operation, trigger, and status",
		},
		[]string{"operation", "trigger", "status"},
	)

	RunDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dbsentinel_run_duration_seconds",
			Help:    "Run duration in seconds by operation",
			Buckets: []float64{1, 5, 15, 30, 60, 300, 900, 1800, 3600, 7200},
		},
		[]string{"operation"},
	)

	RunSizeMB = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dbsentinel_run_size_mb",
			Help:    "Backup artifact size in megabytes by operation",
			Buckets: []float64{1, 10, 50, 100, 500, 1000, 5000, 20000},
		},
		[]string{"operation"},
	)

	DestinationOutcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dbsentinel_destination_outcomes_total",
			Help: "Total number of per-destination backup/restore outcomes",
		},
		[]string{"destination_type", "status"},
	)

	RetentionDeletionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dbsentinel_retention_deletions_total",
			Help: "Total number of backups deleted by the retention evaluator",
		},
		[]string{"destination_type"},
	)

	SchedulesActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "dbsentinel_schedules_active",
			Help: "Number of enabled schedules known to the scheduler",
		},
	)

	WorkerPoolQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "dbsentinel_worker_pool_queue_depth",
			Help: "Number of submitted runs waiting for a free worker slot",
		},
	)

	NotificationsSentTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dbsentinel_notifications_sent_total",
			Help: "Total number of notification deliveries attempted by channel and outcome",
		},
		[]string{"channel", "outcome"},
	)
)

func init() {
	prometheus.MustRegister(
		RunsTotal,
		RunDuration,
		RunSizeMB,
		DestinationOutcomesTotal,
		RetentionDeletionsTotal,
		SchedulesActive,
		WorkerPoolQueueDepth,
		NotificationsSentTotal,
	)
}

// Handler returns the Prometheus scrape handler for GET /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer measures an operation's duration for later recording against a
// histogram.
type Timer struct {
	start time.Time
}

// NewTimer starts a Timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveSeconds records the elapsed time against histogram.
func (t *Timer) ObserveSeconds(histogram prometheus.Observer) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the Timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
