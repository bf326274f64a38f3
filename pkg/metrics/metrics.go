package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Staging pipeline metrics
	RowsStaged = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stagelift_rows_staged_total",
			Help: "Total number of rows written to the stage by schema and table",
		},
		[]string{"schema", "table"},
	)

	BytesStaged = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stagelift_bytes_staged_total",
			Help: "Total compressed bytes uploaded to the stage by schema and table",
		},
		[]string{"schema", "table"},
	)

	FilesStaged = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stagelift_files_staged_total",
			Help: "Total number of stage files uploaded by schema and table",
		},
		[]string{"schema", "table"},
	)

	FilesCleaned = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stagelift_files_cleaned_total",
			Help: "Total number of stage files deleted by schema and table",
		},
		[]string{"schema", "table"},
	)

	// Load engine metrics
	LoadStatementsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stagelift_load_statements_total",
			Help: "Total number of load statements executed by category",
		},
		[]string{"category"},
	)

	LoadDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "stagelift_load_duration_seconds",
			Help:    "Load engine duration per table in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"schema", "table"},
	)

	// Task metrics
	TasksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stagelift_tasks_total",
			Help: "Total number of executed tasks by type and outcome",
		},
		[]string{"task_type", "outcome"},
	)

	TaskDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "stagelift_task_duration_seconds",
			Help:    "Task execution duration in seconds by type",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"task_type"},
	)
)

func init() {
	prometheus.MustRegister(RowsStaged)
	prometheus.MustRegister(BytesStaged)
	prometheus.MustRegister(FilesStaged)
	prometheus.MustRegister(FilesCleaned)
	prometheus.MustRegister(LoadStatementsTotal)
	prometheus.MustRegister(LoadDuration)
	prometheus.MustRegister(TasksTotal)
	prometheus.MustRegister(TaskDuration)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since timer started
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
