package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	JobsProcessed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "archive_jobs_processed_total",
		Help: "Total pipeline jobs processed",
	}, []string{"job"})
	JobErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "archive_job_errors_total",
		Help: "Total pipeline job failures",
	}, []string{"job"})
	JobDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "archive_job_duration_seconds",
		Help:    "Pipeline job duration seconds",
		Buckets: prometheus.DefBuckets,
	})
	APICalls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "archive_api_calls_total",
		Help: "Provider API calls recorded against the rate budget",
	}, []string{"method"})
	ThrottleWait = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "archive_throttle_wait_seconds",
		Help:    "Waits inserted by the rate limiter",
		Buckets: prometheus.DefBuckets,
	}, []string{"method"})
	PostsInserted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "archive_posts_inserted_total",
		Help: "Post records persisted",
	})
)

func init() {
	prometheus.MustRegister(JobsProcessed, JobErrors, JobDuration, APICalls, ThrottleWait, PostsInserted)
}

// StartServer starts a metrics HTTP server on addr (e.g., ":9090"). Empty addr
// disables metrics.
func StartServer(addr string) {
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	go func() { _ = http.ListenAndServe(addr, mux) }()
}

// ObserveJob records one job execution outcome.
func ObserveJob(job string, start time.Time, err error) {
	JobDuration.Observe(time.Since(start).Seconds())
	JobsProcessed.WithLabelValues(job).Inc()
	if err != nil {
		JobErrors.WithLabelValues(job).Inc()
	}
}
