// ============================================================================
// sysmasterd Metrics - Prometheus Monitoring
// ============================================================================
//
// Package: internal/metrics
// File: metrics.go
// Purpose: Collect and expose manager metrics for Prometheus monitoring
//
// Monitoring Philosophy:
//   Based on RED (Rate, Errors, Duration) and USE (Utilization, Saturation, Errors)
//   Adapted from a job-queue collector onto unit/job-engine concerns: a "job"
//   here is a unit lifecycle operation (start/stop/reload/restart), not a
//   queue payload.
//
// Metric Categories:
//
//   1. Job Counters - Cumulative, monotonically increasing:
//      - sysmasterd_jobs_run_total: Total jobs handed to the job engine
//      - sysmasterd_jobs_done_total: Total jobs that finished with result Done
//      - sysmasterd_jobs_failed_total: Total jobs that finished with result Failed
//      - sysmasterd_jobs_cancelled_total: Total jobs that finished with result Cancelled
//
//   2. Performance Metrics (Histogram) - Distribution stats:
//      - sysmasterd_job_duration_seconds: job trigger-to-finish latency
//        * Buckets: Prometheus defaults, tuned for sub-second service starts
//
//   3. Status Metrics (Gauge) - Instantaneous values:
//      - sysmasterd_units_loaded: current count of units with LoadState Loaded
//      - sysmasterd_units_failed: current count of units with ActiveState Failed
//      - sysmasterd_jobs_suspended: current depth of the engine's suspend table
//      - sysmasterd_jobs_triggered: current depth of the engine's trigger table
//
// Use Cases:
//
//   Alerting:
//   - job_duration_seconds > 5s       -> slow unit start/stop
//   - jobs_failed_total rate increase -> unit flapping or bad config
//   - units_failed continuous growth  -> systemic failure
//
//   Capacity Planning:
//   - jobs_done_total / time -> throughput trends
//   - jobs_triggered peaks   -> transaction-engine backlog
//
// Prometheus Query Examples:
//
//   # Jobs finished per minute
//   rate(sysmasterd_jobs_done_total[1m])
//
//   # 95th percentile job duration
//   histogram_quantile(0.95, sysmasterd_job_duration_seconds_bucket)
//
//   # Failure rate
//   rate(sysmasterd_jobs_failed_total[5m]) / rate(sysmasterd_jobs_run_total[5m])
//
// HTTP Endpoint:
//   Exposed via /metrics, scraped by Prometheus
//   Format: Prometheus text format
//
// ============================================================================

package metrics

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector collects Prometheus metrics for the running manager.
type Collector struct {
	// Job-related metrics
	jobsRun      prometheus.Counter
	jobsDone     prometheus.Counter
	jobsFailed   prometheus.Counter
	jobsCanceled prometheus.Counter

	// Performance metrics
	jobDuration prometheus.Histogram

	// Status metrics
	unitsLoaded   prometheus.Gauge
	unitsFailed   prometheus.Gauge
	jobsSuspended prometheus.Gauge
	jobsTriggered prometheus.Gauge

	mu sync.Mutex
}

// NewCollector creates a new metrics collector, registering all metrics
// against the default Prometheus registry.
func NewCollector() *Collector {
	c := &Collector{
		jobsRun: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sysmasterd_jobs_run_total",
			Help: "Total number of jobs handed to the job engine",
		}),
		jobsDone: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sysmasterd_jobs_done_total",
			Help: "Total number of jobs that finished with result Done",
		}),
		jobsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sysmasterd_jobs_failed_total",
			Help: "Total number of jobs that finished with result Failed",
		}),
		jobsCanceled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sysmasterd_jobs_cancelled_total",
			Help: "Total number of jobs that finished with result Cancelled",
		}),
		jobDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "sysmasterd_job_duration_seconds",
			Help:    "Time from a job entering the trigger table to finishing",
			Buckets: prometheus.DefBuckets,
		}),
		unitsLoaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sysmasterd_units_loaded",
			Help: "Current number of units with LoadState Loaded",
		}),
		unitsFailed: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sysmasterd_units_failed",
			Help: "Current number of units with ActiveState Failed",
		}),
		jobsSuspended: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sysmasterd_jobs_suspended",
			Help: "Current depth of the job engine's suspend table",
		}),
		jobsTriggered: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sysmasterd_jobs_triggered",
			Help: "Current depth of the job engine's trigger table",
		}),
	}

	// Register all metrics
	prometheus.MustRegister(c.jobsRun)
	prometheus.MustRegister(c.jobsDone)
	prometheus.MustRegister(c.jobsFailed)
	prometheus.MustRegister(c.jobsCanceled)
	prometheus.MustRegister(c.jobDuration)
	prometheus.MustRegister(c.unitsLoaded)
	prometheus.MustRegister(c.unitsFailed)
	prometheus.MustRegister(c.jobsSuspended)
	prometheus.MustRegister(c.jobsTriggered)

	return c
}

// RecordRun records a job entering the engine via Run.
func (c *Collector) RecordRun() {
	c.jobsRun.Inc()
}

// RecordDone records a job finishing with result Done, along with its
// trigger-to-finish duration.
func (c *Collector) RecordDone(durationSeconds float64) {
	c.jobsDone.Inc()
	c.jobDuration.Observe(durationSeconds)
}

// RecordFailed records a job finishing with result Failed, along with its
// trigger-to-finish duration.
func (c *Collector) RecordFailed(durationSeconds float64) {
	c.jobsFailed.Inc()
	c.jobDuration.Observe(durationSeconds)
}

// RecordCancelled records a job finishing with result Cancelled.
func (c *Collector) RecordCancelled() {
	c.jobsCanceled.Inc()
}

// SetUnitsLoaded sets the current loaded-unit gauge.
func (c *Collector) SetUnitsLoaded(n int) {
	c.unitsLoaded.Set(float64(n))
}

// SetUnitsFailed sets the current failed-unit gauge.
func (c *Collector) SetUnitsFailed(n int) {
	c.unitsFailed.Set(float64(n))
}

// UpdateJobQueueDepth updates the suspend/trigger table depth gauges.
func (c *Collector) UpdateJobQueueDepth(suspended, triggered int) {
	c.jobsSuspended.Set(float64(suspended))
	c.jobsTriggered.Set(float64(triggered))
}

// StartServer starts the Prometheus metrics HTTP server.
//
// Parameters:
//   - port: HTTP server port
//
// Returns:
//   - error: Error on startup failure
func StartServer(port int) error {
	http.Handle("/metrics", promhttp.Handler())
	addr := fmt.Sprintf(":%d", port)
	return http.ListenAndServe(addr, nil)
}
