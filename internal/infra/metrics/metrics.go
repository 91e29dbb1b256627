// Package metrics exposes Prometheus collectors for jobs, tools, the
// summarizer and the HTTP layer. A nil *Metrics is a valid no-op recorder.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bryanwahyu/automaton-review/internal/domain/findings"
)

const namespace = "review"

type Metrics struct {
	jobsFinished *prometheus.CounterVec
	jobsRunning  prometheus.Gauge
	jobDuration  prometheus.Histogram
	toolRuns     *prometheus.CounterVec
	toolDuration *prometheus.HistogramVec
	toolFindings *prometheus.CounterVec
	summaries    *prometheus.CounterVec
	summaryTime  prometheus.Histogram

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
	httpInFlight prometheus.Gauge
}

// New registers every collector on reg. Tests pass a fresh
// prometheus.NewRegistry().
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		jobsFinished: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_finished_total",
			Help:      "Jobs that reached a terminal state",
		}, []string{"status"}),
		jobsRunning: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "jobs_running",
			Help:      "Jobs currently executing",
		}),
		jobDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Wall time from running to terminal",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		}),
		toolRuns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_runs_total",
			Help:      "Tool invocations by outcome (ok or error kind)",
		}, []string{"tool", "outcome"}),
		toolDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tool_duration_seconds",
			Help:      "Tool invocation wall time",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
		}, []string{"tool"}),
		toolFindings: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_findings_total",
			Help:      "Normalized findings produced per tool",
		}, []string{"tool"}),
		summaries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "summaries_total",
			Help:      "Summarization passes by outcome",
		}, []string{"outcome"}),
		summaryTime: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "summary_duration_seconds",
			Help:      "Summarization wall time",
			Buckets:   prometheus.ExponentialBuckets(0.25, 2, 10),
		}),
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status",
		}, []string{"method", "route", "status"}),
		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		httpInFlight: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "http_requests_in_flight",
			Help:      "HTTP requests being served",
		}),
	}
}

func (m *Metrics) JobStarted() {
	if m == nil {
		return
	}
	m.jobsRunning.Inc()
}

// JobFinished records a terminal job. started is false when the job never
// left pending.
func (m *Metrics) JobFinished(status string, started bool, d time.Duration) {
	if m == nil {
		return
	}
	m.jobsFinished.WithLabelValues(status).Inc()
	if started {
		m.jobsRunning.Dec()
		m.jobDuration.Observe(d.Seconds())
	}
}

func (m *Metrics) ToolRun(res findings.RunResult) {
	if m == nil {
		return
	}
	outcome := "ok"
	if res.Err != nil {
		outcome = string(res.Err.Kind)
	}
	m.toolRuns.WithLabelValues(string(res.Tool), outcome).Inc()
	m.toolDuration.WithLabelValues(string(res.Tool)).Observe(res.Duration.Seconds())
	m.toolFindings.WithLabelValues(string(res.Tool)).Add(float64(len(res.Findings)))
}

func (m *Metrics) Summarized(marker string, d time.Duration) {
	if m == nil {
		return
	}
	outcome := "ok"
	if marker != "" {
		outcome = marker
	}
	m.summaries.WithLabelValues(outcome).Inc()
	m.summaryTime.Observe(d.Seconds())
}

func (m *Metrics) HTTPStart() {
	if m == nil {
		return
	}
	m.httpInFlight.Inc()
}

func (m *Metrics) HTTPDone(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpInFlight.Dec()
	m.httpRequests.WithLabelValues(method, route, statusLabel(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

func statusLabel(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	}
	return "2xx"
}
