package scheduler

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type jobMetrics struct {
	runs      *prometheus.CounterVec
	skips     *prometheus.CounterVec
	durations *prometheus.HistogramVec
}

var (
	jobMetricsOnce sync.Once
	jobMetricsInst *jobMetrics
)

func globalJobMetrics() *jobMetrics {
	jobMetricsOnce.Do(func() {
		jobMetricsInst = newJobMetrics()
	})
	return jobMetricsInst
}

func newJobMetrics() *jobMetrics {
	return &jobMetrics{
		runs: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "warrantyflow",
			Subsystem: "scheduler",
			Name:      "job_runs_total",
			Help:      "Job executions, labeled by job and result",
		}, []string{"job", "result"}),
		skips: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "warrantyflow",
			Subsystem: "scheduler",
			Name:      "job_skips_total",
			Help:      "Ticks dropped before running, labeled by job and reason",
		}, []string{"job", "reason"}),
		durations: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "warrantyflow",
			Subsystem: "scheduler",
			Name:      "job_duration_seconds",
			Help:      "Duration of job executions",
			Buckets:   prometheus.DefBuckets,
		}, []string{"job"}),
	}
}

func (m *jobMetrics) recordRun(job string, success bool) {
	if m == nil {
		return
	}
	result := "success"
	if !success {
		result = "failure"
	}
	m.runs.WithLabelValues(job, result).Inc()
}

func (m *jobMetrics) recordSkip(job, reason string) {
	if m == nil {
		return
	}
	m.skips.WithLabelValues(job, reason).Inc()
}

func (m *jobMetrics) timeJob(job string) func() {
	if m == nil {
		return func() {}
	}
	timer := prometheus.NewTimer(m.durations.WithLabelValues(job))
	return func() {
		timer.ObserveDuration()
	}
}
