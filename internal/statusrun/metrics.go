package statusrun

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type runMetrics struct {
	runs          prometheus.Counter
	windowed      prometheus.Gauge
	notifications *prometheus.CounterVec
	snapshotSize  prometheus.Gauge
	durations     prometheus.Observer
}

var (
	runMetricsOnce sync.Once
	runMetricsInst *runMetrics
)

func globalRunMetrics() *runMetrics {
	runMetricsOnce.Do(func() {
		runMetricsInst = newRunMetrics()
	})
	return runMetricsInst
}

func newRunMetrics() *runMetrics {
	return &runMetrics{
		runs: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "warrantyflow",
			Subsystem: "statusrun",
			Name:      "runs_total",
			Help:      "Total status notification passes executed",
		}),
		windowed: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: "warrantyflow",
			Subsystem: "statusrun",
			Name:      "records_in_window",
			Help:      "Records inside the retention window during the latest pass",
		}),
		notifications: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "warrantyflow",
			Subsystem: "statusrun",
			Name:      "notifications_total",
			Help:      "Status update emails attempted, labeled by result and status",
		}, []string{"result", "status"}),
		snapshotSize: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: "warrantyflow",
			Subsystem: "statusrun",
			Name:      "snapshot_entries",
			Help:      "Tickets tracked in the snapshot after the latest pass",
		}),
		durations: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: "warrantyflow",
			Subsystem: "statusrun",
			Name:      "run_duration_seconds",
			Help:      "Duration of status notification passes",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}

func (m *runMetrics) recordRun() func() {
	if m == nil {
		return func() {}
	}
	m.runs.Inc()
	timer := prometheus.NewTimer(m.durations)
	return func() {
		timer.ObserveDuration()
	}
}

func (m *runMetrics) observeWindow(n int) {
	if m == nil {
		return
	}
	m.windowed.Set(float64(n))
}

func (m *runMetrics) recordNotification(status string, sent bool) {
	if m == nil {
		return
	}
	result := "sent"
	if !sent {
		result = "failed"
	}
	m.notifications.WithLabelValues(result, status).Inc()
}

func (m *runMetrics) observeSnapshot(n int) {
	if m == nil {
		return
	}
	m.snapshotSize.Set(float64(n))
}
