package api

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type webhookMetrics struct {
	deliveries *prometheus.CounterVec
}

var (
	webhookMetricsOnce sync.Once
	webhookMetricsInst *webhookMetrics
)

func globalWebhookMetrics() *webhookMetrics {
	webhookMetricsOnce.Do(func() {
		webhookMetricsInst = newWebhookMetrics()
	})
	return webhookMetricsInst
}

func newWebhookMetrics() *webhookMetrics {
	return &webhookMetrics{
		deliveries: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "warrantyflow",
			Subsystem: "webhook",
			Name:      "deliveries_total",
			Help:      "Webhook deliveries received, labeled by outcome",
		}, []string{"outcome"}),
	}
}

func (m *webhookMetrics) record(outcome string) {
	if m == nil {
		return
	}
	m.deliveries.WithLabelValues(outcome).Inc()
}
