package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Значения label `result` для попыток публикации outbox.
const (
	PublishSent       = "sent"
	PublishRetryError = "retry_error"
	PublishFailed     = "failed"
	PublishDLQ        = "dlq"
	PublishDLQFailed  = "dlq_failed"
)

// OutboxMetrics: метрики relay из outbox в брокер.
type OutboxMetrics struct {
	attempts   *prometheus.CounterVec
	pending    prometheus.Gauge
	oldestAge  prometheus.Gauge
	batchDelay prometheus.Histogram
}

// NewOutboxMetrics регистрирует метрики в prometheus.DefaultRegisterer.
func NewOutboxMetrics() *OutboxMetrics {
	return NewOutboxMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

func NewOutboxMetricsWithRegisterer(registerer prometheus.Registerer) *OutboxMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &OutboxMetrics{
		attempts: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "invfetch_outbox_publish_attempts_total",
			Help: "Total number of outbox publish attempts grouped by result.",
		}, []string{"result"}),
		pending: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "invfetch_outbox_pending_records",
			Help: "Current number of pending records in transactional outbox.",
		}),
		oldestAge: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "invfetch_outbox_oldest_pending_age_seconds",
			Help: "Age in seconds of the oldest pending outbox record.",
		}),
		batchDelay: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "invfetch_outbox_batch_duration_seconds",
			Help:    "Time spent relaying one outbox batch.",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

// RecordPublish учитывает одну попытку публикации.
func (m *OutboxMetrics) RecordPublish(result string) {
	m.attempts.WithLabelValues(result).Inc()
}

// SetBacklog обновляет размер backlog и возраст самой старой записи.
func (m *OutboxMetrics) SetBacklog(pending int, oldestAge time.Duration) {
	m.pending.Set(float64(pending))
	if oldestAge < 0 {
		oldestAge = 0
	}
	m.oldestAge.Set(oldestAge.Seconds())
}

// ObserveBatch фиксирует длительность обработки батча.
func (m *OutboxMetrics) ObserveBatch(d time.Duration) {
	m.batchDelay.Observe(d.Seconds())
}
