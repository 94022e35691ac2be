package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Значения label `cause` для проваленных переходов.
const (
	CauseOutOfStock       = "out_of_stock"
	CauseStoreUnavailable = "store_unavailable"
	CauseOrderNotFound    = "order_not_found"
)

// TransitionMetrics содержит метрики переходов инвентаря и компенсаций.
type TransitionMetrics struct {
	// Счётчики переходов
	started   prometheus.Counter
	completed prometheus.Counter
	failed    *prometheus.CounterVec

	unitsClaimed prometheus.Counter
	unitReverts  *prometheus.CounterVec
	rollbacks    *prometheus.CounterVec

	duration prometheus.Histogram
	active   prometheus.Gauge
}

// NewTransitionMetrics регистрирует метрики в prometheus.DefaultRegisterer.
func NewTransitionMetrics() *TransitionMetrics {
	return NewTransitionMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewTransitionMetricsWithRegisterer позволяет изолировать метрики (например, в тестах).
func NewTransitionMetricsWithRegisterer(registerer prometheus.Registerer) *TransitionMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &TransitionMetrics{
		started: registerCounter(registerer, prometheus.CounterOpts{
			Name: "invfetch_transitions_started_total",
			Help: "Total number of inventory transitions started",
		}),
		completed: registerCounter(registerer, prometheus.CounterOpts{
			Name: "invfetch_transitions_completed_total",
			Help: "Total number of inventory transitions completed successfully",
		}),
		failed: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "invfetch_transitions_failed_total",
			Help: "Total number of inventory transitions failed, by cause",
		}, []string{"cause"}),
		unitsClaimed: registerCounter(registerer, prometheus.CounterOpts{
			Name: "invfetch_units_claimed_total",
			Help: "Total number of inventory units claimed by successful transitions",
		}),
		unitReverts: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "invfetch_unit_reverts_total",
			Help: "Compensating unit reverts, by result",
		}, []string{"result"}),
		rollbacks: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "invfetch_rollbacks_total",
			Help: "Compensations executed, by result",
		}, []string{"result"}),
		duration: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "invfetch_transition_duration_seconds",
			Help:    "Duration of inventory transitions in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}),
		active: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "invfetch_active_transitions",
			Help: "Number of inventory transitions in flight",
		}),
	}
}

func registerCounter(registerer prometheus.Registerer, opts prometheus.CounterOpts) prometheus.Counter {
	collector := prometheus.NewCounter(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Counter)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter %q: %v", opts.Name, err))
	}
	return collector
}

func registerCounterVec(registerer prometheus.Registerer, opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	collector := prometheus.NewCounterVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.CounterVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter vec %q: %v", opts.Name, err))
	}
	return collector
}

func registerGauge(registerer prometheus.Registerer, opts prometheus.GaugeOpts) prometheus.Gauge {
	collector := prometheus.NewGauge(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Gauge)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register gauge %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogram(registerer prometheus.Registerer, opts prometheus.HistogramOpts) prometheus.Histogram {
	collector := prometheus.NewHistogram(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Histogram)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram %q: %v", opts.Name, err))
	}
	return collector
}

// RecordTransitionStarted увеличивает счётчик запущенных переходов и in-flight gauge.
func (m *TransitionMetrics) RecordTransitionStarted() {
	m.started.Inc()
	m.active.Inc()
}

// RecordTransitionCompleted фиксирует успешный переход units единиц.
func (m *TransitionMetrics) RecordTransitionCompleted(units int, duration time.Duration) {
	m.completed.Inc()
	m.unitsClaimed.Add(float64(units))
	m.finish(duration)
}

// RecordTransitionFailed фиксирует провал перехода с указанной причиной.
func (m *TransitionMetrics) RecordTransitionFailed(cause string, duration time.Duration) {
	m.failed.WithLabelValues(cause).Inc()
	m.finish(duration)
}

// RecordRollback учитывает итоги компенсации по каждой единице.
func (m *TransitionMetrics) RecordRollback(reverted, skipped, failed int, clean bool) {
	m.unitReverts.WithLabelValues("reverted").Add(float64(reverted))
	m.unitReverts.WithLabelValues("skipped").Add(float64(skipped))
	m.unitReverts.WithLabelValues("failed").Add(float64(failed))

	result := "clean"
	if !clean {
		result = "incomplete"
	}
	m.rollbacks.WithLabelValues(result).Inc()
}

func (m *TransitionMetrics) finish(duration time.Duration) {
	m.duration.Observe(duration.Seconds())
	m.active.Dec()
}
