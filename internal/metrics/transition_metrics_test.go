package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
)

func TestNewTransitionMetrics(t *testing.T) {
	metrics := NewTransitionMetricsWithRegisterer(prometheus.NewRegistry())

	if metrics == nil {
		t.Fatal("NewTransitionMetricsWithRegisterer should not return nil")
	}
	if metrics.started == nil || metrics.completed == nil || metrics.failed == nil {
		t.Error("transition counters should not be nil")
	}
	if metrics.unitsClaimed == nil || metrics.unitReverts == nil || metrics.rollbacks == nil {
		t.Error("unit counters should not be nil")
	}
	if metrics.duration == nil {
		t.Error("duration histogram should not be nil")
	}
	if metrics.active == nil {
		t.Error("active gauge should not be nil")
	}
}

func TestNewTransitionMetrics_ReusesRegisteredCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()

	first := NewTransitionMetricsWithRegisterer(reg)
	second := NewTransitionMetricsWithRegisterer(reg)

	first.RecordTransitionStarted()
	second.RecordTransitionStarted()

	if got := testutil.ToFloat64(first.started); got != 2 {
		t.Fatalf("expected shared counter value 2, got %f", got)
	}
}

func TestRecordTransitionLifecycle(t *testing.T) {
	metrics := NewTransitionMetricsWithRegisterer(prometheus.NewRegistry())

	metrics.RecordTransitionStarted()
	metrics.RecordTransitionStarted()
	if got := testutil.ToFloat64(metrics.active); got != 2 {
		t.Fatalf("expected 2 active transitions, got %f", got)
	}

	metrics.RecordTransitionCompleted(4, 10*time.Millisecond)
	metrics.RecordTransitionFailed(CauseOutOfStock, 5*time.Millisecond)

	if got := testutil.ToFloat64(metrics.active); got != 0 {
		t.Errorf("expected 0 active transitions, got %f", got)
	}
	if got := testutil.ToFloat64(metrics.completed); got != 1 {
		t.Errorf("expected completed 1, got %f", got)
	}
	if got := testutil.ToFloat64(metrics.unitsClaimed); got != 4 {
		t.Errorf("expected 4 units claimed, got %f", got)
	}
	if got := testutil.ToFloat64(metrics.failed.WithLabelValues(CauseOutOfStock)); got != 1 {
		t.Errorf("expected 1 out_of_stock failure, got %f", got)
	}

	metric := &dto.Metric{}
	if err := metrics.duration.Write(metric); err != nil {
		t.Fatalf("failed to write histogram: %v", err)
	}
	if metric.Histogram.GetSampleCount() != 2 {
		t.Errorf("expected 2 duration samples, got %d", metric.Histogram.GetSampleCount())
	}
}

func TestRecordRollback(t *testing.T) {
	metrics := NewTransitionMetricsWithRegisterer(prometheus.NewRegistry())

	metrics.RecordRollback(3, 1, 0, true)
	metrics.RecordRollback(1, 0, 2, false)

	cases := []struct {
		name string
		got  float64
		want float64
	}{
		{"reverted", testutil.ToFloat64(metrics.unitReverts.WithLabelValues("reverted")), 4},
		{"skipped", testutil.ToFloat64(metrics.unitReverts.WithLabelValues("skipped")), 1},
		{"failed", testutil.ToFloat64(metrics.unitReverts.WithLabelValues("failed")), 2},
		{"clean", testutil.ToFloat64(metrics.rollbacks.WithLabelValues("clean")), 1},
		{"incomplete", testutil.ToFloat64(metrics.rollbacks.WithLabelValues("incomplete")), 1},
	}
	for _, tc := range cases {
		if tc.got != tc.want {
			t.Errorf("%s: expected %f, got %f", tc.name, tc.want, tc.got)
		}
	}
}
