package metrics

import (
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestSchedulerMetricsExportsCountersAndHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewSchedulerMetrics(reg)

	metrics.ObserveTick(250*time.Millisecond, 3)
	metrics.IncPostProcessed("published")
	metrics.IncPostProcessed("published")
	metrics.IncPlatformResult("twitter", "success")
	metrics.IncPlatformResult("reddit", "")
	metrics.IncLoopFailure("post")

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	if got, err := fetchCounterValue(mfs, "scheduler_posts_processed_total", "status", "published"); err != nil {
		t.Fatalf("fetch processed: %v", err)
	} else if got != 2 {
		t.Fatalf("expected processed=2, got %f", got)
	}

	if got, err := fetchCounterValue(mfs, "scheduler_platform_publish_total", "result", "unknown"); err != nil {
		t.Fatalf("fetch platform result: %v", err)
	} else if got != 1 {
		t.Fatalf("expected empty result normalized to unknown, got %f", got)
	}

	if got, err := fetchCounterValue(mfs, "scheduler_loop_failures_total", "stage", "post"); err != nil {
		t.Fatalf("fetch loop failures: %v", err)
	} else if got != 1 {
		t.Fatalf("expected loop failures=1, got %f", got)
	}

	mf := findMetricFamily(mfs, "scheduler_tick_duration_seconds")
	if mf == nil || mf.GetMetric()[0].GetHistogram().GetSampleSum() <= 0 {
		t.Fatalf("expected tick duration to be observed")
	}
	gauge := findMetricFamily(mfs, "scheduler_due_posts")
	if gauge == nil || gauge.GetMetric()[0].GetGauge().GetValue() != 3 {
		t.Fatalf("expected due gauge of 3")
	}
}

func TestNilMetricsAreNoops(t *testing.T) {
	var metrics *SchedulerMetrics
	metrics.ObserveTick(time.Second, 1)
	metrics.IncPostProcessed("failed")
	metrics.IncLoopFailure("loop")

	empty := NewSchedulerMetrics(nil)
	empty.IncPlatformResult("twitter", "success")

	var outbox *OutboxMetrics
	outbox.IncRelayed("post_publish_completed", "published")
}

func TestOutboxMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewOutboxMetrics(reg)
	metrics.IncRelayed("post_publish_completed", "published")

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if got, err := fetchCounterValue(mfs, "outbox_relay_events_total", "result", "published"); err != nil {
		t.Fatalf("fetch relayed: %v", err)
	} else if got != 1 {
		t.Fatalf("expected relayed=1, got %f", got)
	}
}

func fetchCounterValue(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabel(metric.GetLabel(), label, value) {
			return metric.GetCounter().GetValue(), nil
		}
	}
	return 0, fmt.Errorf("metric %q missing label %s=%s", name, label, value)
}

func findMetricFamily(mfs []*dto.MetricFamily, name string) *dto.MetricFamily {
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

func matchesLabel(labels []*dto.LabelPair, name, value string) bool {
	for _, label := range labels {
		if label.GetName() == name && label.GetValue() == value {
			return true
		}
	}
	return false
}
