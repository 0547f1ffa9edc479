package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SchedulerMetrics records publish loop activity.
type SchedulerMetrics struct {
	tickDuration    prometheus.Histogram
	dueLastTick     prometheus.Gauge
	postsProcessed  *prometheus.CounterVec
	platformResults *prometheus.CounterVec
	loopFailures    *prometheus.CounterVec
}

// NewSchedulerMetrics registers the scheduler metrics on the provided registerer.
// A nil registerer yields a no-op recorder.
func NewSchedulerMetrics(reg prometheus.Registerer) *SchedulerMetrics {
	if reg == nil {
		return &SchedulerMetrics{}
	}
	tickDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "scheduler_tick_duration_seconds",
		Help:    "Duration of scheduler ticks in seconds.",
		Buckets: prometheus.DefBuckets,
	})
	dueLastTick := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "scheduler_due_posts",
		Help: "Number of due posts claimed by the most recent tick.",
	})
	postsProcessed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "scheduler_posts_processed_total",
		Help: "Posts moved to a terminal status, by status.",
	}, []string{"status"})
	platformResults := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "scheduler_platform_publish_total",
		Help: "Per-platform publish attempts, by platform and result.",
	}, []string{"platform", "result"})
	loopFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "scheduler_loop_failures_total",
		Help: "Recovered scheduler failures, by stage.",
	}, []string{"stage"})
	reg.MustRegister(tickDuration, dueLastTick, postsProcessed, platformResults, loopFailures)
	return &SchedulerMetrics{
		tickDuration:    tickDuration,
		dueLastTick:     dueLastTick,
		postsProcessed:  postsProcessed,
		platformResults: platformResults,
		loopFailures:    loopFailures,
	}
}

// ObserveTick records one tick's duration and due count.
func (m *SchedulerMetrics) ObserveTick(duration time.Duration, due int) {
	if m == nil || m.tickDuration == nil {
		return
	}
	m.tickDuration.Observe(duration.Seconds())
	m.dueLastTick.Set(float64(due))
}

// IncPostProcessed counts a post reaching status.
func (m *SchedulerMetrics) IncPostProcessed(status string) {
	if m == nil || m.postsProcessed == nil {
		return
	}
	m.postsProcessed.WithLabelValues(normalizeLabel(status)).Inc()
}

// IncPlatformResult counts a per-platform outcome. result is "success" or a
// failure kind.
func (m *SchedulerMetrics) IncPlatformResult(platform, result string) {
	if m == nil || m.platformResults == nil {
		return
	}
	m.platformResults.WithLabelValues(normalizeLabel(platform), normalizeLabel(result)).Inc()
}

// IncLoopFailure counts a recovered failure at stage ("post" or "loop").
func (m *SchedulerMetrics) IncLoopFailure(stage string) {
	if m == nil || m.loopFailures == nil {
		return
	}
	m.loopFailures.WithLabelValues(normalizeLabel(stage)).Inc()
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
