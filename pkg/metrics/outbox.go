package metrics

import "github.com/prometheus/client_golang/prometheus"

// OutboxMetrics counts relay results.
type OutboxMetrics struct {
	relayed *prometheus.CounterVec
}

func NewOutboxMetrics(reg prometheus.Registerer) *OutboxMetrics {
	if reg == nil {
		return &OutboxMetrics{}
	}
	relayed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "outbox_relay_events_total",
		Help: "Outbox events handled by the relay, by event type and result.",
	}, []string{"event_type", "result"})
	reg.MustRegister(relayed)
	return &OutboxMetrics{relayed: relayed}
}

func (m *OutboxMetrics) IncRelayed(eventType, result string) {
	if m == nil || m.relayed == nil {
		return
	}
	m.relayed.WithLabelValues(normalizeLabel(eventType), normalizeLabel(result)).Inc()
}
