package metrics

import "github.com/prometheus/client_golang/prometheus"

// Relay outcomes for a single outbox row.
const (
	RelayOutcomePublished  = "published"
	RelayOutcomeRetry      = "retry"
	RelayOutcomeDeadLetter = "dead_letter"
)

// OutboxMetrics tracks the outbox relay.
type OutboxMetrics struct {
	events  *prometheus.CounterVec
	batches prometheus.Counter
}

func NewOutboxMetrics(reg prometheus.Registerer) *OutboxMetrics {
	if reg == nil {
		return &OutboxMetrics{}
	}
	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "outbox_events_relayed_total",
		Help:      "Outbox rows handled by the relay, by event type and outcome.",
	}, []string{"event_type", "outcome"})
	batches := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "outbox_batch_failures_total",
		Help:      "Relay batches rolled back because of a database error.",
	})
	reg.MustRegister(events, batches)
	return &OutboxMetrics{events: events, batches: batches}
}

func (m *OutboxMetrics) IncEvent(eventType, outcome string) {
	if m == nil || m.events == nil {
		return
	}
	m.events.WithLabelValues(normalizeLabel(eventType), normalizeLabel(outcome)).Inc()
}

func (m *OutboxMetrics) IncBatchFailure() {
	if m == nil || m.batches == nil {
		return
	}
	m.batches.Inc()
}
