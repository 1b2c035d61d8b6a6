package metrics

import "github.com/prometheus/client_golang/prometheus"

// Outbox delivery outcomes.
const (
	OutboxPublished = "published"
	OutboxRetried   = "retried"
	OutboxDeadLined = "dead_lettered"
)

// OutboxMetrics counts outbox rows by delivery outcome and event type.
type OutboxMetrics struct {
	deliveries *prometheus.CounterVec
}

// NewOutboxMetrics registers outbox counters on reg. A nil registerer yields a no-op recorder.
func NewOutboxMetrics(reg prometheus.Registerer) *OutboxMetrics {
	if reg == nil {
		return &OutboxMetrics{}
	}
	deliveries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "outbox_deliveries_total",
		Help:      "Outbox rows handled by the publisher by outcome and event type.",
	}, []string{"outcome", "event_type"})
	reg.MustRegister(deliveries)
	return &OutboxMetrics{deliveries: deliveries}
}

// Inc records one delivery attempt.
func (o *OutboxMetrics) Inc(outcome, eventType string) {
	if o == nil || o.deliveries == nil {
		return
	}
	o.deliveries.WithLabelValues(normalizeLabel(outcome), normalizeLabel(eventType)).Inc()
}

// Deliveries returns the underlying counter vector, nil when unregistered.
func (o *OutboxMetrics) Deliveries() *prometheus.CounterVec {
	if o == nil {
		return nil
	}
	return o.deliveries
}
