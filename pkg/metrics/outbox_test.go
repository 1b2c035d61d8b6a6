package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestOutboxMetricsCountsByOutcome(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewOutboxMetrics(reg)
	m.Inc(OutboxPublished, "enrollment_approved")
	m.Inc(OutboxPublished, "enrollment_approved")
	m.Inc(OutboxDeadLined, "")

	if got := testutil.ToFloat64(m.Deliveries().WithLabelValues(OutboxPublished, "enrollment_approved")); got != 2 {
		t.Fatalf("expected 2 published, got %f", got)
	}
	if got := testutil.ToFloat64(m.Deliveries().WithLabelValues(OutboxDeadLined, "unknown")); got != 1 {
		t.Fatalf("expected 1 dead lettered, got %f", got)
	}

	var nilMetrics *OutboxMetrics
	nilMetrics.Inc(OutboxRetried, "x")
	NewOutboxMetrics(nil).Inc(OutboxRetried, "x")
}
