package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestVoucherMetricsCountsOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewVoucherMetrics(reg)
	m.IncRedemption(OutcomeRedeemed)
	m.IncRedemption(OutcomeRedeemed)
	m.IncRedemption(OutcomeConflict)
	m.IncValidation("expired")

	if got := testutil.ToFloat64(m.Redemptions().WithLabelValues(OutcomeRedeemed)); got != 2 {
		t.Fatalf("expected 2 redeemed, got %f", got)
	}
	if got := testutil.ToFloat64(m.Redemptions().WithLabelValues(OutcomeConflict)); got != 1 {
		t.Fatalf("expected 1 conflict, got %f", got)
	}
	if got := testutil.ToFloat64(m.Validations().WithLabelValues("expired")); got != 1 {
		t.Fatalf("expected 1 expired validation, got %f", got)
	}
}

func TestNilVoucherMetricsIsNoop(t *testing.T) {
	var m *VoucherMetrics
	m.IncRedemption(OutcomeRedeemed)
	m.IncValidation("ok")
	NewVoucherMetrics(nil).IncRedemption(OutcomeRejected)
}
