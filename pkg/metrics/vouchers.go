package metrics

import "github.com/prometheus/client_golang/prometheus"

// Redemption outcomes.
const (
	OutcomeRedeemed  = "redeemed"
	OutcomeRejected  = "rejected"
	OutcomeConflict  = "conflict"
	OutcomeExhausted = "exhausted"
)

// VoucherMetrics counts redemption attempts by outcome.
type VoucherMetrics struct {
	redemptions *prometheus.CounterVec
	validations *prometheus.CounterVec
}

// NewVoucherMetrics registers voucher counters on reg. A nil registerer yields a no-op recorder.
func NewVoucherMetrics(reg prometheus.Registerer) *VoucherMetrics {
	if reg == nil {
		return &VoucherMetrics{}
	}
	redemptions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "voucher_redemptions_total",
		Help:      "Voucher redemption attempts by outcome.",
	}, []string{"outcome"})
	validations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "voucher_validations_total",
		Help:      "Voucher validation results by reason.",
	}, []string{"reason"})
	reg.MustRegister(redemptions, validations)
	return &VoucherMetrics{redemptions: redemptions, validations: validations}
}

// IncRedemption records a redemption attempt.
func (v *VoucherMetrics) IncRedemption(outcome string) {
	if v == nil || v.redemptions == nil {
		return
	}
	v.redemptions.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// IncValidation records a validation result; reason is "ok" on success.
func (v *VoucherMetrics) IncValidation(reason string) {
	if v == nil || v.validations == nil {
		return
	}
	v.validations.WithLabelValues(normalizeLabel(reason)).Inc()
}

// Redemptions returns the underlying counter vector, nil when unregistered.
func (v *VoucherMetrics) Redemptions() *prometheus.CounterVec {
	if v == nil {
		return nil
	}
	return v.redemptions
}

// Validations returns the underlying counter vector, nil when unregistered.
func (v *VoucherMetrics) Validations() *prometheus.CounterVec {
	if v == nil {
		return nil
	}
	return v.validations
}
