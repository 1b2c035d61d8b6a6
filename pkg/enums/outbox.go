package enums

import "fmt"

// OutboxAggregateType maps to the aggregate_type enum in Postgres.
type OutboxAggregateType string

const (
	AggregateEnrollment   OutboxAggregateType = "enrollment"
	AggregatePayment      OutboxAggregateType = "payment"
	AggregateVoucher      OutboxAggregateType = "voucher"
	AggregateNotification OutboxAggregateType = "notification"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateEnrollment,
	AggregatePayment,
	AggregateVoucher,
	AggregateNotification,
}

// IsValid reports whether the value matches the canonical aggregate_type enum.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType maps to the event_type enum in Postgres.
type OutboxEventType string

const (
	EventEnrollmentRequested   OutboxEventType = "enrollment_requested"
	EventEnrollmentApproved    OutboxEventType = "enrollment_approved"
	EventEnrollmentRejected    OutboxEventType = "enrollment_rejected"
	EventEnrollmentExpired     OutboxEventType = "enrollment_expired"
	EventPaymentRecorded       OutboxEventType = "payment_recorded"
	EventPaymentStatusChanged  OutboxEventType = "payment_status_changed"
	EventVoucherRedeemed       OutboxEventType = "voucher_redeemed"
	EventNotificationRequested OutboxEventType = "notification_requested"
)

var validOutboxEventTypes = []OutboxEventType{
	EventEnrollmentRequested,
	EventEnrollmentApproved,
	EventEnrollmentRejected,
	EventEnrollmentExpired,
	EventPaymentRecorded,
	EventPaymentStatusChanged,
	EventVoucherRedeemed,
	EventNotificationRequested,
}

// IsValid reports whether the value matches the canonical event_type enum.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}

// OutboxDLQErrorReason records why an event was moved to the dead letter table.
type OutboxDLQErrorReason string

const (
	OutboxDLQReasonMaxAttempts  OutboxDLQErrorReason = "max_attempts"
	OutboxDLQReasonNonRetryable OutboxDLQErrorReason = "non_retryable"
)
