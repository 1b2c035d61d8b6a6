package payments

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/courseforge/courseforge-backend/pkg/enums"
)

// GatewayActor is recorded as updatedBy for transitions driven by the card gateway.
const GatewayActor = "gateway"

// ReuploadReason is the history reason recorded when evidence is replaced.
const ReuploadReason = "Receipt reuploaded"

// RecordInput is the payment evidence a student submits for an enrollment.
type RecordInput struct {
	EnrollmentID     uuid.UUID
	StudentID        uuid.UUID
	Amount           decimal.Decimal
	Method           enums.PaymentMethod
	PaymentDate      string
	ReceiptRef       *string
	BankName         *string
	AccountReference *string
	TransactionID    *string
	OriginalAmount   *decimal.Decimal
	DiscountAmount   *decimal.Decimal
	VoucherID        *uuid.UUID
}

// TransitionInput moves a payment to a new status.
type TransitionInput struct {
	PaymentID       uuid.UUID
	Status          enums.PaymentStatus
	UpdatedBy       string
	Reason          *string
	ExpectedVersion *int
}

// CaptureInput identifies a card payment authorized on the gateway.
type CaptureInput struct {
	EnrollmentID     uuid.UUID
	StudentID        uuid.UUID
	GatewayPaymentID string
}

// Discount carries the voucher terms stamped on a payment.
type Discount struct {
	VoucherID      uuid.UUID
	OriginalAmount decimal.Decimal
	DiscountAmount decimal.Decimal
}

// paymentDateLayouts are accepted for student-entered payment dates.
var paymentDateLayouts = []string{
	time.RFC3339,
	"2006-01-02",
}

func parsePaymentDate(raw string, fallback time.Time) (time.Time, bool) {
	if raw == "" {
		return fallback, true
	}
	for _, layout := range paymentDateLayouts {
		if parsed, err := time.Parse(layout, raw); err == nil {
			return parsed.UTC(), true
		}
	}
	return time.Time{}, false
}
