package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/courseforge/courseforge-backend/pkg/enums"
)

// EnrollmentEvent carries enrollment state changes (requested, approved, rejected).
type EnrollmentEvent struct {
	EnrollmentID    uuid.UUID              `json:"enrollmentId"`
	StudentID       uuid.UUID              `json:"studentId"`
	CourseID        uuid.UUID              `json:"courseId"`
	Status          enums.EnrollmentStatus `json:"status"`
	VoucherCode     *string                `json:"voucherCode,omitempty"`
	RejectionReason *string                `json:"rejectionReason,omitempty"`
	UpdatedBy       string                 `json:"updatedBy,omitempty"`
}

// EnrollmentExpiredEvent is emitted by the expiration sweep.
type EnrollmentExpiredEvent struct {
	EnrollmentID   uuid.UUID `json:"enrollmentId"`
	StudentID      uuid.UUID `json:"studentId"`
	CourseID       uuid.UUID `json:"courseId"`
	ExpirationDate time.Time `json:"expirationDate"`
	ExpiredAt      time.Time `json:"expiredAt"`
}

// PaymentRecordedEvent is emitted when payment evidence is first stored.
type PaymentRecordedEvent struct {
	PaymentID    uuid.UUID           `json:"paymentId"`
	EnrollmentID uuid.UUID           `json:"enrollmentId"`
	StudentID    uuid.UUID           `json:"studentId"`
	CourseID     uuid.UUID           `json:"courseId"`
	Amount       decimal.Decimal     `json:"amount"`
	Method       enums.PaymentMethod `json:"method"`
	Status       enums.PaymentStatus `json:"status"`
}

// PaymentStatusChangedEvent mirrors one appended status history entry.
type PaymentStatusChangedEvent struct {
	PaymentID      uuid.UUID           `json:"paymentId"`
	EnrollmentID   uuid.UUID           `json:"enrollmentId"`
	StudentID      uuid.UUID           `json:"studentId"`
	PreviousStatus enums.PaymentStatus `json:"previousStatus"`
	Status         enums.PaymentStatus `json:"status"`
	UpdatedBy      string              `json:"updatedBy"`
	Reason         *string             `json:"reason,omitempty"`
}

// VoucherRedeemedEvent is emitted with each voucher usage row.
type VoucherRedeemedEvent struct {
	VoucherID      uuid.UUID       `json:"voucherId"`
	UsageID        uuid.UUID       `json:"usageId"`
	Code           string          `json:"code"`
	StudentID      uuid.UUID       `json:"studentId"`
	CourseID       uuid.UUID       `json:"courseId"`
	EnrollmentID   uuid.UUID       `json:"enrollmentId"`
	OriginalPrice  decimal.Decimal `json:"originalPrice"`
	DiscountAmount decimal.Decimal `json:"discountAmount"`
	FinalPrice     decimal.Decimal `json:"finalPrice"`
	AppliedBy      uuid.UUID       `json:"appliedBy"`
}

// NotificationRequestedEvent tells downstream delivery (email, push) to alert a user.
type NotificationRequestedEvent struct {
	NotificationID uuid.UUID              `json:"notificationId"`
	UserID         uuid.UUID              `json:"userId"`
	Type           enums.NotificationType `json:"type"`
	Title          string                 `json:"title"`
	Message        string                 `json:"message"`
	Link           *string                `json:"link,omitempty"`
}
