package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/courseforge/courseforge-backend/pkg/enums"
)

// Payment is the evidence a student submitted for an enrollment.
type Payment struct {
	ID               uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	EnrollmentID     uuid.UUID           `gorm:"column:enrollment_id;type:uuid;not null" json:"enrollmentId"`
	StudentID        uuid.UUID           `gorm:"column:student_id;type:uuid;not null" json:"studentId"`
	CourseID         uuid.UUID           `gorm:"column:course_id;type:uuid;not null" json:"courseId"`
	Amount           decimal.Decimal     `gorm:"column:amount;type:numeric(12,2);not null" json:"amount"`
	OriginalAmount   *decimal.Decimal    `gorm:"column:original_amount;type:numeric(12,2)" json:"originalAmount,omitempty"`
	DiscountAmount   *decimal.Decimal    `gorm:"column:discount_amount;type:numeric(12,2)" json:"discountAmount,omitempty"`
	VoucherID        *uuid.UUID          `gorm:"column:voucher_id;type:uuid" json:"voucherId,omitempty"`
	PaymentDate      time.Time           `gorm:"column:payment_date;not null" json:"paymentDate"`
	Method           enums.PaymentMethod `gorm:"column:payment_method;type:payment_method;not null" json:"method"`
	BankName         *string             `gorm:"column:bank_name;type:text" json:"bankName,omitempty"`
	AccountReference *string             `gorm:"column:account_reference;type:text" json:"accountReference,omitempty"`
	TransactionID    *string             `gorm:"column:transaction_id;type:text" json:"transactionId,omitempty"`
	ReceiptRef       *string             `gorm:"column:receipt_ref;type:text" json:"receiptRef,omitempty"`
	GatewayOrderID   *string             `gorm:"column:gateway_order_id;type:text" json:"gatewayOrderId,omitempty"`
	PayerID          *string             `gorm:"column:payer_id;type:text" json:"payerId,omitempty"`
	Status           enums.PaymentStatus `gorm:"column:status;type:payment_status;not null" json:"status"`
	Version          int                 `gorm:"column:version;not null;default:1" json:"version"`
	CreatedAt        time.Time           `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
	UpdatedAt        time.Time           `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`

	History []PaymentStatusEntry `gorm:"foreignKey:PaymentID" json:"history,omitempty"`
}

// PaymentStatusEntry is one append-only row of a payment's audit trail.
type PaymentStatusEntry struct {
	ID        uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	PaymentID uuid.UUID           `gorm:"column:payment_id;type:uuid;not null" json:"paymentId"`
	Sequence  int                 `gorm:"column:sequence;not null" json:"sequence"`
	Status    enums.PaymentStatus `gorm:"column:status;type:payment_status;not null" json:"status"`
	UpdatedBy string              `gorm:"column:updated_by;type:text;not null" json:"updatedBy"`
	Reason    *string             `gorm:"column:reason;type:text" json:"reason,omitempty"`
	UpdatedAt time.Time           `gorm:"column:updated_at;not null" json:"updatedAt"`
}

func (PaymentStatusEntry) TableName() string {
	return "payment_status_history"
}
