package enrollments

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/courseforge/courseforge-backend/internal/vouchers"
	"github.com/courseforge/courseforge-backend/pkg/db/models"
	"github.com/courseforge/courseforge-backend/pkg/enums"
)

// RequestInput is a student's enrollment request. Evidence is optional; when
// omitted the student records payment later.
type RequestInput struct {
	StudentID   uuid.UUID
	CourseID    uuid.UUID
	VoucherCode *string
	Evidence    *Evidence
}

// Evidence describes the payment a student made for the course. A zero Amount
// means the course price after any voucher discount.
type Evidence struct {
	Amount           decimal.Decimal
	Method           enums.PaymentMethod
	PaymentDate      string
	ReceiptRef       *string
	BankName         *string
	AccountReference *string
	TransactionID    *string
}

// RequestResult bundles everything a request created or reopened.
type RequestResult struct {
	Enrollment *models.Enrollment   `json:"enrollment"`
	Payment    *models.Payment      `json:"payment,omitempty"`
	Redemption *vouchers.Redemption `json:"redemption,omitempty"`
	FinalPrice decimal.Decimal      `json:"finalPrice"`
}

// SetStatusInput is an administrator decision on an enrollment.
type SetStatusInput struct {
	EnrollmentID    uuid.UUID
	Status          enums.EnrollmentStatus
	UpdatedBy       uuid.UUID
	Reason          *string
	ExpectedVersion *int
}

// SetExpirationInput sets or clears the end of an enrollment's access term.
type SetExpirationInput struct {
	EnrollmentID   uuid.UUID
	ExpirationDate *time.Time
	UpdatedBy      uuid.UUID
}

// ApplyVoucherInput is a retroactive voucher application by an administrator.
type ApplyVoucherInput struct {
	EnrollmentID uuid.UUID
	Code         string
	AdminID      uuid.UUID
}

// ApplyVoucherResult reports the redemption and the records it touched.
type ApplyVoucherResult struct {
	Enrollment *models.Enrollment   `json:"enrollment"`
	Redemption *vouchers.Redemption `json:"redemption"`
	Payment    *models.Payment      `json:"payment,omitempty"`
}

// ListParams filters the administrative enrollment queue.
type ListParams struct {
	Status *enums.EnrollmentStatus
	Limit  int
	Cursor string
}
