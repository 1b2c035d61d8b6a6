package vouchers

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/courseforge/courseforge-backend/pkg/db/models"
	pkgerrors "github.com/courseforge/courseforge-backend/pkg/errors"
)

// Reason names the first failed check of a voucher validation.
type Reason string

const (
	ReasonNotFound      Reason = "not_found"
	ReasonInactive      Reason = "inactive"
	ReasonNotYetValid   Reason = "not_yet_valid"
	ReasonExpired       Reason = "expired"
	ReasonExhausted     Reason = "exhausted"
	ReasonNotApplicable Reason = "not_applicable"
	ReasonAlreadyUsed   Reason = "already_used"
)

var reasonMessages = map[Reason]string{
	ReasonNotFound:      "voucher not found",
	ReasonInactive:      "voucher is no longer active",
	ReasonNotYetValid:   "voucher is not valid yet",
	ReasonExpired:       "voucher has expired",
	ReasonExhausted:     "voucher usage limit reached",
	ReasonNotApplicable: "voucher does not apply to this course",
	ReasonAlreadyUsed:   "voucher already used by this student",
}

// Message returns the human readable form of the reason.
func (r Reason) Message() string {
	if msg, ok := reasonMessages[r]; ok {
		return msg
	}
	return string(r)
}

// Code maps the reason onto the shared error taxonomy.
func (r Reason) Code() pkgerrors.Code {
	switch r {
	case ReasonNotFound:
		return pkgerrors.CodeNotFound
	case ReasonInactive, ReasonNotYetValid, ReasonExpired, ReasonExhausted:
		return pkgerrors.CodeExpiredOrExhausted
	case ReasonAlreadyUsed:
		return pkgerrors.CodeConflict
	default:
		return pkgerrors.CodeValidation
	}
}

// ValidateRequest identifies the voucher and the purchase it would discount.
type ValidateRequest struct {
	Code      string
	CourseID  uuid.UUID
	StudentID uuid.UUID
}

// ValidationResult is returned for every validation, successful or not.
type ValidationResult struct {
	Valid          bool             `json:"valid"`
	Reason         Reason           `json:"reason,omitempty"`
	Message        string           `json:"message,omitempty"`
	Code           pkgerrors.Code   `json:"code,omitempty"`
	Voucher        *models.Voucher  `json:"-"`
	VoucherID      *uuid.UUID       `json:"voucherId,omitempty"`
	OriginalPrice  *decimal.Decimal `json:"originalPrice,omitempty"`
	DiscountAmount *decimal.Decimal `json:"discountAmount,omitempty"`
	FinalPrice     *decimal.Decimal `json:"finalPrice,omitempty"`
}

// Err converts a failed result into a typed error; nil when valid.
func (r *ValidationResult) Err() error {
	if r == nil || r.Valid {
		return nil
	}
	return pkgerrors.New(r.Reason.Code(), r.Reason.Message()).
		WithDetails(map[string]any{"reason": r.Reason})
}

func invalid(reason Reason, voucher *models.Voucher) *ValidationResult {
	res := &ValidationResult{
		Reason:  reason,
		Message: reason.Message(),
		Code:    reason.Code(),
		Voucher: voucher,
	}
	if voucher != nil {
		id := voucher.ID
		res.VoucherID = &id
	}
	return res
}

func valid(voucher *models.Voucher, price, discount, final decimal.Decimal) *ValidationResult {
	id := voucher.ID
	return &ValidationResult{
		Valid:          true,
		Voucher:        voucher,
		VoucherID:      &id,
		OriginalPrice:  &price,
		DiscountAmount: &discount,
		FinalPrice:     &final,
	}
}

// RedeemRequest consumes one use of a voucher for a student and enrollment.
type RedeemRequest struct {
	Code         string
	StudentID    uuid.UUID
	CourseID     uuid.UUID
	EnrollmentID uuid.UUID
	AppliedBy    uuid.UUID
}

// Redemption is the outcome of a successful Redeem.
type Redemption struct {
	Voucher models.Voucher      `json:"voucher"`
	Usage   models.VoucherUsage `json:"usage"`
}

// CreateInput describes a new voucher.
type CreateInput struct {
	Code                string
	DiscountPercentage  decimal.Decimal
	ApplicableCourseIDs []uuid.UUID
	UsageLimit          int
	ValidFrom           time.Time
	ValidUntil          time.Time
	IsActive            *bool
}

// UpdateInput carries the fields an administrator may change. Nil fields are left untouched.
type UpdateInput struct {
	DiscountPercentage  *decimal.Decimal
	ApplicableCourseIDs []uuid.UUID
	UsageLimit          *int
	ValidFrom           *time.Time
	ValidUntil          *time.Time
	IsActive            *bool
}

// ListParams filters the administrative voucher list.
type ListParams struct {
	ActiveOnly bool
	Limit      int
	Cursor     string
}
