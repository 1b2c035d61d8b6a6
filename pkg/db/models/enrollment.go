package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/courseforge/courseforge-backend/pkg/enums"
)

// Enrollment is the single record of a student's relationship to a course.
// (student_id, course_id) is unique; Version guards concurrent transitions.
type Enrollment struct {
	ID                uuid.UUID              `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	StudentID         uuid.UUID              `gorm:"column:student_id;type:uuid;not null" json:"studentId"`
	CourseID          uuid.UUID              `gorm:"column:course_id;type:uuid;not null" json:"courseId"`
	Status            enums.EnrollmentStatus `gorm:"column:status;type:enrollment_status;not null" json:"status"`
	PaymentReceiptRef *string                `gorm:"column:payment_receipt_ref;type:text" json:"paymentReceiptRef,omitempty"`
	VoucherCode       *string                `gorm:"column:voucher_code;type:text" json:"voucherCode,omitempty"`
	EnrollmentDate    time.Time              `gorm:"column:enrollment_date;not null" json:"enrollmentDate"`
	ApprovalDate      *time.Time             `gorm:"column:approval_date" json:"approvalDate,omitempty"`
	RejectionReason   *string                `gorm:"column:rejection_reason;type:text" json:"rejectionReason,omitempty"`
	ExpirationDate    *time.Time             `gorm:"column:expiration_date" json:"expirationDate,omitempty"`
	IsExpired         bool                   `gorm:"column:is_expired;not null;default:false" json:"isExpired"`
	ExpiredAt         *time.Time             `gorm:"column:expired_at" json:"expiredAt,omitempty"`
	Version           int                    `gorm:"column:version;not null;default:1" json:"version"`
	CreatedAt         time.Time              `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
	UpdatedAt         time.Time              `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`
}

// HasAccess reports whether the enrollment currently unlocks course material.
func (e *Enrollment) HasAccess() bool {
	return e != nil && e.Status == enums.EnrollmentStatusApproved && !e.IsExpired
}
