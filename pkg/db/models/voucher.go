package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	dbtypes "github.com/courseforge/courseforge-backend/pkg/db/types"
)

// Voucher is a percentage discount code scoped to a set of courses.
type Voucher struct {
	ID                  uuid.UUID         `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Code                string            `gorm:"column:code;type:text;not null;uniqueIndex" json:"code"`
	DiscountPercentage  decimal.Decimal   `gorm:"column:discount_percentage;type:numeric(5,2);not null" json:"discountPercentage"`
	ApplicableCourseIDs dbtypes.UUIDArray `gorm:"column:applicable_course_ids;type:uuid[];not null" json:"applicableCourseIds"`
	UsageLimit          int               `gorm:"column:usage_limit;not null" json:"usageLimit"`
	UsedCount           int               `gorm:"column:used_count;not null;default:0" json:"usedCount"`
	ValidFrom           time.Time         `gorm:"column:valid_from;not null" json:"validFrom"`
	ValidUntil          time.Time         `gorm:"column:valid_until;not null" json:"validUntil"`
	IsActive            bool              `gorm:"column:is_active;not null;default:true" json:"isActive"`
	CreatedBy           uuid.UUID         `gorm:"column:created_by;type:uuid;not null" json:"createdBy"`
	CreatedAt           time.Time         `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
	UpdatedAt           time.Time         `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`
}

// VoucherUsage records one redemption. (voucher_id, student_id) is unique.
type VoucherUsage struct {
	ID             uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	VoucherID      uuid.UUID       `gorm:"column:voucher_id;type:uuid;not null" json:"voucherId"`
	StudentID      uuid.UUID       `gorm:"column:student_id;type:uuid;not null" json:"studentId"`
	CourseID       uuid.UUID       `gorm:"column:course_id;type:uuid;not null" json:"courseId"`
	EnrollmentID   uuid.UUID       `gorm:"column:enrollment_id;type:uuid;not null" json:"enrollmentId"`
	DiscountAmount decimal.Decimal `gorm:"column:discount_amount;type:numeric(12,2);not null" json:"discountAmount"`
	OriginalPrice  decimal.Decimal `gorm:"column:original_price;type:numeric(12,2);not null" json:"originalPrice"`
	FinalPrice     decimal.Decimal `gorm:"column:final_price;type:numeric(12,2);not null" json:"finalPrice"`
	UsedAt         time.Time       `gorm:"column:used_at;not null" json:"usedAt"`
	AppliedBy      uuid.UUID       `gorm:"column:applied_by;type:uuid;not null" json:"appliedBy"`
}
