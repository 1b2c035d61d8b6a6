package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Course is the catalog projection read by enrollment and voucher pricing.
type Course struct {
	ID        uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Title     string          `gorm:"column:title;type:text;not null" json:"title"`
	Price     decimal.Decimal `gorm:"column:price;type:numeric(12,2);not null" json:"price"`
	CreatedAt time.Time       `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
	UpdatedAt time.Time       `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`
}

// CourseMember grants a student access to protected course material.
type CourseMember struct {
	StudentID uuid.UUID `gorm:"column:student_id;type:uuid;primaryKey" json:"studentId"`
	CourseID  uuid.UUID `gorm:"column:course_id;type:uuid;primaryKey" json:"courseId"`
	GrantedAt time.Time `gorm:"column:granted_at;not null" json:"grantedAt"`
}
