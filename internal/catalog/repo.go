package catalog

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/courseforge/courseforge-backend/pkg/db/models"
)

// Repository reads courses and maintains course membership rows.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindCourse(ctx context.Context, id uuid.UUID) (*models.Course, error)
	GrantAccess(ctx context.Context, studentID, courseID uuid.UUID, at time.Time) error
	RevokeAccess(ctx context.Context, studentID, courseID uuid.UUID) error
	HasMembership(ctx context.Context, studentID, courseID uuid.UUID) (bool, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository binds the catalog repository to db.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindCourse(ctx context.Context, id uuid.UUID) (*models.Course, error) {
	var course models.Course
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&course).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &course, nil
}

// GrantAccess is idempotent: an existing membership row is left untouched.
func (r *repository) GrantAccess(ctx context.Context, studentID, courseID uuid.UUID, at time.Time) error {
	member := models.CourseMember{StudentID: studentID, CourseID: courseID, GrantedAt: at}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&member).Error
}

func (r *repository) RevokeAccess(ctx context.Context, studentID, courseID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Where("student_id = ? AND course_id = ?", studentID, courseID).
		Delete(&models.CourseMember{}).Error
}

func (r *repository) HasMembership(ctx context.Context, studentID, courseID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.CourseMember{}).
		Where("student_id = ? AND course_id = ?", studentID, courseID).
		Count(&count).Error
	return count > 0, err
}
