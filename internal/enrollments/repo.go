package enrollments

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/courseforge/courseforge-backend/pkg/db/models"
	"github.com/courseforge/courseforge-backend/pkg/enums"
	"github.com/courseforge/courseforge-backend/pkg/pagination"
)

// Repository persists enrollments.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, enrollment *models.Enrollment) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Enrollment, error)
	FindByStudentCourse(ctx context.Context, studentID, courseID uuid.UUID) (*models.Enrollment, error)
	UpdateWithVersion(ctx context.Context, id uuid.UUID, version int, updates map[string]any) (bool, error)
	ListForStudent(ctx context.Context, studentID uuid.UUID, limit int, cursor *pagination.Cursor) ([]models.Enrollment, error)
	ListByStatus(ctx context.Context, status *enums.EnrollmentStatus, limit int, cursor *pagination.Cursor) ([]models.Enrollment, error)
	HasAccess(ctx context.Context, studentID, courseID uuid.UUID) (bool, error)
	FindDueForExpiration(ctx context.Context, now time.Time, limit int) ([]models.Enrollment, error)
	MarkExpired(ctx context.Context, id uuid.UUID, now time.Time) (bool, error)
	LatestPaymentStatus(ctx context.Context, enrollmentID uuid.UUID) (*enums.PaymentStatus, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository binds the enrollments repository to db.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, enrollment *models.Enrollment) error {
	return r.db.WithContext(ctx).Create(enrollment).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Enrollment, error) {
	return r.first(r.db.WithContext(ctx).Where("id = ?", id))
}

func (r *repository) FindByStudentCourse(ctx context.Context, studentID, courseID uuid.UUID) (*models.Enrollment, error) {
	return r.first(r.db.WithContext(ctx).Where("student_id = ? AND course_id = ?", studentID, courseID))
}

func (r *repository) first(query *gorm.DB) (*models.Enrollment, error) {
	var enrollment models.Enrollment
	err := query.First(&enrollment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// UpdateWithVersion applies updates only while the stored version equals
// version, bumping it by one.
func (r *repository) UpdateWithVersion(ctx context.Context, id uuid.UUID, version int, updates map[string]any) (bool, error) {
	updates["version"] = gorm.Expr("version + 1")
	result := r.db.WithContext(ctx).
		Model(&models.Enrollment{}).
		Where("id = ? AND version = ?", id, version).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *repository) ListForStudent(ctx context.Context, studentID uuid.UUID, limit int, cursor *pagination.Cursor) ([]models.Enrollment, error) {
	query := r.db.WithContext(ctx).Model(&models.Enrollment{}).Where("student_id = ?", studentID)
	return r.page(query, limit, cursor)
}

func (r *repository) ListByStatus(ctx context.Context, status *enums.EnrollmentStatus, limit int, cursor *pagination.Cursor) ([]models.Enrollment, error) {
	query := r.db.WithContext(ctx).Model(&models.Enrollment{})
	if status != nil {
		query = query.Where("status = ?", *status)
	}
	return r.page(query, limit, cursor)
}

func (r *repository) page(query *gorm.DB, limit int, cursor *pagination.Cursor) ([]models.Enrollment, error) {
	if cursor != nil {
		query = query.Where("(created_at, id) < (?, ?)", cursor.CreatedAt, cursor.ID)
	}
	var rows []models.Enrollment
	err := query.Order("created_at DESC, id DESC").
		Limit(pagination.LimitWithBuffer(limit)).
		Find(&rows).Error
	return rows, err
}

func (r *repository) HasAccess(ctx context.Context, studentID, courseID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Enrollment{}).
		Where("student_id = ? AND course_id = ? AND status = ? AND is_expired = ?",
			studentID, courseID, enums.EnrollmentStatusApproved, false).
		Count(&count).Error
	return count > 0, err
}

// FindDueForExpiration lists approved, unexpired enrollments whose term ended at or before now.
func (r *repository) FindDueForExpiration(ctx context.Context, now time.Time, limit int) ([]models.Enrollment, error) {
	var rows []models.Enrollment
	query := r.db.WithContext(ctx).
		Where("status = ? AND is_expired = ? AND expiration_date IS NOT NULL AND expiration_date <= ?",
			enums.EnrollmentStatusApproved, false, now).
		Order("expiration_date ASC, id ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Find(&rows).Error
	return rows, err
}

// MarkExpired flips is_expired for a still-qualifying enrollment. It reports
// false when the row no longer qualifies, e.g. another sweep got there first
// or an administrator changed it meanwhile.
func (r *repository) MarkExpired(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Enrollment{}).
		Where("id = ? AND status = ? AND is_expired = ? AND expiration_date IS NOT NULL AND expiration_date <= ?",
			id, enums.EnrollmentStatusApproved, false, now).
		Updates(map[string]any{
			"is_expired": true,
			"expired_at": now,
			"updated_at": now,
			"version":    gorm.Expr("version + 1"),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// LatestPaymentStatus returns the status of the newest payment recorded for
// the enrollment, or nil when it has none.
func (r *repository) LatestPaymentStatus(ctx context.Context, enrollmentID uuid.UUID) (*enums.PaymentStatus, error) {
	var payment models.Payment
	err := r.db.WithContext(ctx).
		Select("status").
		Where("enrollment_id = ?", enrollmentID).
		Order("created_at DESC, id DESC").
		First(&payment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &payment.Status, nil
}
