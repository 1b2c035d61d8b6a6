package vouchers

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/courseforge/courseforge-backend/pkg/db/models"
	"github.com/courseforge/courseforge-backend/pkg/pagination"
)

// Repository persists vouchers and their usage rows.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, voucher *models.Voucher) error
	Save(ctx context.Context, voucher *models.Voucher) error
	Delete(ctx context.Context, id uuid.UUID) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Voucher, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Voucher, error)
	FindByCode(ctx context.Context, code string) (*models.Voucher, error)
	List(ctx context.Context, params listParams) ([]models.Voucher, error)
	UsageExists(ctx context.Context, voucherID, studentID uuid.UUID) (bool, error)
	UsageForEnrollment(ctx context.Context, enrollmentID uuid.UUID) (*models.VoucherUsage, error)
	CreateUsage(ctx context.Context, usage *models.VoucherUsage) error
	IncrementUsage(ctx context.Context, voucherID uuid.UUID, now time.Time) (bool, error)
	ListUsages(ctx context.Context, voucherID uuid.UUID, limit int, cursor *pagination.Cursor) ([]models.VoucherUsage, error)
}

type listParams struct {
	ActiveOnly bool
	Limit      int
	Cursor     *pagination.Cursor
}

type repository struct {
	db *gorm.DB
}

// NewRepository binds the voucher repository to db.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, voucher *models.Voucher) error {
	return r.db.WithContext(ctx).Create(voucher).Error
}

func (r *repository) Save(ctx context.Context, voucher *models.Voucher) error {
	return r.db.WithContext(ctx).Save(voucher).Error
}

func (r *repository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Voucher{}).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Voucher, error) {
	return r.first(r.db.WithContext(ctx).Where("id = ?", id))
}

func (r *repository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Voucher, error) {
	return r.first(r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id))
}

func (r *repository) FindByCode(ctx context.Context, code string) (*models.Voucher, error) {
	return r.first(r.db.WithContext(ctx).Where("code = ?", code))
}

func (r *repository) first(query *gorm.DB) (*models.Voucher, error) {
	var voucher models.Voucher
	err := query.First(&voucher).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &voucher, nil
}

func (r *repository) List(ctx context.Context, params listParams) ([]models.Voucher, error) {
	query := r.db.WithContext(ctx).Model(&models.Voucher{})
	if params.ActiveOnly {
		query = query.Where("is_active = ?", true)
	}
	if params.Cursor != nil {
		query = query.Where("(created_at, id) < (?, ?)", params.Cursor.CreatedAt, params.Cursor.ID)
	}
	var rows []models.Voucher
	err := query.Order("created_at DESC, id DESC").
		Limit(pagination.LimitWithBuffer(params.Limit)).
		Find(&rows).Error
	return rows, err
}

func (r *repository) UsageExists(ctx context.Context, voucherID, studentID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.VoucherUsage{}).
		Where("voucher_id = ? AND student_id = ?", voucherID, studentID).
		Count(&count).Error
	return count > 0, err
}

// UsageForEnrollment returns the newest usage bound to enrollmentID, or nil.
func (r *repository) UsageForEnrollment(ctx context.Context, enrollmentID uuid.UUID) (*models.VoucherUsage, error) {
	var usage models.VoucherUsage
	err := r.db.WithContext(ctx).
		Where("enrollment_id = ?", enrollmentID).
		Order("used_at DESC, id DESC").
		First(&usage).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &usage, nil
}

func (r *repository) CreateUsage(ctx context.Context, usage *models.VoucherUsage) error {
	return r.db.WithContext(ctx).Create(usage).Error
}

// IncrementUsage bumps used_count only while the voucher is active, inside its
// window and below its limit. It reports false when no row qualified.
func (r *repository) IncrementUsage(ctx context.Context, voucherID uuid.UUID, now time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Voucher{}).
		Where("id = ? AND used_count < usage_limit AND is_active = ? AND valid_from <= ? AND valid_until >= ?",
			voucherID, true, now, now).
		Updates(map[string]any{
			"used_count": gorm.Expr("used_count + 1"),
			"updated_at": now,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *repository) ListUsages(ctx context.Context, voucherID uuid.UUID, limit int, cursor *pagination.Cursor) ([]models.VoucherUsage, error) {
	query := r.db.WithContext(ctx).
		Model(&models.VoucherUsage{}).
		Where("voucher_id = ?", voucherID)
	if cursor != nil {
		query = query.Where("(used_at, id) < (?, ?)", cursor.CreatedAt, cursor.ID)
	}
	var rows []models.VoucherUsage
	err := query.Order("used_at DESC, id DESC").
		Limit(pagination.LimitWithBuffer(limit)).
		Find(&rows).Error
	return rows, err
}
