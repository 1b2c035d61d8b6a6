package payments

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/courseforge/courseforge-backend/pkg/db/models"
)

// Repository persists payments and their append-only status history.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, payment *models.Payment) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Payment, error)
	FindByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*models.Payment, error)
	LatestForEnrollment(ctx context.Context, enrollmentID uuid.UUID) (*models.Payment, error)
	ListForEnrollment(ctx context.Context, enrollmentID uuid.UUID) ([]models.Payment, error)
	UpdateWithVersion(ctx context.Context, id uuid.UUID, version int, updates map[string]any) (bool, error)
	AppendHistory(ctx context.Context, entry *models.PaymentStatusEntry) error
	History(ctx context.Context, paymentID uuid.UUID) ([]models.PaymentStatusEntry, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository binds the payments repository to db.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, payment *models.Payment) error {
	return r.db.WithContext(ctx).Omit("History").Create(payment).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	return r.first(r.db.WithContext(ctx).Where("id = ?", id))
}

func (r *repository) FindByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*models.Payment, error) {
	return r.first(r.db.WithContext(ctx).Where("gateway_order_id = ?", gatewayOrderID))
}

func (r *repository) LatestForEnrollment(ctx context.Context, enrollmentID uuid.UUID) (*models.Payment, error) {
	return r.first(r.db.WithContext(ctx).
		Where("enrollment_id = ?", enrollmentID).
		Order("created_at DESC, id DESC"))
}

func (r *repository) first(query *gorm.DB) (*models.Payment, error) {
	var payment models.Payment
	err := query.Preload("History", func(db *gorm.DB) *gorm.DB {
		return db.Order("sequence ASC")
	}).First(&payment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *repository) ListForEnrollment(ctx context.Context, enrollmentID uuid.UUID) ([]models.Payment, error) {
	var rows []models.Payment
	err := r.db.WithContext(ctx).
		Preload("History", func(db *gorm.DB) *gorm.DB {
			return db.Order("sequence ASC")
		}).
		Where("enrollment_id = ?", enrollmentID).
		Order("created_at DESC, id DESC").
		Find(&rows).Error
	return rows, err
}

// UpdateWithVersion applies updates only when the stored version still equals
// version, bumping it by one. It reports false when another writer got there first.
func (r *repository) UpdateWithVersion(ctx context.Context, id uuid.UUID, version int, updates map[string]any) (bool, error) {
	updates["version"] = gorm.Expr("version + 1")
	result := r.db.WithContext(ctx).
		Model(&models.Payment{}).
		Where("id = ? AND version = ?", id, version).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// AppendHistory numbers entry after the current last row for the payment.
func (r *repository) AppendHistory(ctx context.Context, entry *models.PaymentStatusEntry) error {
	var last int
	if err := r.db.WithContext(ctx).
		Model(&models.PaymentStatusEntry{}).
		Where("payment_id = ?", entry.PaymentID).
		Select("COALESCE(MAX(sequence), 0)").
		Scan(&last).Error; err != nil {
		return err
	}
	entry.Sequence = last + 1
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *repository) History(ctx context.Context, paymentID uuid.UUID) ([]models.PaymentStatusEntry, error) {
	var rows []models.PaymentStatusEntry
	err := r.db.WithContext(ctx).
		Where("payment_id = ?", paymentID).
		Order("sequence ASC").
		Find(&rows).Error
	return rows, err
}
