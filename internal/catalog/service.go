package catalog

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/courseforge/courseforge-backend/pkg/db/models"
	pkgerrors "github.com/courseforge/courseforge-backend/pkg/errors"
)

// Service is the slice of the course catalog the commerce flows depend on.
type Service interface {
	GetCourse(ctx context.Context, tx *gorm.DB, courseID uuid.UUID) (*models.Course, error)
	GrantAccess(ctx context.Context, tx *gorm.DB, studentID, courseID uuid.UUID) error
	RevokeAccess(ctx context.Context, tx *gorm.DB, studentID, courseID uuid.UUID) error
	HasMembership(ctx context.Context, studentID, courseID uuid.UUID) (bool, error)
}

type service struct {
	repo Repository
	now  func() time.Time
}

// NewService wires the catalog repository.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "catalog repository required")
	}
	return &service{repo: repo, now: time.Now}, nil
}

// GetCourse reads through tx when one is given so prices are observed inside
// the caller's transaction.
func (s *service) GetCourse(ctx context.Context, tx *gorm.DB, courseID uuid.UUID) (*models.Course, error) {
	if courseID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "course id required")
	}
	course, err := s.repo.WithTx(tx).FindCourse(ctx, courseID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load course")
	}
	if course == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "course not found")
	}
	return course, nil
}

func (s *service) GrantAccess(ctx context.Context, tx *gorm.DB, studentID, courseID uuid.UUID) error {
	if err := s.repo.WithTx(tx).GrantAccess(ctx, studentID, courseID, s.now().UTC()); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "grant course access")
	}
	return nil
}

func (s *service) RevokeAccess(ctx context.Context, tx *gorm.DB, studentID, courseID uuid.UUID) error {
	if err := s.repo.WithTx(tx).RevokeAccess(ctx, studentID, courseID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "revoke course access")
	}
	return nil
}

func (s *service) HasMembership(ctx context.Context, studentID, courseID uuid.UUID) (bool, error) {
	ok, err := s.repo.HasMembership(ctx, studentID, courseID)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check course membership")
	}
	return ok, nil
}
