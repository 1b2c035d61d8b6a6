package enrollments

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/courseforge/courseforge-backend/pkg/db/models"
	"github.com/courseforge/courseforge-backend/pkg/enums"
	pkgerrors "github.com/courseforge/courseforge-backend/pkg/errors"
	"github.com/courseforge/courseforge-backend/pkg/outbox"
	"github.com/courseforge/courseforge-backend/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// AccessGranter maintains catalog membership for approved enrollments.
type AccessGranter interface {
	GrantAccess(ctx context.Context, tx *gorm.DB, studentID, courseID uuid.UUID) error
	RevokeAccess(ctx context.Context, tx *gorm.DB, studentID, courseID uuid.UUID) error
}

// Transitions is the only writer of enrollment status. Every method runs
// inside the caller's transaction and guards the write with the row version.
type Transitions struct {
	repo   Repository
	access AccessGranter
	outbox outboxPublisher
	now    func() time.Time
}

// TransitionsParams wires the enrollment state machine.
type TransitionsParams struct {
	Repo   Repository
	Access AccessGranter
	Outbox outboxPublisher
	Now    func() time.Time
}

// NewTransitions builds the enrollment state machine.
func NewTransitions(params TransitionsParams) (*Transitions, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("enrollments repository required")
	}
	if params.Access == nil {
		return nil, fmt.Errorf("access granter required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if params.Now == nil {
		params.Now = time.Now
	}
	return &Transitions{
		repo:   params.Repo,
		access: params.Access,
		outbox: params.Outbox,
		now:    params.Now,
	}, nil
}

// FindEnrollment loads an enrollment through tx, or the root handle when tx is nil.
func (t *Transitions) FindEnrollment(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*models.Enrollment, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "enrollment id required")
	}
	enrollment, err := t.repo.WithTx(tx).FindByID(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load enrollment")
	}
	if enrollment == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "enrollment not found")
	}
	return enrollment, nil
}

// RejectFromPayment cascades a payment rejection onto its enrollment.
func (t *Transitions) RejectFromPayment(ctx context.Context, tx *gorm.DB, enrollmentID uuid.UUID, reason, updatedBy string) (*models.Enrollment, error) {
	enrollment, err := t.FindEnrollment(ctx, tx, enrollmentID)
	if err != nil {
		return nil, err
	}
	if _, err := t.ApplyTx(ctx, tx, enrollment, enums.EnrollmentStatusRejected, updatedBy, &reason); err != nil {
		return nil, err
	}
	return enrollment, nil
}

// ApplyTx moves enrollment to next and reports whether a write happened.
// enrollment is updated in place.
//
// Approving an approved enrollment is a no-op. Rejecting a rejected one only
// refreshes the reason. Pending is reachable through a new request, never here.
func (t *Transitions) ApplyTx(ctx context.Context, tx *gorm.DB, enrollment *models.Enrollment, next enums.EnrollmentStatus, updatedBy string, reason *string) (bool, error) {
	if tx == nil {
		return false, pkgerrors.New(pkgerrors.CodeInternal, "enrollment transition requires a transaction")
	}
	if !next.IsValid() {
		return false, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid enrollment status %q", next))
	}
	if next == enums.EnrollmentStatusPending {
		return false, pkgerrors.New(pkgerrors.CodeStateConflict, "enrollments return to pending only by resubmitting")
	}
	if next == enums.EnrollmentStatusApproved && enrollment.Status == enums.EnrollmentStatusApproved {
		return false, nil
	}

	var cleaned *string
	if reason != nil {
		if v := strings.TrimSpace(*reason); v != "" {
			cleaned = &v
		}
	}
	if next == enums.EnrollmentStatusRejected && cleaned == nil {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "rejection reason required")
	}
	if next != enrollment.Status && !enrollment.Status.CanTransitionTo(next) {
		return false, pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("enrollment cannot move from %s to %s", enrollment.Status, next))
	}
	if next == enums.EnrollmentStatusApproved {
		if err := t.ensurePaymentNotRejected(ctx, tx, enrollment.ID); err != nil {
			return false, err
		}
	}

	now := t.now().UTC()
	previous := enrollment.Status
	fields := map[string]any{
		"status":     next,
		"updated_at": now,
	}
	switch next {
	case enums.EnrollmentStatusApproved:
		fields["approval_date"] = now
		fields["rejection_reason"] = nil
	case enums.EnrollmentStatusRejected:
		fields["approval_date"] = nil
		fields["rejection_reason"] = *cleaned
		fields["is_expired"] = false
		fields["expired_at"] = nil
	}

	if err := t.update(ctx, tx, enrollment, fields); err != nil {
		return false, err
	}

	enrollment.Status = next
	switch next {
	case enums.EnrollmentStatusApproved:
		enrollment.ApprovalDate = &now
		enrollment.RejectionReason = nil
		if err := t.access.GrantAccess(ctx, tx, enrollment.StudentID, enrollment.CourseID); err != nil {
			return false, err
		}
	case enums.EnrollmentStatusRejected:
		enrollment.ApprovalDate = nil
		enrollment.RejectionReason = cleaned
		enrollment.IsExpired = false
		enrollment.ExpiredAt = nil
		if previous == enums.EnrollmentStatusApproved {
			if err := t.access.RevokeAccess(ctx, tx, enrollment.StudentID, enrollment.CourseID); err != nil {
				return false, err
			}
		}
	}

	eventType := enums.EventEnrollmentApproved
	if next == enums.EnrollmentStatusRejected {
		eventType = enums.EventEnrollmentRejected
	}
	if err := t.emit(ctx, tx, eventType, enrollment, updatedBy); err != nil {
		return false, err
	}
	return true, nil
}

// ensurePaymentNotRejected blocks approval while the enrollment's latest
// payment stands rejected. The student must reupload or resubmit first.
func (t *Transitions) ensurePaymentNotRejected(ctx context.Context, tx *gorm.DB, enrollmentID uuid.UUID) error {
	status, err := t.repo.WithTx(tx).LatestPaymentStatus(ctx, enrollmentID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load latest payment")
	}
	if status != nil && *status == enums.PaymentStatusRejected {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "payment is rejected; new evidence is required before approval").
			WithDetails(map[string]any{"enrollmentId": enrollmentID, "paymentStatus": *status})
	}
	return nil
}

// ExpireTx flags an enrollment whose access term ended and revokes catalog
// membership. It reports false when the row no longer qualifies.
func (t *Transitions) ExpireTx(ctx context.Context, tx *gorm.DB, enrollment *models.Enrollment, now time.Time) (bool, error) {
	if tx == nil {
		return false, pkgerrors.New(pkgerrors.CodeInternal, "expiration requires a transaction")
	}
	ok, err := t.repo.WithTx(tx).MarkExpired(ctx, enrollment.ID, now)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark enrollment expired")
	}
	if !ok {
		return false, nil
	}
	if err := t.access.RevokeAccess(ctx, tx, enrollment.StudentID, enrollment.CourseID); err != nil {
		return false, err
	}

	enrollment.IsExpired = true
	enrollment.ExpiredAt = &now
	enrollment.Version++

	var expiration time.Time
	if enrollment.ExpirationDate != nil {
		expiration = *enrollment.ExpirationDate
	}
	err = t.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventEnrollmentExpired,
		AggregateType: enums.AggregateEnrollment,
		AggregateID:   enrollment.ID,
		Data: payloads.EnrollmentExpiredEvent{
			EnrollmentID:   enrollment.ID,
			StudentID:      enrollment.StudentID,
			CourseID:       enrollment.CourseID,
			ExpirationDate: expiration,
			ExpiredAt:      now,
		},
		OccurredAt: now,
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

// update writes fields under the enrollment's version and bumps it.
func (t *Transitions) update(ctx context.Context, tx *gorm.DB, enrollment *models.Enrollment, fields map[string]any) error {
	ok, err := t.repo.WithTx(tx).UpdateWithVersion(ctx, enrollment.ID, enrollment.Version, fields)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update enrollment")
	}
	if !ok {
		return pkgerrors.New(pkgerrors.CodeConflict, "enrollment was modified concurrently; reload and retry")
	}
	enrollment.Version++
	if at, ok := fields["updated_at"].(time.Time); ok {
		enrollment.UpdatedAt = at
	}
	return nil
}

func (t *Transitions) emit(ctx context.Context, tx *gorm.DB, eventType enums.OutboxEventType, enrollment *models.Enrollment, updatedBy string) error {
	event := outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateEnrollment,
		AggregateID:   enrollment.ID,
		Data: payloads.EnrollmentEvent{
			EnrollmentID:    enrollment.ID,
			StudentID:       enrollment.StudentID,
			CourseID:        enrollment.CourseID,
			Status:          enrollment.Status,
			VoucherCode:     enrollment.VoucherCode,
			RejectionReason: enrollment.RejectionReason,
			UpdatedBy:       updatedBy,
		},
		OccurredAt: enrollment.UpdatedAt,
	}
	if actor, err := uuid.Parse(updatedBy); err == nil {
		role := string(enums.RoleAdmin)
		if actor == enrollment.StudentID {
			role = string(enums.RoleStudent)
		}
		event.Actor = &outbox.ActorRef{UserID: actor, Role: role}
	}
	return t.outbox.Emit(ctx, tx, event)
}
