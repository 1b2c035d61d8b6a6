package enrollments

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/courseforge/courseforge-backend/internal/notifications"
	"github.com/courseforge/courseforge-backend/internal/payments"
	"github.com/courseforge/courseforge-backend/internal/vouchers"
	"github.com/courseforge/courseforge-backend/pkg/auth"
	"github.com/courseforge/courseforge-backend/pkg/db"
	"github.com/courseforge/courseforge-backend/pkg/db/models"
	"github.com/courseforge/courseforge-backend/pkg/enums"
	pkgerrors "github.com/courseforge/courseforge-backend/pkg/errors"
	"github.com/courseforge/courseforge-backend/pkg/logger"
	"github.com/courseforge/courseforge-backend/pkg/outbox"
	"github.com/courseforge/courseforge-backend/pkg/outbox/payloads"
	"github.com/courseforge/courseforge-backend/pkg/pagination"
)

type courseLoader interface {
	GetCourse(ctx context.Context, tx *gorm.DB, courseID uuid.UUID) (*models.Course, error)
}

type voucherRedeemer interface {
	Redeem(ctx context.Context, tx *gorm.DB, req vouchers.RedeemRequest) (*vouchers.Redemption, error)
	PriorRedemption(ctx context.Context, tx *gorm.DB, enrollmentID uuid.UUID) (*vouchers.Redemption, error)
}

type paymentLedger interface {
	SubmitForEnrollmentTx(ctx context.Context, tx *gorm.DB, input payments.RecordInput) (*models.Payment, error)
	ApplyDiscountTx(ctx context.Context, tx *gorm.DB, enrollmentID uuid.UUID, discount payments.Discount) (*models.Payment, error)
}

// Service manages the enrollment lifecycle.
type Service interface {
	RequestEnrollment(ctx context.Context, input RequestInput) (*RequestResult, error)
	SetStatus(ctx context.Context, input SetStatusInput) (*models.Enrollment, error)
	SetExpiration(ctx context.Context, input SetExpirationInput) (*models.Enrollment, error)
	ApplyVoucher(ctx context.Context, input ApplyVoucherInput) (*ApplyVoucherResult, error)
	CheckAccess(ctx context.Context, studentID, courseID uuid.UUID) (bool, error)
	Get(ctx context.Context, id uuid.UUID, actor auth.Actor) (*models.Enrollment, error)
	ListForStudent(ctx context.Context, studentID uuid.UUID, params pagination.Params) (pagination.Page[models.Enrollment], error)
	ListByStatus(ctx context.Context, params ListParams) (pagination.Page[models.Enrollment], error)
	DueForExpiration(ctx context.Context, now time.Time, limit int) ([]models.Enrollment, error)
	ExpireTx(ctx context.Context, tx *gorm.DB, enrollment *models.Enrollment, now time.Time) (bool, error)
}

// ServiceParams wires enrollment dependencies. Notifier is optional.
type ServiceParams struct {
	Repo        Repository
	Tx          txRunner
	Transitions *Transitions
	Courses     courseLoader
	Vouchers    voucherRedeemer
	Payments    paymentLedger
	Outbox      outboxPublisher
	Notifier    notifications.Notifier
	Logger      *logger.Logger
	Now         func() time.Time
}

type service struct {
	repo        Repository
	tx          txRunner
	transitions *Transitions
	courses     courseLoader
	vouchers    voucherRedeemer
	payments    paymentLedger
	outbox      outboxPublisher
	notifier    notifications.Notifier
	logg        *logger.Logger
	now         func() time.Time
}

// NewService builds the enrollment lifecycle manager.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("enrollments repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if params.Transitions == nil {
		return nil, fmt.Errorf("enrollment transitions required")
	}
	if params.Courses == nil {
		return nil, fmt.Errorf("course loader required")
	}
	if params.Vouchers == nil {
		return nil, fmt.Errorf("voucher redeemer required")
	}
	if params.Payments == nil {
		return nil, fmt.Errorf("payment ledger required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if params.Now == nil {
		params.Now = time.Now
	}
	return &service{
		repo:        params.Repo,
		tx:          params.Tx,
		transitions: params.Transitions,
		courses:     params.Courses,
		vouchers:    params.Vouchers,
		payments:    params.Payments,
		outbox:      params.Outbox,
		notifier:    params.Notifier,
		logg:        params.Logger,
		now:         params.Now,
	}, nil
}

// RequestEnrollment creates a pending enrollment, or reopens a rejected one.
// Voucher redemption and payment evidence commit with it or not at all.
func (s *service) RequestEnrollment(ctx context.Context, input RequestInput) (*RequestResult, error) {
	if input.StudentID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "student id required")
	}
	if input.CourseID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "course id required")
	}
	var code *string
	if input.VoucherCode != nil {
		if c := vouchers.CanonicalCode(*input.VoucherCode); c != "" {
			code = &c
		}
	}

	result := &RequestResult{}
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		course, err := s.courses.GetCourse(ctx, tx, input.CourseID)
		if err != nil {
			return err
		}
		enrollment, reopened, err := s.openEnrollment(ctx, tx, input, code)
		if err != nil {
			return err
		}
		result.Enrollment = enrollment
		result.FinalPrice = course.Price.Round(2)

		var prior *vouchers.Redemption
		if reopened {
			// a reopened enrollment keeps the voucher use it already consumed
			prior, err = s.vouchers.PriorRedemption(ctx, tx, enrollment.ID)
			if err != nil {
				return err
			}
			if prior != nil && code != nil && *code != prior.Voucher.Code {
				return pkgerrors.New(pkgerrors.CodeConflict, "a voucher was already redeemed for this enrollment").
					WithDetails(map[string]any{"voucherCode": prior.Voucher.Code})
			}
		}

		var discount *payments.Discount
		if prior != nil || code != nil {
			redemption := prior
			if redemption == nil {
				redemption, err = s.vouchers.Redeem(ctx, tx, vouchers.RedeemRequest{
					Code:         *code,
					StudentID:    input.StudentID,
					CourseID:     input.CourseID,
					EnrollmentID: enrollment.ID,
					AppliedBy:    input.StudentID,
				})
				if err != nil {
					return err
				}
			}
			result.Redemption = redemption
			result.FinalPrice = redemption.Usage.FinalPrice
			discount = &payments.Discount{
				VoucherID:      redemption.Voucher.ID,
				OriginalAmount: redemption.Usage.OriginalPrice,
				DiscountAmount: redemption.Usage.DiscountAmount,
			}
		}

		if reopened && input.Evidence == nil && result.FinalPrice.IsPositive() {
			return pkgerrors.New(pkgerrors.CodeValidation, "payment evidence required to resubmit a rejected enrollment")
		}
		if input.Evidence != nil && result.FinalPrice.IsPositive() {
			payment, err := s.payments.SubmitForEnrollmentTx(ctx, tx, recordInput(enrollment, input.Evidence, result.FinalPrice, discount))
			if err != nil {
				return err
			}
			result.Payment = payment
		}

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventEnrollmentRequested,
			AggregateType: enums.AggregateEnrollment,
			AggregateID:   enrollment.ID,
			Actor:         &outbox.ActorRef{UserID: input.StudentID, Role: string(enums.RoleStudent)},
			Data: payloads.EnrollmentEvent{
				EnrollmentID: enrollment.ID,
				StudentID:    enrollment.StudentID,
				CourseID:     enrollment.CourseID,
				Status:       enrollment.Status,
				VoucherCode:  enrollment.VoucherCode,
				UpdatedBy:    input.StudentID.String(),
			},
			OccurredAt: enrollment.EnrollmentDate,
		})
	})
	if err != nil {
		return nil, err
	}

	s.notify(ctx, result.Enrollment.StudentID, "Enrollment requested",
		"Your enrollment request was received and is awaiting review.", result.Enrollment.ID)
	return result, nil
}

// openEnrollment inserts a fresh pending enrollment or resets a rejected one,
// reporting which happened.
func (s *service) openEnrollment(ctx context.Context, tx *gorm.DB, input RequestInput, code *string) (*models.Enrollment, bool, error) {
	repo := s.repo.WithTx(tx)
	now := s.now().UTC()

	var receipt *string
	if input.Evidence != nil {
		receipt = trimmed(input.Evidence.ReceiptRef)
	}

	existing, err := repo.FindByStudentCourse(ctx, input.StudentID, input.CourseID)
	if err != nil {
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load enrollment")
	}
	if existing != nil {
		if !existing.Status.AllowsResubmission() {
			return nil, false, pkgerrors.New(pkgerrors.CodeConflict,
				fmt.Sprintf("enrollment already exists with status %s", existing.Status)).
				WithDetails(map[string]any{"enrollmentId": existing.ID, "status": existing.Status})
		}
		fields := map[string]any{
			"status":              enums.EnrollmentStatusPending,
			"enrollment_date":     now,
			"approval_date":       nil,
			"rejection_reason":    nil,
			"is_expired":          false,
			"expired_at":          nil,
			"payment_receipt_ref": receipt,
			"updated_at":          now,
		}
		if code != nil {
			fields["voucher_code"] = *code
			existing.VoucherCode = code
		}
		if err := s.transitions.update(ctx, tx, existing, fields); err != nil {
			return nil, false, err
		}
		existing.Status = enums.EnrollmentStatusPending
		existing.EnrollmentDate = now
		existing.ApprovalDate = nil
		existing.RejectionReason = nil
		existing.IsExpired = false
		existing.ExpiredAt = nil
		existing.PaymentReceiptRef = receipt
		return existing, true, nil
	}

	enrollment := &models.Enrollment{
		ID:                uuid.New(),
		StudentID:         input.StudentID,
		CourseID:          input.CourseID,
		Status:            enums.EnrollmentStatusPending,
		PaymentReceiptRef: receipt,
		VoucherCode:       code,
		EnrollmentDate:    now,
		Version:           1,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := repo.Create(ctx, enrollment); err != nil {
		if db.IsUniqueViolation(err, "") {
			return nil, false, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "enrollment already exists")
		}
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create enrollment")
	}
	return enrollment, false, nil
}

func recordInput(enrollment *models.Enrollment, evidence *Evidence, finalPrice decimal.Decimal, discount *payments.Discount) payments.RecordInput {
	amount := evidence.Amount
	if amount.IsZero() {
		amount = finalPrice
	}
	in := payments.RecordInput{
		EnrollmentID:     enrollment.ID,
		StudentID:        enrollment.StudentID,
		Amount:           amount,
		Method:           evidence.Method,
		PaymentDate:      evidence.PaymentDate,
		ReceiptRef:       evidence.ReceiptRef,
		BankName:         evidence.BankName,
		AccountReference: evidence.AccountReference,
		TransactionID:    evidence.TransactionID,
	}
	if discount != nil {
		voucherID := discount.VoucherID
		original := discount.OriginalAmount
		off := discount.DiscountAmount
		in.VoucherID = &voucherID
		in.OriginalAmount = &original
		in.DiscountAmount = &off
	}
	return in
}

// SetStatus applies an administrator decision. Approval grants catalog access
// in the same transaction.
func (s *service) SetStatus(ctx context.Context, input SetStatusInput) (*models.Enrollment, error) {
	if input.EnrollmentID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "enrollment id required")
	}
	if input.UpdatedBy == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "updated by required")
	}

	var (
		enrollment *models.Enrollment
		changed    bool
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		current, err := s.transitions.FindEnrollment(ctx, tx, input.EnrollmentID)
		if err != nil {
			return err
		}
		if input.ExpectedVersion != nil && *input.ExpectedVersion != current.Version {
			return pkgerrors.New(pkgerrors.CodeConflict, "enrollment was modified; reload and retry")
		}
		changed, err = s.transitions.ApplyTx(ctx, tx, current, input.Status, input.UpdatedBy.String(), input.Reason)
		if err != nil {
			return err
		}
		enrollment = current
		return nil
	})
	if err != nil {
		return nil, err
	}

	if changed {
		switch enrollment.Status {
		case enums.EnrollmentStatusApproved:
			s.notify(ctx, enrollment.StudentID, "Enrollment approved",
				"Your enrollment was approved. The course is now available.", enrollment.ID)
		case enums.EnrollmentStatusRejected:
			s.notify(ctx, enrollment.StudentID, "Enrollment rejected",
				fmt.Sprintf("Your enrollment was rejected: %s", deref(enrollment.RejectionReason)), enrollment.ID)
		}
	}
	return enrollment, nil
}

// SetExpiration sets the end of the access term. Moving the term of an expired
// enrollment into the future, or clearing it, reinstates access.
func (s *service) SetExpiration(ctx context.Context, input SetExpirationInput) (*models.Enrollment, error) {
	if input.EnrollmentID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "enrollment id required")
	}

	var (
		enrollment *models.Enrollment
		reinstated bool
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		current, err := s.transitions.FindEnrollment(ctx, tx, input.EnrollmentID)
		if err != nil {
			return err
		}
		now := s.now().UTC()
		var at *time.Time
		if input.ExpirationDate != nil {
			v := input.ExpirationDate.UTC()
			at = &v
		}
		fields := map[string]any{
			"expiration_date": at,
			"updated_at":      now,
		}
		reinstated = current.IsExpired && current.Status == enums.EnrollmentStatusApproved &&
			(at == nil || at.After(now))
		if reinstated {
			fields["is_expired"] = false
			fields["expired_at"] = nil
		}
		if err := s.transitions.update(ctx, tx, current, fields); err != nil {
			return err
		}
		current.ExpirationDate = at
		if reinstated {
			current.IsExpired = false
			current.ExpiredAt = nil
			if err := s.transitions.access.GrantAccess(ctx, tx, current.StudentID, current.CourseID); err != nil {
				return err
			}
		}
		enrollment = current
		return nil
	})
	if err != nil {
		return nil, err
	}
	if reinstated {
		s.notify(ctx, enrollment.StudentID, "Course access restored",
			"Your access to the course has been extended.", enrollment.ID)
	}
	return enrollment, nil
}

// ApplyVoucher redeems a voucher for an existing enrollment on behalf of an
// administrator and stamps the discount on its payment.
func (s *service) ApplyVoucher(ctx context.Context, input ApplyVoucherInput) (*ApplyVoucherResult, error) {
	if input.EnrollmentID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "enrollment id required")
	}
	if input.AdminID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "admin id required")
	}
	code := vouchers.CanonicalCode(input.Code)
	if code == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "voucher code required")
	}

	result := &ApplyVoucherResult{}
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		enrollment, err := s.transitions.FindEnrollment(ctx, tx, input.EnrollmentID)
		if err != nil {
			return err
		}
		if enrollment.Status == enums.EnrollmentStatusRejected {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "vouchers cannot be applied to rejected enrollments")
		}
		redemption, err := s.vouchers.Redeem(ctx, tx, vouchers.RedeemRequest{
			Code:         code,
			StudentID:    enrollment.StudentID,
			CourseID:     enrollment.CourseID,
			EnrollmentID: enrollment.ID,
			AppliedBy:    input.AdminID,
		})
		if err != nil {
			return err
		}
		if err := s.transitions.update(ctx, tx, enrollment, map[string]any{
			"voucher_code": code,
			"updated_at":   s.now().UTC(),
		}); err != nil {
			return err
		}
		enrollment.VoucherCode = &code

		payment, err := s.payments.ApplyDiscountTx(ctx, tx, enrollment.ID, payments.Discount{
			VoucherID:      redemption.Voucher.ID,
			OriginalAmount: redemption.Usage.OriginalPrice,
			DiscountAmount: redemption.Usage.DiscountAmount,
		})
		if err != nil {
			return err
		}
		result.Enrollment = enrollment
		result.Redemption = redemption
		result.Payment = payment
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notify(ctx, result.Enrollment.StudentID, "Voucher applied",
		fmt.Sprintf("Voucher %s was applied to your enrollment.", code), result.Enrollment.ID)
	return result, nil
}

// CheckAccess is the read every content-serving path must pass before
// releasing protected material.
func (s *service) CheckAccess(ctx context.Context, studentID, courseID uuid.UUID) (bool, error) {
	if studentID == uuid.Nil || courseID == uuid.Nil {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "student id and course id required")
	}
	ok, err := s.repo.HasAccess(ctx, studentID, courseID)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check course access")
	}
	return ok, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID, actor auth.Actor) (*models.Enrollment, error) {
	enrollment, err := s.transitions.FindEnrollment(ctx, nil, id)
	if err != nil {
		return nil, err
	}
	if !actor.Owns(enrollment.StudentID) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "enrollment belongs to another student")
	}
	return enrollment, nil
}

func (s *service) ListForStudent(ctx context.Context, studentID uuid.UUID, params pagination.Params) (pagination.Page[models.Enrollment], error) {
	if studentID == uuid.Nil {
		return pagination.Page[models.Enrollment]{}, pkgerrors.New(pkgerrors.CodeValidation, "student id required")
	}
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return pagination.Page[models.Enrollment]{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, err := s.repo.ListForStudent(ctx, studentID, params.Limit, cursor)
	if err != nil {
		return pagination.Page[models.Enrollment]{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list enrollments")
	}
	return pagination.BuildPage(rows, params.Limit, enrollmentCursor), nil
}

func (s *service) ListByStatus(ctx context.Context, params ListParams) (pagination.Page[models.Enrollment], error) {
	if params.Status != nil && !params.Status.IsValid() {
		return pagination.Page[models.Enrollment]{}, pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("invalid enrollment status %q", *params.Status))
	}
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return pagination.Page[models.Enrollment]{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, err := s.repo.ListByStatus(ctx, params.Status, params.Limit, cursor)
	if err != nil {
		return pagination.Page[models.Enrollment]{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list enrollments")
	}
	return pagination.BuildPage(rows, params.Limit, enrollmentCursor), nil
}

// DueForExpiration lists approved enrollments whose access term has ended.
func (s *service) DueForExpiration(ctx context.Context, now time.Time, limit int) ([]models.Enrollment, error) {
	rows, err := s.repo.FindDueForExpiration(ctx, now, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list expiring enrollments")
	}
	return rows, nil
}

func (s *service) ExpireTx(ctx context.Context, tx *gorm.DB, enrollment *models.Enrollment, now time.Time) (bool, error) {
	return s.transitions.ExpireTx(ctx, tx, enrollment, now)
}

func (s *service) notify(ctx context.Context, userID uuid.UUID, title, message string, enrollmentID uuid.UUID) {
	if s.notifier == nil {
		return
	}
	link := fmt.Sprintf("/enrollments/%s", enrollmentID)
	s.notifier.Notify(ctx, notifications.Message{
		UserID:  userID,
		Type:    enums.NotificationTypeEnrollment,
		Title:   title,
		Message: message,
		Link:    &link,
	})
}

func enrollmentCursor(e models.Enrollment) pagination.Cursor {
	return pagination.Cursor{CreatedAt: e.CreatedAt, ID: e.ID}
}

func trimmed(value *string) *string {
	if value == nil {
		return nil
	}
	v := strings.TrimSpace(*value)
	if v == "" {
		return nil
	}
	return &v
}

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
