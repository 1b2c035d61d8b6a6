package payments

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/courseforge/courseforge-backend/internal/notifications"
	"github.com/courseforge/courseforge-backend/pkg/auth"
	"github.com/courseforge/courseforge-backend/pkg/db"
	"github.com/courseforge/courseforge-backend/pkg/db/models"
	"github.com/courseforge/courseforge-backend/pkg/enums"
	pkgerrors "github.com/courseforge/courseforge-backend/pkg/errors"
	"github.com/courseforge/courseforge-backend/pkg/logger"
	"github.com/courseforge/courseforge-backend/pkg/outbox"
	"github.com/courseforge/courseforge-backend/pkg/outbox/payloads"
	"github.com/courseforge/courseforge-backend/pkg/square"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// EnrollmentLedger is the enrollment side of payment decisions. Both calls
// run inside the payment transaction.
type EnrollmentLedger interface {
	FindEnrollment(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*models.Enrollment, error)
	RejectFromPayment(ctx context.Context, tx *gorm.DB, enrollmentID uuid.UUID, reason, updatedBy string) (*models.Enrollment, error)
}

// Gateway is the card processor contract.
type Gateway interface {
	Capture(ctx context.Context, paymentID string) (*square.CaptureResult, error)
	GetOrderStatus(ctx context.Context, paymentID string) (string, error)
}

// Service records payment evidence and drives payment verification.
type Service interface {
	RecordPayment(ctx context.Context, input RecordInput) (*models.Payment, error)
	SubmitForEnrollmentTx(ctx context.Context, tx *gorm.DB, input RecordInput) (*models.Payment, error)
	TransitionStatus(ctx context.Context, input TransitionInput) (*models.Payment, error)
	ReuploadEvidence(ctx context.Context, paymentID, studentID uuid.UUID, receiptRef string) (*models.Payment, error)
	CaptureCard(ctx context.Context, input CaptureInput) (*models.Payment, error)
	SyncGatewayStatus(ctx context.Context, gatewayPaymentID string) (*models.Payment, error)
	ApplyDiscountTx(ctx context.Context, tx *gorm.DB, enrollmentID uuid.UUID, discount Discount) (*models.Payment, error)
	Get(ctx context.Context, id uuid.UUID, actor auth.Actor) (*models.Payment, error)
	ListForEnrollment(ctx context.Context, enrollmentID uuid.UUID, actor auth.Actor) ([]models.Payment, error)
	History(ctx context.Context, paymentID uuid.UUID) ([]models.PaymentStatusEntry, error)
}

// ServiceParams wires payment dependencies. Gateway and Notifier are optional.
type ServiceParams struct {
	Repo        Repository
	Tx          txRunner
	Enrollments EnrollmentLedger
	Outbox      outboxPublisher
	Gateway     Gateway
	Notifier    notifications.Notifier
	Logger      *logger.Logger
	Now         func() time.Time
}

type service struct {
	repo        Repository
	tx          txRunner
	enrollments EnrollmentLedger
	outbox      outboxPublisher
	gateway     Gateway
	notifier    notifications.Notifier
	logg        *logger.Logger
	now         func() time.Time
}

// NewService builds the payment ledger.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("payments repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if params.Enrollments == nil {
		return nil, fmt.Errorf("enrollment ledger required")
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
		enrollments: params.Enrollments,
		outbox:      params.Outbox,
		gateway:     params.Gateway,
		notifier:    params.Notifier,
		logg:        params.Logger,
		now:         params.Now,
	}, nil
}

// RecordPayment stores new evidence for an enrollment that has no live payment.
func (s *service) RecordPayment(ctx context.Context, input RecordInput) (*models.Payment, error) {
	var payment *models.Payment
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if _, err := s.ownedEnrollment(ctx, tx, input.EnrollmentID, input.StudentID); err != nil {
			return err
		}
		latest, err := s.repo.WithTx(tx).LatestForEnrollment(ctx, input.EnrollmentID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load enrollment payments")
		}
		if latest != nil {
			if latest.Status.AllowsReupload() {
				return pkgerrors.New(pkgerrors.CodeConflict, "payment was rejected; reupload evidence instead")
			}
			return pkgerrors.New(pkgerrors.CodeConflict, "enrollment already has a payment")
		}
		payment, err = s.create(ctx, tx, input)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.notify(ctx, payment.StudentID, "Payment received", "Your payment evidence was received and is awaiting verification.", payment.ID)
	return payment, nil
}

// SubmitForEnrollmentTx attaches evidence while an enrollment is requested or
// resubmitted. A rejected payment is reopened in place, a pending one gets the
// new evidence and a verified one is kept as is.
func (s *service) SubmitForEnrollmentTx(ctx context.Context, tx *gorm.DB, input RecordInput) (*models.Payment, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "submit requires a transaction")
	}
	repo := s.repo.WithTx(tx)
	latest, err := repo.LatestForEnrollment(ctx, input.EnrollmentID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load enrollment payments")
	}
	if latest == nil {
		if _, err := s.ownedEnrollment(ctx, tx, input.EnrollmentID, input.StudentID); err != nil {
			return nil, err
		}
		return s.create(ctx, tx, input)
	}
	if latest.Status == enums.PaymentStatusVerified {
		return latest, nil
	}

	fields, err := s.evidenceFields(input)
	if err != nil {
		return nil, err
	}
	previous := latest.Status
	fields["status"] = enums.PaymentStatusPending
	reason := "Enrollment resubmitted"
	if err := s.rewrite(ctx, tx, latest, fields, enums.PaymentStatusPending, input.StudentID.String(), &reason); err != nil {
		return nil, err
	}
	if err := s.emitStatusChanged(ctx, tx, latest, previous, input.StudentID.String(), &reason); err != nil {
		return nil, err
	}
	return repo.FindByID(ctx, latest.ID)
}

func (s *service) create(ctx context.Context, tx *gorm.DB, input RecordInput) (*models.Payment, error) {
	fields, err := s.evidenceFields(input)
	if err != nil {
		return nil, err
	}
	enrollment, err := s.enrollments.FindEnrollment(ctx, tx, input.EnrollmentID)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	payment := &models.Payment{
		ID:               uuid.New(),
		EnrollmentID:     enrollment.ID,
		StudentID:        enrollment.StudentID,
		CourseID:         enrollment.CourseID,
		Amount:           fields["amount"].(decimal.Decimal),
		OriginalAmount:   input.OriginalAmount,
		DiscountAmount:   input.DiscountAmount,
		VoucherID:        input.VoucherID,
		PaymentDate:      fields["payment_date"].(time.Time),
		Method:           fields["payment_method"].(enums.PaymentMethod),
		BankName:         input.BankName,
		AccountReference: input.AccountReference,
		TransactionID:    input.TransactionID,
		ReceiptRef:       fields["receipt_ref"].(*string),
		Status:           enums.PaymentStatusPending,
		Version:          1,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.insert(ctx, tx, payment, input.StudentID.String()); err != nil {
		return nil, err
	}
	return payment, nil
}

// insert stores payment with its first pending history entry and queues payment_recorded.
func (s *service) insert(ctx context.Context, tx *gorm.DB, payment *models.Payment, updatedBy string) error {
	repo := s.repo.WithTx(tx)
	if err := repo.Create(ctx, payment); err != nil {
		if db.IsUniqueViolation(err, "") {
			return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "gateway payment already recorded")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create payment")
	}
	entry := models.PaymentStatusEntry{
		ID:        uuid.New(),
		PaymentID: payment.ID,
		Status:    enums.PaymentStatusPending,
		UpdatedBy: updatedBy,
		UpdatedAt: payment.CreatedAt,
	}
	if err := repo.AppendHistory(ctx, &entry); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append payment history")
	}
	payment.History = []models.PaymentStatusEntry{entry}

	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventPaymentRecorded,
		AggregateType: enums.AggregatePayment,
		AggregateID:   payment.ID,
		Actor:         &outbox.ActorRef{UserID: payment.StudentID, Role: string(enums.RoleStudent)},
		Data: payloads.PaymentRecordedEvent{
			PaymentID:    payment.ID,
			EnrollmentID: payment.EnrollmentID,
			StudentID:    payment.StudentID,
			CourseID:     payment.CourseID,
			Amount:       payment.Amount,
			Method:       payment.Method,
			Status:       payment.Status,
		},
		OccurredAt: payment.CreatedAt,
	})
}

// evidenceFields validates student supplied evidence and returns the columns it sets.
func (s *service) evidenceFields(input RecordInput) (map[string]any, error) {
	if input.EnrollmentID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "enrollment id required")
	}
	if input.StudentID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "student id required")
	}
	if !input.Amount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be greater than zero")
	}
	if input.Method == "" {
		input.Method = enums.PaymentMethodBankTransfer
	}
	if !input.Method.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid payment method %q", input.Method))
	}
	receipt := trimmed(input.ReceiptRef)
	if receipt == nil && input.Method.RequiresReceipt() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "receipt reference required")
	}
	paidAt, ok := parsePaymentDate(strings.TrimSpace(input.PaymentDate), s.now().UTC())
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment date is not a valid date")
	}
	fields := map[string]any{
		"amount":            input.Amount.Round(2),
		"payment_date":      paidAt,
		"payment_method":    input.Method,
		"receipt_ref":       receipt,
		"bank_name":         input.BankName,
		"account_reference": input.AccountReference,
		"transaction_id":    input.TransactionID,
	}
	if input.VoucherID != nil {
		fields["voucher_id"] = *input.VoucherID
		fields["original_amount"] = input.OriginalAmount
		fields["discount_amount"] = input.DiscountAmount
	} else {
		fields["voucher_id"] = nil
		fields["original_amount"] = nil
		fields["discount_amount"] = nil
	}
	return fields, nil
}

// TransitionStatus applies an administrator decision. A rejection cascades to
// the enrollment in the same transaction.
func (s *service) TransitionStatus(ctx context.Context, input TransitionInput) (*models.Payment, error) {
	if input.PaymentID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment id required")
	}
	if !input.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid payment status %q", input.Status))
	}
	if strings.TrimSpace(input.UpdatedBy) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "updated by required")
	}

	var (
		payment *models.Payment
		changed bool
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		current, err := s.load(ctx, tx, input.PaymentID)
		if err != nil {
			return err
		}
		if input.ExpectedVersion != nil && *input.ExpectedVersion != current.Version {
			return pkgerrors.New(pkgerrors.CodeConflict, "payment was modified; reload and retry")
		}
		changed, err = s.transitionTx(ctx, tx, current, input.Status, input.UpdatedBy, input.Reason)
		if err != nil {
			return err
		}
		payment = current
		return nil
	})
	if err != nil {
		return nil, err
	}
	if changed {
		s.notifyStatus(ctx, payment)
	}
	return payment, nil
}

// transitionTx moves payment to next inside tx and reports whether anything changed.
func (s *service) transitionTx(ctx context.Context, tx *gorm.DB, payment *models.Payment, next enums.PaymentStatus, updatedBy string, reason *string) (bool, error) {
	if payment.Status == next {
		return false, nil
	}
	if !payment.Status.CanTransitionTo(next) {
		return false, pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("payment cannot move from %s to %s", payment.Status, next))
	}
	reason = trimmed(reason)
	if next == enums.PaymentStatusRejected && reason == nil {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "rejection reason required")
	}

	previous := payment.Status
	if err := s.rewrite(ctx, tx, payment, map[string]any{"status": next}, next, updatedBy, reason); err != nil {
		return false, err
	}
	if next == enums.PaymentStatusRejected {
		if _, err := s.enrollments.RejectFromPayment(ctx, tx, payment.EnrollmentID, *reason, updatedBy); err != nil {
			return false, err
		}
	}
	if err := s.emitStatusChanged(ctx, tx, payment, previous, updatedBy, reason); err != nil {
		return false, err
	}
	return true, nil
}

// rewrite applies fields under the payment's version and appends the matching
// history entry. payment is updated in place.
func (s *service) rewrite(ctx context.Context, tx *gorm.DB, payment *models.Payment, fields map[string]any, status enums.PaymentStatus, updatedBy string, reason *string) error {
	repo := s.repo.WithTx(tx)
	now := s.now().UTC()
	fields["updated_at"] = now

	ok, err := repo.UpdateWithVersion(ctx, payment.ID, payment.Version, fields)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update payment")
	}
	if !ok {
		return pkgerrors.New(pkgerrors.CodeConflict, "payment was modified concurrently; reload and retry")
	}

	entry := models.PaymentStatusEntry{
		ID:        uuid.New(),
		PaymentID: payment.ID,
		Status:    status,
		UpdatedBy: updatedBy,
		Reason:    reason,
		UpdatedAt: now,
	}
	if err := repo.AppendHistory(ctx, &entry); err != nil {
		if db.IsUniqueViolation(err, "") {
			return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "payment history was appended concurrently")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append payment history")
	}

	payment.Status = status
	payment.Version++
	payment.UpdatedAt = now
	payment.History = append(payment.History, entry)
	return nil
}

func (s *service) emitStatusChanged(ctx context.Context, tx *gorm.DB, payment *models.Payment, previous enums.PaymentStatus, updatedBy string, reason *string) error {
	event := outbox.DomainEvent{
		EventType:     enums.EventPaymentStatusChanged,
		AggregateType: enums.AggregatePayment,
		AggregateID:   payment.ID,
		Data: payloads.PaymentStatusChangedEvent{
			PaymentID:      payment.ID,
			EnrollmentID:   payment.EnrollmentID,
			StudentID:      payment.StudentID,
			PreviousStatus: previous,
			Status:         payment.Status,
			UpdatedBy:      updatedBy,
			Reason:         reason,
		},
		OccurredAt: payment.UpdatedAt,
	}
	if actor, err := uuid.Parse(updatedBy); err == nil {
		role := string(enums.RoleAdmin)
		if actor == payment.StudentID {
			role = string(enums.RoleStudent)
		}
		event.Actor = &outbox.ActorRef{UserID: actor, Role: role}
	}
	return s.outbox.Emit(ctx, tx, event)
}

// ReuploadEvidence reopens a rejected payment with new evidence. The
// enrollment keeps its rejected status until an administrator acts.
func (s *service) ReuploadEvidence(ctx context.Context, paymentID, studentID uuid.UUID, receiptRef string) (*models.Payment, error) {
	if paymentID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment id required")
	}
	ref := strings.TrimSpace(receiptRef)
	if ref == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "receipt reference required")
	}

	var payment *models.Payment
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		current, err := s.load(ctx, tx, paymentID)
		if err != nil {
			return err
		}
		if current.StudentID != studentID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "payment belongs to another student")
		}
		if !current.Status.AllowsReupload() {
			return pkgerrors.New(pkgerrors.CodeStateConflict,
				fmt.Sprintf("evidence can only be reuploaded for rejected payments, payment is %s", current.Status))
		}
		previous := current.Status
		reason := ReuploadReason
		fields := map[string]any{"status": enums.PaymentStatusPending, "receipt_ref": ref}
		if err := s.rewrite(ctx, tx, current, fields, enums.PaymentStatusPending, studentID.String(), &reason); err != nil {
			return err
		}
		current.ReceiptRef = &ref
		if err := s.emitStatusChanged(ctx, tx, current, previous, studentID.String(), &reason); err != nil {
			return err
		}
		payment = current
		return nil
	})
	if err != nil {
		return nil, err
	}
	return payment, nil
}

// CaptureCard completes a gateway authorization and records it as a card payment.
func (s *service) CaptureCard(ctx context.Context, input CaptureInput) (*models.Payment, error) {
	if s.gateway == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "card gateway not configured")
	}
	gatewayID := strings.TrimSpace(input.GatewayPaymentID)
	if gatewayID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "gateway payment id required")
	}
	enrollment, err := s.ownedEnrollment(ctx, nil, input.EnrollmentID, input.StudentID)
	if err != nil {
		return nil, err
	}
	existing, err := s.repo.FindByGatewayOrderID(ctx, gatewayID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load gateway payment")
	}
	if existing != nil {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "gateway payment already recorded")
	}
	latest, err := s.repo.LatestForEnrollment(ctx, enrollment.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load enrollment payments")
	}
	if latest != nil && !latest.Status.AllowsReupload() {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "enrollment already has a payment")
	}

	captured, err := s.gateway.Capture(ctx, gatewayID)
	if err != nil {
		return nil, err
	}
	if !captured.Amount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "gateway returned no captured amount")
	}

	var (
		payment *models.Payment
		changed bool
	)
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		now := s.now().UTC()
		payment = &models.Payment{
			ID:             uuid.New(),
			EnrollmentID:   enrollment.ID,
			StudentID:      enrollment.StudentID,
			CourseID:       enrollment.CourseID,
			Amount:         captured.Amount,
			PaymentDate:    now,
			Method:         enums.PaymentMethodCard,
			TransactionID:  stringPtr(captured.PaymentID),
			GatewayOrderID: stringPtr(gatewayID),
			PayerID:        optionalString(captured.PayerID),
			Status:         enums.PaymentStatusPending,
			Version:        1,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := s.insert(ctx, tx, payment, input.StudentID.String()); err != nil {
			return err
		}
		mapped := square.MapPaymentStatus(captured.Status)
		if mapped == enums.PaymentStatusPending {
			return nil
		}
		changed, err = s.transitionTx(ctx, tx, payment, mapped, GatewayActor, gatewayReason(captured.Status))
		return err
	})
	if err != nil {
		s.logUnrecordedCapture(ctx, enrollment.ID, gatewayID, captured, err)
		return nil, err
	}
	if changed {
		s.notifyStatus(ctx, payment)
	}
	return payment, nil
}

// logUnrecordedCapture reports money the gateway took without a payment row,
// so the capture can be reconciled by hand.
func (s *service) logUnrecordedCapture(ctx context.Context, enrollmentID uuid.UUID, gatewayID string, captured *square.CaptureResult, err error) {
	if s.logg == nil {
		return
	}
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"enrollment_id":      enrollmentID.String(),
		"gateway_order_id":   gatewayID,
		"gateway_payment_id": captured.PaymentID,
		"captured_amount":    captured.Amount.String(),
	})
	s.logg.Error(logCtx, "card captured but payment not recorded", err)
}

// SyncGatewayStatus re-reads the gateway status of a card payment and applies it.
func (s *service) SyncGatewayStatus(ctx context.Context, gatewayPaymentID string) (*models.Payment, error) {
	if s.gateway == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "card gateway not configured")
	}
	gatewayID := strings.TrimSpace(gatewayPaymentID)
	if gatewayID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "gateway payment id required")
	}
	found, err := s.repo.FindByGatewayOrderID(ctx, gatewayID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load gateway payment")
	}
	if found == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment not found for gateway id")
	}

	raw, err := s.gateway.GetOrderStatus(ctx, gatewayID)
	if err != nil {
		return nil, err
	}
	mapped := square.MapPaymentStatus(raw)

	var (
		payment *models.Payment
		changed bool
	)
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		current, err := s.load(ctx, tx, found.ID)
		if err != nil {
			return err
		}
		payment = current
		if mapped == enums.PaymentStatusPending {
			return nil
		}
		changed, err = s.transitionTx(ctx, tx, current, mapped, GatewayActor, gatewayReason(raw))
		return err
	})
	if err != nil {
		return nil, err
	}
	if changed {
		s.notifyStatus(ctx, payment)
	}
	return payment, nil
}

// ApplyDiscountTx stamps retroactive voucher terms on the enrollment's latest
// payment. It returns nil when the enrollment has no payment yet.
func (s *service) ApplyDiscountTx(ctx context.Context, tx *gorm.DB, enrollmentID uuid.UUID, discount Discount) (*models.Payment, error) {
	repo := s.repo.WithTx(tx)
	payment, err := repo.LatestForEnrollment(ctx, enrollmentID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load enrollment payments")
	}
	if payment == nil {
		return nil, nil
	}
	ok, err := repo.UpdateWithVersion(ctx, payment.ID, payment.Version, map[string]any{
		"voucher_id":      discount.VoucherID,
		"original_amount": discount.OriginalAmount,
		"discount_amount": discount.DiscountAmount,
		"updated_at":      s.now().UTC(),
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "apply payment discount")
	}
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "payment was modified concurrently; reload and retry")
	}
	return repo.FindByID(ctx, payment.ID)
}

func (s *service) Get(ctx context.Context, id uuid.UUID, actor auth.Actor) (*models.Payment, error) {
	payment, err := s.load(ctx, nil, id)
	if err != nil {
		return nil, err
	}
	if !actor.Owns(payment.StudentID) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "payment belongs to another student")
	}
	return payment, nil
}

func (s *service) ListForEnrollment(ctx context.Context, enrollmentID uuid.UUID, actor auth.Actor) ([]models.Payment, error) {
	enrollment, err := s.enrollments.FindEnrollment(ctx, nil, enrollmentID)
	if err != nil {
		return nil, err
	}
	if !actor.Owns(enrollment.StudentID) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "enrollment belongs to another student")
	}
	rows, err := s.repo.ListForEnrollment(ctx, enrollmentID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list payments")
	}
	if rows == nil {
		rows = []models.Payment{}
	}
	return rows, nil
}

func (s *service) History(ctx context.Context, paymentID uuid.UUID) ([]models.PaymentStatusEntry, error) {
	if _, err := s.load(ctx, nil, paymentID); err != nil {
		return nil, err
	}
	rows, err := s.repo.History(ctx, paymentID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment history")
	}
	return rows, nil
}

func (s *service) load(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*models.Payment, error) {
	payment, err := s.repo.WithTx(tx).FindByID(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment")
	}
	if payment == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment not found")
	}
	return payment, nil
}

func (s *service) ownedEnrollment(ctx context.Context, tx *gorm.DB, enrollmentID, studentID uuid.UUID) (*models.Enrollment, error) {
	if enrollmentID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "enrollment id required")
	}
	enrollment, err := s.enrollments.FindEnrollment(ctx, tx, enrollmentID)
	if err != nil {
		return nil, err
	}
	if enrollment.StudentID != studentID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "enrollment belongs to another student")
	}
	return enrollment, nil
}

func (s *service) notifyStatus(ctx context.Context, payment *models.Payment) {
	switch payment.Status {
	case enums.PaymentStatusVerified:
		s.notify(ctx, payment.StudentID, "Payment verified", "Your payment has been verified.", payment.ID)
	case enums.PaymentStatusRejected:
		msg := "Your payment was rejected and your enrollment was declined."
		if n := len(payment.History); n > 0 && payment.History[n-1].Reason != nil {
			msg = fmt.Sprintf("Your payment was rejected: %s. Your enrollment was declined; you may reupload evidence.", *payment.History[n-1].Reason)
		}
		s.notify(ctx, payment.StudentID, "Payment rejected", msg, payment.ID)
	}
}

func (s *service) notify(ctx context.Context, userID uuid.UUID, title, message string, paymentID uuid.UUID) {
	if s.notifier == nil {
		return
	}
	link := fmt.Sprintf("/payments/%s", paymentID)
	s.notifier.Notify(ctx, notifications.Message{
		UserID:  userID,
		Type:    enums.NotificationTypePayment,
		Title:   title,
		Message: message,
		Link:    &link,
	})
}

func gatewayReason(status string) *string {
	reason := fmt.Sprintf("Gateway reported %s", strings.ToUpper(strings.TrimSpace(status)))
	return &reason
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

func stringPtr(value string) *string {
	return &value
}

func optionalString(value string) *string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return &value
}
