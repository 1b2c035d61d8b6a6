package vouchers

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/courseforge/courseforge-backend/pkg/db"
	"github.com/courseforge/courseforge-backend/pkg/db/models"
	dbtypes "github.com/courseforge/courseforge-backend/pkg/db/types"
	"github.com/courseforge/courseforge-backend/pkg/enums"
	pkgerrors "github.com/courseforge/courseforge-backend/pkg/errors"
	"github.com/courseforge/courseforge-backend/pkg/logger"
	"github.com/courseforge/courseforge-backend/pkg/metrics"
	"github.com/courseforge/courseforge-backend/pkg/outbox"
	"github.com/courseforge/courseforge-backend/pkg/outbox/payloads"
	"github.com/courseforge/courseforge-backend/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type courseLoader interface {
	GetCourse(ctx context.Context, tx *gorm.DB, courseID uuid.UUID) (*models.Course, error)
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type redemptionMetrics interface {
	IncRedemption(outcome string)
	IncValidation(reason string)
}

// Service validates, redeems and administers vouchers.
type Service interface {
	Validate(ctx context.Context, req ValidateRequest) (*ValidationResult, error)
	Redeem(ctx context.Context, tx *gorm.DB, req RedeemRequest) (*Redemption, error)
	PriorRedemption(ctx context.Context, tx *gorm.DB, enrollmentID uuid.UUID) (*Redemption, error)
	Create(ctx context.Context, adminID uuid.UUID, input CreateInput) (*models.Voucher, error)
	Update(ctx context.Context, id uuid.UUID, input UpdateInput) (*models.Voucher, error)
	Deactivate(ctx context.Context, id uuid.UUID) (*models.Voucher, error)
	Delete(ctx context.Context, id uuid.UUID) (bool, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Voucher, error)
	List(ctx context.Context, params ListParams) (pagination.Page[models.Voucher], error)
	ListUsages(ctx context.Context, voucherID uuid.UUID, params pagination.Params) (pagination.Page[models.VoucherUsage], error)
}

// ServiceParams wires voucher dependencies.
type ServiceParams struct {
	Repo    Repository
	Tx      txRunner
	Courses courseLoader
	Outbox  outboxPublisher
	Metrics redemptionMetrics
	Logger  *logger.Logger
	Now     func() time.Time
}

type service struct {
	repo    Repository
	tx      txRunner
	courses courseLoader
	outbox  outboxPublisher
	metrics redemptionMetrics
	logg    *logger.Logger
	now     func() time.Time
}

// NewService builds the voucher service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("voucher repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if params.Courses == nil {
		return nil, fmt.Errorf("course loader required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if params.Metrics == nil {
		params.Metrics = (*metrics.VoucherMetrics)(nil)
	}
	if params.Now == nil {
		params.Now = time.Now
	}
	return &service{
		repo:    params.Repo,
		tx:      params.Tx,
		courses: params.Courses,
		outbox:  params.Outbox,
		metrics: params.Metrics,
		logg:    params.Logger,
		now:     params.Now,
	}, nil
}

// Validate runs the redemption checks without side effects. A failed check is
// reported in the result; only infrastructure problems and bad input are errors.
func (s *service) Validate(ctx context.Context, req ValidateRequest) (*ValidationResult, error) {
	if err := validateRequest(req.Code, req.CourseID, req.StudentID); err != nil {
		return nil, err
	}
	course, err := s.courses.GetCourse(ctx, nil, req.CourseID)
	if err != nil {
		return nil, err
	}
	res, err := s.check(ctx, s.repo, CanonicalCode(req.Code), req.StudentID, course, s.now().UTC())
	if err != nil {
		return nil, err
	}
	if res.Valid {
		s.metrics.IncValidation("ok")
	} else {
		s.metrics.IncValidation(string(res.Reason))
	}
	return res, nil
}

// check applies the ordered validation rules using repo, which may be bound to
// a transaction.
func (s *service) check(ctx context.Context, repo Repository, code string, studentID uuid.UUID, course *models.Course, now time.Time) (*ValidationResult, error) {
	voucher, err := repo.FindByCode(ctx, code)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load voucher")
	}
	if voucher == nil {
		return invalid(ReasonNotFound, nil), nil
	}
	if reason := availability(voucher, now); reason != "" {
		return invalid(reason, voucher), nil
	}
	if !voucher.ApplicableCourseIDs.Contains(course.ID) {
		return invalid(ReasonNotApplicable, voucher), nil
	}
	used, err := repo.UsageExists(ctx, voucher.ID, studentID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check voucher usage")
	}
	if used {
		return invalid(ReasonAlreadyUsed, voucher), nil
	}

	discount, final := ComputeDiscount(course.Price, voucher.DiscountPercentage)
	return valid(voucher, course.Price.Round(minorUnits), discount, final), nil
}

// Redeem consumes one use of the voucher inside tx. Any returned error leaves
// tx in a state the caller must roll back.
func (s *service) Redeem(ctx context.Context, tx *gorm.DB, req RedeemRequest) (*Redemption, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "redeem requires a transaction")
	}
	if err := validateRequest(req.Code, req.CourseID, req.StudentID); err != nil {
		return nil, err
	}
	if req.EnrollmentID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "enrollment id required")
	}
	if req.AppliedBy == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "applied by required")
	}

	repo := s.repo.WithTx(tx)
	now := s.now().UTC()

	course, err := s.courses.GetCourse(ctx, tx, req.CourseID)
	if err != nil {
		return nil, err
	}
	res, err := s.check(ctx, repo, CanonicalCode(req.Code), req.StudentID, course, now)
	if err != nil {
		return nil, err
	}
	if !res.Valid {
		s.recordFailure(res.Reason)
		return nil, res.Err()
	}
	voucher := res.Voucher

	usage := models.VoucherUsage{
		ID:             uuid.New(),
		VoucherID:      voucher.ID,
		StudentID:      req.StudentID,
		CourseID:       req.CourseID,
		EnrollmentID:   req.EnrollmentID,
		OriginalPrice:  *res.OriginalPrice,
		DiscountAmount: *res.DiscountAmount,
		FinalPrice:     *res.FinalPrice,
		UsedAt:         now,
		AppliedBy:      req.AppliedBy,
	}
	if err := repo.CreateUsage(ctx, &usage); err != nil {
		if db.IsUniqueViolation(err, "") {
			s.metrics.IncRedemption(metrics.OutcomeConflict)
			return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, err, ReasonAlreadyUsed.Message()).
				WithDetails(map[string]any{"reason": ReasonAlreadyUsed})
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create voucher usage")
	}

	ok, err := repo.IncrementUsage(ctx, voucher.ID, now)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "increment voucher usage")
	}
	if !ok {
		// Lost the race for the last use, or the voucher was deactivated meanwhile.
		current, err := repo.FindByID(ctx, voucher.ID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload voucher")
		}
		reason := ReasonExhausted
		if current != nil {
			if r := availability(current, now); r != "" {
				reason = r
			}
		}
		s.recordFailure(reason)
		return nil, invalid(reason, current).Err()
	}
	voucher.UsedCount++

	event := outbox.DomainEvent{
		EventType:     enums.EventVoucherRedeemed,
		AggregateType: enums.AggregateVoucher,
		AggregateID:   voucher.ID,
		Actor:         &outbox.ActorRef{UserID: req.AppliedBy, Role: actorRole(req)},
		Data: payloads.VoucherRedeemedEvent{
			VoucherID:      voucher.ID,
			UsageID:        usage.ID,
			Code:           voucher.Code,
			StudentID:      usage.StudentID,
			CourseID:       usage.CourseID,
			EnrollmentID:   usage.EnrollmentID,
			OriginalPrice:  usage.OriginalPrice,
			DiscountAmount: usage.DiscountAmount,
			FinalPrice:     usage.FinalPrice,
			AppliedBy:      usage.AppliedBy,
		},
		OccurredAt: now,
	}
	if err := s.outbox.Emit(ctx, tx, event); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit voucher redeemed event")
	}

	s.metrics.IncRedemption(metrics.OutcomeRedeemed)
	return &Redemption{Voucher: *voucher, Usage: usage}, nil
}

// PriorRedemption returns the redemption already consumed by enrollmentID, or
// nil when the enrollment never redeemed a voucher.
func (s *service) PriorRedemption(ctx context.Context, tx *gorm.DB, enrollmentID uuid.UUID) (*Redemption, error) {
	if enrollmentID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "enrollment id required")
	}
	repo := s.repo.WithTx(tx)
	usage, err := repo.UsageForEnrollment(ctx, enrollmentID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load voucher usage")
	}
	if usage == nil {
		return nil, nil
	}
	voucher, err := repo.FindByID(ctx, usage.VoucherID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load voucher")
	}
	if voucher == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "voucher usage references a missing voucher")
	}
	return &Redemption{Voucher: *voucher, Usage: *usage}, nil
}

func (s *service) recordFailure(reason Reason) {
	switch reason.Code() {
	case pkgerrors.CodeConflict:
		s.metrics.IncRedemption(metrics.OutcomeConflict)
	case pkgerrors.CodeExpiredOrExhausted:
		s.metrics.IncRedemption(metrics.OutcomeExhausted)
	default:
		s.metrics.IncRedemption(metrics.OutcomeRejected)
	}
}

func actorRole(req RedeemRequest) string {
	if req.AppliedBy == req.StudentID {
		return string(enums.RoleStudent)
	}
	return string(enums.RoleAdmin)
}

func validateRequest(code string, courseID, studentID uuid.UUID) error {
	if CanonicalCode(code) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "voucher code required")
	}
	if courseID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "course id required")
	}
	if studentID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "student id required")
	}
	return nil
}

func (s *service) Create(ctx context.Context, adminID uuid.UUID, input CreateInput) (*models.Voucher, error) {
	if adminID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "admin id required")
	}
	code := CanonicalCode(input.Code)
	if code == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "voucher code required")
	}
	courses := dbtypes.UUIDArray(input.ApplicableCourseIDs).Dedupe()
	if err := validateTerms(input.DiscountPercentage, courses, input.UsageLimit, 0, input.ValidFrom, input.ValidUntil); err != nil {
		return nil, err
	}
	if err := s.ensureCourses(ctx, courses); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	voucher := &models.Voucher{
		ID:                  uuid.New(),
		Code:                code,
		DiscountPercentage:  input.DiscountPercentage,
		ApplicableCourseIDs: courses,
		UsageLimit:          input.UsageLimit,
		ValidFrom:           input.ValidFrom.UTC(),
		ValidUntil:          input.ValidUntil.UTC(),
		IsActive:            true,
		CreatedBy:           adminID,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if input.IsActive != nil {
		voucher.IsActive = *input.IsActive
	}
	if err := s.repo.Create(ctx, voucher); err != nil {
		if db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "voucher code already exists")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create voucher")
	}
	return voucher, nil
}

func (s *service) Update(ctx context.Context, id uuid.UUID, input UpdateInput) (*models.Voucher, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "voucher id required")
	}
	if input.ApplicableCourseIDs != nil {
		if err := s.ensureCourses(ctx, dbtypes.UUIDArray(input.ApplicableCourseIDs).Dedupe()); err != nil {
			return nil, err
		}
	}

	var updated *models.Voucher
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		voucher, err := repo.FindByIDForUpdate(ctx, id)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load voucher")
		}
		if voucher == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "voucher not found")
		}

		if input.DiscountPercentage != nil {
			voucher.DiscountPercentage = *input.DiscountPercentage
		}
		if input.ApplicableCourseIDs != nil {
			voucher.ApplicableCourseIDs = dbtypes.UUIDArray(input.ApplicableCourseIDs).Dedupe()
		}
		if input.UsageLimit != nil {
			voucher.UsageLimit = *input.UsageLimit
		}
		if input.ValidFrom != nil {
			voucher.ValidFrom = input.ValidFrom.UTC()
		}
		if input.ValidUntil != nil {
			voucher.ValidUntil = input.ValidUntil.UTC()
		}
		if input.IsActive != nil {
			voucher.IsActive = *input.IsActive
		}
		if err := validateTerms(voucher.DiscountPercentage, voucher.ApplicableCourseIDs, voucher.UsageLimit, voucher.UsedCount, voucher.ValidFrom, voucher.ValidUntil); err != nil {
			return err
		}
		voucher.UpdatedAt = s.now().UTC()
		if err := repo.Save(ctx, voucher); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update voucher")
		}
		updated = voucher
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *service) Deactivate(ctx context.Context, id uuid.UUID) (*models.Voucher, error) {
	inactive := false
	return s.Update(ctx, id, UpdateInput{IsActive: &inactive})
}

// Delete removes an unused voucher. A voucher with usages is deactivated
// instead so its usage rows keep a valid reference; the bool reports whether
// the row was removed.
func (s *service) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	if id == uuid.Nil {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "voucher id required")
	}
	var removed bool
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		voucher, err := repo.FindByIDForUpdate(ctx, id)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load voucher")
		}
		if voucher == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "voucher not found")
		}
		if voucher.UsedCount == 0 {
			if err := repo.Delete(ctx, id); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete voucher")
			}
			removed = true
			return nil
		}
		voucher.IsActive = false
		voucher.UpdatedAt = s.now().UTC()
		if err := repo.Save(ctx, voucher); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "deactivate voucher")
		}
		return nil
	})
	return removed, err
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.Voucher, error) {
	voucher, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load voucher")
	}
	if voucher == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "voucher not found")
	}
	return voucher, nil
}

func (s *service) List(ctx context.Context, params ListParams) (pagination.Page[models.Voucher], error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return pagination.Page[models.Voucher]{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, err := s.repo.List(ctx, listParams{ActiveOnly: params.ActiveOnly, Limit: params.Limit, Cursor: cursor})
	if err != nil {
		return pagination.Page[models.Voucher]{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list vouchers")
	}
	return pagination.BuildPage(rows, params.Limit, func(v models.Voucher) pagination.Cursor {
		return pagination.Cursor{CreatedAt: v.CreatedAt, ID: v.ID}
	}), nil
}

func (s *service) ListUsages(ctx context.Context, voucherID uuid.UUID, params pagination.Params) (pagination.Page[models.VoucherUsage], error) {
	if _, err := s.Get(ctx, voucherID); err != nil {
		return pagination.Page[models.VoucherUsage]{}, err
	}
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return pagination.Page[models.VoucherUsage]{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, err := s.repo.ListUsages(ctx, voucherID, params.Limit, cursor)
	if err != nil {
		return pagination.Page[models.VoucherUsage]{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list voucher usages")
	}
	return pagination.BuildPage(rows, params.Limit, func(u models.VoucherUsage) pagination.Cursor {
		return pagination.Cursor{CreatedAt: u.UsedAt, ID: u.ID}
	}), nil
}

func (s *service) ensureCourses(ctx context.Context, ids dbtypes.UUIDArray) error {
	for _, id := range ids {
		if _, err := s.courses.GetCourse(ctx, nil, id); err != nil {
			if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
				return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown course %s", id))
			}
			return err
		}
	}
	return nil
}

func validateTerms(pct decimal.Decimal, courses dbtypes.UUIDArray, limit, used int, from, until time.Time) error {
	if pct.IsNegative() || pct.GreaterThan(hundred) {
		return pkgerrors.New(pkgerrors.CodeValidation, "discount percentage must be between 0 and 100")
	}
	if len(courses) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "at least one applicable course required")
	}
	if limit < 1 {
		return pkgerrors.New(pkgerrors.CodeValidation, "usage limit must be at least 1")
	}
	if limit < used {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("usage limit cannot drop below %d redemptions", used))
	}
	if from.IsZero() || until.IsZero() {
		return pkgerrors.New(pkgerrors.CodeValidation, "validity window required")
	}
	if !until.After(from) {
		return pkgerrors.New(pkgerrors.CodeValidation, "valid until must be after valid from")
	}
	return nil
}
