package enrollments

import (
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/courseforge/courseforge-backend/api/middleware"
	"github.com/courseforge/courseforge-backend/api/responses"
	"github.com/courseforge/courseforge-backend/api/validators"
	internalenrollments "github.com/courseforge/courseforge-backend/internal/enrollments"
	"github.com/courseforge/courseforge-backend/pkg/enums"
	pkgerrors "github.com/courseforge/courseforge-backend/pkg/errors"
	"github.com/courseforge/courseforge-backend/pkg/logger"
)

type evidenceRequest struct {
	Amount           *decimal.Decimal `json:"amount"`
	Method           string           `json:"paymentMethod" validate:"required"`
	PaymentDate      string           `json:"paymentDate"`
	ReceiptRef       *string          `json:"receiptRef"`
	BankName         *string          `json:"bankName"`
	AccountReference *string          `json:"accountReference"`
	TransactionID    *string          `json:"transactionId"`
}

type requestEnrollmentRequest struct {
	CourseID    string           `json:"courseId" validate:"required,uuid"`
	VoucherCode *string          `json:"voucherCode"`
	Payment     *evidenceRequest `json:"payment"`
}

func (r requestEnrollmentRequest) toInput() (internalenrollments.RequestInput, error) {
	input := internalenrollments.RequestInput{}
	courseID, err := parseUUID(r.CourseID, "courseId")
	if err != nil {
		return input, err
	}
	input.CourseID = courseID

	if r.VoucherCode != nil && strings.TrimSpace(*r.VoucherCode) != "" {
		code := strings.TrimSpace(*r.VoucherCode)
		input.VoucherCode = &code
	}

	if r.Payment != nil {
		method, err := enums.ParsePaymentMethod(strings.TrimSpace(r.Payment.Method))
		if err != nil {
			return input, pkgerrors.New(pkgerrors.CodeValidation, "invalid paymentMethod")
		}
		evidence := &internalenrollments.Evidence{
			Method:           method,
			PaymentDate:      strings.TrimSpace(r.Payment.PaymentDate),
			ReceiptRef:       r.Payment.ReceiptRef,
			BankName:         r.Payment.BankName,
			AccountReference: r.Payment.AccountReference,
			TransactionID:    r.Payment.TransactionID,
		}
		if r.Payment.Amount != nil {
			evidence.Amount = *r.Payment.Amount
		}
		input.Evidence = evidence
	}
	return input, nil
}

// Request opens an enrollment for the authenticated student.
func Request(svc internalenrollments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "enrollments service unavailable"))
			return
		}

		actor, err := middleware.ActorFromContext(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload requestEnrollmentRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input, err := payload.toInput()
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		input.StudentID = actor.UserID

		result, err := svc.RequestEnrollment(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

// ListMine returns the authenticated student's enrollments, newest first.
func ListMine(svc internalenrollments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "enrollments service unavailable"))
			return
		}

		actor, err := middleware.ActorFromContext(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		params, err := validators.ParsePageParams(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		page, err := svc.ListForStudent(r.Context(), actor.UserID, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, page)
	}
}

// Detail returns one enrollment the caller owns; administrators may read any.
func Detail(svc internalenrollments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "enrollments service unavailable"))
			return
		}

		actor, err := middleware.ActorFromContext(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		enrollmentID, err := validators.ParseUUIDParam(r, "enrollmentId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		enrollment, err := svc.Get(r.Context(), enrollmentID, actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, enrollment)
	}
}

// CourseAccess reports whether the student can currently open the course.
func CourseAccess(svc internalenrollments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "enrollments service unavailable"))
			return
		}

		actor, err := middleware.ActorFromContext(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		courseID, err := validators.ParseUUIDParam(r, "courseId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		ok, err := svc.CheckAccess(r.Context(), actor.UserID, courseID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{
			"courseId":  courseID,
			"hasAccess": ok,
		})
	}
}
