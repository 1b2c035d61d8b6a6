package payments

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/courseforge/courseforge-backend/api/middleware"
	"github.com/courseforge/courseforge-backend/api/responses"
	"github.com/courseforge/courseforge-backend/api/validators"
	internalpayments "github.com/courseforge/courseforge-backend/internal/payments"
	"github.com/courseforge/courseforge-backend/pkg/enums"
	pkgerrors "github.com/courseforge/courseforge-backend/pkg/errors"
	"github.com/courseforge/courseforge-backend/pkg/logger"
)

type recordPaymentRequest struct {
	EnrollmentID     string          `json:"enrollmentId" validate:"required,uuid"`
	Amount           decimal.Decimal `json:"amount"`
	Method           string          `json:"paymentMethod" validate:"required"`
	PaymentDate      string          `json:"paymentDate"`
	ReceiptRef       *string         `json:"receiptRef"`
	BankName         *string         `json:"bankName"`
	AccountReference *string         `json:"accountReference"`
	TransactionID    *string         `json:"transactionId"`
}

func (r recordPaymentRequest) toInput(studentID uuid.UUID) (internalpayments.RecordInput, error) {
	enrollmentID, err := uuid.Parse(strings.TrimSpace(r.EnrollmentID))
	if err != nil {
		return internalpayments.RecordInput{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid enrollmentId")
	}
	method, err := enums.ParsePaymentMethod(strings.TrimSpace(r.Method))
	if err != nil {
		return internalpayments.RecordInput{}, pkgerrors.New(pkgerrors.CodeValidation, "invalid paymentMethod")
	}
	return internalpayments.RecordInput{
		EnrollmentID:     enrollmentID,
		StudentID:        studentID,
		Amount:           r.Amount,
		Method:           method,
		PaymentDate:      strings.TrimSpace(r.PaymentDate),
		ReceiptRef:       r.ReceiptRef,
		BankName:         r.BankName,
		AccountReference: r.AccountReference,
		TransactionID:    r.TransactionID,
	}, nil
}

type captureCardRequest struct {
	EnrollmentID     string `json:"enrollmentId" validate:"required,uuid"`
	GatewayPaymentID string `json:"gatewayPaymentId" validate:"required,max=192"`
}

type reuploadRequest struct {
	ReceiptRef string `json:"receiptRef" validate:"required,max=1024"`
}

// Record stores payment evidence against one of the student's enrollments.
func Record(svc internalpayments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments service unavailable"))
			return
		}

		actor, err := middleware.ActorFromContext(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload recordPaymentRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input, err := payload.toInput(actor.UserID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		payment, err := svc.RecordPayment(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, payment)
	}
}

// CaptureCard completes a card payment authorized on the gateway.
func CaptureCard(svc internalpayments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments service unavailable"))
			return
		}

		actor, err := middleware.ActorFromContext(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload captureCardRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		enrollmentID, err := uuid.Parse(payload.EnrollmentID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid enrollmentId"))
			return
		}

		payment, err := svc.CaptureCard(r.Context(), internalpayments.CaptureInput{
			EnrollmentID:     enrollmentID,
			StudentID:        actor.UserID,
			GatewayPaymentID: strings.TrimSpace(payload.GatewayPaymentID),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, payment)
	}
}

// Reupload replaces the receipt on a rejected payment.
func Reupload(svc internalpayments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments service unavailable"))
			return
		}

		actor, err := middleware.ActorFromContext(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		paymentID, err := validators.ParseUUIDParam(r, "paymentId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload reuploadRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		payment, err := svc.ReuploadEvidence(r.Context(), paymentID, actor.UserID, strings.TrimSpace(payload.ReceiptRef))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, payment)
	}
}

// Detail returns a payment the caller owns; administrators may read any.
func Detail(svc internalpayments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments service unavailable"))
			return
		}

		actor, err := middleware.ActorFromContext(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		paymentID, err := validators.ParseUUIDParam(r, "paymentId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		payment, err := svc.Get(r.Context(), paymentID, actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, payment)
	}
}
