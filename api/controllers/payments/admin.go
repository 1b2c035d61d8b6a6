package payments

import (
	"context"
	"net/http"

	"github.com/courseforge/courseforge-backend/api/middleware"
	"github.com/courseforge/courseforge-backend/api/responses"
	"github.com/courseforge/courseforge-backend/api/validators"
	"github.com/courseforge/courseforge-backend/internal/evidence"
	internalpayments "github.com/courseforge/courseforge-backend/internal/payments"
	"github.com/courseforge/courseforge-backend/pkg/enums"
	pkgerrors "github.com/courseforge/courseforge-backend/pkg/errors"
	"github.com/courseforge/courseforge-backend/pkg/logger"
)

const maxReasonLength = 500

type receiptSigner interface {
	ReadURL(ctx context.Context, receiptRef string) (*evidence.ReadOutput, error)
}

type transitionRequest struct {
	Status          string  `json:"status" validate:"required,oneof=verified rejected pending"`
	Reason          *string `json:"reason"`
	ExpectedVersion *int    `json:"expectedVersion" validate:"omitempty,min=1"`
}

// AdminTransition verifies or rejects a payment on behalf of an administrator.
func AdminTransition(svc internalpayments.Service, logg *logger.Logger) http.HandlerFunc {
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

		var payload transitionRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		status, err := enums.ParsePaymentStatus(payload.Status)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid status"))
			return
		}

		payment, err := svc.TransitionStatus(r.Context(), internalpayments.TransitionInput{
			PaymentID:       paymentID,
			Status:          status,
			UpdatedBy:       actor.UserID.String(),
			Reason:          sanitizeReason(payload.Reason),
			ExpectedVersion: payload.ExpectedVersion,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, payment)
	}
}

// AdminSync re-reads a card payment's status from the gateway.
func AdminSync(svc internalpayments.Service, logg *logger.Logger) http.HandlerFunc {
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
		if payment.Method != enums.PaymentMethodCard || payment.TransactionID == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeStateConflict, "only card payments can be synced with the gateway"))
			return
		}

		synced, err := svc.SyncGatewayStatus(r.Context(), *payment.TransactionID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, synced)
	}
}

// AdminHistory returns the ordered status history of a payment.
func AdminHistory(svc internalpayments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments service unavailable"))
			return
		}

		paymentID, err := validators.ParseUUIDParam(r, "paymentId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		history, err := svc.History(r.Context(), paymentID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"items": history})
	}
}

// AdminReceipt returns a signed download link for the payment's receipt.
func AdminReceipt(svc internalpayments.Service, signer receiptSigner, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil || signer == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "receipt storage unavailable"))
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

		ref := ""
		if payment.ReceiptRef != nil {
			ref = *payment.ReceiptRef
		}
		out, err := signer.ReadURL(r.Context(), ref)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, out)
	}
}

func sanitizeReason(reason *string) *string {
	if reason == nil {
		return nil
	}
	v := validators.SanitizeString(*reason, maxReasonLength)
	return &v
}
