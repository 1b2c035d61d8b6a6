package enrollments

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/courseforge/courseforge-backend/api/middleware"
	"github.com/courseforge/courseforge-backend/api/responses"
	"github.com/courseforge/courseforge-backend/api/validators"
	internalenrollments "github.com/courseforge/courseforge-backend/internal/enrollments"
	"github.com/courseforge/courseforge-backend/pkg/enums"
	pkgerrors "github.com/courseforge/courseforge-backend/pkg/errors"
	"github.com/courseforge/courseforge-backend/pkg/logger"
	"github.com/courseforge/courseforge-backend/pkg/types"
)

const maxReasonLength = 500

type setStatusRequest struct {
	Status          string  `json:"status" validate:"required,oneof=approved rejected"`
	Reason          *string `json:"reason"`
	ExpectedVersion *int    `json:"expectedVersion" validate:"omitempty,min=1"`
}

type setExpirationRequest struct {
	ExpirationDate types.NullableTime `json:"expirationDate"`
}

type applyVoucherRequest struct {
	Code string `json:"code" validate:"required,max=64"`
}

// AdminList returns enrollments filtered by status for the review queue.
func AdminList(svc internalenrollments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "enrollments service unavailable"))
			return
		}

		page, err := validators.ParsePageParams(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		params := internalenrollments.ListParams{Limit: page.Limit, Cursor: page.Cursor}
		if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
			status, err := enums.ParseEnrollmentStatus(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid status filter"))
				return
			}
			params.Status = &status
		}

		result, err := svc.ListByStatus(r.Context(), params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// AdminSetStatus approves or rejects an enrollment.
func AdminSetStatus(svc internalenrollments.Service, logg *logger.Logger) http.HandlerFunc {
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

		var payload setStatusRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		status, err := enums.ParseEnrollmentStatus(payload.Status)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid status"))
			return
		}

		enrollment, err := svc.SetStatus(r.Context(), internalenrollments.SetStatusInput{
			EnrollmentID:    enrollmentID,
			Status:          status,
			UpdatedBy:       actor.UserID,
			Reason:          sanitizeReason(payload.Reason),
			ExpectedVersion: payload.ExpectedVersion,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, enrollment)
	}
}

// AdminSetExpiration sets or clears the access term of an enrollment.
func AdminSetExpiration(svc internalenrollments.Service, logg *logger.Logger) http.HandlerFunc {
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

		var payload setExpirationRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if !payload.ExpirationDate.Valid {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "expirationDate is required (null clears it)"))
			return
		}

		enrollment, err := svc.SetExpiration(r.Context(), internalenrollments.SetExpirationInput{
			EnrollmentID:   enrollmentID,
			ExpirationDate: payload.ExpirationDate.Value,
			UpdatedBy:      actor.UserID,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, enrollment)
	}
}

// AdminApplyVoucher redeems a voucher against an existing enrollment.
func AdminApplyVoucher(svc internalenrollments.Service, logg *logger.Logger) http.HandlerFunc {
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

		var payload applyVoucherRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.ApplyVoucher(r.Context(), internalenrollments.ApplyVoucherInput{
			EnrollmentID: enrollmentID,
			Code:         payload.Code,
			AdminID:      actor.UserID,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func parseUUID(raw, field string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid "+field)
	}
	return id, nil
}

func sanitizeReason(reason *string) *string {
	if reason == nil {
		return nil
	}
	v := validators.SanitizeString(*reason, maxReasonLength)
	return &v
}
