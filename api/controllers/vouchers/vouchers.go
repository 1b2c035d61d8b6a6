package vouchers

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/courseforge/courseforge-backend/api/middleware"
	"github.com/courseforge/courseforge-backend/api/responses"
	"github.com/courseforge/courseforge-backend/api/validators"
	internalvouchers "github.com/courseforge/courseforge-backend/internal/vouchers"
	pkgerrors "github.com/courseforge/courseforge-backend/pkg/errors"
	"github.com/courseforge/courseforge-backend/pkg/logger"
)

type validateRequest struct {
	Code     string `json:"code" validate:"required,max=64"`
	CourseID string `json:"courseId" validate:"required,uuid"`
}

type createRequest struct {
	Code                string          `json:"code" validate:"required,max=64"`
	DiscountPercentage  decimal.Decimal `json:"discountPercentage"`
	ApplicableCourseIDs []string        `json:"applicableCourseIds" validate:"required,min=1,dive,uuid"`
	UsageLimit          int             `json:"usageLimit" validate:"required,min=1"`
	ValidFrom           time.Time       `json:"validFrom" validate:"required"`
	ValidUntil          time.Time       `json:"validUntil" validate:"required"`
	IsActive            *bool           `json:"isActive"`
}

type updateRequest struct {
	DiscountPercentage  *decimal.Decimal `json:"discountPercentage"`
	ApplicableCourseIDs []string         `json:"applicableCourseIds" validate:"omitempty,min=1,dive,uuid"`
	UsageLimit          *int             `json:"usageLimit" validate:"omitempty,min=1"`
	ValidFrom           *time.Time       `json:"validFrom"`
	ValidUntil          *time.Time       `json:"validUntil"`
	IsActive            *bool            `json:"isActive"`
}

// Validate previews a voucher for the authenticated student without consuming it.
func Validate(svc internalvouchers.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "vouchers service unavailable"))
			return
		}

		actor, err := middleware.ActorFromContext(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload validateRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		courseID, err := uuid.Parse(payload.CourseID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid courseId"))
			return
		}

		result, err := svc.Validate(r.Context(), internalvouchers.ValidateRequest{
			Code:      payload.Code,
			CourseID:  courseID,
			StudentID: actor.UserID,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// AdminCreate registers a new voucher.
func AdminCreate(svc internalvouchers.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "vouchers service unavailable"))
			return
		}

		actor, err := middleware.ActorFromContext(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload createRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		courseIDs, err := parseUUIDs(payload.ApplicableCourseIDs)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		voucher, err := svc.Create(r.Context(), actor.UserID, internalvouchers.CreateInput{
			Code:                payload.Code,
			DiscountPercentage:  payload.DiscountPercentage,
			ApplicableCourseIDs: courseIDs,
			UsageLimit:          payload.UsageLimit,
			ValidFrom:           payload.ValidFrom,
			ValidUntil:          payload.ValidUntil,
			IsActive:            payload.IsActive,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, voucher)
	}
}

// AdminUpdate changes the mutable terms of a voucher.
func AdminUpdate(svc internalvouchers.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "vouchers service unavailable"))
			return
		}

		voucherID, err := validators.ParseUUIDParam(r, "voucherId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload updateRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := internalvouchers.UpdateInput{
			DiscountPercentage: payload.DiscountPercentage,
			UsageLimit:         payload.UsageLimit,
			ValidFrom:          payload.ValidFrom,
			ValidUntil:         payload.ValidUntil,
			IsActive:           payload.IsActive,
		}
		if payload.ApplicableCourseIDs != nil {
			courseIDs, err := parseUUIDs(payload.ApplicableCourseIDs)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			input.ApplicableCourseIDs = courseIDs
		}

		voucher, err := svc.Update(r.Context(), voucherID, input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, voucher)
	}
}

// AdminDeactivate stops a voucher from being redeemed.
func AdminDeactivate(svc internalvouchers.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "vouchers service unavailable"))
			return
		}

		voucherID, err := validators.ParseUUIDParam(r, "voucherId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		voucher, err := svc.Deactivate(r.Context(), voucherID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, voucher)
	}
}

// AdminDelete removes an unused voucher or deactivates a used one.
func AdminDelete(svc internalvouchers.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "vouchers service unavailable"))
			return
		}

		voucherID, err := validators.ParseUUIDParam(r, "voucherId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		deleted, err := svc.Delete(r.Context(), voucherID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]bool{"deleted": deleted, "deactivated": !deleted})
	}
}

// AdminDetail returns one voucher.
func AdminDetail(svc internalvouchers.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "vouchers service unavailable"))
			return
		}

		voucherID, err := validators.ParseUUIDParam(r, "voucherId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		voucher, err := svc.Get(r.Context(), voucherID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, voucher)
	}
}

// AdminList pages through vouchers, optionally only active ones.
func AdminList(svc internalvouchers.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "vouchers service unavailable"))
			return
		}

		page, err := validators.ParsePageParams(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		params := internalvouchers.ListParams{Limit: page.Limit, Cursor: page.Cursor}
		if raw := strings.TrimSpace(r.URL.Query().Get("activeOnly")); raw != "" {
			params.ActiveOnly = strings.EqualFold(raw, "true") || raw == "1"
		}

		result, err := svc.List(r.Context(), params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// AdminUsages pages through a voucher's redemptions, newest first.
func AdminUsages(svc internalvouchers.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "vouchers service unavailable"))
			return
		}

		voucherID, err := validators.ParseUUIDParam(r, "voucherId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		page, err := validators.ParsePageParams(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.ListUsages(r.Context(), voucherID, page)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func parseUUIDs(values []string) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, len(values))
	for _, raw := range values {
		id, err := uuid.Parse(strings.TrimSpace(raw))
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid course id").
				WithDetails(map[string]any{"value": raw})
		}
		ids = append(ids, id)
	}
	return ids, nil
}
