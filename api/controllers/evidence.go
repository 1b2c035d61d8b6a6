package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/courseforge/courseforge-backend/api/middleware"
	"github.com/courseforge/courseforge-backend/api/responses"
	"github.com/courseforge/courseforge-backend/api/validators"
	"github.com/courseforge/courseforge-backend/internal/evidence"
	pkgerrors "github.com/courseforge/courseforge-backend/pkg/errors"
	"github.com/courseforge/courseforge-backend/pkg/logger"
)

type evidencePresigner interface {
	Presign(ctx context.Context, studentID uuid.UUID, input evidence.PresignInput) (*evidence.PresignOutput, error)
}

type evidencePresignRequest struct {
	FileName  string `json:"fileName" validate:"required,max=255"`
	MimeType  string `json:"mimeType" validate:"required"`
	SizeBytes int64  `json:"sizeBytes" validate:"required,min=1"`
}

// EvidencePresign returns a signed PUT URL and the receipt reference to submit with a payment.
func EvidencePresign(svc evidencePresigner, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "evidence storage unavailable"))
			return
		}

		actor, err := middleware.ActorFromContext(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload evidencePresignRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		out, err := svc.Presign(r.Context(), actor.UserID, evidence.PresignInput{
			FileName:  payload.FileName,
			MimeType:  payload.MimeType,
			SizeBytes: payload.SizeBytes,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, out)
	}
}
