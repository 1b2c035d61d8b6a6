package squarewebhook

import (
	"context"
	"strings"

	"github.com/courseforge/courseforge-backend/pkg/db/models"
	pkgerrors "github.com/courseforge/courseforge-backend/pkg/errors"
	"github.com/courseforge/courseforge-backend/pkg/logger"
)

type paymentSyncer interface {
	SyncGatewayStatus(ctx context.Context, gatewayPaymentID string) (*models.Payment, error)
}

type ServiceParams struct {
	Payments paymentSyncer
	Logger   *logger.Logger
}

// Service applies Square payment notifications to the payment ledger.
type Service struct {
	payments paymentSyncer
	logg     *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Payments == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payments service required")
	}
	return &Service{payments: params.Payments, logg: params.Logger}, nil
}

type SquareWebhookEvent struct {
	MerchantID string            `json:"merchant_id"`
	EventID    string            `json:"event_id"`
	Type       string            `json:"type"`
	CreatedAt  string            `json:"created_at"`
	Data       SquareWebhookData `json:"data"`
}

type SquareWebhookData struct {
	Type   string              `json:"type"`
	ID     string              `json:"id"`
	Object SquareWebhookObject `json:"object"`
}

type SquareWebhookObject struct {
	Payment *SquarePayment `json:"payment"`
}

// SquarePayment is the subset of the Square payment object the ledger reads.
type SquarePayment struct {
	ID      string `json:"id"`
	Status  string `json:"status"`
	OrderID string `json:"order_id"`
}

// HandleEvent re-syncs the payment a notification refers to. Square status is
// always re-read through the API rather than trusted from the body.
func (s *Service) HandleEvent(ctx context.Context, event *SquareWebhookEvent) error {
	if event == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "square event required")
	}

	switch strings.ToLower(event.Type) {
	case "payment.created", "payment.updated":
		paymentID := event.Data.ID
		if event.Data.Object.Payment != nil && event.Data.Object.Payment.ID != "" {
			paymentID = event.Data.Object.Payment.ID
		}
		if strings.TrimSpace(paymentID) == "" {
			return pkgerrors.New(pkgerrors.CodeValidation, "payment id missing")
		}
		_, err := s.payments.SyncGatewayStatus(ctx, paymentID)
		if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
			// capture has not been recorded yet; the capture call applies the status itself
			if s.logg != nil {
				s.logg.Info(s.logg.WithField(ctx, "square_payment_id", paymentID), "square payment not tracked; skipping")
			}
			return nil
		}
		return err
	default:
		return nil
	}
}
