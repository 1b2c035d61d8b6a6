package square

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"net/http"
	"testing"

	sq "github.com/square/square-go-sdk"
	sqcore "github.com/square/square-go-sdk/core"

	"github.com/courseforge/courseforge-backend/pkg/enums"
	pkgerrors "github.com/courseforge/courseforge-backend/pkg/errors"
)

func TestVerifySignature(t *testing.T) {
	body := []byte(`{"type":"payment.updated"}`)
	url := "https://api.courseforge.test/webhooks/square"
	mac := hmac.New(sha256.New, []byte("secret"))
	mac.Write([]byte(url))
	mac.Write(body)
	signature := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	c := &Client{webhookSecret: "secret", notificationURL: url}
	if !c.VerifyWebhookSignature(body, signature) {
		t.Fatalf("expected signature to verify")
	}
	if c.VerifyWebhookSignature([]byte(`{"type":"tampered"}`), signature) {
		t.Fatalf("tampered body should not verify")
	}
	if c.VerifyWebhookSignature(body, "") {
		t.Fatalf("missing header should not verify")
	}
	var nilClient *Client
	if nilClient.VerifyWebhookSignature(body, signature) {
		t.Fatalf("nil client should not verify")
	}
}

func TestMapPaymentStatus(t *testing.T) {
	cases := map[string]enums.PaymentStatus{
		"COMPLETED": enums.PaymentStatusVerified,
		"completed": enums.PaymentStatusVerified,
		"FAILED":    enums.PaymentStatusRejected,
		"CANCELED":  enums.PaymentStatusRejected,
		"APPROVED":  enums.PaymentStatusPending,
		"PENDING":   enums.PaymentStatusPending,
		"":          enums.PaymentStatusPending,
	}
	for raw, want := range cases {
		if got := MapPaymentStatus(raw); got != want {
			t.Fatalf("status %q: expected %s got %s", raw, want, got)
		}
	}
}

func TestCaptureRequiresPaymentID(t *testing.T) {
	c := &Client{}
	_, err := c.Capture(context.Background(), " ")
	if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	_, err = c.GetOrderStatus(context.Background(), "")
	if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestNormalizeEnv(t *testing.T) {
	if env, err := normalizeEnv(" Production "); err != nil || env != productionEnv {
		t.Fatalf("unexpected env %q err %v", env, err)
	}
	if env, err := normalizeEnv(""); err != nil || env != sandboxEnv {
		t.Fatalf("unexpected default env %q err %v", env, err)
	}
	if _, err := normalizeEnv("staging"); err == nil {
		t.Fatalf("expected invalid env error")
	}
}

func TestRedact(t *testing.T) {
	c := &Client{}
	out := c.redact("payment_token", "abc123")
	if out != "[REDACTED]" {
		t.Fatalf("expected redacted value, got %v", out)
	}
	// Non-sensitive keys should be preserved.
	if v := c.redact("status", "ok"); v != "ok" {
		t.Fatalf("unexpected redaction for safe key")
	}
}

func TestDomainCodeForStatus(t *testing.T) {
	tests := []struct {
		status int
		code   pkgerrors.Code
	}{
		{http.StatusUnauthorized, pkgerrors.CodeUnauthorized},
		{http.StatusForbidden, pkgerrors.CodeForbidden},
		{http.StatusNotFound, pkgerrors.CodeNotFound},
		{http.StatusConflict, pkgerrors.CodeConflict},
		{http.StatusTooManyRequests, pkgerrors.CodeRateLimit},
		{http.StatusBadRequest, pkgerrors.CodeValidation},
		{http.StatusUnprocessableEntity, pkgerrors.CodeStateConflict},
		{http.StatusInternalServerError, pkgerrors.CodeDependency},
	}
	for _, tt := range tests {
		if got := domainCodeForStatus(tt.status); got != tt.code {
			t.Fatalf("status %d expected %s got %s", tt.status, tt.code, got)
		}
	}
}

func TestMapSquareError(t *testing.T) {
	c := &Client{}
	table := []struct {
		name     string
		status   int
		payload  string
		wantCode pkgerrors.Code
	}{
		{
			name:     "authentication error",
			status:   http.StatusUnauthorized,
			payload:  `{"errors":[{"category":"AUTHENTICATION_ERROR","code":"UNAUTHORIZED"}]}`,
			wantCode: pkgerrors.CodeUnauthorized,
		},
		{
			name:     "idempotency key reused",
			status:   http.StatusConflict,
			payload:  `{"errors":[{"category":"API_ERROR","code":"IDEMPOTENCY_KEY_REUSED"}]}`,
			wantCode: pkgerrors.CodeIdempotency,
		},
	}
	for _, tt := range table {
		err := sqcore.NewAPIError(tt.status, errors.New(tt.payload))
		mapped := c.mapSquareError(err, "operation")
		if mapped == nil {
			t.Fatalf("%s: expected error", tt.name)
		}
		typed := pkgerrors.As(mapped)
		if typed == nil {
			t.Fatalf("%s: result is not pkgerror", tt.name)
		}
		if typed.Code() != tt.wantCode {
			t.Fatalf("%s: expected code %s, got %s", tt.name, tt.wantCode, typed.Code())
		}
	}
}

func TestExtractSquareErrors(t *testing.T) {
	c := &Client{}
	payload := `{"errors":[{"category":"API_ERROR","code":"BAD_REQUEST","detail":"oops"}]}`
	apiErr := sqcore.NewAPIError(http.StatusBadRequest, errors.New(payload))
	got := c.extractSquareErrors(apiErr)
	if len(got) != 1 {
		t.Fatalf("expected 1 error, got %d", len(got))
	}
	if got[0].GetCode() != sq.ErrorCodeBadRequest {
		t.Fatalf("unexpected error code %s", got[0].GetCode())
	}
}
