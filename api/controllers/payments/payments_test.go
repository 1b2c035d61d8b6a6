package payments

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/courseforge/courseforge-backend/api/middleware"
	"github.com/courseforge/courseforge-backend/internal/evidence"
	internalpayments "github.com/courseforge/courseforge-backend/internal/payments"
	"github.com/courseforge/courseforge-backend/pkg/auth"
	"github.com/courseforge/courseforge-backend/pkg/db/models"
	"github.com/courseforge/courseforge-backend/pkg/enums"
	pkgerrors "github.com/courseforge/courseforge-backend/pkg/errors"
	"github.com/courseforge/courseforge-backend/pkg/logger"
)

type stubService struct {
	internalpayments.Service
	recordFn     func(ctx context.Context, input internalpayments.RecordInput) (*models.Payment, error)
	transitionFn func(ctx context.Context, input internalpayments.TransitionInput) (*models.Payment, error)
	reuploadFn   func(ctx context.Context, paymentID, studentID uuid.UUID, ref string) (*models.Payment, error)
	getFn        func(ctx context.Context, id uuid.UUID, actor auth.Actor) (*models.Payment, error)
	syncFn       func(ctx context.Context, gatewayPaymentID string) (*models.Payment, error)
}

func (s *stubService) RecordPayment(ctx context.Context, input internalpayments.RecordInput) (*models.Payment, error) {
	return s.recordFn(ctx, input)
}

func (s *stubService) TransitionStatus(ctx context.Context, input internalpayments.TransitionInput) (*models.Payment, error) {
	return s.transitionFn(ctx, input)
}

func (s *stubService) ReuploadEvidence(ctx context.Context, paymentID, studentID uuid.UUID, ref string) (*models.Payment, error) {
	return s.reuploadFn(ctx, paymentID, studentID, ref)
}

func (s *stubService) Get(ctx context.Context, id uuid.UUID, actor auth.Actor) (*models.Payment, error) {
	return s.getFn(ctx, id, actor)
}

func (s *stubService) SyncGatewayStatus(ctx context.Context, gatewayPaymentID string) (*models.Payment, error) {
	return s.syncFn(ctx, gatewayPaymentID)
}

type stubSigner struct {
	ref string
}

func (s *stubSigner) ReadURL(ctx context.Context, ref string) (*evidence.ReadOutput, error) {
	s.ref = ref
	if ref == "" {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no receipt on file")
	}
	return &evidence.ReadOutput{ReceiptRef: ref, SignedURL: "https://signed.example/" + ref}, nil
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
}

func withActor(req *http.Request, userID uuid.UUID, role enums.Role) *http.Request {
	ctx := middleware.WithUserID(req.Context(), userID.String())
	ctx = middleware.WithRole(ctx, string(role))
	return req.WithContext(ctx)
}

func withParam(req *http.Request, key, value string) *http.Request {
	routeCtx := chi.NewRouteContext()
	routeCtx.URLParams.Add(key, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))
}

func TestRecordBindsStudentFromToken(t *testing.T) {
	studentID := uuid.New()
	enrollmentID := uuid.New()
	var captured internalpayments.RecordInput
	svc := &stubService{
		recordFn: func(ctx context.Context, input internalpayments.RecordInput) (*models.Payment, error) {
			captured = input
			return &models.Payment{ID: uuid.New(), EnrollmentID: input.EnrollmentID, Amount: input.Amount, Status: enums.PaymentStatusPending}, nil
		},
	}

	body := `{"enrollmentId":"` + enrollmentID.String() + `","amount":100,"paymentMethod":"cash","paymentDate":"2026-03-09","receiptRef":"evidence/a/b/c.png"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments", strings.NewReader(body))
	req = withActor(req, studentID, enums.RoleStudent)
	resp := httptest.NewRecorder()
	Record(svc, testLogger())(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", resp.Code, resp.Body.String())
	}
	if captured.StudentID != studentID || captured.EnrollmentID != enrollmentID {
		t.Fatalf("unexpected input %+v", captured)
	}
	if captured.Method != enums.PaymentMethodCash || !captured.Amount.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("unexpected method/amount %s %s", captured.Method, captured.Amount)
	}

	var envelope struct {
		Data struct {
			Status string `json:"status"`
			Amount string `json:"amount"`
		} `json:"data"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if envelope.Data.Status != "pending" || envelope.Data.Amount != "100" {
		t.Fatalf("unexpected payload %+v", envelope.Data)
	}
}

func TestRecordRejectsUnknownMethod(t *testing.T) {
	body := `{"enrollmentId":"` + uuid.NewString() + `","amount":100,"paymentMethod":"cheque"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments", strings.NewReader(body))
	req = withActor(req, uuid.New(), enums.RoleStudent)
	resp := httptest.NewRecorder()
	Record(&stubService{}, testLogger())(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestReuploadRequiresReference(t *testing.T) {
	paymentID := uuid.New()
	studentID := uuid.New()
	called := false
	svc := &stubService{
		reuploadFn: func(ctx context.Context, pid, sid uuid.UUID, ref string) (*models.Payment, error) {
			called = true
			if pid != paymentID || sid != studentID || ref != "evidence/new.png" {
				t.Fatalf("unexpected call %s %s %s", pid, sid, ref)
			}
			return &models.Payment{ID: pid, Status: enums.PaymentStatusPending}, nil
		},
	}

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{}`))
	req = withActor(req, studentID, enums.RoleStudent)
	req = withParam(req, "paymentId", paymentID.String())
	resp := httptest.NewRecorder()
	Reupload(svc, testLogger())(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"receiptRef":" evidence/new.png "}`))
	req = withActor(req, studentID, enums.RoleStudent)
	req = withParam(req, "paymentId", paymentID.String())
	resp = httptest.NewRecorder()
	Reupload(svc, testLogger())(resp, req)
	if resp.Code != http.StatusOK || !called {
		t.Fatalf("expected 200 with service call, got %d", resp.Code)
	}
}

func TestAdminTransitionUsesAdminAsUpdatedBy(t *testing.T) {
	adminID := uuid.New()
	paymentID := uuid.New()
	var captured internalpayments.TransitionInput
	svc := &stubService{
		transitionFn: func(ctx context.Context, input internalpayments.TransitionInput) (*models.Payment, error) {
			captured = input
			return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "payment cannot move from verified to rejected")
		},
	}

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"status":"rejected","reason":"blurry receipt"}`))
	req = withActor(req, adminID, enums.RoleAdmin)
	req = withParam(req, "paymentId", paymentID.String())
	resp := httptest.NewRecorder()
	AdminTransition(svc, testLogger())(resp, req)

	if resp.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 got %d", resp.Code)
	}
	if captured.UpdatedBy != adminID.String() || captured.PaymentID != paymentID || captured.Status != enums.PaymentStatusRejected {
		t.Fatalf("unexpected input %+v", captured)
	}
}

func TestAdminSyncOnlyForCardPayments(t *testing.T) {
	paymentID := uuid.New()
	txn := "sq_pay_1"
	syncs := 0
	svc := &stubService{
		getFn: func(ctx context.Context, id uuid.UUID, actor auth.Actor) (*models.Payment, error) {
			if id == paymentID {
				return &models.Payment{ID: id, Method: enums.PaymentMethodCard, TransactionID: &txn}, nil
			}
			return &models.Payment{ID: id, Method: enums.PaymentMethodCash}, nil
		},
		syncFn: func(ctx context.Context, gatewayPaymentID string) (*models.Payment, error) {
			syncs++
			if gatewayPaymentID != txn {
				t.Fatalf("unexpected gateway id %s", gatewayPaymentID)
			}
			return &models.Payment{ID: paymentID, Status: enums.PaymentStatusVerified}, nil
		},
	}

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req = withActor(req, uuid.New(), enums.RoleAdmin)
	req = withParam(req, "paymentId", uuid.NewString())
	resp := httptest.NewRecorder()
	AdminSync(svc, testLogger())(resp, req)
	if resp.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for cash payment got %d", resp.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/", nil)
	req = withActor(req, uuid.New(), enums.RoleAdmin)
	req = withParam(req, "paymentId", paymentID.String())
	resp = httptest.NewRecorder()
	AdminSync(svc, testLogger())(resp, req)
	if resp.Code != http.StatusOK || syncs != 1 {
		t.Fatalf("expected one sync, got status %d syncs %d", resp.Code, syncs)
	}
}

func TestAdminReceiptSignsStoredReference(t *testing.T) {
	ref := "evidence/s/1/receipt.pdf"
	svc := &stubService{
		getFn: func(ctx context.Context, id uuid.UUID, actor auth.Actor) (*models.Payment, error) {
			return &models.Payment{ID: id, ReceiptRef: &ref}, nil
		},
	}
	signer := &stubSigner{}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = withActor(req, uuid.New(), enums.RoleAdmin)
	req = withParam(req, "paymentId", uuid.NewString())
	resp := httptest.NewRecorder()
	AdminReceipt(svc, signer, testLogger())(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if signer.ref != ref {
		t.Fatalf("expected signer called with %s got %s", ref, signer.ref)
	}
}
