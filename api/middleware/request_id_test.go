package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/courseforge/courseforge-backend/pkg/logger"
)

func serveWithRequestID(t *testing.T, headers map[string]string) (string, string) {
	t.Helper()
	var seen string
	handler := RequestID(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))
	req := httptest.NewRequest(http.MethodGet, "/api/v1/enrollments", nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	return seen, resp.Header().Get(RequestIDHeader)
}

func TestRequestIDKeepsWellFormedInboundID(t *testing.T) {
	seen, echoed := serveWithRequestID(t, map[string]string{RequestIDHeader: "checkout-7f3a91"})
	if seen != "checkout-7f3a91" || echoed != seen {
		t.Fatalf("expected inbound id reused, got ctx=%q header=%q", seen, echoed)
	}
}

func TestRequestIDReplacesMalformedInboundID(t *testing.T) {
	seen, echoed := serveWithRequestID(t, map[string]string{RequestIDHeader: "bad id\n" + strings.Repeat("x", 80)})
	if _, err := uuid.Parse(seen); err != nil {
		t.Fatalf("expected generated uuid, got %q", seen)
	}
	if echoed != seen {
		t.Fatalf("response header %q does not match context %q", echoed, seen)
	}
}

func TestRequestIDFallsBackToCloudTrace(t *testing.T) {
	seen, _ := serveWithRequestID(t, map[string]string{cloudTraceHeader: "105445aa7843bc8bf206b12000100000/1;o=1"})
	if seen != "105445aa7843bc8bf206b12000100000" {
		t.Fatalf("expected trace id, got %q", seen)
	}
}

func TestRecovererLogsPanicWithRequestID(t *testing.T) {
	logs := &bytes.Buffer{}
	logg := logger.New(logger.Options{ServiceName: "api-test", Output: logs})
	handler := RequestID(logg)(Recoverer(logg)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("voucher table missing")
	})))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/vouchers/validate", nil)
	req.Header.Set(RequestIDHeader, "req-panic-0001")
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", resp.Code)
	}
	if strings.Contains(resp.Body.String(), "voucher table missing") {
		t.Fatalf("panic value leaked to client: %s", resp.Body.String())
	}
	out := logs.String()
	for _, want := range []string{`"request.panic"`, `"request_id":"req-panic-0001"`, `"path":"/api/v1/vouchers/validate"`, `"panic_stack"`} {
		if !strings.Contains(out, want) {
			t.Fatalf("log output missing %s: %s", want, out)
		}
	}
}

func TestRecovererReraisesAbortHandler(t *testing.T) {
	handler := Recoverer(nil)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic(http.ErrAbortHandler)
	}))
	defer func() {
		if rec := recover(); rec != http.ErrAbortHandler {
			t.Fatalf("expected ErrAbortHandler to propagate, got %v", rec)
		}
	}()
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
}
