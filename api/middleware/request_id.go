package middleware

import (
	"context"
	"net/http"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/courseforge/courseforge-backend/pkg/logger"
)

const (
	RequestIDHeader = "X-Request-Id"
	// Cloud Run load balancers stamp "TRACE_ID/SPAN_ID;o=1".
	cloudTraceHeader = "X-Cloud-Trace-Context"
)

// Client-supplied ids end up in logs and response headers, so only short
// token-like values are trusted.
var requestIDPattern = regexp.MustCompile(`^[A-Za-z0-9._-]{8,64}$`)

// RequestID reuses a well-formed inbound X-Request-Id, falls back to the
// Cloud Run trace id, and otherwise mints a uuid. The id is echoed on the
// response and attached to the request logger.
func RequestID(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := inboundRequestID(r)
			w.Header().Set(RequestIDHeader, reqID)

			ctx := context.WithValue(r.Context(), ctxRequestID, reqID)
			if logg != nil {
				ctx = logg.WithRequestID(ctx, reqID)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func inboundRequestID(r *http.Request) string {
	if id := strings.TrimSpace(r.Header.Get(RequestIDHeader)); requestIDPattern.MatchString(id) {
		return id
	}
	trace, _, _ := strings.Cut(r.Header.Get(cloudTraceHeader), "/")
	if requestIDPattern.MatchString(trace) {
		return trace
	}
	return uuid.NewString()
}
