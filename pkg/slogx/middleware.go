package slogx

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/redletterlabs/vouchsafe/pkg/idx"
)

// CorrelationHeader carries a request correlation id across service hops.
// Inbound values are honored so a request can be traced from the gateway
// through to the proxied service.
const CorrelationHeader = "X-Correlation-ID"

// HTTPMiddleware logs requests and attaches a contextual logger into request context.
func HTTPMiddleware(base *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}

			corrID := r.Header.Get(CorrelationHeader)
			if corrID == "" {
				corrID = idx.New().String()
			}
			w.Header().Set(CorrelationHeader, corrID)

			// Create contextual logger
			logger := base.With(
				"correlation_id", corrID,
				"method", r.Method,
				"path", r.URL.Path,
				"remote_addr", r.RemoteAddr,
			)

			// Attach to context for downstream use
			ctx := WithContext(r.Context(), logger)
			r = r.WithContext(ctx)
			r.Header.Set(CorrelationHeader, corrID)

			next.ServeHTTP(rw, r)

			duration := time.Since(start).Milliseconds()
			logger.Info("http_request",
				"status", rw.status,
				"duration_ms", duration,
				"user_agent", r.UserAgent(),
			)
		})
	}
}

type responseWriter struct {
	http.ResponseWriter

	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}
