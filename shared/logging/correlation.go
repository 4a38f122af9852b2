package logging

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
)

type contextKey string

const (
	RequestIDKey    contextKey = "request_id"
	RequestIDHeader            = "X-Request-ID"
)

// ContextWithRequestID stores a request id in ctx
func ContextWithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// RequestIDFromContext returns the request id stored in ctx, if any
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(RequestIDKey).(string); ok {
		return v
	}
	return ""
}

// NewRequestID generates a new request id
func NewRequestID() string {
	return uuid.New().String()
}

// RequestMiddleware tags every request with a request id and logs its outcome
func RequestMiddleware(logger *Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get(RequestIDHeader)
			if requestID == "" {
				requestID = NewRequestID()
			}
			w.Header().Set(RequestIDHeader, requestID)

			ctx := ContextWithRequestID(r.Context(), requestID)
			start := time.Now()
			next.ServeHTTP(w, r.WithContext(ctx))

			logger.WithContext(ctx).Performance("http_request", time.Since(start), map[string]interface{}{
				"method": r.Method,
				"path":   r.URL.Path,
			})
		})
	}
}
