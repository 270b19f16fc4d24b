package middleware

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/scmguard/scmguard/pkg/contextkeys"
	"github.com/scmguard/scmguard/pkg/observability"
)

// RequestID assigns each request a UUID (honoring an inbound
// X-Request-ID) and stores a request-scoped logger in the context. It
// also logs one line per request on completion.
func RequestID(logger *observability.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get("X-Request-ID")
			if requestID == "" {
				requestID = uuid.NewString()
			}
			w.Header().Set("X-Request-ID", requestID)

			reqLogger := logger.WithFields(map[string]interface{}{
				"request_id": requestID,
				"method":     r.Method,
				"path":       r.URL.Path,
			})

			ctx := contextkeys.WithRequestID(r.Context(), requestID)
			ctx = observability.WithRequestID(ctx, requestID)
			ctx = observability.WithLogger(ctx, reqLogger)

			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r.WithContext(ctx))

			reqLogger.WithFields(map[string]interface{}{
				"status":      rec.status,
				"duration_ms": time.Since(start).Milliseconds(),
			}).Info("request completed")
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
