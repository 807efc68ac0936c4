package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"creditpool/observability"
)

const (
	metricsModule   = "lending"
	requestIDHeader = "X-Request-ID"
)

// instrument records per-route request metrics, tags the active span with the
// matched route and assigns a request id when the client did not send one.
func instrument(logger *slog.Logger) func(http.Handler) http.Handler {
	metrics := observability.ModuleMetrics()
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			requestID := r.Header.Get(requestIDHeader)
			if requestID == "" {
				requestID = uuid.NewString()
			}
			w.Header().Set(requestIDHeader, requestID)

			recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(recorder, r)

			route := r.URL.Path
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				if pattern := rctx.RoutePattern(); pattern != "" {
					route = pattern
				}
			}
			span := trace.SpanFromContext(r.Context())
			span.SetAttributes(
				attribute.String("http.route", route),
				attribute.String("request.id", requestID),
			)
			duration := time.Since(start)
			metrics.Observe(metricsModule, r.Method+" "+route, recorder.status, duration)
			logger.Debug("lending request",
				"method", r.Method,
				"route", route,
				"status", recorder.status,
				"duration_ms", duration.Milliseconds(),
				"request_id", requestID,
			)
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}
