package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/narralabs/narra-core/internal/synth"
)

type ctxKey int

const requestIDKey ctxKey = 0

// RequestIDFrom returns the request id the middleware assigned, or an
// empty string outside a request scope.
func RequestIDFrom(ctx context.Context) string {
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	wrote  bool
}

func (s *statusRecorder) WriteHeader(code int) {
	if !s.wrote {
		s.status = code
		s.wrote = true
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	s.wrote = true
	return s.ResponseWriter.Write(b)
}

type httpMetrics struct {
	requests metric.Int64Counter
	duration metric.Float64Histogram
}

func newHTTPMetrics() (*httpMetrics, error) {
	meter := otel.Meter("narra.api")
	m := &httpMetrics{}
	var err error
	if m.requests, err = meter.Int64Counter("narra.http.requests",
		metric.WithDescription("HTTP requests by route and status")); err != nil {
		return nil, err
	}
	if m.duration, err = meter.Float64Histogram("narra.http.duration_seconds",
		metric.WithDescription("HTTP request latency")); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *httpMetrics) record(ctx context.Context, r *http.Request, status int, elapsed time.Duration) {
	route := r.Pattern
	if route == "" {
		route = "unmatched"
	}
	attrs := metric.WithAttributes(
		attribute.String("method", r.Method),
		attribute.String("route", route),
		attribute.Int("status", status),
	)
	m.requests.Add(ctx, 1, attrs)
	m.duration.Record(ctx, elapsed.Seconds(), attrs)
}

// Middleware assigns a request id (honoring an inbound X-Request-ID),
// logs and meters each request, and converts panics into JSON 500s.
func Middleware(next http.Handler, log *slog.Logger) http.Handler {
	mm, err := newHTTPMetrics()
	if err != nil {
		log.Warn("http metrics disabled", slog.String("error", err.Error()))
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", requestID)
		r = r.WithContext(context.WithValue(r.Context(), requestIDKey, requestID))

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		defer func() {
			if v := recover(); v != nil {
				log.Error("handler panic",
					slog.Any("panic", v),
					slog.String("path", r.URL.Path),
					slog.String("request_id", requestID))
				if !rec.wrote {
					writeJSON(rec, http.StatusInternalServerError, errorResponse{
						RequestID: requestID,
						ErrorCode: string(synth.CodeInternal),
						Message:   "internal error",
						Timestamp: time.Now().UTC(),
					})
				}
				rec.status = http.StatusInternalServerError
			}
			log.Info("http request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", rec.status),
				slog.Duration("duration", time.Since(start)),
				slog.String("request_id", requestID))
			// Scrapes of /metrics would only meter themselves.
			if mm != nil && r.URL.Path != "/metrics" {
				mm.record(r.Context(), r, rec.status, time.Since(start))
			}
		}()
		next.ServeHTTP(rec, r)
	})
}
