package logger

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RequestIDHeader carries the request ID in both directions.
const RequestIDHeader = "X-Request-ID"

type contextKey struct{}

// FromContext returns the request-scoped logger stored by Middleware, or the
// global logger.
func FromContext(ctx context.Context) *zap.SugaredLogger {
	if l, ok := ctx.Value(contextKey{}).(*zap.SugaredLogger); ok {
		return l
	}
	return L()
}

// RequestID returns the ID assigned by Middleware, or "".
func RequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok {
		return id
	}
	return ""
}

type requestIDKey struct{}

// statusRecorder captures the status and size of a response. Unwrap keeps
// http.ResponseController working through it.
type statusRecorder struct {
	http.ResponseWriter
	status int
	size   int64
}

func (s *statusRecorder) WriteHeader(code int) {
	if s.status == 0 {
		s.status = code
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	if s.status == 0 {
		s.status = http.StatusOK
	}
	n, err := s.ResponseWriter.Write(b)
	s.size += int64(n)
	return n, err
}

func (s *statusRecorder) Unwrap() http.ResponseWriter {
	return s.ResponseWriter
}

// Middleware tags each request with an ID (kept from the X-Request-ID
// header when the client sends one) and logs its outcome.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		id := r.Header.Get(RequestIDHeader)
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)

		reqLogger := With("request_id", id)
		ctx := context.WithValue(r.Context(), contextKey{}, reqLogger)
		ctx = context.WithValue(ctx, requestIDKey{}, id)

		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r.WithContext(ctx))

		if rec.status == 0 {
			rec.status = http.StatusOK
		}

		fields := []any{
			"method", r.Method,
			"path", r.URL.Path,
			"command", r.URL.Query().Get("q"),
			"status", rec.status,
			"bytes", rec.size,
			"duration", time.Since(start),
			"remote_addr", r.RemoteAddr,
		}
		switch {
		case rec.status >= http.StatusInternalServerError:
			reqLogger.Errorw("request failed", fields...)
		case rec.status >= http.StatusBadRequest:
			reqLogger.Infow("request rejected", fields...)
		default:
			reqLogger.Debugw("request completed", fields...)
		}
	})
}
