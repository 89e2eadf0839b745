package middleware

import (
	"net/http"
	"time"

	"github.com/zaavg/storefront/pkg/logger"
)

// Logging emits one line per request once the handler returns. Server errors
// log at error level; everything else at info.
func Logging(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if logg == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := logg.WithFields(r.Context(), map[string]any{"method": r.Method, "path": r.URL.Path})
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			began := time.Now()

			next.ServeHTTP(sw, r.WithContext(ctx))

			ctx = logg.WithFields(ctx, map[string]any{
				"status":      sw.status,
				"bytes":       sw.bytes,
				"duration_ms": time.Since(began).Milliseconds(),
			})
			if sw.status >= http.StatusInternalServerError {
				logg.Error(ctx, "request.complete", nil)
				return
			}
			logg.Info(ctx, "request.complete")
		})
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (s *statusWriter) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusWriter) Write(b []byte) (int, error) {
	n, err := s.ResponseWriter.Write(b)
	s.bytes += n
	return n, err
}

// Flush keeps SSE streams working behind the wrapper.
func (s *statusWriter) Flush() {
	if f, ok := s.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
