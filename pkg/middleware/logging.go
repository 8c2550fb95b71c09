package middleware

import (
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Response headers the ingest handlers set to describe their outcome; the
// request logger folds them into the access line so one entry ties a request
// to the content it ingested.
const (
	ContentHashHeader = "X-Content-Hash"
	CacheHeader       = "X-Cache"
)

// RequestLogger returns middleware that logs each request after it
// completes, including the ingested content hash and cache disposition when
// the handler reported them. Pass nil logger to disable logging.
func RequestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if logger == nil {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(wrapped, r)

			fields := []zap.Field{
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", wrapped.statusCode),
				zap.Duration("duration", time.Since(start)),
				zap.Int64("bytes", wrapped.bytes),
				zap.String("remote_addr", r.RemoteAddr),
			}
			if hash := wrapped.Header().Get(ContentHashHeader); hash != "" {
				fields = append(fields, zap.String("content_hash", hash))
			}
			if cache := wrapped.Header().Get(CacheHeader); cache != "" {
				fields = append(fields, zap.String("cache", cache))
			}

			logger.Debug("HTTP request", fields...)
		})
	}
}

// responseWriter captures the status code and body size written by the
// wrapped handler.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	bytes      int64
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.bytes += int64(n)
	return n, err
}
