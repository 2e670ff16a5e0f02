package server

import (
	"crypto/subtle"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// statusWriter wraps http.ResponseWriter to capture status and body size
type statusWriter struct {
	http.ResponseWriter
	status int
	bytes  int64
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(p []byte) (int, error) {
	n, err := w.ResponseWriter.Write(p)
	w.bytes += int64(n)
	return n, err
}

// LoggingMiddleware logs every API request, tagging it with the chart id
// when the route carries one.
func LoggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(sw, r)

			fields := []zap.Field{
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("remote_addr", r.RemoteAddr),
				zap.Int("status", sw.status),
				zap.Int64("bytes", sw.bytes),
				zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			}
			if chartID := r.PathValue("id"); chartID != "" {
				fields = append(fields, zap.String("chart_id", chartID))
			}
			logger.Debug("api request", fields...)
		})
	}
}

// BasicAuthMiddleware guards the admin operations with HTTP Basic Auth
func BasicAuthMiddleware(username, password string, logger *zap.Logger) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			user, pass, ok := r.BasicAuth()
			if !ok {
				w.Header().Set("WWW-Authenticate", `Basic realm="chartfetch admin"`)
				http.Error(w, "Admin credentials required", http.StatusUnauthorized)
				return
			}

			userOK := subtle.ConstantTimeCompare([]byte(user), []byte(username)) == 1
			passOK := subtle.ConstantTimeCompare([]byte(pass), []byte(password)) == 1

			if !userOK || !passOK {
				w.Header().Set("WWW-Authenticate", `Basic realm="chartfetch admin"`)
				http.Error(w, "Invalid admin credentials", http.StatusUnauthorized)
				logger.Warn("rejected admin credentials",
					zap.String("username", user),
					zap.String("remote_addr", r.RemoteAddr))
				return
			}

			next(w, r)
		}
	}
}
