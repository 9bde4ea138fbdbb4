package middleware

import (
	"net/http"

	logpkg "github.com/benvon/dayplan/internal/logger"
	"github.com/benvon/dayplan/internal/request"
	"go.uber.org/zap"
)

// Audit logs security-relevant responses and successful mutations
func Audit(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(wrapped, r)

			statusCode := wrapped.statusCode
			ip := logpkg.SanitizeString(request.ClientIP(r), logpkg.MaxGeneralStringLength)
			path := logpkg.SanitizePath(r.URL.Path)

			switch {
			case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
				logger.Warn("security_event",
					zap.Int("status_code", statusCode),
					zap.String("method", r.Method),
					zap.String("path", path),
					zap.String("ip", ip),
				)
			case statusCode == http.StatusTooManyRequests:
				logger.Warn("rate_limit_violation",
					zap.String("method", r.Method),
					zap.String("path", path),
					zap.String("ip", ip),
				)
			case r.Method != http.MethodGet && statusCode < 300:
				logger.Info("mutation",
					zap.String("method", r.Method),
					zap.String("path", path),
					zap.Int("status_code", statusCode),
					zap.String("ip", ip),
				)
			}
		})
	}
}
