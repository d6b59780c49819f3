package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/stagepasshq/stagepass-backend/api/responses"
	pkgerrors "github.com/stagepasshq/stagepass-backend/pkg/errors"
	"github.com/stagepasshq/stagepass-backend/pkg/logger"
)

const (
	rateLimitPerMinute = 120
	rateLimitWindow    = time.Minute
)

type rateLimiter interface {
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

// RateLimit caps authenticated traffic per user with a fixed window counter.
// Limiter outages fail open; throttling is not worth an outage of its own.
func RateLimit(limiter rateLimiter, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limiter == nil {
				next.ServeHTTP(w, r)
				return
			}

			scope := "api:" + UserIDFromContext(r.Context())
			allowed, _, err := limiter.FixedWindowAllow(r.Context(), scope, rateLimitPerMinute, rateLimitWindow)
			if err != nil {
				if logg != nil {
					logg.Warn(logg.WithField(r.Context(), "error", err.Error()), "rate limiter unavailable")
				}
				next.ServeHTTP(w, r)
				return
			}
			if !allowed {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeRateLimit, "too many requests"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
