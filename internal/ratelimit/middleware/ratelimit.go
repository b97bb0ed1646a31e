// Package middleware throttles verification attempts per authenticated user.
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"verigate/internal/ratelimit/models"
	dErrors "verigate/pkg/domain-errors"
	"verigate/pkg/platform/httputil"
	"verigate/pkg/requestcontext"
)

type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (*models.Result, error)
}

type Middleware struct {
	limiter  Limiter
	limit    int
	window   time.Duration
	logger   *slog.Logger
	disabled bool
}

type Option func(*Middleware)

// WithDisabled turns the throttle into a pass-through.
func WithDisabled(disabled bool) Option {
	return func(m *Middleware) {
		m.disabled = disabled
	}
}

// New builds a throttle admitting limit requests per window. A non-positive
// limit or window disables it.
func New(limiter Limiter, limit int, window time.Duration, logger *slog.Logger, opts ...Option) *Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Middleware{
		limiter: limiter,
		limit:   limit,
		window:  window,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	if limiter == nil || limit <= 0 || window <= 0 {
		m.disabled = true
	}
	if m.disabled {
		logger.Info("verification rate limiting disabled")
	}
	return m
}

// PerUser limits requests by the user id placed in the context by the auth
// middleware. Requests without a user, and any store failure, pass through.
func (m *Middleware) PerUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		userID := requestcontext.UserID(ctx)
		if m.disabled || userID.IsZero() {
			next.ServeHTTP(w, r)
			return
		}

		result, err := m.limiter.Allow(ctx, models.UserKey(userID), m.limit, m.window)
		if err != nil {
			m.logger.ErrorContext(ctx, "rate limit check failed", "error", err, "user_id", userID)
			next.ServeHTTP(w, r)
			return
		}

		addRateLimitHeaders(w, result)
		if !result.Allowed {
			m.logger.InfoContext(ctx, "verification rate limited", "user_id", userID, "reset_at", result.ResetAt)
			w.Header().Set("Retry-After", strconv.Itoa(result.RetryAfter(requestcontext.Now(ctx))))
			httputil.WriteError(w, dErrors.New(dErrors.CodeRateLimited, "too many verification attempts, try again later"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func addRateLimitHeaders(w http.ResponseWriter, result *models.Result) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))
}
