package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/httprate"

	"github.com/BradenHooton/authguard/internal/ratelimit"
	pkghttp "github.com/BradenHooton/authguard/pkg/http"
)

// Checker is the read side of the limiter consulted before a handler runs
type Checker interface {
	Check(ctx context.Context, identity string, cfg ratelimit.Config) (ratelimit.Result, error)
	CheckDelay(ctx context.Context, identity string) (ratelimit.DelayResult, error)
}

// RateLimitGate turns limiter decisions into HTTP rejections. Store errors
// fail open: the request proceeds and the error is logged.
type RateLimitGate struct {
	limiter  Checker
	ipConfig *pkghttp.IPConfig
	logger   *slog.Logger
}

func NewRateLimitGate(limiter Checker, ipConfig *pkghttp.IPConfig, logger *slog.Logger) *RateLimitGate {
	return &RateLimitGate{limiter: limiter, ipConfig: ipConfig, logger: logger}
}

// Limit rejects with 429 RATE_LIMIT_EXCEEDED once the identity has used up
// the quota of cfg. Every response carries X-RateLimit-* headers.
func (g *RateLimitGate) Limit(cfg ratelimit.Config) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity := pkghttp.ExtractClientIP(r, g.ipConfig)

			result, err := g.limiter.Check(r.Context(), identity, cfg)
			if err != nil {
				g.logger.Error("rate limit check failed",
					slog.String("class", string(cfg.Class)),
					slog.Any("error", err))
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))

			if result.Limited {
				pkghttp.WriteRateLimited(w, pkghttp.CodeRateLimitExceeded,
					"Too many requests. Please try again later.",
					ratelimit.RetryAfterSeconds(result.RetryAfter))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// LoginDelay rejects with 429 LOGIN_DELAY while the identity is cooling down
// after consecutive failed logins.
func (g *RateLimitGate) LoginDelay() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity := pkghttp.ExtractClientIP(r, g.ipConfig)

			result, err := g.limiter.CheckDelay(r.Context(), identity)
			if err != nil {
				g.logger.Error("login delay check failed", slog.Any("error", err))
				next.ServeHTTP(w, r)
				return
			}

			if result.Delayed {
				seconds := ratelimit.RetryAfterSeconds(result.Delay)
				pkghttp.WriteRateLimited(w, pkghttp.CodeLoginDelay,
					"Too many failed login attempts. Please wait "+strconv.Itoa(seconds)+" seconds before trying again.",
					seconds)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// FloodGuard caps the raw request rate per client IP regardless of outcome.
// A non-positive limit disables it.
func FloodGuard(requestsPerMinute int, ipConfig *pkghttp.IPConfig) func(http.Handler) http.Handler {
	if requestsPerMinute <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return httprate.Limit(
		requestsPerMinute,
		time.Minute,
		httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			return pkghttp.ExtractClientIP(r, ipConfig), nil
		}),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			pkghttp.WriteRateLimited(w, pkghttp.CodeRateLimitExceeded,
				"Too many requests. Please try again later.", 60)
		}),
	)
}
