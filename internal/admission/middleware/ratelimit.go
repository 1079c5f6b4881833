// Package middleware translates admission decisions into HTTP semantics.
// The controller itself never sees a request or writes a response.
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/mssola/useragent"

	"spendgate/internal/admission/models"
	"spendgate/pkg/platform/httputil"
)

// Admitter is the slice of the admission service the middleware depends on.
type Admitter interface {
	Evaluate(ctx context.Context, policyName, clientKey string) (*models.Decision, error)
	Identify(md models.RequestMetadata) string
}

type Middleware struct {
	admitter Admitter
	logger   *slog.Logger
	disabled bool
}

type Option func(*Middleware)

// WithDisabled disables rate limiting entirely (for testing/demo mode).
func WithDisabled(disabled bool) Option {
	return func(m *Middleware) {
		m.disabled = disabled
	}
}

func New(admitter Admitter, logger *slog.Logger, opts ...Option) *Middleware {
	m := &Middleware{
		admitter: admitter,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.disabled {
		logger.Info("rate limiting disabled")
	}
	return m
}

// Limit enforces the named policy on every request passing through.
// Admission errors fail open: a broken limiter must not take the API down.
func (m *Middleware) Limit(policyName string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if m.disabled {
				next.ServeHTTP(w, r)
				return
			}

			md := models.RequestMetadata{
				ForwardedFor: r.Header.Get("X-Forwarded-For"),
				UserAgent:    r.Header.Get("User-Agent"),
			}
			clientKey := m.admitter.Identify(md)

			decision, err := m.admitter.Evaluate(r.Context(), policyName, clientKey)
			if err != nil {
				m.logger.Error("failed to evaluate admission", "error", err, "policy", policyName)
				next.ServeHTTP(w, r)
				return
			}

			addRateLimitHeaders(w, decision)

			if !decision.Allowed {
				m.logDenied(r, policyName, md)
				writeRateLimitExceeded(w, decision)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// logDenied records a denial with parsed client software details so operators
// can tell abusive bots from bursty humans.
func (m *Middleware) logDenied(r *http.Request, policyName string, md models.RequestMetadata) {
	ua := useragent.New(md.UserAgent)
	browser, version := ua.Browser()
	m.logger.Warn("request denied by rate limiter",
		"policy", policyName,
		"path", r.URL.Path,
		"bot", ua.Bot(),
		"browser", browser,
		"browser_version", version,
	)
}

func addRateLimitHeaders(w http.ResponseWriter, decision *models.Decision) {
	if decision == nil {
		return
	}
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(decision.ResetAt.Unix(), 10))
}

func writeRateLimitExceeded(w http.ResponseWriter, decision *models.Decision) {
	w.Header().Set("Retry-After", strconv.Itoa(decision.RetryAfter))
	httputil.WriteJSON(w, http.StatusTooManyRequests, map[string]any{
		"error":       "rate_limit_exceeded",
		"message":     "Too many requests. Please try again later.",
		"retry_after": decision.RetryAfter,
	})
}
