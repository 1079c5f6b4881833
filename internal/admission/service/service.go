// Package service implements the admission controller: per-policy, per-client
// request admission over a fixed-window counter store.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"spendgate/internal/admission/config"
	"spendgate/internal/admission/metrics"
	"spendgate/internal/admission/models"
	dErrors "spendgate/pkg/domain-errors"
)

// Store is the counter table consumed by the service. Implementations must
// apply each Evaluate atomically per key.
type Store interface {
	Evaluate(key string, limit int, window time.Duration, now time.Time) models.Decision
	SweepExpired(now time.Time) int
	Len() int
}

type Service struct {
	store   Store
	config  *config.Config
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

func New(store Store, cfg *config.Config, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("window store is required")
	}
	if cfg == nil {
		return nil, errors.New("policy config is required")
	}

	svc := &Service{
		store:  store,
		config: cfg,
		logger: slog.Default(),
		now:    time.Now,
	}

	for _, opt := range opts {
		opt(svc)
	}

	return svc, nil
}

// Evaluate decides whether one request under the named policy may proceed.
// An empty client key is caller misuse. An unknown policy name is default-deny
// so a misconfigured route can never run unlimited.
func (s *Service) Evaluate(ctx context.Context, policyName, clientKey string) (*models.Decision, error) {
	if clientKey == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "client key cannot be empty")
	}

	now := s.now()

	policy, ok := s.config.Policy(policyName)
	if !ok {
		s.logAudit(ctx, "rate_limit_policy_missing", "policy", policyName)
		if s.metrics != nil {
			s.metrics.ObserveDecision(policyName, false)
		}
		return &models.Decision{
			Allowed:    false,
			ResetAt:    now,
			RetryAfter: 60,
		}, nil
	}

	decision := s.store.Evaluate(models.WindowKey(policy.Name, clientKey), policy.Limit, policy.Window, now)
	if !decision.Allowed {
		s.logAudit(ctx, "rate_limit_exceeded",
			"policy", policy.Name,
			"limit", policy.Limit,
			"window_seconds", int(policy.Window.Seconds()),
		)
	}
	if s.metrics != nil {
		s.metrics.ObserveDecision(policy.Name, decision.Allowed)
	}
	return &decision, nil
}

// Identify derives a stable client key from request metadata.
func (s *Service) Identify(md models.RequestMetadata) string {
	return models.ClientKeyFromMetadata(md)
}

// SweepExpired evicts closed windows once and reports how many were removed.
func (s *Service) SweepExpired() int {
	removed := s.store.SweepExpired(s.now())
	if s.metrics != nil {
		s.metrics.AddSweptEntries(removed)
		s.metrics.SetTrackedKeys(s.store.Len())
	}
	return removed
}

// StartSweeper evicts expired windows on a fixed interval until ctx is done.
// Eviction only bounds memory; decisions are correct without it.
func (s *Service) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if removed := s.SweepExpired(); removed > 0 {
					s.logger.Debug("swept expired rate limit windows", "removed", removed)
				}
			}
		}
	}()
}

func (s *Service) logAudit(ctx context.Context, event string, attrs ...any) {
	args := append(attrs, "event", event, "log_type", "audit")
	s.logger.InfoContext(ctx, event, args...)
}
