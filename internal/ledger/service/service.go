// Package service implements the credit ledger: atomic grant and deduct
// operations over an append-only transaction log, with the account row kept
// as an always-in-sync projection of that log.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"spendgate/internal/ledger/metrics"
	"spendgate/internal/ledger/models"
	"spendgate/internal/ledger/ports"
	dErrors "spendgate/pkg/domain-errors"
)

type Store = ports.Store

type Service struct {
	store   Store
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

func New(store Store, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("ledger store is required")
	}

	svc := &Service{
		store:  store,
		logger: slog.Default(),
		now:    time.Now,
	}

	for _, opt := range opts {
		opt(svc)
	}

	return svc, nil
}

// EnsureAccount returns the user's account, creating it with the signup grant
// on first touch. Creation is a single insert-if-absent in the store, so
// concurrent first-time calls yield exactly one account and one grant entry.
func (s *Service) EnsureAccount(ctx context.Context, userID string) (*models.Account, error) {
	if userID == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "user id cannot be empty")
	}

	existing, err := s.store.LoadAccount(ctx, userID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load account")
	}
	if existing != nil {
		return s.checked(existing)
	}

	now := s.now()
	grant, err := models.NewTransaction(userID, models.DefaultSignupGrant,
		models.KindEarned, models.SignupGrantReason, "", now)
	if err != nil {
		return nil, err
	}

	account, created, err := s.store.CreateAccount(ctx, models.NewAccount(userID, now), grant)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create account")
	}
	if created {
		s.logAudit(ctx, "credit_account_created",
			"user_id", userID,
			"grant", models.DefaultSignupGrant,
		)
		if s.metrics != nil {
			s.metrics.AccountsCreated.Inc()
			s.metrics.CreditsGranted.Add(float64(models.DefaultSignupGrant))
		}
	}
	return s.checked(account)
}

// GetBalance returns the user's current balance, creating the account first
// if needed. Absence is never a distinct outcome for callers.
func (s *Service) GetBalance(ctx context.Context, userID string) (int, error) {
	account, err := s.EnsureAccount(ctx, userID)
	if err != nil {
		return 0, err
	}
	return account.Balance, nil
}

// Deduct consumes amount credits for the operation identified by relatedID.
// The funds check and the balance mutation are one indivisible store call;
// two concurrent deducts can never both spend the same credits.
// Insufficient balance is an expected outcome returned as
// *models.InsufficientCreditsError with no mutation.
func (s *Service) Deduct(ctx context.Context, userID string, amount int, relatedID string) (*models.Account, error) {
	if amount <= 0 {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "deduct amount must be positive")
	}

	if _, err := s.EnsureAccount(ctx, userID); err != nil {
		return nil, err
	}

	txn, err := models.NewTransaction(userID, -amount, models.KindUsed,
		"Generation processed", relatedID, s.now())
	if err != nil {
		return nil, err
	}

	account, err := s.store.Apply(ctx, userID, models.DeltaFor(txn), txn)
	if err != nil {
		var insufficient *models.InsufficientCreditsError
		if errors.As(err, &insufficient) {
			s.logAudit(ctx, "credit_deduct_refused",
				"user_id", userID,
				"required", insufficient.Required,
				"current", insufficient.Current,
			)
			if s.metrics != nil {
				s.metrics.InsufficientCredits.Inc()
			}
			return nil, insufficient
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to deduct credits")
	}

	if s.metrics != nil {
		s.metrics.CreditsDeducted.Add(float64(amount))
	}
	return s.checked(account)
}

// Add credits the account by amount. Kind must be earned or purchased; the
// account is created first when missing so purchases for brand-new users
// always land.
func (s *Service) Add(ctx context.Context, userID string, amount int, kind models.TransactionKind, description, relatedID string) (*models.Account, error) {
	if amount <= 0 {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "add amount must be positive")
	}
	if !kind.IsCredit() {
		return nil, dErrors.Newf(dErrors.CodeInvalidInput, "transaction kind %q cannot add credits", kind)
	}

	if _, err := s.EnsureAccount(ctx, userID); err != nil {
		return nil, err
	}

	txn, err := models.NewTransaction(userID, amount, kind, description, relatedID, s.now())
	if err != nil {
		return nil, err
	}

	account, err := s.store.Apply(ctx, userID, models.DeltaFor(txn), txn)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to add credits")
	}

	s.logAudit(ctx, "credits_added",
		"user_id", userID,
		"amount", amount,
		"kind", string(kind),
	)
	if s.metrics != nil {
		s.metrics.CreditsGranted.Add(float64(amount))
	}
	return s.checked(account)
}

// Transactions returns the user's audit trail, newest first.
func (s *Service) Transactions(ctx context.Context, userID string, limit int) ([]*models.Transaction, error) {
	if userID == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "user id cannot be empty")
	}
	txns, err := s.store.ListTransactions(ctx, userID, limit)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list transactions")
	}
	return txns, nil
}

// Verify replays the full transaction log and cross-checks the materialized
// account. A mismatch means a prior atomicity failure; it is surfaced as
// *models.CorruptionError, never repaired silently.
func (s *Service) Verify(ctx context.Context, userID string) error {
	account, err := s.store.LoadAccount(ctx, userID)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load account")
	}
	if account == nil {
		return dErrors.Newf(dErrors.CodeNotFound, "no account for user %s", userID)
	}

	txns, err := s.store.ListTransactions(ctx, userID, 0)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to list transactions")
	}

	var earned, used int
	for _, txn := range txns {
		if txn.Amount > 0 {
			earned += txn.Amount
		} else {
			used -= txn.Amount
		}
	}

	if account.Balance != earned-used || account.TotalEarned != earned || account.TotalUsed != used {
		return s.corrupted(ctx, account)
	}
	return account.CheckInvariant()
}

// checked guards every returned account with the projection invariant.
// Corrupted accounts are reported, not handed back for further mutation.
func (s *Service) checked(account *models.Account) (*models.Account, error) {
	if err := account.CheckInvariant(); err != nil {
		if s.metrics != nil {
			s.metrics.CorruptionDetected.Inc()
		}
		s.logger.Error("ledger invariant violated",
			"user_id", account.UserID,
			"balance", account.Balance,
			"total_earned", account.TotalEarned,
			"total_used", account.TotalUsed,
		)
		return nil, err
	}
	return account, nil
}

func (s *Service) corrupted(ctx context.Context, account *models.Account) error {
	if s.metrics != nil {
		s.metrics.CorruptionDetected.Inc()
	}
	err := &models.CorruptionError{
		UserID:      account.UserID,
		Balance:     account.Balance,
		TotalEarned: account.TotalEarned,
		TotalUsed:   account.TotalUsed,
	}
	s.logger.ErrorContext(ctx, "ledger replay mismatch", "user_id", account.UserID, "error", err)
	return err
}

func (s *Service) logAudit(ctx context.Context, event string, attrs ...any) {
	args := append(attrs, "event", event, "log_type", "audit")
	s.logger.InfoContext(ctx, event, args...)
}
