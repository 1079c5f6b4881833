// Package ports defines the narrow storage contract the credit ledger
// consumes. The ledger never issues a bare read followed by a separate bare
// write for one logical operation; every mutation is a single Store call that
// implementations must make atomic per user.
package ports

import (
	"context"
	"errors"

	"spendgate/internal/ledger/models"
)

// ErrAccountNotFound is returned by Apply when no account exists for the
// user. The service prevents this by composing with CreateAccount first.
var ErrAccountNotFound = errors.New("credit account not found")

// Store persists accounts and their append-only transaction log.
type Store interface {
	// LoadAccount returns the account for a user, or nil without error when
	// none exists.
	LoadAccount(ctx context.Context, userID string) (*models.Account, error)

	// CreateAccount inserts the account and its initial grant transaction as
	// one atomic insert-if-absent. When an account already exists it is
	// returned unchanged with created=false and no transaction is written.
	// Concurrent first-time calls for one user must yield exactly one account
	// and one grant transaction.
	CreateAccount(ctx context.Context, account *models.Account, grant *models.Transaction) (result *models.Account, created bool, err error)

	// Apply mutates the account and appends the transaction as one
	// indivisible unit. When the delta would drive the balance negative it
	// fails with *models.InsufficientCreditsError and writes nothing.
	Apply(ctx context.Context, userID string, delta models.BalanceDelta, txn *models.Transaction) (*models.Account, error)

	// ListTransactions returns up to limit transactions for a user, newest
	// first. limit <= 0 means no cap.
	ListTransactions(ctx context.Context, userID string, limit int) ([]*models.Transaction, error)
}
