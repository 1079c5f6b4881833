// Package postgres persists the credit ledger in PostgreSQL. This store is
// pure I/O; atomicity comes from single conditional statements and row-level
// locking, never from read-then-write sequences in Go.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"spendgate/internal/ledger/models"
	"spendgate/internal/ledger/ports"
)

type Store struct {
	db *sql.DB
}

var _ ports.Store = (*Store)(nil)

// New constructs a PostgreSQL-backed ledger store.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// EnsureSchema creates the ledger tables if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	const ddl = `
		CREATE TABLE IF NOT EXISTS credit_accounts (
			user_id      TEXT PRIMARY KEY,
			balance      INTEGER NOT NULL CHECK (balance >= 0),
			total_earned INTEGER NOT NULL CHECK (total_earned >= 0),
			total_used   INTEGER NOT NULL CHECK (total_used >= 0),
			updated_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
			CHECK (balance = total_earned - total_used)
		);
		CREATE TABLE IF NOT EXISTS credit_transactions (
			id          UUID PRIMARY KEY,
			user_id     TEXT NOT NULL,
			amount      INTEGER NOT NULL,
			kind        VARCHAR(50) NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			related_id  TEXT,
			created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE INDEX IF NOT EXISTS credit_transactions_user_created_idx
			ON credit_transactions (user_id, created_at DESC);
	`
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("ensure ledger schema: %w", err)
	}
	return nil
}

func (s *Store) LoadAccount(ctx context.Context, userID string) (*models.Account, error) {
	const query = `
		SELECT user_id, balance, total_earned, total_used, updated_at
		FROM credit_accounts
		WHERE user_id = $1
	`
	account, err := scanAccount(s.db.QueryRowContext(ctx, query, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("load account: %w", err)
	}
	return account, nil
}

// CreateAccount inserts the account and its grant transaction in one DB
// transaction. ON CONFLICT DO NOTHING makes the insert a true
// insert-if-absent: of N concurrent callers exactly one inserts and writes
// the grant, the rest read the surviving row.
func (s *Store) CreateAccount(ctx context.Context, account *models.Account, grant *models.Transaction) (*models.Account, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("begin create account: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	const insert = `
		INSERT INTO credit_accounts (user_id, balance, total_earned, total_used, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id) DO NOTHING
		RETURNING user_id, balance, total_earned, total_used, updated_at
	`
	created, err := scanAccount(tx.QueryRowContext(ctx, insert,
		account.UserID, account.Balance, account.TotalEarned, account.TotalUsed, account.UpdatedAt))
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, false, fmt.Errorf("insert account: %w", err)
		}
		// Row already existed; nothing was inserted.
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			return nil, false, fmt.Errorf("rollback create account: %w", err)
		}
		existing, err := s.LoadAccount(ctx, account.UserID)
		if err != nil {
			return nil, false, err
		}
		if existing == nil {
			return nil, false, ports.ErrAccountNotFound
		}
		return existing, false, nil
	}

	if err := insertTransaction(ctx, tx, grant); err != nil {
		return nil, false, err
	}
	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("commit create account: %w", err)
	}
	return created, true, nil
}

// Apply performs the conditional balance mutation and the transaction append
// in one DB transaction. The funds check lives in the UPDATE's WHERE clause,
// so two concurrent deducts against the same row serialize on the row lock
// and the loser observes the already-decremented balance.
func (s *Store) Apply(ctx context.Context, userID string, delta models.BalanceDelta, txn *models.Transaction) (*models.Account, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin apply: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	const update = `
		UPDATE credit_accounts
		SET balance      = balance + $2,
		    total_earned = total_earned + $3,
		    total_used   = total_used + $4,
		    updated_at   = now()
		WHERE user_id = $1 AND balance + $2 >= 0
		RETURNING user_id, balance, total_earned, total_used, updated_at
	`
	account, err := scanAccount(tx.QueryRowContext(ctx, update,
		userID, delta.Balance, delta.TotalEarned, delta.TotalUsed))
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("apply balance delta: %w", err)
		}
		// Either the account is missing or the balance check failed;
		// disambiguate with a plain read outside the aborted write path.
		current, loadErr := s.LoadAccount(ctx, userID)
		if loadErr != nil {
			return nil, loadErr
		}
		if current == nil {
			return nil, ports.ErrAccountNotFound
		}
		return nil, &models.InsufficientCreditsError{
			Required: -delta.Balance,
			Current:  current.Balance,
		}
	}

	if err := insertTransaction(ctx, tx, txn); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit apply: %w", err)
	}
	return account, nil
}

func (s *Store) ListTransactions(ctx context.Context, userID string, limit int) ([]*models.Transaction, error) {
	query := `
		SELECT id, user_id, amount, kind, description, COALESCE(related_id, ''), created_at
		FROM credit_transactions
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
	`
	args := []any{userID}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var result []*models.Transaction
	for rows.Next() {
		var txn models.Transaction
		if err := rows.Scan(&txn.ID, &txn.UserID, &txn.Amount, &txn.Kind,
			&txn.Description, &txn.RelatedID, &txn.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		result = append(result, &txn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	return result, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*models.Account, error) {
	var account models.Account
	if err := row.Scan(&account.UserID, &account.Balance, &account.TotalEarned,
		&account.TotalUsed, &account.UpdatedAt); err != nil {
		return nil, err
	}
	return &account, nil
}

func insertTransaction(ctx context.Context, tx *sql.Tx, txn *models.Transaction) error {
	const insert = `
		INSERT INTO credit_transactions (id, user_id, amount, kind, description, related_id, created_at)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7)
	`
	if _, err := tx.ExecContext(ctx, insert,
		txn.ID, txn.UserID, txn.Amount, string(txn.Kind),
		txn.Description, txn.RelatedID, txn.CreatedAt); err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}
