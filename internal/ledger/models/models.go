package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	dErrors "spendgate/pkg/domain-errors"
)

// Credit economics. The signup grant and per-generation cost are product
// constants; purchases flow through Add with caller-supplied amounts.
const (
	DefaultSignupGrant    = 50
	SignupGrantReason     = "Initial free credits"
	DefaultGenerationCost = 10
)

// TransactionKind classifies a ledger entry.
type TransactionKind string

const (
	KindEarned    TransactionKind = "earned"
	KindPurchased TransactionKind = "purchased"
	KindUsed      TransactionKind = "used"
)

// IsValid checks if the kind is one of the supported enum values.
func (k TransactionKind) IsValid() bool {
	switch k {
	case KindEarned, KindPurchased, KindUsed:
		return true
	}
	return false
}

// IsCredit reports whether the kind adds to the balance.
func (k TransactionKind) IsCredit() bool {
	return k == KindEarned || k == KindPurchased
}

// Account is the materialized credit balance for one user. The transaction
// log is the source of truth; the account row is a projection of it and is
// only ever updated in the same atomic unit as a log append.
type Account struct {
	UserID      string    `json:"user_id"`
	Balance     int       `json:"balance"`
	TotalEarned int       `json:"total_earned"`
	TotalUsed   int       `json:"total_used"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// CheckInvariant verifies balance = totalEarned - totalUsed and that no
// counter has gone negative. A violation means a prior atomicity failure and
// is fatal for further mutation of this account.
func (a *Account) CheckInvariant() error {
	if a.Balance < 0 || a.TotalEarned < 0 || a.TotalUsed < 0 ||
		a.Balance != a.TotalEarned-a.TotalUsed {
		return &CorruptionError{
			UserID:      a.UserID,
			Balance:     a.Balance,
			TotalEarned: a.TotalEarned,
			TotalUsed:   a.TotalUsed,
		}
	}
	return nil
}

// NewAccount creates an account carrying the signup grant.
func NewAccount(userID string, now time.Time) *Account {
	return &Account{
		UserID:      userID,
		Balance:     DefaultSignupGrant,
		TotalEarned: DefaultSignupGrant,
		TotalUsed:   0,
		UpdatedAt:   now,
	}
}

// Transaction is one immutable ledger entry. Amount is signed: positive adds
// credit, negative consumes it.
type Transaction struct {
	ID          string          `json:"id"`
	UserID      string          `json:"user_id"`
	Amount      int             `json:"amount"`
	Kind        TransactionKind `json:"kind"`
	Description string          `json:"description"`
	RelatedID   string          `json:"related_id,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// NewTransaction creates a ledger entry with domain invariant validation:
// the sign of the amount must match the kind.
func NewTransaction(userID string, amount int, kind TransactionKind, description, relatedID string, now time.Time) (*Transaction, error) {
	if userID == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "user id cannot be empty")
	}
	if !kind.IsValid() {
		return nil, dErrors.Newf(dErrors.CodeInvalidInput, "invalid transaction kind %q", kind)
	}
	if amount == 0 {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "transaction amount cannot be zero")
	}
	if kind.IsCredit() != (amount > 0) {
		return nil, dErrors.Newf(dErrors.CodeInvalidInput, "transaction kind %q does not match amount sign", kind)
	}

	return &Transaction{
		ID:          uuid.NewString(),
		UserID:      userID,
		Amount:      amount,
		Kind:        kind,
		Description: description,
		RelatedID:   relatedID,
		CreatedAt:   now,
	}, nil
}

// BalanceDelta is the account mutation applied together with a transaction
// append. Fields are signed increments.
type BalanceDelta struct {
	Balance     int
	TotalEarned int
	TotalUsed   int
}

// DeltaFor derives the account mutation matching a transaction.
func DeltaFor(txn *Transaction) BalanceDelta {
	if txn.Amount > 0 {
		return BalanceDelta{Balance: txn.Amount, TotalEarned: txn.Amount}
	}
	return BalanceDelta{Balance: txn.Amount, TotalUsed: -txn.Amount}
}

// InsufficientCreditsError is an expected outcome, not a fault: the caller
// asked for more credit than the account holds. Callers branch on it.
type InsufficientCreditsError struct {
	Required int
	Current  int
}

func (e *InsufficientCreditsError) Error() string {
	return fmt.Sprintf("insufficient credits: required %d, current %d", e.Required, e.Current)
}

// CorruptionError reports a detected ledger invariant violation. It should
// never occur; when it does, mutation of the account must stop until the
// ledger is reconciled.
type CorruptionError struct {
	UserID      string
	Balance     int
	TotalEarned int
	TotalUsed   int
}

func (e *CorruptionError) Error() string {
	return fmt.Sprintf("account %s corrupted: balance %d, earned %d, used %d",
		e.UserID, e.Balance, e.TotalEarned, e.TotalUsed)
}
