// Package memory implements the ledger store in process memory. Suited to
// tests and single-node deployments; state does not survive restarts.
package memory

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"spendgate/internal/ledger/models"
	"spendgate/internal/ledger/ports"
)

const stripeCount = 64

type stripe struct {
	mu       sync.Mutex
	accounts map[string]*models.Account
	log      map[string][]*models.Transaction
}

// Store keeps accounts and transaction logs in maps striped by user:
// operations on different users almost never contend, operations on the same
// user serialize so the check-then-act inside Apply is never observable
// half-done.
type Store struct {
	stripes [stripeCount]stripe
}

var _ ports.Store = (*Store)(nil)

// New creates an empty in-memory ledger store.
func New() *Store {
	s := &Store{}
	for i := range s.stripes {
		s.stripes[i].accounts = make(map[string]*models.Account)
		s.stripes[i].log = make(map[string][]*models.Transaction)
	}
	return s
}

func (s *Store) LoadAccount(_ context.Context, userID string) (*models.Account, error) {
	st := s.stripe(userID)
	st.mu.Lock()
	defer st.mu.Unlock()

	account, ok := st.accounts[userID]
	if !ok {
		return nil, nil
	}
	copied := *account
	return &copied, nil
}

func (s *Store) CreateAccount(_ context.Context, account *models.Account, grant *models.Transaction) (*models.Account, bool, error) {
	st := s.stripe(account.UserID)
	st.mu.Lock()
	defer st.mu.Unlock()

	if existing, ok := st.accounts[account.UserID]; ok {
		copied := *existing
		return &copied, false, nil
	}

	copied := *account
	st.accounts[account.UserID] = &copied
	grantCopy := *grant
	st.log[account.UserID] = append(st.log[account.UserID], &grantCopy)

	result := copied
	return &result, true, nil
}

func (s *Store) Apply(_ context.Context, userID string, delta models.BalanceDelta, txn *models.Transaction) (*models.Account, error) {
	st := s.stripe(userID)
	st.mu.Lock()
	defer st.mu.Unlock()

	account, ok := st.accounts[userID]
	if !ok {
		return nil, ports.ErrAccountNotFound
	}

	if account.Balance+delta.Balance < 0 {
		return nil, &models.InsufficientCreditsError{
			Required: -delta.Balance,
			Current:  account.Balance,
		}
	}

	account.Balance += delta.Balance
	account.TotalEarned += delta.TotalEarned
	account.TotalUsed += delta.TotalUsed
	account.UpdatedAt = time.Now()

	txnCopy := *txn
	st.log[userID] = append(st.log[userID], &txnCopy)

	copied := *account
	return &copied, nil
}

func (s *Store) ListTransactions(_ context.Context, userID string, limit int) ([]*models.Transaction, error) {
	st := s.stripe(userID)
	st.mu.Lock()
	defer st.mu.Unlock()

	entries := st.log[userID]
	if limit <= 0 || limit > len(entries) {
		limit = len(entries)
	}

	// Log is append-ordered; return newest first.
	result := make([]*models.Transaction, 0, limit)
	for i := len(entries) - 1; i >= len(entries)-limit; i-- {
		copied := *entries[i]
		result = append(result, &copied)
	}
	return result, nil
}

func (s *Store) stripe(userID string) *stripe {
	h := fnv.New32a()
	h.Write([]byte(userID))
	return &s.stripes[h.Sum32()%stripeCount]
}
