package memory

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"spendgate/internal/ledger/models"
	"spendgate/internal/ledger/ports"
)

type MemoryStoreSuite struct {
	suite.Suite
	store *Store
	ctx   context.Context
	now   time.Time
}

func TestMemoryStoreSuite(t *testing.T) {
	suite.Run(t, new(MemoryStoreSuite))
}

func (s *MemoryStoreSuite) SetupTest() {
	s.store = New()
	s.ctx = context.Background()
	s.now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
}

func (s *MemoryStoreSuite) create(userID string) *models.Account {
	grant, err := models.NewTransaction(userID, models.DefaultSignupGrant,
		models.KindEarned, models.SignupGrantReason, "", s.now)
	require.NoError(s.T(), err)

	account, created, err := s.store.CreateAccount(s.ctx, models.NewAccount(userID, s.now), grant)
	require.NoError(s.T(), err)
	require.True(s.T(), created)
	return account
}

func (s *MemoryStoreSuite) TestLoadAccount() {
	s.Run("absent account is nil without error", func() {
		account, err := s.store.LoadAccount(s.ctx, "nobody")
		s.Require().NoError(err)
		s.Nil(account)
	})

	s.Run("returns a copy callers cannot mutate", func() {
		s.create("u-load")
		account, err := s.store.LoadAccount(s.ctx, "u-load")
		s.Require().NoError(err)
		account.Balance = 9999

		fresh, err := s.store.LoadAccount(s.ctx, "u-load")
		s.Require().NoError(err)
		s.Equal(models.DefaultSignupGrant, fresh.Balance)
	})
}

func (s *MemoryStoreSuite) TestCreateAccount() {
	s.Run("first create writes account and grant", func() {
		account := s.create("u-new")
		s.Equal(models.DefaultSignupGrant, account.Balance)

		txns, err := s.store.ListTransactions(s.ctx, "u-new", 0)
		s.Require().NoError(err)
		s.Require().Len(txns, 1)
		s.Equal(models.KindEarned, txns[0].Kind)
		s.Equal(models.DefaultSignupGrant, txns[0].Amount)
	})

	s.Run("second create is a no-op", func() {
		s.create("u-dup")

		grant, err := models.NewTransaction("u-dup", models.DefaultSignupGrant,
			models.KindEarned, models.SignupGrantReason, "", s.now)
		s.Require().NoError(err)

		account, created, err := s.store.CreateAccount(s.ctx, models.NewAccount("u-dup", s.now), grant)
		s.Require().NoError(err)
		s.False(created)
		s.Equal(models.DefaultSignupGrant, account.Balance)

		txns, err := s.store.ListTransactions(s.ctx, "u-dup", 0)
		s.Require().NoError(err)
		s.Len(txns, 1)
	})

	s.Run("concurrent first-time creates yield one account and one grant", func() {
		var wg sync.WaitGroup
		var createdCount atomic.Int32

		for _i := 0; _i < 50; _i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				grant, err := models.NewTransaction("u-race", models.DefaultSignupGrant,
					models.KindEarned, models.SignupGrantReason, "", s.now)
				s.Require().NoError(err)

				_, created, err := s.store.CreateAccount(s.ctx, models.NewAccount("u-race", s.now), grant)
				s.Require().NoError(err)
				if created {
					createdCount.Add(1)
				}
			}()
		}
		wg.Wait()

		s.Equal(int32(1), createdCount.Load())
		txns, err := s.store.ListTransactions(s.ctx, "u-race", 0)
		s.Require().NoError(err)
		s.Len(txns, 1)
	})
}

func (s *MemoryStoreSuite) TestApply() {
	s.Run("deduct mutates account and appends transaction together", func() {
		s.create("u-spend")

		txn, err := models.NewTransaction("u-spend", -10, models.KindUsed, "Generation processed", "gen-1", s.now)
		s.Require().NoError(err)

		account, err := s.store.Apply(s.ctx, "u-spend", models.DeltaFor(txn), txn)
		s.Require().NoError(err)
		s.Equal(40, account.Balance)
		s.Equal(50, account.TotalEarned)
		s.Equal(10, account.TotalUsed)

		txns, err := s.store.ListTransactions(s.ctx, "u-spend", 0)
		s.Require().NoError(err)
		s.Require().Len(txns, 2)
		s.Equal(-10, txns[0].Amount) // newest first
	})

	s.Run("insufficient balance writes nothing", func() {
		s.create("u-poor")

		txn, err := models.NewTransaction("u-poor", -100, models.KindUsed, "", "gen-2", s.now)
		s.Require().NoError(err)

		_, err = s.store.Apply(s.ctx, "u-poor", models.DeltaFor(txn), txn)
		var insufficient *models.InsufficientCreditsError
		s.Require().ErrorAs(err, &insufficient)
		s.Equal(100, insufficient.Required)
		s.Equal(50, insufficient.Current)

		account, err := s.store.LoadAccount(s.ctx, "u-poor")
		s.Require().NoError(err)
		s.Equal(50, account.Balance)

		txns, err := s.store.ListTransactions(s.ctx, "u-poor", 0)
		s.Require().NoError(err)
		s.Len(txns, 1)
	})

	s.Run("missing account fails cleanly", func() {
		txn, err := models.NewTransaction("u-ghost", -10, models.KindUsed, "", "", s.now)
		s.Require().NoError(err)

		_, err = s.store.Apply(s.ctx, "u-ghost", models.DeltaFor(txn), txn)
		s.Require().ErrorIs(err, ports.ErrAccountNotFound)
	})

	s.Run("concurrent deducts never overspend", func() {
		s.create("u-contended") // balance 50

		var wg sync.WaitGroup
		var succeeded atomic.Int32

		for _i := 0; _i < 20; _i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				txn, err := models.NewTransaction("u-contended", -10, models.KindUsed, "", "", s.now)
				s.Require().NoError(err)

				if _, err := s.store.Apply(s.ctx, "u-contended", models.DeltaFor(txn), txn); err == nil {
					succeeded.Add(1)
				}
			}()
		}
		wg.Wait()

		s.Equal(int32(5), succeeded.Load())

		account, err := s.store.LoadAccount(s.ctx, "u-contended")
		s.Require().NoError(err)
		s.Equal(0, account.Balance)
		s.Equal(50, account.TotalUsed)
	})
}

func (s *MemoryStoreSuite) TestListTransactions() {
	s.create("u-history")
	for i := 0; i < 5; i++ {
		txn, err := models.NewTransaction("u-history", -1, models.KindUsed, "", "", s.now.Add(time.Duration(i)*time.Second))
		s.Require().NoError(err)
		_, err = s.store.Apply(s.ctx, "u-history", models.DeltaFor(txn), txn)
		s.Require().NoError(err)
	}

	s.Run("newest first", func() {
		txns, err := s.store.ListTransactions(s.ctx, "u-history", 0)
		s.Require().NoError(err)
		s.Require().Len(txns, 6)
		for i := 1; i < len(txns); i++ {
			s.False(txns[i-1].CreatedAt.Before(txns[i].CreatedAt))
		}
	})

	s.Run("limit caps the page", func() {
		txns, err := s.store.ListTransactions(s.ctx, "u-history", 2)
		s.Require().NoError(err)
		s.Len(txns, 2)
	})

	s.Run("unknown user yields empty", func() {
		txns, err := s.store.ListTransactions(s.ctx, "nobody", 10)
		s.Require().NoError(err)
		s.Empty(txns)
	})
}
