package service

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"golang.org/x/sync/errgroup"

	"spendgate/internal/ledger/models"
	"spendgate/internal/ledger/store/memory"
	dErrors "spendgate/pkg/domain-errors"
)

type ServiceSuite struct {
	suite.Suite
	store *memory.Store
	svc   *Service
	ctx   context.Context
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.store = memory.New()
	s.ctx = context.Background()

	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	svc, err := New(s.store, WithLogger(logger))
	require.NoError(s.T(), err)
	s.svc = svc
}

func (s *ServiceSuite) TestEnsureAccount() {
	s.Run("first touch grants signup credits and logs one transaction", func() {
		account, err := s.svc.EnsureAccount(s.ctx, "u1")
		s.Require().NoError(err)
		s.Equal(50, account.Balance)
		s.Equal(50, account.TotalEarned)
		s.Equal(0, account.TotalUsed)

		txns, err := s.svc.Transactions(s.ctx, "u1", 0)
		s.Require().NoError(err)
		s.Require().Len(txns, 1)
		s.Equal(models.KindEarned, txns[0].Kind)
		s.Equal(50, txns[0].Amount)
		s.Equal("Initial free credits", txns[0].Description)
	})

	s.Run("repeat calls are idempotent", func() {
		first, err := s.svc.EnsureAccount(s.ctx, "u2")
		s.Require().NoError(err)

		second, err := s.svc.EnsureAccount(s.ctx, "u2")
		s.Require().NoError(err)
		s.Equal(first.Balance, second.Balance)

		txns, err := s.svc.Transactions(s.ctx, "u2", 0)
		s.Require().NoError(err)
		s.Len(txns, 1)
	})

	s.Run("concurrent first-time calls create exactly one account", func() {
		var g errgroup.Group
		for _i := 0; _i < 25; _i++ {
			g.Go(func() error {
				_, err := s.svc.EnsureAccount(s.ctx, "u-race")
				return err
			})
		}
		s.Require().NoError(g.Wait())

		account, err := s.svc.EnsureAccount(s.ctx, "u-race")
		s.Require().NoError(err)
		s.Equal(50, account.Balance)

		txns, err := s.svc.Transactions(s.ctx, "u-race", 0)
		s.Require().NoError(err)
		s.Len(txns, 1)
	})

	s.Run("empty user id is caller misuse", func() {
		_, err := s.svc.EnsureAccount(s.ctx, "")
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})
}

func (s *ServiceSuite) TestGetBalance() {
	balance, err := s.svc.GetBalance(s.ctx, "u-fresh")
	s.Require().NoError(err)
	s.Equal(50, balance)
}

func (s *ServiceSuite) TestDeduct() {
	s.Run("successful deduct updates balance and records the operation", func() {
		account, err := s.svc.Deduct(s.ctx, "u1", 10, "gen-1")
		s.Require().NoError(err)
		s.Equal(40, account.Balance)
		s.Equal(10, account.TotalUsed)

		txns, err := s.svc.Transactions(s.ctx, "u1", 0)
		s.Require().NoError(err)
		s.Require().Len(txns, 2)
		s.Equal(-10, txns[0].Amount)
		s.Equal(models.KindUsed, txns[0].Kind)
		s.Equal("gen-1", txns[0].RelatedID)
	})

	s.Run("insufficient credits is an expected outcome with no mutation", func() {
		_, err := s.svc.Deduct(s.ctx, "u-broke", 100, "gen-2")

		var insufficient *models.InsufficientCreditsError
		s.Require().ErrorAs(err, &insufficient)
		s.Equal(100, insufficient.Required)
		s.Equal(50, insufficient.Current)

		balance, err := s.svc.GetBalance(s.ctx, "u-broke")
		s.Require().NoError(err)
		s.Equal(50, balance)
	})

	s.Run("non-positive amounts are caller misuse", func() {
		for _, amount := range []int{0, -5} {
			_, err := s.svc.Deduct(s.ctx, "u1", amount, "gen-3")
			s.Require().Error(err)
			s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
		}
	})

	s.Run("two concurrent deducts of the full balance admit exactly one", func() {
		_, err := s.svc.EnsureAccount(s.ctx, "u-full") // balance 50
		s.Require().NoError(err)
		_, err = s.svc.Deduct(s.ctx, "u-full", 40, "warmup") // balance 10
		s.Require().NoError(err)

		results := make(chan error, 2)
		for _i := 0; _i < 2; _i++ {
			go func() {
				_, err := s.svc.Deduct(s.ctx, "u-full", 10, "gen-race")
				results <- err
			}()
		}

		var succeeded, refused int
		for _i := 0; _i < 2; _i++ {
			err := <-results
			if err == nil {
				succeeded++
				continue
			}
			var insufficient *models.InsufficientCreditsError
			s.Require().ErrorAs(err, &insufficient)
			refused++
		}
		s.Equal(1, succeeded)
		s.Equal(1, refused)

		balance, err := s.svc.GetBalance(s.ctx, "u-full")
		s.Require().NoError(err)
		s.Equal(0, balance)
	})
}

func (s *ServiceSuite) TestAdd() {
	s.Run("purchase credits a brand-new user in one step", func() {
		account, err := s.svc.Add(s.ctx, "u-buyer", 100, models.KindPurchased, "Credit pack", "order-1")
		s.Require().NoError(err)
		s.Equal(150, account.Balance) // signup grant + purchase
		s.Equal(150, account.TotalEarned)

		txns, err := s.svc.Transactions(s.ctx, "u-buyer", 0)
		s.Require().NoError(err)
		s.Require().Len(txns, 2)
		s.Equal(models.KindPurchased, txns[0].Kind)
		s.Equal("order-1", txns[0].RelatedID)
	})

	s.Run("used kind cannot add credits", func() {
		_, err := s.svc.Add(s.ctx, "u1", 10, models.KindUsed, "", "")
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	s.Run("non-positive amounts are caller misuse", func() {
		_, err := s.svc.Add(s.ctx, "u1", 0, models.KindEarned, "", "")
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})
}

func (s *ServiceSuite) TestVerify() {
	s.Run("replaying the log matches the account after a busy history", func() {
		_, err := s.svc.EnsureAccount(s.ctx, "u-audit")
		s.Require().NoError(err)

		var g errgroup.Group
		for _i := 0; _i < 10; _i++ {
			g.Go(func() error {
				_, err := s.svc.Add(s.ctx, "u-audit", 7, models.KindPurchased, "top-up", "")
				return err
			})
			g.Go(func() error {
				if _, err := s.svc.Deduct(s.ctx, "u-audit", 3, ""); err != nil {
					var insufficient *models.InsufficientCreditsError
					if errors.As(err, &insufficient) {
						return nil
					}
					return err
				}
				return nil
			})
		}
		s.Require().NoError(g.Wait())

		s.Require().NoError(s.svc.Verify(s.ctx, "u-audit"))
	})

	s.Run("unknown account is not found", func() {
		err := s.svc.Verify(s.ctx, "nobody")
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}
