package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/taskcoin/backend/internal/ledger"
	"github.com/taskcoin/backend/internal/metrics"
	"github.com/taskcoin/backend/internal/models"
)

// AccountService provisions an account the first time a principal is seen and
// grants the role's signup coins in the same transaction.
type AccountService struct {
	Tx       TxRunner
	Ledger   Ledger
	Accounts AccountStore
	Bonus    map[models.Role]int64
	Logger   *slog.Logger
}

func NewAccountService(tx TxRunner, l Ledger, accounts AccountStore, bonus map[models.Role]int64, logger *slog.Logger) *AccountService {
	return &AccountService{Tx: tx, Ledger: l, Accounts: accounts, Bonus: bonus, Logger: orDefault(logger)}
}

// Get returns the account without locking it.
func (s *AccountService) Get(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	acc, err := s.Accounts.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("account %s: %w", id, err)
	}
	return acc, nil
}

// Ensure returns the principal's account, creating it on first sight. An
// email already bound to a different account id is rejected.
func (s *AccountService) Ensure(ctx context.Context, id uuid.UUID, email, name string, role models.Role) (*models.Account, error) {
	acc, err := s.Accounts.GetByID(ctx, id)
	if err == nil {
		return acc, nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return nil, fmt.Errorf("load account: %w", err)
	}
	if !role.Valid() {
		return nil, fmt.Errorf("role %q: %w", role, models.ErrValidation)
	}

	var created bool
	bonus := s.Bonus[role]
	err = s.Tx.WithTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		var err error
		created, err = s.Accounts.CreateIfMissingTx(ctx, tx, &models.Account{ID: id, Email: email, Name: name, Role: role})
		if err != nil {
			return fmt.Errorf("insert account: %w", err)
		}
		if created && bonus > 0 {
			if _, err := s.Ledger.Credit(ctx, tx, id, bonus, ledger.Ref{EntryType: models.EntrySignupBonus}); err != nil {
				return err
			}
		}
		acc, err = s.Accounts.GetByIDForUpdate(ctx, tx, id)
		if errors.Is(err, models.ErrNotFound) {
			return fmt.Errorf("email %s is registered to another account: %w", email, models.ErrUnauthorized)
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("provision account: %w", err)
	}

	if created {
		metrics.RecordCoins(models.EntrySignupBonus, bonus)
		s.Logger.Info("account provisioned", "account_id", id, "role", role, "signup_bonus", bonus)
	}
	return acc, nil
}
