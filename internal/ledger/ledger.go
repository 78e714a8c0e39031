// Package ledger applies balance changes to accounts. Every change locks the
// account row, updates the balance and writes one journal entry, all inside the
// caller's transaction.
package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/taskcoin/backend/internal/models"
)

// AccountRepo is the minimal account repository interface the ledger needs.
type AccountRepo interface {
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Account, error)
	DeductCoins(ctx context.Context, tx pgx.Tx, id uuid.UUID, amount int64) (newBalance int64, err error)
	AddCoins(ctx context.Context, tx pgx.Tx, id uuid.UUID, amount int64) (newBalance int64, err error)
}

// JournalRepo records ledger entries.
type JournalRepo interface {
	CreateTx(ctx context.Context, tx pgx.Tx, e *models.LedgerEntry) error
}

// Ref identifies why a balance changed. EntryType is required; the ids link
// the journal entry to the entity that caused it.
type Ref struct {
	EntryType    string
	TaskID       *uuid.UUID
	SubmissionID *uuid.UUID
	WithdrawalID *uuid.UUID
	PaymentID    *uuid.UUID
}

type Ledger struct {
	Accounts AccountRepo
	Journal  JournalRepo
}

func New(accounts AccountRepo, journal JournalRepo) *Ledger {
	return &Ledger{Accounts: accounts, Journal: journal}
}

// Credit adds amount to the account and returns the new balance.
func (l *Ledger) Credit(ctx context.Context, tx pgx.Tx, accountID uuid.UUID, amount int64, ref Ref) (int64, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("credit %d coins: %w", amount, models.ErrInvalidArgument)
	}
	if ref.EntryType == "" || models.IsDebit(ref.EntryType) {
		return 0, fmt.Errorf("credit with entry type %q: %w", ref.EntryType, models.ErrInvalidArgument)
	}
	if _, err := l.lock(ctx, tx, accountID); err != nil {
		return 0, err
	}
	newBalance, err := l.Accounts.AddCoins(ctx, tx, accountID, amount)
	if err != nil {
		return 0, fmt.Errorf("add coins: %w", err)
	}
	if err := l.record(ctx, tx, accountID, amount, newBalance, ref); err != nil {
		return 0, err
	}
	return newBalance, nil
}

// Debit removes amount from the account and returns the new balance. It fails
// with ErrInsufficientBalance, leaving the account untouched, when the balance
// is below amount.
func (l *Ledger) Debit(ctx context.Context, tx pgx.Tx, accountID uuid.UUID, amount int64, ref Ref) (int64, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("debit %d coins: %w", amount, models.ErrInvalidArgument)
	}
	if !models.IsDebit(ref.EntryType) {
		return 0, fmt.Errorf("debit with entry type %q: %w", ref.EntryType, models.ErrInvalidArgument)
	}
	acc, err := l.lock(ctx, tx, accountID)
	if err != nil {
		return 0, err
	}
	if acc.Coins < amount {
		return 0, fmt.Errorf("debit %d coins from balance %d: %w", amount, acc.Coins, models.ErrInsufficientBalance)
	}
	newBalance, err := l.Accounts.DeductCoins(ctx, tx, accountID, amount)
	if err != nil {
		return 0, fmt.Errorf("deduct coins: %w", err)
	}
	if err := l.record(ctx, tx, accountID, -amount, newBalance, ref); err != nil {
		return 0, err
	}
	return newBalance, nil
}

// Balance returns the locked, current balance of the account.
func (l *Ledger) Balance(ctx context.Context, tx pgx.Tx, accountID uuid.UUID) (int64, error) {
	acc, err := l.lock(ctx, tx, accountID)
	if err != nil {
		return 0, err
	}
	return acc.Coins, nil
}

func (l *Ledger) lock(ctx context.Context, tx pgx.Tx, accountID uuid.UUID) (*models.Account, error) {
	acc, err := l.Accounts.GetByIDForUpdate(ctx, tx, accountID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, fmt.Errorf("account %s: %w", accountID, models.ErrNotFound)
		}
		return nil, fmt.Errorf("lock account: %w", err)
	}
	return acc, nil
}

func (l *Ledger) record(ctx context.Context, tx pgx.Tx, accountID uuid.UUID, delta, balanceAfter int64, ref Ref) error {
	amount := delta
	if amount < 0 {
		amount = -amount
	}
	entry := &models.LedgerEntry{
		ID:           uuid.New(),
		AccountID:    accountID,
		EntryType:    ref.EntryType,
		Amount:       amount,
		BalanceAfter: balanceAfter,
		TaskID:       ref.TaskID,
		SubmissionID: ref.SubmissionID,
		WithdrawalID: ref.WithdrawalID,
		PaymentID:    ref.PaymentID,
	}
	if err := l.Journal.CreateTx(ctx, tx, entry); err != nil {
		return fmt.Errorf("write %s entry: %w", ref.EntryType, err)
	}
	return nil
}
