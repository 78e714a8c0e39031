package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/taskcoin/backend/internal/config"
	"github.com/taskcoin/backend/internal/ledger"
	"github.com/taskcoin/backend/internal/metrics"
	"github.com/taskcoin/backend/internal/models"
)

// WithdrawalRequest is a worker's request to cash out coins.
type WithdrawalRequest struct {
	Coins         int64           `json:"withdrawal_coin"`
	Amount        decimal.Decimal `json:"withdrawal_amount"`
	PaymentSystem string          `json:"payment_system"`
	AccountNumber string          `json:"account_number"`
}

// WithdrawalService runs the pending → approved | rejected lifecycle of a
// withdrawal. Coins are not reserved when a request is made; the balance is
// checked again and debited only on approval.
type WithdrawalService struct {
	Tx          TxRunner
	Ledger      Ledger
	Withdrawals WithdrawalStore
	Notifier    Notifier
	Logger      *slog.Logger
}

func NewWithdrawalService(tx TxRunner, l Ledger, ws WithdrawalStore, n Notifier, logger *slog.Logger) *WithdrawalService {
	return &WithdrawalService{Tx: tx, Ledger: l, Withdrawals: ws, Notifier: n, Logger: orDefault(logger)}
}

// ValidateConversion checks the minimum and that amount equals coins/20
// within the rounding tolerance.
func ValidateConversion(coins int64, amount decimal.Decimal) error {
	if coins < config.MinWithdrawalCoins {
		return fmt.Errorf("minimum withdrawal is %d coins, got %d: %w", config.MinWithdrawalCoins, coins, models.ErrValidation)
	}
	expected := decimal.NewFromInt(coins).Div(decimal.NewFromInt(config.CoinsPerDollar))
	if amount.Sub(expected).Abs().GreaterThan(config.ConversionTolerance) {
		return fmt.Errorf("amount %s does not match %d coins (expected %s): %w", amount, coins, expected.StringFixed(2), models.ErrValidation)
	}
	return nil
}

// Request validates and records a pending withdrawal. The balance check here
// is advisory.
func (s *WithdrawalService) Request(ctx context.Context, workerID uuid.UUID, req WithdrawalRequest) (*models.Withdrawal, error) {
	if err := ValidateConversion(req.Coins, req.Amount); err != nil {
		return nil, err
	}
	if !config.IsPaymentSystem(req.PaymentSystem) {
		return nil, fmt.Errorf("unknown payment system %q: %w", req.PaymentSystem, models.ErrValidation)
	}
	if strings.TrimSpace(req.AccountNumber) == "" {
		return nil, fmt.Errorf("account number is required: %w", models.ErrValidation)
	}

	w := &models.Withdrawal{
		ID:            uuid.New(),
		WorkerID:      workerID,
		Coins:         req.Coins,
		Amount:        req.Amount.Round(2),
		PaymentSystem: req.PaymentSystem,
		AccountNumber: strings.TrimSpace(req.AccountNumber),
		Status:        models.StatusPending,
	}
	err := s.Tx.WithTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		balance, err := s.Ledger.Balance(ctx, tx, workerID)
		if err != nil {
			return err
		}
		if balance < req.Coins {
			return fmt.Errorf("requested %d coins with balance %d: %w", req.Coins, balance, models.ErrInsufficientBalance)
		}
		if err := s.Withdrawals.CreateTx(ctx, tx, w); err != nil {
			return fmt.Errorf("insert withdrawal: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("request withdrawal: %w", err)
	}

	metrics.RecordTransition("withdrawal", models.StatusPending)
	s.Logger.Info("withdrawal requested", "withdrawal_id", w.ID, "worker_id", workerID, "coins", w.Coins)
	return w, nil
}

// Get returns one of the worker's own withdrawals.
func (s *WithdrawalService) Get(ctx context.Context, workerID, withdrawalID uuid.UUID) (*models.Withdrawal, error) {
	w, err := s.Withdrawals.GetByID(ctx, withdrawalID)
	if err != nil {
		return nil, fmt.Errorf("withdrawal %s: %w", withdrawalID, err)
	}
	if w.WorkerID != workerID {
		return nil, fmt.Errorf("withdrawal %s: %w", withdrawalID, models.ErrUnauthorized)
	}
	return w, nil
}

// Approve debits the worker and marks the withdrawal approved. If the worker
// no longer has the coins, nothing changes and the request stays pending.
func (s *WithdrawalService) Approve(ctx context.Context, adminID, withdrawalID uuid.UUID) (*models.Withdrawal, error) {
	w, err := s.decide(ctx, withdrawalID, models.StatusApproved, func(ctx context.Context, tx pgx.Tx, w *models.Withdrawal) error {
		_, err := s.Ledger.Debit(ctx, tx, w.WorkerID, w.Coins, ledger.Ref{EntryType: models.EntryWithdrawal, WithdrawalID: &w.ID})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("approve withdrawal: %w", err)
	}

	metrics.RecordCoins(models.EntryWithdrawal, w.Coins)
	s.Logger.Info("withdrawal approved", "withdrawal_id", w.ID, "admin_id", adminID, "coins", w.Coins)
	notify(ctx, s.Notifier, s.Logger, models.Notification{
		RecipientID: w.WorkerID,
		Message:     fmt.Sprintf("Your withdrawal request of %s dollars has been approved", w.Amount.StringFixed(2)),
		ActionRoute: "/dashboard/withdrawals",
	})
	return w, nil
}

// Reject marks the withdrawal rejected. No coins move.
func (s *WithdrawalService) Reject(ctx context.Context, adminID, withdrawalID uuid.UUID) (*models.Withdrawal, error) {
	w, err := s.decide(ctx, withdrawalID, models.StatusRejected, nil)
	if err != nil {
		return nil, fmt.Errorf("reject withdrawal: %w", err)
	}

	s.Logger.Info("withdrawal rejected", "withdrawal_id", w.ID, "admin_id", adminID)
	notify(ctx, s.Notifier, s.Logger, models.Notification{
		RecipientID: w.WorkerID,
		Message:     fmt.Sprintf("Your withdrawal request of %s dollars has been rejected", w.Amount.StringFixed(2)),
		ActionRoute: "/dashboard/withdrawals",
	})
	return w, nil
}

func (s *WithdrawalService) decide(
	ctx context.Context,
	withdrawalID uuid.UUID,
	status string,
	apply func(ctx context.Context, tx pgx.Tx, w *models.Withdrawal) error,
) (*models.Withdrawal, error) {
	var w *models.Withdrawal
	err := s.Tx.WithTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		var err error
		w, err = s.Withdrawals.GetByIDForUpdate(ctx, tx, withdrawalID)
		if err != nil {
			return fmt.Errorf("withdrawal %s: %w", withdrawalID, err)
		}
		if w.Status != models.StatusPending {
			return fmt.Errorf("withdrawal %s is %s: %w", withdrawalID, w.Status, models.ErrInvalidState)
		}
		if apply != nil {
			if err := apply(ctx, tx, w); err != nil {
				return err
			}
		}
		if err := s.Withdrawals.UpdateStatusTx(ctx, tx, w.ID, status); err != nil {
			return fmt.Errorf("set status %s: %w", status, err)
		}
		w.Status = status
		return nil
	})
	if err != nil {
		return nil, err
	}
	metrics.RecordTransition("withdrawal", status)
	return w, nil
}
