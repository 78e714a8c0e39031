package services

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/taskcoin/backend/internal/ledger"
	"github.com/taskcoin/backend/internal/models"
)

// TxRunner runs fn in one all-or-nothing transaction. *txn.Coordinator implements it.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error
}

// Ledger applies balance changes inside the caller's transaction. *ledger.Ledger implements it.
type Ledger interface {
	Credit(ctx context.Context, tx pgx.Tx, accountID uuid.UUID, amount int64, ref ledger.Ref) (int64, error)
	Debit(ctx context.Context, tx pgx.Tx, accountID uuid.UUID, amount int64, ref ledger.Ref) (int64, error)
	Balance(ctx context.Context, tx pgx.Tx, accountID uuid.UUID) (int64, error)
}

// Notifier enqueues a notification. Callers invoke it only after commit.
type Notifier interface {
	Notify(ctx context.Context, n models.Notification) error
}

type TaskStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Task, error)
	CreateTx(ctx context.Context, tx pgx.Tx, t *models.Task) error
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Task, error)
	DecrementSlotTx(ctx context.Context, tx pgx.Tx, id uuid.UUID) (int, error)
	IncrementSlotTx(ctx context.Context, tx pgx.Tx, id uuid.UUID) (int, error)
	UpdateDetailsTx(ctx context.Context, tx pgx.Tx, t *models.Task) error
	DeleteTx(ctx context.Context, tx pgx.Tx, id uuid.UUID) error
}

type SubmissionStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Submission, error)
	CreateTx(ctx context.Context, tx pgx.Tx, s *models.Submission) error
	ExistsForWorkerTx(ctx context.Context, tx pgx.Tx, taskID, workerID uuid.UUID) (bool, error)
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Submission, error)
	UpdateStatusTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, status string) error
}

type WithdrawalStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Withdrawal, error)
	CreateTx(ctx context.Context, tx pgx.Tx, w *models.Withdrawal) error
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Withdrawal, error)
	UpdateStatusTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, status string) error
}

type PaymentStore interface {
	CreateTx(ctx context.Context, tx pgx.Tx, p *models.Payment) error
	GetByExternalIDForUpdate(ctx context.Context, tx pgx.Tx, externalID string) (*models.Payment, error)
	UpdateStatusTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, status string) error
}

type AccountStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Account, error)
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Account, error)
	CreateIfMissingTx(ctx context.Context, tx pgx.Tx, a *models.Account) (bool, error)
}

// notify sends n after commit. Failures are logged and never reach the caller.
func notify(ctx context.Context, n Notifier, logger *slog.Logger, note models.Notification) {
	if n == nil {
		return
	}
	if err := n.Notify(ctx, note); err != nil {
		logger.Warn("notification dropped", "recipient_id", note.RecipientID, "error", err)
	}
}

func orDefault(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.Default()
	}
	return logger
}
