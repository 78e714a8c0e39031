package services

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/taskcoin/backend/internal/ledger"
	"github.com/taskcoin/backend/internal/metrics"
	"github.com/taskcoin/backend/internal/models"
)

// NewTask is a buyer's request to open a task.
type NewTask struct {
	Title           string     `json:"task_title"`
	Detail          string     `json:"task_detail"`
	SubmissionInfo  string     `json:"submission_info"`
	ImageURL        string     `json:"task_image_url"`
	CompletionDate  *time.Time `json:"completion_date"`
	RequiredWorkers int        `json:"required_workers"`
	PayableAmount   int64      `json:"payable_amount"`
}

// TaskPatch changes descriptive fields only. Nil fields are left alone.
type TaskPatch struct {
	Title          *string `json:"task_title"`
	Detail         *string `json:"task_detail"`
	SubmissionInfo *string `json:"submission_info"`
}

// EscrowService opens and closes tasks, moving the escrowed coins between the
// owner's balance and the task's open slots.
type EscrowService struct {
	Tx     TxRunner
	Ledger Ledger
	Tasks  TaskStore
	Logger *slog.Logger
}

func NewEscrowService(tx TxRunner, l Ledger, tasks TaskStore, logger *slog.Logger) *EscrowService {
	return &EscrowService{Tx: tx, Ledger: l, Tasks: tasks, Logger: orDefault(logger)}
}

// CreateTask debits required_workers × payable_amount from the owner and opens
// the task in the same transaction. It returns the task and the owner's new balance.
func (s *EscrowService) CreateTask(ctx context.Context, ownerID uuid.UUID, in NewTask) (*models.Task, int64, error) {
	if in.RequiredWorkers < 0 || in.PayableAmount < 0 {
		return nil, 0, fmt.Errorf("required_workers %d, payable_amount %d: %w", in.RequiredWorkers, in.PayableAmount, models.ErrInvalidArgument)
	}
	if strings.TrimSpace(in.Title) == "" {
		return nil, 0, fmt.Errorf("task title is required: %w", models.ErrInvalidArgument)
	}
	if in.PayableAmount > 0 && int64(in.RequiredWorkers) > math.MaxInt64/in.PayableAmount {
		return nil, 0, fmt.Errorf("task escrow overflows: %w", models.ErrInvalidArgument)
	}
	total := int64(in.RequiredWorkers) * in.PayableAmount

	task := &models.Task{
		ID:              uuid.New(),
		OwnerID:         ownerID,
		Title:           in.Title,
		Detail:          in.Detail,
		SubmissionInfo:  in.SubmissionInfo,
		ImageURL:        in.ImageURL,
		CompletionDate:  in.CompletionDate,
		RequiredWorkers: in.RequiredWorkers,
		PayableAmount:   in.PayableAmount,
		TotalEscrow:     total,
	}

	var balance int64
	err := s.Tx.WithTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		var err error
		if total > 0 {
			balance, err = s.Ledger.Debit(ctx, tx, ownerID, total, ledger.Ref{EntryType: models.EntryEscrowLock, TaskID: &task.ID})
		} else {
			balance, err = s.Ledger.Balance(ctx, tx, ownerID)
		}
		if err != nil {
			return err
		}
		if err := s.Tasks.CreateTx(ctx, tx, task); err != nil {
			return fmt.Errorf("insert task: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, 0, fmt.Errorf("create task: %w", err)
	}

	metrics.RecordCoins(models.EntryEscrowLock, total)
	s.Logger.Info("task created", "task_id", task.ID, "owner_id", ownerID, "escrow", total)
	return task, balance, nil
}

// DeleteTask removes an owner's task and refunds the escrow still held by its
// open slots. Pending submissions against the task are left in place.
func (s *EscrowService) DeleteTask(ctx context.Context, ownerID, taskID uuid.UUID) (int64, int64, error) {
	return s.deleteTask(ctx, taskID, func(t *models.Task) error {
		if t.OwnerID != ownerID {
			return fmt.Errorf("task %s belongs to another buyer: %w", taskID, models.ErrUnauthorized)
		}
		return nil
	})
}

// AdminDeleteTask removes any task and refunds its open escrow to the owner.
// The returned balance is the owner's.
func (s *EscrowService) AdminDeleteTask(ctx context.Context, taskID uuid.UUID) (int64, int64, error) {
	return s.deleteTask(ctx, taskID, func(*models.Task) error { return nil })
}

func (s *EscrowService) deleteTask(ctx context.Context, taskID uuid.UUID, authorize func(*models.Task) error) (int64, int64, error) {
	var refund, balance int64
	var ownerID uuid.UUID
	err := s.Tx.WithTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		task, err := s.Tasks.GetByIDForUpdate(ctx, tx, taskID)
		if err != nil {
			return fmt.Errorf("task %s: %w", taskID, err)
		}
		if err := authorize(task); err != nil {
			return err
		}
		ownerID = task.OwnerID
		refund = task.OpenEscrow()

		if err := s.Tasks.DeleteTx(ctx, tx, taskID); err != nil {
			return fmt.Errorf("remove task: %w", err)
		}
		if refund > 0 {
			balance, err = s.Ledger.Credit(ctx, tx, ownerID, refund, ledger.Ref{EntryType: models.EntryEscrowRefund, TaskID: &taskID})
		} else {
			balance, err = s.Ledger.Balance(ctx, tx, ownerID)
		}
		return err
	})
	if err != nil {
		return 0, 0, fmt.Errorf("delete task: %w", err)
	}

	metrics.RecordCoins(models.EntryEscrowRefund, refund)
	s.Logger.Info("task deleted", "task_id", taskID, "owner_id", ownerID, "refund", refund)
	return refund, balance, nil
}

// GetTask reads a task without locking it.
func (s *EscrowService) GetTask(ctx context.Context, taskID uuid.UUID) (*models.Task, error) {
	t, err := s.Tasks.GetByID(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("task %s: %w", taskID, err)
	}
	return t, nil
}

// UpdateTask lets the owner edit the task's descriptive fields. Escrow and
// slot counts cannot be changed this way.
func (s *EscrowService) UpdateTask(ctx context.Context, ownerID, taskID uuid.UUID, patch TaskPatch) (*models.Task, error) {
	if patch.Title != nil && strings.TrimSpace(*patch.Title) == "" {
		return nil, fmt.Errorf("task title cannot be empty: %w", models.ErrInvalidArgument)
	}
	var task *models.Task
	err := s.Tx.WithTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		var err error
		task, err = s.Tasks.GetByIDForUpdate(ctx, tx, taskID)
		if err != nil {
			return fmt.Errorf("task %s: %w", taskID, err)
		}
		if task.OwnerID != ownerID {
			return fmt.Errorf("task %s belongs to another buyer: %w", taskID, models.ErrUnauthorized)
		}
		if patch.Title != nil {
			task.Title = *patch.Title
		}
		if patch.Detail != nil {
			task.Detail = *patch.Detail
		}
		if patch.SubmissionInfo != nil {
			task.SubmissionInfo = *patch.SubmissionInfo
		}
		return s.Tasks.UpdateDetailsTx(ctx, tx, task)
	})
	if err != nil {
		return nil, fmt.Errorf("update task: %w", err)
	}
	return task, nil
}
