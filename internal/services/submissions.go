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

// SubmissionService runs the pending → approved | rejected lifecycle of a
// worker's claim on a task slot.
type SubmissionService struct {
	Tx          TxRunner
	Ledger      Ledger
	Tasks       TaskStore
	Submissions SubmissionStore
	Notifier    Notifier
	Logger      *slog.Logger
}

func NewSubmissionService(tx TxRunner, l Ledger, tasks TaskStore, subs SubmissionStore, n Notifier, logger *slog.Logger) *SubmissionService {
	return &SubmissionService{Tx: tx, Ledger: l, Tasks: tasks, Submissions: subs, Notifier: n, Logger: orDefault(logger)}
}

// Submit records a pending claim by the worker. Balances and slot counts are
// not touched, so several workers may hold pending claims on the last slot.
// Request bodies reach it already checked against SchemaSubmitWork.
func (s *SubmissionService) Submit(ctx context.Context, workerID, taskID uuid.UUID, details string) (*models.Submission, error) {
	var sub *models.Submission
	err := s.Tx.WithTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		task, err := s.Tasks.GetByIDForUpdate(ctx, tx, taskID)
		if err != nil {
			return fmt.Errorf("task %s: %w", taskID, err)
		}
		if task.RequiredWorkers <= 0 {
			return fmt.Errorf("task %s: %w", taskID, models.ErrSlotsExhausted)
		}
		exists, err := s.Submissions.ExistsForWorkerTx(ctx, tx, taskID, workerID)
		if err != nil {
			return fmt.Errorf("check existing submission: %w", err)
		}
		if exists {
			return fmt.Errorf("worker %s already submitted to task %s: %w", workerID, taskID, models.ErrDuplicateSubmission)
		}
		sub = &models.Submission{
			ID:            uuid.New(),
			TaskID:        taskID,
			TaskTitle:     task.Title,
			WorkerID:      workerID,
			BuyerID:       task.OwnerID,
			PayableAmount: task.PayableAmount,
			Details:       details,
			Status:        models.StatusPending,
		}
		if err := s.Submissions.CreateTx(ctx, tx, sub); err != nil {
			return fmt.Errorf("insert submission: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("submit work: %w", err)
	}

	metrics.RecordTransition("submission", models.StatusPending)
	notify(ctx, s.Notifier, s.Logger, models.Notification{
		RecipientID: sub.BuyerID,
		Message:     fmt.Sprintf("New submission received for task %q", sub.TaskTitle),
		ActionRoute: "/dashboard/buyer-home",
	})
	return sub, nil
}

// Get returns a submission to its worker or to the buyer who reviews it.
func (s *SubmissionService) Get(ctx context.Context, callerID, submissionID uuid.UUID) (*models.Submission, error) {
	sub, err := s.Submissions.GetByID(ctx, submissionID)
	if err != nil {
		return nil, fmt.Errorf("submission %s: %w", submissionID, err)
	}
	if sub.WorkerID != callerID && sub.BuyerID != callerID {
		return nil, fmt.Errorf("submission %s: %w", submissionID, models.ErrUnauthorized)
	}
	return sub, nil
}

// Approve pays the worker the frozen payable amount and closes one slot, all
// in one transaction. If the task has been deleted meanwhile, the worker is
// still paid and no slot is touched.
func (s *SubmissionService) Approve(ctx context.Context, buyerID, submissionID uuid.UUID) (*models.Submission, error) {
	var taskGone bool
	sub, err := s.decide(ctx, buyerID, submissionID, models.StatusApproved, func(ctx context.Context, tx pgx.Tx, sub *models.Submission, taskExists bool) error {
		taskGone = !taskExists
		if sub.PayableAmount > 0 {
			ref := ledger.Ref{EntryType: models.EntryTaskEarning, TaskID: &sub.TaskID, SubmissionID: &sub.ID}
			if _, err := s.Ledger.Credit(ctx, tx, sub.WorkerID, sub.PayableAmount, ref); err != nil {
				return err
			}
		}
		if taskExists {
			if _, err := s.Tasks.DecrementSlotTx(ctx, tx, sub.TaskID); err != nil {
				return fmt.Errorf("close slot: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("approve submission: %w", err)
	}

	if taskGone {
		s.Logger.Warn("submission approved after its task was deleted", "submission_id", sub.ID, "task_id", sub.TaskID)
	}
	metrics.RecordCoins(models.EntryTaskEarning, sub.PayableAmount)
	notify(ctx, s.Notifier, s.Logger, models.Notification{
		RecipientID: sub.WorkerID,
		Message:     fmt.Sprintf("You have earned %d coins for completing %q", sub.PayableAmount, sub.TaskTitle),
		ActionRoute: "/dashboard/worker-home",
	})
	return sub, nil
}

// Reject closes the submission and returns its slot to the task, if the task
// still exists. No coins move.
func (s *SubmissionService) Reject(ctx context.Context, buyerID, submissionID uuid.UUID) (*models.Submission, error) {
	sub, err := s.decide(ctx, buyerID, submissionID, models.StatusRejected, func(ctx context.Context, tx pgx.Tx, sub *models.Submission, taskExists bool) error {
		if !taskExists {
			return nil
		}
		if _, err := s.Tasks.IncrementSlotTx(ctx, tx, sub.TaskID); err != nil {
			return fmt.Errorf("reopen slot: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("reject submission: %w", err)
	}

	notify(ctx, s.Notifier, s.Logger, models.Notification{
		RecipientID: sub.WorkerID,
		Message:     fmt.Sprintf("Your submission for %q was rejected", sub.TaskTitle),
		ActionRoute: "/dashboard/my-submissions",
	})
	return sub, nil
}

// decide locks the submission, then its task, checks the buyer and the
// pending precondition, runs apply and records the terminal status.
func (s *SubmissionService) decide(
	ctx context.Context,
	buyerID, submissionID uuid.UUID,
	status string,
	apply func(ctx context.Context, tx pgx.Tx, sub *models.Submission, taskExists bool) error,
) (*models.Submission, error) {
	var sub *models.Submission
	err := s.Tx.WithTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		var err error
		sub, err = s.Submissions.GetByIDForUpdate(ctx, tx, submissionID)
		if err != nil {
			return fmt.Errorf("submission %s: %w", submissionID, err)
		}
		if sub.BuyerID != buyerID {
			return fmt.Errorf("submission %s belongs to another buyer: %w", submissionID, models.ErrUnauthorized)
		}
		if sub.Status != models.StatusPending {
			return fmt.Errorf("submission %s is %s: %w", submissionID, sub.Status, models.ErrInvalidState)
		}

		taskExists := true
		if _, err := s.Tasks.GetByIDForUpdate(ctx, tx, sub.TaskID); err != nil {
			if !errors.Is(err, models.ErrNotFound) {
				return fmt.Errorf("lock task: %w", err)
			}
			taskExists = false
		}

		if err := apply(ctx, tx, sub, taskExists); err != nil {
			return err
		}
		if err := s.Submissions.UpdateStatusTx(ctx, tx, sub.ID, status); err != nil {
			return fmt.Errorf("set status %s: %w", status, err)
		}
		sub.Status = status
		return nil
	})
	if err != nil {
		return nil, err
	}
	metrics.RecordTransition("submission", status)
	return sub, nil
}
