// Package notify delivers user notifications through a river job queue. Jobs
// are enqueued after the owning ledger transaction commits and a worker
// persists them to the notifications table.
package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"

	"github.com/taskcoin/backend/internal/metrics"
	"github.com/taskcoin/backend/internal/models"
)

type NotificationArgs struct {
	ID          uuid.UUID `json:"id"`
	RecipientID uuid.UUID `json:"recipient_id"`
	Message     string    `json:"message"`
	ActionRoute string    `json:"action_route"`
}

func (NotificationArgs) Kind() string { return "notification" }

func (NotificationArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{MaxAttempts: 5}
}

// Store persists delivered notifications.
type Store interface {
	Create(ctx context.Context, n *models.Notification) error
}

type Worker struct {
	river.WorkerDefaults[NotificationArgs]
	store Store
}

func NewWorker(store Store) *Worker {
	return &Worker{store: store}
}

func (w *Worker) Work(ctx context.Context, job *river.Job[NotificationArgs]) error {
	args := job.Args
	n := &models.Notification{
		ID:          args.ID,
		RecipientID: args.RecipientID,
		Message:     args.Message,
		ActionRoute: args.ActionRoute,
	}
	if err := w.store.Create(ctx, n); err != nil {
		return fmt.Errorf("store notification %s: %w", args.ID, err)
	}
	return nil
}

// Inserter is the part of *river.Client used to enqueue jobs.
type Inserter interface {
	Insert(ctx context.Context, args river.JobArgs, opts *river.InsertOpts) (*rivertype.JobInsertResult, error)
}

// Dispatcher enqueues notifications outside of any ledger transaction.
type Dispatcher struct {
	inserter Inserter
	logger   *slog.Logger
}

func NewDispatcher(inserter Inserter, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{inserter: inserter, logger: logger}
}

// Notify enqueues one notification. A zero ID is replaced with a fresh one.
func (d *Dispatcher) Notify(ctx context.Context, n models.Notification) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	_, err := d.inserter.Insert(ctx, NotificationArgs{
		ID:          n.ID,
		RecipientID: n.RecipientID,
		Message:     n.Message,
		ActionRoute: n.ActionRoute,
	}, nil)
	metrics.RecordNotification(err == nil)
	if err != nil {
		return fmt.Errorf("enqueue notification: %w", err)
	}
	d.logger.Debug("notification enqueued", "notification_id", n.ID, "recipient_id", n.RecipientID)
	return nil
}
