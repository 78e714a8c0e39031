package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/taskcoin/backend/internal/models"
)

type TaskRepo struct {
	pool *pgxpool.Pool
}

func NewTaskRepo(pool *pgxpool.Pool) *TaskRepo {
	return &TaskRepo{pool: pool}
}

const taskColumns = `id, owner_id, title, detail, submission_info, image_url, completion_date, required_workers, payable_amount, total_escrow, created_at, updated_at`

func scanTask(row pgx.Row) (*models.Task, error) {
	var t models.Task
	err := row.Scan(&t.ID, &t.OwnerID, &t.Title, &t.Detail, &t.SubmissionInfo, &t.ImageURL, &t.CompletionDate,
		&t.RequiredWorkers, &t.PayableAmount, &t.TotalEscrow, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &t, nil
}

// CreateTx inserts the task inside the given transaction.
func (r *TaskRepo) CreateTx(ctx context.Context, tx pgx.Tx, t *models.Task) error {
	return tx.QueryRow(ctx, `
		INSERT INTO tasks (id, owner_id, title, detail, submission_info, image_url, completion_date, required_workers, payable_amount, total_escrow)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at
	`, t.ID, t.OwnerID, t.Title, t.Detail, t.SubmissionInfo, t.ImageURL, t.CompletionDate, t.RequiredWorkers, t.PayableAmount, t.TotalEscrow).Scan(&t.CreatedAt, &t.UpdatedAt)
}

func (r *TaskRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Task, error) {
	return scanTask(r.pool.QueryRow(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = $1`, id))
}

// GetByIDForUpdate locks the task row. Returns models.ErrNotFound when the task is gone.
func (r *TaskRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Task, error) {
	return scanTask(tx.QueryRow(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = $1 FOR UPDATE`, id))
}

// DecrementSlotTx closes one slot, never going below zero, and returns the slots left.
func (r *TaskRepo) DecrementSlotTx(ctx context.Context, tx pgx.Tx, id uuid.UUID) (int, error) {
	var left int
	err := tx.QueryRow(ctx, `
		UPDATE tasks SET required_workers = GREATEST(required_workers - 1, 0), updated_at = now()
		WHERE id = $1
		RETURNING required_workers
	`, id).Scan(&left)
	return left, notFound(err)
}

// IncrementSlotTx reopens one slot and returns the slots left.
func (r *TaskRepo) IncrementSlotTx(ctx context.Context, tx pgx.Tx, id uuid.UUID) (int, error) {
	var left int
	err := tx.QueryRow(ctx, `
		UPDATE tasks SET required_workers = required_workers + 1, updated_at = now()
		WHERE id = $1
		RETURNING required_workers
	`, id).Scan(&left)
	return left, notFound(err)
}

// UpdateDetailsTx rewrites the descriptive fields only. Slots and escrow are untouched.
func (r *TaskRepo) UpdateDetailsTx(ctx context.Context, tx pgx.Tx, t *models.Task) error {
	return notFound(tx.QueryRow(ctx, `
		UPDATE tasks SET title = $2, detail = $3, submission_info = $4, updated_at = now()
		WHERE id = $1
		RETURNING updated_at
	`, t.ID, t.Title, t.Detail, t.SubmissionInfo).Scan(&t.UpdatedAt))
}

func (r *TaskRepo) DeleteTx(ctx context.Context, tx pgx.Tx, id uuid.UUID) error {
	tag, err := tx.Exec(ctx, "DELETE FROM tasks WHERE id = $1", id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}
