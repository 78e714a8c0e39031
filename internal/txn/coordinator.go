// Package txn runs ledger operations as single all-or-nothing database transactions.
package txn

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/taskcoin/backend/internal/metrics"
	"github.com/taskcoin/backend/internal/models"
)

// Postgres error codes treated as a lost race. The operation is safe to rerun from scratch.
const (
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeUniqueViolation      = "23505"
)

// TxBeginner abstracts transaction creation so tests don't need a pgxpool.Pool.
type TxBeginner interface {
	BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error)
}

// Coordinator runs Funcs in a transaction, committing on nil and rolling back otherwise.
// Attempts that lose a race are retried up to maxAttempts times in total.
type Coordinator struct {
	db          TxBeginner
	maxAttempts int
	logger      *slog.Logger
}

// NewCoordinator returns a Coordinator. maxAttempts below 1 is treated as 1.
func NewCoordinator(db TxBeginner, maxAttempts int, logger *slog.Logger) *Coordinator {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{db: db, maxAttempts: maxAttempts, logger: logger}
}

// WithTx runs fn inside a transaction; fn must do all reads and writes through tx. Errors returned by fn are passed through unchanged
// (after rollback) unless they are a Postgres conflict, which surfaces as
// models.ErrConcurrencyConflict once attempts are exhausted.
func (c *Coordinator) WithTx(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error {
	var err error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		err = c.runOnce(ctx, fn)
		if !errors.Is(err, models.ErrConcurrencyConflict) {
			return err
		}
		metrics.RecordTx("conflict")
		if ctx.Err() != nil {
			return err
		}
		if attempt < c.maxAttempts {
			c.logger.Warn("transaction conflict, retrying", "attempt", attempt, "max_attempts", c.maxAttempts, "error", err)
		}
	}
	c.logger.Warn("transaction conflict, giving up", "attempts", c.maxAttempts, "error", err)
	return err
}

func (c *Coordinator) runOnce(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error {
	tx, err := c.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(ctx, tx); err != nil {
		metrics.RecordTx("rolled_back")
		return classify(err)
	}
	if err := tx.Commit(ctx); err != nil {
		metrics.RecordTx("rolled_back")
		return classify(fmt.Errorf("commit: %w", err))
	}
	metrics.RecordTx("committed")
	return nil
}

// classify maps Postgres conflict codes to models.ErrConcurrencyConflict.
func classify(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case codeSerializationFailure, codeDeadlockDetected, codeUniqueViolation:
		return fmt.Errorf("%w: %s (%s)", models.ErrConcurrencyConflict, pgErr.Message, pgErr.Code)
	}
	return err
}
