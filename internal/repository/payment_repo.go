package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/taskcoin/backend/internal/models"
)

type PaymentRepo struct {
	pool *pgxpool.Pool
}

func NewPaymentRepo(pool *pgxpool.Pool) *PaymentRepo {
	return &PaymentRepo{pool: pool}
}

const paymentColumns = `id, buyer_id, amount, coins, external_id, status, created_at, updated_at`

func scanPayment(row pgx.Row) (*models.Payment, error) {
	var p models.Payment
	err := row.Scan(&p.ID, &p.BuyerID, &p.Amount, &p.Coins, &p.ExternalID, &p.Status, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

// CreateTx inserts a payment. external_id is unique, so two transactions racing
// to record the same gateway transaction cannot both succeed.
func (r *PaymentRepo) CreateTx(ctx context.Context, tx pgx.Tx, p *models.Payment) error {
	return tx.QueryRow(ctx, `
		INSERT INTO payments (id, buyer_id, amount, coins, external_id, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at
	`, p.ID, p.BuyerID, p.Amount, p.Coins, p.ExternalID, p.Status).Scan(&p.CreatedAt, &p.UpdatedAt)
}

// GetByExternalIDForUpdate locks the payment recorded for a gateway transaction.
func (r *PaymentRepo) GetByExternalIDForUpdate(ctx context.Context, tx pgx.Tx, externalID string) (*models.Payment, error) {
	return scanPayment(tx.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE external_id = $1 FOR UPDATE`, externalID))
}

// UpdateStatusTx moves a pending payment to status. Returns models.ErrInvalidState
// when the row is no longer pending.
func (r *PaymentRepo) UpdateStatusTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, status string) error {
	tag, err := tx.Exec(ctx, `
		UPDATE payments SET status = $2, updated_at = now()
		WHERE id = $1 AND status = 'pending'
	`, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return models.ErrInvalidState
	}
	return nil
}
