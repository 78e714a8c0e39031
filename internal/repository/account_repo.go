package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/taskcoin/backend/internal/models"
)

type AccountRepo struct {
	pool *pgxpool.Pool
}

func NewAccountRepo(pool *pgxpool.Pool) *AccountRepo {
	return &AccountRepo{pool: pool}
}

const accountColumns = `id, email, name, role, coins, created_at, updated_at`

func scanAccount(row pgx.Row) (*models.Account, error) {
	var a models.Account
	if err := row.Scan(&a.ID, &a.Email, &a.Name, &a.Role, &a.Coins, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, notFound(err)
	}
	return &a, nil
}

// CreateIfMissingTx inserts the account with its starting balance unless an
// account with the same id or email exists. It reports whether a row was inserted.
func (r *AccountRepo) CreateIfMissingTx(ctx context.Context, tx pgx.Tx, a *models.Account) (bool, error) {
	tag, err := tx.Exec(ctx, `
		INSERT INTO accounts (id, email, name, role, coins)
		VALUES ($1, $2, $3, $4, 0)
		ON CONFLICT DO NOTHING
	`, a.ID, a.Email, a.Name, a.Role)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *AccountRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	return scanAccount(r.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id))
}

// GetByIDForUpdate locks the account row for update. Call within a transaction.
func (r *AccountRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Account, error) {
	return scanAccount(tx.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1 FOR UPDATE`, id))
}

// DeductCoins atomically deducts amount if coins >= amount. Returns the new balance,
// or models.ErrInsufficientBalance when the guard fails.
func (r *AccountRepo) DeductCoins(ctx context.Context, tx pgx.Tx, id uuid.UUID, amount int64) (newBalance int64, err error) {
	err = tx.QueryRow(ctx, `
		UPDATE accounts SET coins = coins - $1, updated_at = now()
		WHERE id = $2 AND coins >= $1
		RETURNING coins
	`, amount, id).Scan(&newBalance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, models.ErrInsufficientBalance
	}
	return newBalance, err
}

// AddCoins adds amount to the account and returns the new balance.
func (r *AccountRepo) AddCoins(ctx context.Context, tx pgx.Tx, id uuid.UUID, amount int64) (newBalance int64, err error) {
	err = tx.QueryRow(ctx, `
		UPDATE accounts SET coins = coins + $1, updated_at = now()
		WHERE id = $2
		RETURNING coins
	`, amount, id).Scan(&newBalance)
	return newBalance, notFound(err)
}
