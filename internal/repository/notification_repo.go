package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/taskcoin/backend/internal/models"
)

type NotificationRepo struct {
	pool *pgxpool.Pool
}

func NewNotificationRepo(pool *pgxpool.Pool) *NotificationRepo {
	return &NotificationRepo{pool: pool}
}

// Create inserts a notification. Inserting the same id twice is a no-op so a
// retried job does not duplicate the record.
func (r *NotificationRepo) Create(ctx context.Context, n *models.Notification) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO notifications (id, recipient_id, message, action_route)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO NOTHING
	`, n.ID, n.RecipientID, n.Message, n.ActionRoute)
	return err
}
