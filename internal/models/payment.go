package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Payment status enums.
const (
	PaymentStatusPending   = "pending"
	PaymentStatusCompleted = "completed"
	PaymentStatusFailed    = "failed"
)

type Payment struct {
	ID      uuid.UUID       `json:"id"`
	BuyerID uuid.UUID       `json:"buyer_id"`
	Amount  decimal.Decimal `json:"amount"`
	Coins   int64           `json:"coins_purchased"`
	// ExternalID is the gateway transaction id and the idempotency key for crediting.
	ExternalID string    `json:"external_id"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}
