package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Withdrawal struct {
	ID            uuid.UUID       `json:"id"`
	WorkerID      uuid.UUID       `json:"worker_id"`
	Coins         int64           `json:"withdrawal_coin"`
	Amount        decimal.Decimal `json:"withdrawal_amount"`
	PaymentSystem string          `json:"payment_system"`
	AccountNumber string          `json:"account_number"`
	Status        string          `json:"status"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}
