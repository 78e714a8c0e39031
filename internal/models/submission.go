package models

import (
	"time"

	"github.com/google/uuid"
)

// Submission and withdrawal status enums.
const (
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusRejected = "rejected"
)

type Submission struct {
	ID            uuid.UUID `json:"id"`
	TaskID        uuid.UUID `json:"task_id"`
	TaskTitle     string    `json:"task_title"`
	WorkerID      uuid.UUID `json:"worker_id"`
	BuyerID       uuid.UUID `json:"buyer_id"`
	PayableAmount int64     `json:"payable_amount"`
	Details       string    `json:"details"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}
