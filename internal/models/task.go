package models

import (
	"time"

	"github.com/google/uuid"
)

type Task struct {
	ID             uuid.UUID  `json:"id"`
	OwnerID        uuid.UUID  `json:"owner_id"`
	Title          string     `json:"title"`
	Detail         string     `json:"detail"`
	SubmissionInfo string     `json:"submission_info"`
	ImageURL       string     `json:"image_url,omitempty"`
	CompletionDate *time.Time `json:"completion_date,omitempty"`
	// RequiredWorkers is the number of slots still open.
	RequiredWorkers int   `json:"required_workers"`
	PayableAmount   int64 `json:"payable_amount"`
	// TotalEscrow is fixed at creation and never recomputed.
	TotalEscrow int64     `json:"total_escrow"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// OpenEscrow is the coins still held against the open slots.
func (t *Task) OpenEscrow() int64 {
	return int64(t.RequiredWorkers) * t.PayableAmount
}
