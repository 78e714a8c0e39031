package models

import (
	"time"

	"github.com/google/uuid"
)

// Ledger entry_type enums. escrow_lock and withdrawal are debits, the rest are credits.
const (
	EntryEscrowLock   = "escrow_lock"
	EntryEscrowRefund = "escrow_refund"
	EntryTaskEarning  = "task_earning"
	EntryWithdrawal   = "withdrawal"
	EntryTopup        = "topup"
	EntrySignupBonus  = "signup_bonus"
)

type LedgerEntry struct {
	ID           uuid.UUID  `json:"id"`
	AccountID    uuid.UUID  `json:"account_id"`
	EntryType    string     `json:"entry_type"`
	Amount       int64      `json:"amount"`
	BalanceAfter int64      `json:"balance_after"`
	TaskID       *uuid.UUID `json:"task_id,omitempty"`
	SubmissionID *uuid.UUID `json:"submission_id,omitempty"`
	WithdrawalID *uuid.UUID `json:"withdrawal_id,omitempty"`
	PaymentID    *uuid.UUID `json:"payment_id,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// IsDebit reports whether the entry type removes coins from the account.
func IsDebit(entryType string) bool {
	return entryType == EntryEscrowLock || entryType == EntryWithdrawal
}

// Signed returns the balance delta the entry applied to its account.
func (e *LedgerEntry) Signed() int64 {
	if IsDebit(e.EntryType) {
		return -e.Amount
	}
	return e.Amount
}
