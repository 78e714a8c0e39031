package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/taskcoin/backend/internal/models"
	"github.com/taskcoin/backend/internal/services"
)

// Withdrawals is the withdrawal lifecycle. *services.WithdrawalService implements it.
type Withdrawals interface {
	Get(ctx context.Context, workerID, withdrawalID uuid.UUID) (*models.Withdrawal, error)
	Request(ctx context.Context, workerID uuid.UUID, req services.WithdrawalRequest) (*models.Withdrawal, error)
	Approve(ctx context.Context, adminID, withdrawalID uuid.UUID) (*models.Withdrawal, error)
	Reject(ctx context.Context, adminID, withdrawalID uuid.UUID) (*models.Withdrawal, error)
}

// WithdrawalHandler serves /api/v1/withdrawals and /api/v1/admin/withdrawals.
type WithdrawalHandler struct {
	Withdrawals Withdrawals
	Validator   Validator
	Logger      *slog.Logger
}

func NewWithdrawalHandler(ws Withdrawals, v Validator, logger *slog.Logger) *WithdrawalHandler {
	return &WithdrawalHandler{Withdrawals: ws, Validator: v, Logger: orDefault(logger)}
}

// Request handles POST /api/v1/withdrawals.
func (h *WithdrawalHandler) Request(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	var req services.WithdrawalRequest
	if err := decodeBody(w, r, h.Validator, services.SchemaRequestWithdrawal, &req); err != nil {
		writeError(w, h.Logger, err)
		return
	}

	wd, err := h.Withdrawals.Request(r.Context(), p.AccountID, req)
	if err != nil {
		writeError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, wd)
}

// Get handles GET /api/v1/withdrawals/{id}.
func (h *WithdrawalHandler) Get(w http.ResponseWriter, r *http.Request) {
	h.byID(w, r, h.Withdrawals.Get)
}

// Approve handles POST /api/v1/admin/withdrawals/{id}/approve.
func (h *WithdrawalHandler) Approve(w http.ResponseWriter, r *http.Request) {
	h.byID(w, r, h.Withdrawals.Approve)
}

// Reject handles POST /api/v1/admin/withdrawals/{id}/reject.
func (h *WithdrawalHandler) Reject(w http.ResponseWriter, r *http.Request) {
	h.byID(w, r, h.Withdrawals.Reject)
}

func (h *WithdrawalHandler) byID(w http.ResponseWriter, r *http.Request, fn func(context.Context, uuid.UUID, uuid.UUID) (*models.Withdrawal, error)) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	wd, err := fn(r.Context(), p.AccountID, id)
	if err != nil {
		writeError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, wd)
}
