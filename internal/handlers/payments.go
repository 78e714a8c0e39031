package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/taskcoin/backend/internal/services"
)

// Topups turns card payments into coins. *services.TopupService implements it.
type Topups interface {
	CreateIntent(ctx context.Context, buyerID uuid.UUID, amount decimal.Decimal, coins int64) (*services.PaymentIntent, error)
	Confirm(ctx context.Context, buyerID uuid.UUID, externalID string, amount decimal.Decimal, coins int64) (*services.ConfirmResult, error)
}

// PaymentHandler serves /api/v1/payments.
type PaymentHandler struct {
	Topups    Topups
	Validator Validator
	Logger    *slog.Logger
}

func NewPaymentHandler(t Topups, v Validator, logger *slog.Logger) *PaymentHandler {
	return &PaymentHandler{Topups: t, Validator: v, Logger: orDefault(logger)}
}

type createIntentRequest struct {
	Amount decimal.Decimal `json:"amount"`
	Coins  int64           `json:"coins"`
}

type confirmRequest struct {
	PaymentIntentID string          `json:"payment_intent_id"`
	Amount          decimal.Decimal `json:"amount"`
	Coins           int64           `json:"coins"`
}

// CreateIntent handles POST /api/v1/payments/intents.
func (h *PaymentHandler) CreateIntent(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	var req createIntentRequest
	if err := decodeBody(w, r, h.Validator, services.SchemaCreatePaymentIntent, &req); err != nil {
		writeError(w, h.Logger, err)
		return
	}

	pi, err := h.Topups.CreateIntent(r.Context(), p.AccountID, req.Amount, req.Coins)
	if err != nil {
		writeError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, pi)
}

// Confirm handles POST /api/v1/payments/confirm. A replayed confirmation
// answers 200 with the stored payment; a first credit answers 201.
func (h *PaymentHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	var req confirmRequest
	if err := decodeBody(w, r, h.Validator, services.SchemaConfirmPayment, &req); err != nil {
		writeError(w, h.Logger, err)
		return
	}

	res, err := h.Topups.Confirm(r.Context(), p.AccountID, req.PaymentIntentID, req.Amount, req.Coins)
	if err != nil {
		writeError(w, h.Logger, err)
		return
	}
	status := http.StatusCreated
	if res.Replayed {
		status = http.StatusOK
	}
	writeJSON(w, status, res)
}
