package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/taskcoin/backend/internal/models"
)

// Accounts reads account state. *services.AccountService implements it.
type Accounts interface {
	Get(ctx context.Context, id uuid.UUID) (*models.Account, error)
}

type AccountHandler struct {
	Accounts Accounts
	Logger   *slog.Logger
}

func NewAccountHandler(accounts Accounts, logger *slog.Logger) *AccountHandler {
	return &AccountHandler{Accounts: accounts, Logger: orDefault(logger)}
}

// Me handles GET /api/v1/me.
func (h *AccountHandler) Me(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	acc, err := h.Accounts.Get(r.Context(), p.AccountID)
	if err != nil {
		writeError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, acc)
}
