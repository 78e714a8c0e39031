package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/taskcoin/backend/internal/auth"
	"github.com/taskcoin/backend/internal/middleware"
	"github.com/taskcoin/backend/internal/models"
)

const maxBodyBytes = 1 << 20

// Validator checks a request body against a named JSON schema.
type Validator interface {
	Validate(name string, body []byte) error
}

var kindStatus = map[string]int{
	models.KindNotFound:            http.StatusNotFound,
	models.KindUnauthorized:        http.StatusForbidden,
	models.KindInsufficientBalance: http.StatusPaymentRequired,
	models.KindInvalidState:        http.StatusConflict,
	models.KindInvalidArgument:     http.StatusBadRequest,
	models.KindValidation:          http.StatusUnprocessableEntity,
	models.KindDuplicateSubmission: http.StatusConflict,
	models.KindSlotsExhausted:      http.StatusConflict,
	models.KindPaymentNotCompleted: http.StatusPaymentRequired,
	models.KindConcurrencyConflict: http.StatusConflict,
	models.KindExternalService:     http.StatusBadGateway,
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

// writeError maps err to a status by its kind. Errors outside the taxonomy are
// logged and reported without their message.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	kind := models.ErrorKind(err)
	status, ok := kindStatus[kind]
	if !ok {
		logger.Error("request failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error", Kind: models.KindInternal})
		return
	}
	if models.Retryable(err) {
		w.Header().Set("Retry-After", "1")
	}
	writeJSON(w, status, errorResponse{Error: err.Error(), Kind: kind})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// decodeBody reads the body, validates it against schema and decodes it into dst.
func decodeBody(w http.ResponseWriter, r *http.Request, v Validator, schema string, dst any) error {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return fmt.Errorf("request body exceeds %d bytes: %w", tooLarge.Limit, models.ErrValidation)
		}
		return fmt.Errorf("read body: %w: %w", models.ErrValidation, err)
	}
	if err := v.Validate(schema, body); err != nil {
		return err
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return fmt.Errorf("decode body: %w: %w", models.ErrValidation, err)
	}
	return nil
}

// principal returns the authenticated caller. The router only mounts these
// handlers behind middleware.Authenticate, so a missing principal is a wiring bug.
func principal(w http.ResponseWriter, r *http.Request) (*auth.Principal, bool) {
	p := middleware.PrincipalFromCtx(r.Context())
	if p == nil {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "unauthenticated", Kind: models.KindUnauthorized})
		return nil, false
	}
	return p, true
}

func pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid id", Kind: models.KindInvalidArgument})
		return uuid.Nil, false
	}
	return id, true
}

func orDefault(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.Default()
	}
	return logger
}
