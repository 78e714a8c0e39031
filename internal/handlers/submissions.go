package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/taskcoin/backend/internal/models"
	"github.com/taskcoin/backend/internal/services"
)

// Reviews is the submission lifecycle. *services.SubmissionService implements it.
type Reviews interface {
	Get(ctx context.Context, callerID, submissionID uuid.UUID) (*models.Submission, error)
	Submit(ctx context.Context, workerID, taskID uuid.UUID, details string) (*models.Submission, error)
	Approve(ctx context.Context, buyerID, submissionID uuid.UUID) (*models.Submission, error)
	Reject(ctx context.Context, buyerID, submissionID uuid.UUID) (*models.Submission, error)
}

// SubmissionHandler serves /api/v1/submissions.
type SubmissionHandler struct {
	Reviews   Reviews
	Validator Validator
	Logger    *slog.Logger
}

func NewSubmissionHandler(reviews Reviews, v Validator, logger *slog.Logger) *SubmissionHandler {
	return &SubmissionHandler{Reviews: reviews, Validator: v, Logger: orDefault(logger)}
}

type submitRequest struct {
	TaskID  uuid.UUID `json:"task_id"`
	Details string    `json:"submission_details"`
}

// Submit handles POST /api/v1/submissions.
func (h *SubmissionHandler) Submit(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	var req submitRequest
	if err := decodeBody(w, r, h.Validator, services.SchemaSubmitWork, &req); err != nil {
		writeError(w, h.Logger, err)
		return
	}

	sub, err := h.Reviews.Submit(r.Context(), p.AccountID, req.TaskID, req.Details)
	if err != nil {
		writeError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, sub)
}

// Get handles GET /api/v1/submissions/{id}.
func (h *SubmissionHandler) Get(w http.ResponseWriter, r *http.Request) {
	h.byID(w, r, h.Reviews.Get)
}

// Approve handles POST /api/v1/submissions/{id}/approve.
func (h *SubmissionHandler) Approve(w http.ResponseWriter, r *http.Request) {
	h.byID(w, r, h.Reviews.Approve)
}

// Reject handles POST /api/v1/submissions/{id}/reject.
func (h *SubmissionHandler) Reject(w http.ResponseWriter, r *http.Request) {
	h.byID(w, r, h.Reviews.Reject)
}

func (h *SubmissionHandler) byID(w http.ResponseWriter, r *http.Request, fn func(context.Context, uuid.UUID, uuid.UUID) (*models.Submission, error)) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	sub, err := fn(r.Context(), p.AccountID, id)
	if err != nil {
		writeError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}
