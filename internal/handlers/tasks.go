package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/taskcoin/backend/internal/models"
	"github.com/taskcoin/backend/internal/services"
)

// Escrow is the task lifecycle the handler drives. *services.EscrowService implements it.
type Escrow interface {
	GetTask(ctx context.Context, taskID uuid.UUID) (*models.Task, error)
	CreateTask(ctx context.Context, ownerID uuid.UUID, in services.NewTask) (*models.Task, int64, error)
	UpdateTask(ctx context.Context, ownerID, taskID uuid.UUID, patch services.TaskPatch) (*models.Task, error)
	DeleteTask(ctx context.Context, ownerID, taskID uuid.UUID) (int64, int64, error)
	AdminDeleteTask(ctx context.Context, taskID uuid.UUID) (int64, int64, error)
}

// TaskHandler serves /api/v1/tasks and /api/v1/admin/tasks.
type TaskHandler struct {
	Escrow    Escrow
	Validator Validator
	Logger    *slog.Logger
}

func NewTaskHandler(escrow Escrow, v Validator, logger *slog.Logger) *TaskHandler {
	return &TaskHandler{Escrow: escrow, Validator: v, Logger: orDefault(logger)}
}

type createTaskResponse struct {
	Task       *models.Task `json:"task"`
	NewBalance int64        `json:"new_balance"`
}

type deleteTaskResponse struct {
	TaskID     uuid.UUID `json:"task_id"`
	Refund     int64     `json:"refund"`
	NewBalance int64     `json:"new_balance"`
}

// Create handles POST /api/v1/tasks.
func (h *TaskHandler) Create(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	var req services.NewTask
	if err := decodeBody(w, r, h.Validator, services.SchemaCreateTask, &req); err != nil {
		writeError(w, h.Logger, err)
		return
	}

	task, balance, err := h.Escrow.CreateTask(r.Context(), p.AccountID, req)
	if err != nil {
		writeError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, createTaskResponse{Task: task, NewBalance: balance})
}

// Get handles GET /api/v1/tasks/{id}.
func (h *TaskHandler) Get(w http.ResponseWriter, r *http.Request) {
	taskID, ok := pathID(w, r)
	if !ok {
		return
	}
	task, err := h.Escrow.GetTask(r.Context(), taskID)
	if err != nil {
		writeError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// Update handles PATCH /api/v1/tasks/{id}.
func (h *TaskHandler) Update(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	taskID, ok := pathID(w, r)
	if !ok {
		return
	}
	var patch services.TaskPatch
	if err := decodeBody(w, r, h.Validator, services.SchemaUpdateTask, &patch); err != nil {
		writeError(w, h.Logger, err)
		return
	}

	task, err := h.Escrow.UpdateTask(r.Context(), p.AccountID, taskID, patch)
	if err != nil {
		writeError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// Delete handles DELETE /api/v1/tasks/{id}.
func (h *TaskHandler) Delete(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	taskID, ok := pathID(w, r)
	if !ok {
		return
	}

	refund, balance, err := h.Escrow.DeleteTask(r.Context(), p.AccountID, taskID)
	if err != nil {
		writeError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, deleteTaskResponse{TaskID: taskID, Refund: refund, NewBalance: balance})
}

// AdminDelete handles DELETE /api/v1/admin/tasks/{id}. The refund goes to the owner.
func (h *TaskHandler) AdminDelete(w http.ResponseWriter, r *http.Request) {
	taskID, ok := pathID(w, r)
	if !ok {
		return
	}

	refund, balance, err := h.Escrow.AdminDeleteTask(r.Context(), taskID)
	if err != nil {
		writeError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, deleteTaskResponse{TaskID: taskID, Refund: refund, NewBalance: balance})
}
