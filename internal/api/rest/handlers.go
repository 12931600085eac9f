package rest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/matthock/snipsync/internal/backend"
	"github.com/matthock/snipsync/internal/capture"
	"github.com/matthock/snipsync/internal/jira"
	"github.com/matthock/snipsync/internal/lifecycle"
	"github.com/matthock/snipsync/pkg/types"
)

// Lifecycle is the slice of the lifecycle service the handlers dispatch to.
type Lifecycle interface {
	Tasks(ctx context.Context, filter types.Filter) ([]types.Task, error)
	SendToJira(ctx context.Context, taskID, assigneeID string) (*types.Task, error)
	Decline(ctx context.Context, taskID string) (*types.Task, error)
	Restore(ctx context.Context, taskID string) (*types.Task, error)
	Delete(ctx context.Context, taskID string) error
	ClearAll(ctx context.Context, confirmed bool) error
	SyncFromBackend(ctx context.Context) (int, error)
	SyncTasks(ctx context.Context) (int, error)
	WakeBackend(ctx context.Context, onAttempt func(attempt int)) error
	FindUsers(query string) ([]jira.UserRef, error)
}

// Capturer is the capture flow surface the handlers dispatch to.
type Capturer interface {
	Capture(ctx context.Context, sel capture.Selection) (*capture.Result, error)
	Confirm(ctx context.Context, draft types.Task, c capture.Confirmation) (*backend.CreateTaskResponse, error)
	PendingDraft(ctx context.Context) (*types.Task, error)
	DiscardDraft(ctx context.Context) error
}

// Handler serves all review surfaces over HTTP/JSON.
type Handler struct {
	lifecycle Lifecycle
	capturer  Capturer
	logger    *zap.Logger
}

// NewHandler creates a REST handler.
func NewHandler(lifecycle Lifecycle, capturer Capturer, logger *zap.Logger) *Handler {
	return &Handler{
		lifecycle: lifecycle,
		capturer:  capturer,
		logger:    logger,
	}
}

// ListTasks handles GET /tasks?filter=all|pending|sent|declined.
func (h *Handler) ListTasks(w http.ResponseWriter, r *http.Request) {
	filter := types.Filter(r.URL.Query().Get("filter"))
	if filter == "" {
		filter = types.FilterAll
	}

	tasks, err := h.lifecycle.Tasks(r.Context(), filter)
	if err != nil {
		h.logger.Error("failed to list tasks", zap.Error(err))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, map[string]any{"tasks": tasks})
}

// Capture handles POST /capture.
func (h *Handler) Capture(w http.ResponseWriter, r *http.Request) {
	var sel capture.Selection
	if err := json.NewDecoder(r.Body).Decode(&sel); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	result, err := h.capturer.Capture(r.Context(), sel)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	writeJSON(w, result)
}

// PendingDraft handles GET /capture/draft, read by the fallback surface on startup.
func (h *Handler) PendingDraft(w http.ResponseWriter, r *http.Request) {
	draft, err := h.capturer.PendingDraft(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if draft == nil {
		http.Error(w, "no pending capture", http.StatusNotFound)
		return
	}
	writeJSON(w, draft)
}

// ConfirmCaptureRequest is the POST /capture/confirm payload.
type ConfirmCaptureRequest struct {
	Draft       types.Task     `json:"draft"`
	Title       string         `json:"title"`
	Priority    types.Priority `json:"priority"`
	Deadline    string         `json:"deadline"`
	CapturedVia capture.Route  `json:"capturedVia"`
}

// ConfirmCapture handles POST /capture/confirm.
func (h *Handler) ConfirmCapture(w http.ResponseWriter, r *http.Request) {
	var req ConfirmCaptureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	created, err := h.capturer.Confirm(r.Context(), req.Draft, capture.Confirmation{
		Title:    req.Title,
		Priority: req.Priority,
		Deadline: req.Deadline,
		Via:      req.CapturedVia,
	})
	if err != nil {
		h.logger.Error("capture confirmation failed", zap.Error(err))
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}

	writeJSON(w, created)
}

// DiscardDraft handles DELETE /capture/draft.
func (h *Handler) DiscardDraft(w http.ResponseWriter, r *http.Request) {
	if err := h.capturer.DiscardDraft(r.Context()); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]bool{"success": true})
}

// SendTaskRequest is the POST /tasks/{id}/send payload.
type SendTaskRequest struct {
	AssigneeID string `json:"assigneeId"`
}

// SendTask handles POST /tasks/{id}/send.
func (h *Handler) SendTask(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "id")

	var req SendTaskRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	task, err := h.lifecycle.SendToJira(r.Context(), taskID, req.AssigneeID)
	if err != nil {
		h.logger.Error("failed to send task", zap.String("task_id", taskID), zap.Error(err))
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}

	writeJSON(w, task)
}

// DeclineTask handles POST /tasks/{id}/decline.
func (h *Handler) DeclineTask(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "id")
	task, err := h.lifecycle.Decline(r.Context(), taskID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	writeJSON(w, task)
}

// RestoreTask handles POST /tasks/{id}/restore.
func (h *Handler) RestoreTask(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "id")
	task, err := h.lifecycle.Restore(r.Context(), taskID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	writeJSON(w, task)
}

// DeleteTask handles DELETE /tasks/{id}.
func (h *Handler) DeleteTask(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "id")
	if err := h.lifecycle.Delete(r.Context(), taskID); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]bool{"success": true})
}

// ClearTasks handles DELETE /tasks?confirm=true.
func (h *Handler) ClearTasks(w http.ResponseWriter, r *http.Request) {
	confirmed := r.URL.Query().Get("confirm") == "true"
	err := h.lifecycle.ClearAll(r.Context(), confirmed)
	if errors.Is(err, lifecycle.ErrConfirmationRequired) {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]bool{"success": true})
}

// Sync handles POST /sync, a manual full refresh.
func (h *Handler) Sync(w http.ResponseWriter, r *http.Request) {
	added, err := h.lifecycle.SyncTasks(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]int{"added": added})
}

// WakeBackend handles POST /backend/wake. The wake poll is scoped to the
// request context: a disconnecting client cancels it.
func (h *Handler) WakeBackend(w http.ResponseWriter, r *http.Request) {
	attempts := 0
	err := h.lifecycle.WakeBackend(r.Context(), func(n int) { attempts = n })
	if err != nil {
		http.Error(w, err.Error(), http.StatusGatewayTimeout)
		return
	}
	writeJSON(w, map[string]any{"awake": true, "attempts": attempts})
}

// FindUsers handles GET /users?query=, for assignee selection.
func (h *Handler) FindUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.lifecycle.FindUsers(r.URL.Query().Get("query"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	writeJSON(w, map[string]any{"users": users})
}

// RegisterRoutes registers REST API routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/tasks", h.ListTasks)
	r.Delete("/tasks", h.ClearTasks)
	r.Post("/tasks/{id}/send", h.SendTask)
	r.Post("/tasks/{id}/decline", h.DeclineTask)
	r.Post("/tasks/{id}/restore", h.RestoreTask)
	r.Delete("/tasks/{id}", h.DeleteTask)
	r.Post("/capture", h.Capture)
	r.Get("/capture/draft", h.PendingDraft)
	r.Delete("/capture/draft", h.DiscardDraft)
	r.Post("/capture/confirm", h.ConfirmCapture)
	r.Post("/sync", h.Sync)
	r.Post("/backend/wake", h.WakeBackend)
	r.Get("/users", h.FindUsers)
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(payload)
}
