package tasks

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ent0n29/saba/internal/identity"
	"github.com/ent0n29/saba/internal/logger"
	"github.com/ent0n29/saba/internal/observability"
)

type listResponse struct {
	Success bool   `json:"success"`
	Tasks   []Task `json:"tasks"`
}

type taskResponse struct {
	Success bool `json:"success"`
	Task    Task `json:"task"`
	Deduped bool `json:"deduped,omitempty"`
}

type statusResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// Handler serves the task-service HTTP contract under /api/tasks.
type Handler struct {
	manager *Manager
	log     *slog.Logger
	metrics *observability.Metrics
}

func NewHandler(manager *Manager, log *slog.Logger, metrics *observability.Metrics) *Handler {
	if log == nil {
		log = logger.Nop()
	}
	return &Handler{manager: manager, log: log, metrics: metrics}
}

func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(observability.HTTPMiddleware(h.metrics))
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		respond(w, http.StatusOK, map[string]any{"status": "ok", "task_store_mode": h.manager.StoreMode()})
	})
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})
	r.Get("/api/tasks", h.handleList)
	r.Post("/api/tasks", h.handleCreate)
	r.Patch("/api/tasks/{id}", h.handleUpdate)
	r.Delete("/api/tasks/{id}", h.handleDelete)
	return r
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	userID, ok := resolveCaller(r, "")
	if !ok {
		respondFailure(w, http.StatusUnauthorized, "Missing or invalid token")
		return
	}
	tasks, err := h.manager.List(r.Context(), userID)
	if err != nil {
		h.log.Error("list tasks failed", "err", err)
		respondFailure(w, http.StatusInternalServerError, "Failed to fetch tasks")
		return
	}
	respond(w, http.StatusOK, listResponse{Success: true, Tasks: tasks})
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if err := decodeBody(r, &req); err != nil {
		respondFailure(w, http.StatusBadRequest, err.Error())
		return
	}
	userID, ok := resolveCaller(r, req.Token)
	if !ok {
		respondFailure(w, http.StatusUnauthorized, "Missing or invalid token")
		return
	}
	task, deduped, err := h.manager.Create(r.Context(), userID, req)
	if err != nil {
		if errors.Is(err, ErrInvalidTask) {
			respondFailure(w, http.StatusBadRequest, err.Error())
			return
		}
		h.log.Error("create task failed", "err", err)
		respondFailure(w, http.StatusInternalServerError, "Failed to create task")
		return
	}
	status := http.StatusCreated
	if deduped {
		status = http.StatusOK
	}
	respond(w, status, taskResponse{Success: true, Task: task, Deduped: deduped})
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	userID, ok := resolveCaller(r, "")
	if !ok {
		respondFailure(w, http.StatusUnauthorized, "Missing or invalid token")
		return
	}
	var patch Patch
	if err := decodeBody(r, &patch); err != nil {
		respondFailure(w, http.StatusBadRequest, err.Error())
		return
	}
	if patch.Empty() {
		respondFailure(w, http.StatusBadRequest, "no fields to update")
		return
	}
	task, err := h.manager.Update(r.Context(), userID, chi.URLParam(r, "id"), patch)
	if err != nil {
		h.respondManagerError(w, "update", err)
		return
	}
	respond(w, http.StatusOK, taskResponse{Success: true, Task: task})
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	userID, ok := resolveCaller(r, "")
	if !ok {
		respondFailure(w, http.StatusUnauthorized, "Missing or invalid token")
		return
	}
	if err := h.manager.Delete(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		h.respondManagerError(w, "delete", err)
		return
	}
	respond(w, http.StatusOK, statusResponse{Success: true})
}

func (h *Handler) respondManagerError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrTaskNotFound):
		respondFailure(w, http.StatusNotFound, "Task not found")
	case errors.Is(err, ErrInvalidTask):
		respondFailure(w, http.StatusBadRequest, err.Error())
	default:
		h.log.Error(op+" task failed", "err", err)
		respondFailure(w, http.StatusInternalServerError, "Failed to "+op+" task")
	}
}

// resolveCaller checks the token query parameter, then the body token, then
// the Authorization and token headers.
func resolveCaller(r *http.Request, bodyToken string) (string, bool) {
	candidates := []string{
		r.URL.Query().Get("token"),
		bodyToken,
		r.Header.Get("Authorization"),
		r.Header.Get("token"),
	}
	for _, c := range candidates {
		if strings.TrimSpace(c) == "" {
			continue
		}
		return identity.ResolveUser(c)
	}
	return "", false
}

func decodeBody(r *http.Request, out any) error {
	if r.Body == nil {
		return errors.New("request body is required")
	}
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	return nil
}

func respond(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondFailure(w http.ResponseWriter, status int, message string) {
	respond(w, status, statusResponse{Success: false, Error: message})
}
