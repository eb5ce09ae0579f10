package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ent0n29/saba/internal/events"
	"github.com/ent0n29/saba/internal/taskservice"
	"github.com/ent0n29/saba/internal/tasks"
)

type tasksResponse struct {
	Success bool         `json:"success"`
	Tasks   []tasks.Task `json:"tasks"`
}

type taskResponse struct {
	Success bool       `json:"success"`
	Task    tasks.Task `json:"task"`
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	if !s.taskServiceEnabled(w) {
		return
	}
	_, token := caller(r)
	list, err := s.deps.Tasks.List(r.Context(), token)
	if err != nil {
		s.respondTaskError(w, "list tasks", err)
		return
	}
	if list == nil {
		list = []tasks.Task{}
	}
	respondJSON(w, http.StatusOK, tasksResponse{Success: true, Tasks: list})
}

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	if !s.taskServiceEnabled(w) {
		return
	}
	userID, token := caller(r)
	var req tasks.CreateRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "content is required")
		return
	}
	// The task is always created for the authenticated caller.
	req.Token = token

	task, err := s.deps.Tasks.Create(r.Context(), token, req)
	if err != nil {
		s.respondTaskError(w, "create task", err)
		return
	}
	s.notify(userID, events.KindTasks)
	respondJSON(w, http.StatusCreated, taskResponse{Success: true, Task: task})
}

func (s *Server) handlePatchTask(w http.ResponseWriter, r *http.Request) {
	if !s.taskServiceEnabled(w) {
		return
	}
	userID, token := caller(r)
	taskID := strings.TrimSpace(chi.URLParam(r, "id"))
	var patch tasks.Patch
	if err := decodeJSON(r, &patch); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if patch.Empty() {
		respondError(w, http.StatusBadRequest, "invalid_request", "no fields to update")
		return
	}
	if err := s.deps.Tasks.Patch(r.Context(), token, taskID, patch); err != nil {
		s.respondTaskError(w, "patch task", err)
		return
	}
	s.notify(userID, events.KindTasks)
	respondJSON(w, http.StatusOK, messageResponse{Success: true})
}

func (s *Server) handleDeleteTask(w http.ResponseWriter, r *http.Request) {
	if !s.taskServiceEnabled(w) {
		return
	}
	userID, token := caller(r)
	taskID := strings.TrimSpace(chi.URLParam(r, "id"))
	if err := s.deps.Tasks.Delete(r.Context(), token, taskID); err != nil {
		s.respondTaskError(w, "delete task", err)
		return
	}
	s.notify(userID, events.KindTasks)
	respondJSON(w, http.StatusOK, messageResponse{Success: true})
}

func (s *Server) taskServiceEnabled(w http.ResponseWriter) bool {
	if s.deps.Tasks == nil {
		respondError(w, http.StatusBadGateway, "upstream_unavailable", "Task service is not configured.")
		return false
	}
	return true
}

func (s *Server) respondTaskError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, taskservice.ErrTaskNotFound):
		respondError(w, http.StatusNotFound, "task_not_found", "Task not found")
	case errors.Is(err, taskservice.ErrRejected):
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
	default:
		s.log.Warn(op+" failed", "err", err)
		respondError(w, http.StatusBadGateway, "upstream_unavailable", "Task service unavailable")
	}
}
