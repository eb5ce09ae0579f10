package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/ent0n29/saba/internal/conversations"
	"github.com/ent0n29/saba/internal/events"
	"github.com/ent0n29/saba/internal/memory"
)

type updateMemoryRequest struct {
	ID string `json:"id"`
	memory.Patch
}

type extractRequest struct {
	ConversationID string `json:"conversationId"`
}

type memoriesResponse struct {
	Success  bool            `json:"success"`
	Memories []memory.Memory `json:"memories"`
}

type addedResponse struct {
	Success bool            `json:"success"`
	Added   []memory.Memory `json:"added"`
}

type skippedResponse struct {
	Success bool `json:"success"`
	Skipped bool `json:"skipped"`
}

type deleteResponse struct {
	Success bool `json:"success"`
	Removed bool `json:"removed"`
}

func (s *Server) handleListMemories(w http.ResponseWriter, r *http.Request) {
	userID, _ := caller(r)
	list, err := s.deps.Memories.List(r.Context(), userID)
	if err != nil {
		s.internalError(w, "list memories", err)
		return
	}
	if list == nil {
		list = []memory.Memory{}
	}
	respondJSON(w, http.StatusOK, memoriesResponse{Success: true, Memories: list})
}

func (s *Server) handleAddMemories(w http.ResponseWriter, r *http.Request) {
	userID, _ := caller(r)
	var req memory.Input
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	added, err := s.deps.Memories.Add(r.Context(), userID, req)
	if errors.Is(err, memory.ErrInvalidMemory) {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if err != nil {
		s.internalError(w, "add memories", err)
		return
	}
	if added == nil {
		added = []memory.Memory{}
	}
	if len(added) > 0 {
		s.notify(userID, events.KindMemories)
	}
	respondJSON(w, http.StatusOK, addedResponse{Success: true, Added: added})
}

func (s *Server) handleUpdateMemory(w http.ResponseWriter, r *http.Request) {
	userID, _ := caller(r)
	var req updateMemoryRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.ID) == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "id required")
		return
	}

	res, err := s.deps.Memories.Update(r.Context(), userID, req.ID, req.Patch)
	switch {
	case errors.Is(err, memory.ErrInvalidMemory):
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	case err != nil:
		s.internalError(w, "update memory", err)
		return
	case res.Duplicate:
		respondError(w, http.StatusConflict, "duplicate_memory", "Duplicate memory content")
		return
	case !res.OK:
		respondError(w, http.StatusNotFound, "memory_not_found", "Not found")
		return
	}
	s.notify(userID, events.KindMemories)
	respondJSON(w, http.StatusOK, memoriesResponse{Success: true, Memories: []memory.Memory{*res.Memory}})
}

// handleDeleteMemory succeeds whether or not the memory existed; Removed
// reports which.
func (s *Server) handleDeleteMemory(w http.ResponseWriter, r *http.Request) {
	userID, _ := caller(r)
	id := strings.TrimSpace(r.URL.Query().Get("id"))
	if id == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "id query param required")
		return
	}
	removed, err := s.deps.Memories.Delete(r.Context(), userID, id)
	if err != nil {
		s.internalError(w, "delete memory", err)
		return
	}
	if removed {
		s.notify(userID, events.KindMemories)
	}
	respondJSON(w, http.StatusOK, deleteResponse{Success: true, Removed: removed})
}

func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	userID, _ := caller(r)
	var req extractRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.ConversationID) == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "conversationId required")
		return
	}

	res, err := s.deps.Extraction.Extract(r.Context(), req.ConversationID, userID)
	switch {
	case errors.Is(err, conversations.ErrNotFound):
		respondError(w, http.StatusNotFound, "conversation_not_found", "Conversation not found")
		return
	case err != nil:
		s.internalError(w, "extract memories", err)
		return
	}
	if res.Skipped {
		respondJSON(w, http.StatusOK, skippedResponse{Success: true, Skipped: true})
		return
	}
	added := res.Added
	if added == nil {
		added = []memory.Memory{}
	}
	s.notify(userID, events.KindMemories, events.KindConversations)
	respondJSON(w, http.StatusOK, addedResponse{Success: true, Added: added})
}
