package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ent0n29/saba/internal/chat"
	"github.com/ent0n29/saba/internal/conversations"
	"github.com/ent0n29/saba/internal/events"
	"github.com/ent0n29/saba/internal/recordstore"
	"github.com/ent0n29/saba/internal/tasks"
)

type messageView struct {
	conversations.Message
	CreatedAt string `json:"createdAt"`
}

type conversationView struct {
	ID        string                `json:"id"`
	UserID    string                `json:"userId"`
	Title     string                `json:"title"`
	Messages  []messageView         `json:"messages"`
	CreatedAt recordstore.Timestamp `json:"createdAt"`
	UpdatedAt recordstore.Timestamp `json:"updatedAt"`
	Memorized bool                  `json:"memorized"`
}

type conversationsResponse struct {
	Success       bool               `json:"success"`
	Conversations []conversationView `json:"conversations"`
}

type chatRequest struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversationId"`
}

type chatResponse struct {
	Success        bool        `json:"success"`
	Response       string      `json:"response"`
	ConversationID string      `json:"conversationId"`
	Task           *tasks.Task `json:"task,omitempty"`
}

func toConversationView(c conversations.Conversation) conversationView {
	msgs := make([]messageView, 0, len(c.Messages))
	for _, m := range c.Messages {
		msgs = append(msgs, messageView{
			Message:   m,
			CreatedAt: time.UnixMilli(m.Timestamp).UTC().Format(time.RFC3339Nano),
		})
	}
	return conversationView{
		ID:        c.ID,
		UserID:    c.UserID,
		Title:     c.Title,
		Messages:  msgs,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
		Memorized: c.Memorized,
	}
}

func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	userID, _ := caller(r)
	list, err := s.deps.Conversations.ListByUser(r.Context(), userID)
	if err != nil {
		s.internalError(w, "list conversations", err)
		return
	}
	out := make([]conversationView, 0, len(list))
	for _, c := range list {
		out = append(out, toConversationView(c))
	}
	respondJSON(w, http.StatusOK, conversationsResponse{Success: true, Conversations: out})
}

func (s *Server) handleDeleteConversation(w http.ResponseWriter, r *http.Request) {
	userID, _ := caller(r)
	convID := strings.TrimSpace(chi.URLParam(r, "id"))
	if convID == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "missing conversation id")
		return
	}
	removed, err := s.deps.Conversations.Delete(r.Context(), convID, userID)
	if err != nil {
		s.internalError(w, "delete conversation", err)
		return
	}
	if !removed {
		respondError(w, http.StatusNotFound, "conversation_not_found", "Conversation not found")
		return
	}
	s.notify(userID, events.KindConversations)
	respondJSON(w, http.StatusOK, messageResponse{Success: true})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	userID, token := caller(r)
	var req chatRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	reply, err := s.deps.Chat.Send(r.Context(), userID, token, req.Message, req.ConversationID)
	switch {
	case errors.Is(err, chat.ErrEmptyMessage):
		respondError(w, http.StatusBadRequest, "invalid_request", "Message is required")
		return
	case err != nil:
		s.internalError(w, "chat", err)
		return
	}
	s.notify(userID, events.KindConversations)
	if reply.Task != nil {
		s.notify(userID, events.KindTasks)
	}
	respondJSON(w, http.StatusOK, chatResponse{
		Success:        true,
		Response:       reply.Response,
		ConversationID: reply.ConversationID,
		Task:           reply.Task,
	})
}
