package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/ent0n29/saba/internal/events"
	"github.com/ent0n29/saba/internal/identity"
	"github.com/ent0n29/saba/internal/users"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authResponse struct {
	Success bool         `json:"success"`
	Token   string       `json:"token"`
	User    users.Public `json:"user"`
}

type clearDataRequest struct {
	Action string `json:"action"`
}

type messageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req users.Signup
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	u, err := s.deps.Users.Create(r.Context(), req)
	switch {
	case errors.Is(err, users.ErrInvalidSignup):
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	case errors.Is(err, users.ErrEmailTaken):
		respondError(w, http.StatusConflict, "email_taken", "User already exists")
		return
	case err != nil:
		s.internalError(w, "signup", err)
		return
	}
	s.log.Info("user registered", "user_id", u.ID)
	respondJSON(w, http.StatusCreated, authResponse{
		Success: true,
		Token:   identity.IssueLegacyToken(u.ID, u.Email, u.Name, time.Now()),
		User:    u.Public(),
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "email and password are required")
		return
	}
	u, err := s.deps.Users.Authenticate(r.Context(), req.Email, req.Password)
	switch {
	case errors.Is(err, users.ErrInvalidCredentials):
		respondError(w, http.StatusUnauthorized, "invalid_credentials", "Invalid email or password")
		return
	case err != nil:
		s.internalError(w, "login", err)
		return
	}
	respondJSON(w, http.StatusOK, authResponse{
		Success: true,
		Token:   identity.IssueLegacyToken(u.ID, u.Email, u.Name, time.Now()),
		User:    u.Public(),
	})
}

// handleClearData wipes every collection. Development only.
func (s *Server) handleClearData(w http.ResponseWriter, r *http.Request) {
	if !s.cfg.DevMode() {
		respondError(w, http.StatusForbidden, "forbidden", "Not available in production")
		return
	}
	var req clearDataRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if req.Action != "clear-all-data" {
		respondError(w, http.StatusBadRequest, "invalid_request", "Invalid action")
		return
	}
	if err := s.deps.Store.Wipe(r.Context()); err != nil {
		s.internalError(w, "clear data", err)
		return
	}
	s.log.Warn("all data cleared")
	if s.deps.Hub != nil {
		s.deps.Hub.Broadcast(events.KindConversations)
		s.deps.Hub.Broadcast(events.KindMemories)
	}
	respondJSON(w, http.StatusOK, messageResponse{Success: true, Message: "All data cleared successfully"})
}
