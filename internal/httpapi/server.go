package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ent0n29/saba/internal/chat"
	"github.com/ent0n29/saba/internal/config"
	"github.com/ent0n29/saba/internal/conversations"
	"github.com/ent0n29/saba/internal/events"
	"github.com/ent0n29/saba/internal/extraction"
	"github.com/ent0n29/saba/internal/identity"
	"github.com/ent0n29/saba/internal/logger"
	"github.com/ent0n29/saba/internal/memory"
	"github.com/ent0n29/saba/internal/observability"
	"github.com/ent0n29/saba/internal/recordstore"
	"github.com/ent0n29/saba/internal/taskservice"
	"github.com/ent0n29/saba/internal/users"
)

// Deps are the components the API serves. Hub, Events and Tasks may be nil.
type Deps struct {
	Store         recordstore.Store
	Users         *users.Repository
	Conversations *conversations.Repository
	Memories      *memory.Repository
	Extraction    *extraction.Engine
	Chat          *chat.Service
	Tasks         taskservice.API
	Hub           *events.Hub
	Events        *events.Handler
	Metrics       *observability.Metrics
	Logger        *slog.Logger
	LLMEnabled    bool
}

type Server struct {
	cfg  config.Config
	deps Deps
	log  *slog.Logger
}

func New(cfg config.Config, deps Deps) *Server {
	log := deps.Logger
	if log == nil {
		log = logger.Nop()
	}
	return &Server{cfg: cfg, deps: deps, log: log}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(observability.HTTPMiddleware(s.deps.Metrics))

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Post("/v1/auth/signup", s.handleSignup)
	r.Post("/v1/auth/login", s.handleLogin)
	r.Post("/v1/admin/clear-data", s.handleClearData)

	r.Group(func(r chi.Router) {
		r.Use(identity.Middleware(func(w http.ResponseWriter, _ *http.Request) {
			respondError(w, http.StatusUnauthorized, "unauthorized", "missing or invalid token")
		}))

		r.Get("/v1/conversations", s.handleListConversations)
		r.Delete("/v1/conversations/{id}", s.handleDeleteConversation)
		r.Post("/v1/chat", s.handleChat)

		r.Get("/v1/memory", s.handleListMemories)
		r.Post("/v1/memory", s.handleAddMemories)
		r.Patch("/v1/memory", s.handleUpdateMemory)
		r.Delete("/v1/memory", s.handleDeleteMemory)
		r.Post("/v1/memory/extract", s.handleExtract)

		r.Get("/v1/tasks", s.handleListTasks)
		r.Post("/v1/tasks", s.handleCreateTask)
		r.Patch("/v1/tasks/{id}", s.handlePatchTask)
		r.Delete("/v1/tasks/{id}", s.handleDeleteTask)

		r.Get("/v1/events", s.handleEvents)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
	})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":        "ready",
		"store_backend": s.storeBackend(),
		"llm_mode":      s.llmMode(),
		"task_service":  s.deps.Tasks != nil,
	})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.deps.Events == nil {
		respondError(w, http.StatusNotImplemented, "unavailable", "live updates are not configured")
		return
	}
	userID, _ := identity.UserID(r.Context())
	s.deps.Events.Serve(w, r, userID)
}

func (s *Server) storeBackend() string {
	if s.deps.Store == nil {
		return "disabled"
	}
	return s.deps.Store.Backend()
}

func (s *Server) llmMode() string {
	if s.deps.LLMEnabled {
		return "gemini"
	}
	return "heuristic"
}

// notify tells the user's live subscribers which collections changed.
func (s *Server) notify(userID string, kinds ...events.Kind) {
	if s.deps.Hub == nil {
		return
	}
	for _, kind := range kinds {
		s.deps.Hub.Publish(userID, kind)
	}
}

// caller returns the authenticated user and the raw token it was resolved
// from. Only valid behind the identity middleware.
func caller(r *http.Request) (userID, token string) {
	userID, token, _ = identity.FromRequest(r)
	return userID, token
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}

func (s *Server) internalError(w http.ResponseWriter, op string, err error) {
	s.log.Error(op+" failed", "err", err)
	respondError(w, http.StatusInternalServerError, "internal_error", "internal error")
}
