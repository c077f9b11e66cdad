package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/soulkindred/kindred/internal/chat"
	"github.com/soulkindred/kindred/internal/config"
	"github.com/soulkindred/kindred/internal/observability"
	"github.com/soulkindred/kindred/internal/store"
)

type Server struct {
	cfg      config.Config
	store    store.Store
	pipeline *chat.Pipeline
	metrics  *observability.Metrics
	upgrader websocket.Upgrader
}

func New(cfg config.Config, st store.Store, pipeline *chat.Pipeline, metrics *observability.Metrics) *Server {
	return &Server{
		cfg:      cfg,
		store:    st,
		pipeline: pipeline,
		metrics:  metrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Default: only allow browser websocket connections from the
				// same origin, so other sites cannot drive a user's chat
				// stream if the service is ever exposed beyond localhost.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					// Non-browser clients often omit Origin. Allow them.
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Route("/v1", func(r chi.Router) {
		r.Use(s.identity)
		r.Post("/conversations", s.handleCreateConversation)
		r.Get("/conversations", s.handleListConversations)
		r.Get("/conversations/{id}/messages", s.handleListMessages)
		r.Post("/chat/send", s.handleSendMessage)
		r.Get("/chat/ws", s.handleChatWS)
		r.Post("/memories", s.handleAddMemory)
		r.Get("/memories", s.handleListMemories)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

type ctxKey int

const userKey ctxKey = 0

// identity resolves the bearer token to a User, creating the record on
// first authenticated request. Token verification itself belongs to the
// upstream auth gateway; the token is treated as the stable identity.
func (s *Server) identity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			respondError(w, http.StatusUnauthorized, "missing_identity", "bearer token is required")
			return
		}

		u, err := s.store.UpsertUser(r.Context(), store.User{
			Identity: token,
			Name:     strings.TrimSpace(r.Header.Get("X-User-Name")),
			Email:    strings.TrimSpace(r.Header.Get("X-User-Email")),
		})
		if err != nil {
			respondError(w, http.StatusInternalServerError, "identity_failed", err.Error())
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userKey, u)))
	})
}

func bearerToken(r *http.Request) string {
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
		return strings.TrimSpace(auth[len("bearer "):])
	}
	return strings.TrimSpace(r.Header.Get("X-Identity-Token"))
}

func userFrom(r *http.Request) store.User {
	u, _ := r.Context().Value(userKey).(store.User)
	return u
}

type createConversationRequest struct {
	Title string `json:"title"`
}

func (s *Server) handleCreateConversation(w http.ResponseWriter, r *http.Request) {
	var req createConversationRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	u := userFrom(r)
	conv, err := s.store.CreateConversation(r.Context(), u.ID, strings.TrimSpace(req.Title))
	if err != nil {
		respondError(w, http.StatusInternalServerError, "create_failed", err.Error())
		return
	}
	respondJSON(w, http.StatusCreated, conv)
}

func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	u := userFrom(r)
	convs, err := s.store.ListConversations(r.Context(), u.ID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "list_failed", err.Error())
		return
	}
	if convs == nil {
		convs = []store.Conversation{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"conversations": convs})
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	u := userFrom(r)

	conv, err := s.store.GetConversation(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			respondError(w, http.StatusNotFound, "conversation_not_found", "conversation not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "lookup_failed", err.Error())
		return
	}
	if conv.UserID != u.ID {
		respondError(w, http.StatusForbidden, "not_owner", "conversation belongs to another user")
		return
	}

	msgs, err := s.store.ListMessages(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "list_failed", err.Error())
		return
	}
	if msgs == nil {
		msgs = []store.Message{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"messages": msgs})
}

type sendMessageRequest struct {
	ConversationID string `json:"conversation_id"`
	Content        string `json:"content"`
	PersonaID      string `json:"persona_id,omitempty"`
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req sendMessageRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	u := userFrom(r)
	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.RequestTimeout)
	defer cancel()

	res, err := s.pipeline.SendMessage(ctx, u.ID, req.ConversationID, req.Content, req.PersonaID, nil)
	if err != nil {
		respondPipelineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

type addMemoryRequest struct {
	Text string `json:"text"`
}

func (s *Server) handleAddMemory(w http.ResponseWriter, r *http.Request) {
	var req addMemoryRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	u := userFrom(r)
	mem, err := s.pipeline.Remember(r.Context(), u.ID, req.Text)
	if err != nil {
		respondPipelineError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, mem)
}

func (s *Server) handleListMemories(w http.ResponseWriter, r *http.Request) {
	u := userFrom(r)
	mems, err := s.store.ListMemories(r.Context(), u.ID, 50)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "list_failed", err.Error())
		return
	}
	if mems == nil {
		mems = []store.Memory{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"memories": mems})
}

func respondPipelineError(w http.ResponseWriter, err error) {
	switch chat.KindOf(err) {
	case chat.KindValidation:
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case chat.KindNotFound:
		respondError(w, http.StatusNotFound, "not_found", err.Error())
	case chat.KindPermission:
		respondError(w, http.StatusForbidden, "not_owner", err.Error())
	case chat.KindProvider:
		respondError(w, http.StatusBadGateway, "provider_error", err.Error())
	case chat.KindConsistency:
		respondError(w, http.StatusInternalServerError, "consistency_error", err.Error())
	default:
		respondError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
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
