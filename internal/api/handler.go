// Package api provides the HTTP handlers for the Dishari chat API.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/containerd/errdefs"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/tahmidanik/dishari/internal/chatlog"
	"github.com/tahmidanik/dishari/internal/config"
	"github.com/tahmidanik/dishari/internal/domain"
	"github.com/tahmidanik/dishari/internal/identity"
	"github.com/tahmidanik/dishari/internal/orchestrator"
	"github.com/tahmidanik/dishari/internal/store"
)

// maxRequestBodySize is the maximum allowed request body size (1MB).
const maxRequestBodySize = 1 << 20

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// statusFromError maps error classes to HTTP status codes.
func statusFromError(err error) int {
	switch {
	case errdefs.IsInvalidArgument(err):
		return http.StatusBadRequest
	case errdefs.IsNotFound(err):
		return http.StatusNotFound
	case errdefs.IsUnavailable(err):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// codeFromError maps error classes to stream error codes.
func codeFromError(err error) string {
	switch {
	case errdefs.IsInvalidArgument(err):
		return "invalid_argument"
	case errdefs.IsNotFound(err):
		return "not_found"
	case errdefs.IsUnavailable(err):
		return "unavailable"
	default:
		return "internal"
	}
}

// ChatHandler serves the chat endpoints: buffered, SSE and WebSocket.
type ChatHandler struct {
	orch    *orchestrator.Orchestrator
	repo    store.Repository
	turnlog *chatlog.Logger
	cfg     *config.Config
}

// NewChatHandler creates the chat handler.
func NewChatHandler(orch *orchestrator.Orchestrator, repo store.Repository, turnlog *chatlog.Logger, cfg *config.Config) *ChatHandler {
	return &ChatHandler{orch: orch, repo: repo, turnlog: turnlog, cfg: cfg}
}

// RegisterRoutes registers chat routes (identity middleware required).
func (h *ChatHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/chat", func(r chi.Router) {
		r.Post("/", h.HandleChat)
		r.Post("/stream", h.HandleChatStream)
	})
}

// chatRequest is the turn input contract shared by all transports.
type chatRequest struct {
	ConversationID string         `json:"conversation_id,omitempty"`
	Message        string         `json:"message"`
	Language       string         `json:"language,omitempty"`
	Context        map[string]any `json:"context,omitempty"`
}

// chatResponse is the buffered result payload.
type chatResponse struct {
	ConversationID string          `json:"conversation_id"`
	Response       responseBody    `json:"response"`
	Routing        routingBody     `json:"routing"`
	Actions        []domain.Action `json:"actions,omitempty"`
}

type responseBody struct {
	Content   string `json:"content"`
	Agent     string `json:"agent"`
	Timestamp string `json:"timestamp"`
}

type routingBody struct {
	Agent      string  `json:"agent"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

// preparedTurn carries everything a delivery protocol needs to run
// and persist one turn.
type preparedTurn struct {
	conversation *domain.Conversation
	message      string
	language     domain.Language
	actx         *domain.AgentContext
}

// prepare validates the turn input and assembles the agent context.
// Validation happens here, before the orchestrator is ever invoked.
func (h *ChatHandler) prepare(r *http.Request, req *chatRequest) (*preparedTurn, error) {
	userID := identity.UserIDFromContext(r.Context())
	if userID == "" {
		return nil, fmt.Errorf("no identity on request: %w", errdefs.ErrInvalidArgument)
	}

	message := strings.TrimSpace(req.Message)
	if message == "" {
		return nil, fmt.Errorf("message is required: %w", errdefs.ErrInvalidArgument)
	}

	language := domain.ParseLanguage(req.Language)

	conv, err := h.resolveConversation(r, userID, req.ConversationID)
	if err != nil {
		return nil, err
	}

	history, err := h.repo.RecentMessages(r.Context(), conv.ID, h.cfg.HistoryWindow)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}

	actx := &domain.AgentContext{
		History:        history,
		Language:       language,
		UserID:         userID,
		ConversationID: conv.ID,
	}
	applyContext(actx, req.Context)

	return &preparedTurn{
		conversation: conv,
		message:      message,
		language:     language,
		actx:         actx,
	}, nil
}

func (h *ChatHandler) resolveConversation(r *http.Request, userID, conversationID string) (*domain.Conversation, error) {
	if conversationID != "" {
		conv, err := h.repo.GetConversation(r.Context(), conversationID)
		if err != nil {
			return nil, fmt.Errorf("load conversation: %w", err)
		}
		// A foreign conversation is indistinguishable from a missing one.
		if conv == nil || conv.UserID != userID {
			return nil, fmt.Errorf("conversation %s: %w", conversationID, errdefs.ErrNotFound)
		}
		return conv, nil
	}

	now := time.Now()
	conv := &domain.Conversation{
		ID:          uuid.NewString(),
		UserID:      userID,
		ActiveAgent: domain.TagGeneral,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := h.repo.CreateConversation(r.Context(), conv); err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}
	return conv, nil
}

// applyContext distributes the free-form context map into the agent
// context: the three known domain summaries, everything else as-is.
func applyContext(actx *domain.AgentContext, m map[string]any) {
	for k, v := range m {
		switch k {
		case "tasks":
			actx.TaskSummary = summaryString(v)
		case "roadmaps":
			actx.RoadmapSummary = summaryString(v)
		case "quests":
			actx.QuestSummary = summaryString(v)
		default:
			if actx.Extra == nil {
				actx.Extra = make(map[string]any)
			}
			actx.Extra[k] = v
		}
	}
}

func summaryString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	data, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(data)
}

// persistTurn appends the user and assistant messages of a finished
// turn and advances the active-agent pointer. The assistant message
// carries the routing tag.
func (h *ChatHandler) persistTurn(r *http.Request, pt *preparedTurn, content string, routing domain.RoutingDecision) error {
	now := time.Now()
	userMsg := domain.Message{
		ID:             uuid.NewString(),
		ConversationID: pt.conversation.ID,
		Role:           domain.RoleUser,
		Content:        pt.message,
		Language:       pt.language,
		CreatedAt:      now,
	}
	assistantMsg := domain.Message{
		ID:             uuid.NewString(),
		ConversationID: pt.conversation.ID,
		Role:           domain.RoleAssistant,
		Content:        content,
		AgentTag:       routing.AgentTag,
		Language:       pt.language,
		CreatedAt:      now,
	}

	if err := h.repo.AppendTurn(r.Context(), pt.conversation.ID, userMsg, assistantMsg); err != nil {
		return fmt.Errorf("append turn: %w", err)
	}

	reqID := chiMiddleware.GetReqID(r.Context())
	h.turnlog.Log(chatlog.Event{
		UserID:         pt.actx.UserID,
		ConversationID: pt.conversation.ID,
		Direction:      "outbound",
		EventType:      "user_message",
		Content:        pt.message,
		Meta:           map[string]any{"request_id": reqID, "language": string(pt.language)},
	})
	h.turnlog.Log(chatlog.Event{
		UserID:         pt.actx.UserID,
		ConversationID: pt.conversation.ID,
		Direction:      "inbound",
		EventType:      "assistant_message",
		Agent:          string(routing.AgentTag),
		Content:        content,
		Meta: map[string]any{
			"request_id": reqID,
			"confidence": routing.Confidence,
			"reasoning":  routing.Reasoning,
		},
	})
	return nil
}

func (h *ChatHandler) decodeRequest(w http.ResponseWriter, r *http.Request) (*chatRequest, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			Error(w, http.StatusRequestEntityTooLarge, "request body too large")
			return nil, false
		}
		Error(w, http.StatusBadRequest, "invalid request body")
		return nil, false
	}
	return &req, true
}

// HandleChat handles POST /api/chat (buffered delivery).
func (h *ChatHandler) HandleChat(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeRequest(w, r)
	if !ok {
		return
	}

	pt, err := h.prepare(r, req)
	if err != nil {
		slog.Warn("chat request rejected", "error", err)
		Error(w, statusFromError(err), rejectionMessage(err))
		return
	}

	slog.Info("chat request",
		"conversation_id", pt.conversation.ID,
		"user_id", pt.actx.UserID,
		"language", pt.language,
		"message_length", len(pt.message),
	)

	result, err := h.orch.Run(r.Context(), pt.message, pt.actx)
	if err != nil {
		slog.Error("turn failed", "conversation_id", pt.conversation.ID, "error", err)
		Error(w, statusFromError(err), "assistant failed to respond")
		return
	}

	if err := h.persistTurn(r, pt, result.Response.Content, result.Routing); err != nil {
		slog.Error("failed to persist turn", "conversation_id", pt.conversation.ID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to save conversation")
		return
	}

	JSON(w, http.StatusOK, chatResponse{
		ConversationID: pt.conversation.ID,
		Response: responseBody{
			Content:   result.Response.Content,
			Agent:     string(result.Routing.AgentTag),
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		},
		Routing: routingBody{
			Agent:      string(result.Routing.AgentTag),
			Confidence: result.Routing.Confidence,
			Reasoning:  result.Routing.Reasoning,
		},
		Actions: result.Actions,
	})
}

// rejectionMessage keeps validation feedback useful without leaking
// internals for unexpected failures.
func rejectionMessage(err error) string {
	if errdefs.IsInvalidArgument(err) || errdefs.IsNotFound(err) {
		if idx := strings.Index(err.Error(), ":"); idx > 0 {
			return err.Error()[:idx]
		}
		return err.Error()
	}
	return "failed to start turn"
}
