package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/coder/websocket"
	"github.com/tahmidanik/dishari/internal/domain"
	"github.com/tahmidanik/dishari/internal/stream"
)

// wsEvent frames one stream event as a WebSocket text message. The
// event vocabulary and ordering are identical to the SSE transport.
type wsEvent struct {
	Type stream.EventType `json:"type"`
	Data any              `json:"data"`
}

// HandleWS handles GET /ws/chat: the streaming protocol carried over
// a WebSocket. The client sends one request frame per turn; the
// server answers with the canonical event sequence.
func (h *ChatHandler) HandleWS(w http.ResponseWriter, r *http.Request) {
	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("Failed to accept WebSocket", "error", err)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "session ended"); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr)
		}
	}()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	for {
		_, message, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				slog.Debug("WebSocket closed by client")
			} else if ctx.Err() == nil {
				slog.Warn("WebSocket read error", "error", err)
			}
			return
		}

		var req chatRequest
		if err := json.Unmarshal(message, &req); err != nil {
			if writeErr := h.writeWS(ctx, ws, stream.Error("invalid request frame", "invalid_argument")); writeErr != nil {
				return
			}
			continue
		}

		if !h.runWSTurn(ctx, r, ws, &req) {
			return
		}
	}
}

// runWSTurn executes one turn over the socket. It returns false when
// the transport is gone and the loop should end.
func (h *ChatHandler) runWSTurn(ctx context.Context, r *http.Request, ws *websocket.Conn, req *chatRequest) bool {
	pt, err := h.prepare(r, req)
	if err != nil {
		slog.Warn("ws chat rejected", "error", err)
		return h.writeWS(ctx, ws, stream.Error(rejectionMessage(err), codeFromError(err))) == nil
	}

	var content strings.Builder
	var routing domain.RoutingDecision
	completed := false

	for ev, err := range h.orch.Stream(ctx, pt.message, pt.actx) {
		if err != nil {
			slog.Error("ws turn failed", "conversation_id", pt.conversation.ID, "error", err)
			return h.writeWS(ctx, ws, stream.Error("assistant failed to respond", codeFromError(err))) == nil
		}

		switch payload := ev.Data.(type) {
		case stream.AgentStartPayload:
			routing = domain.RoutingDecision{
				AgentTag:   domain.AgentTag(payload.Agent),
				Confidence: payload.Confidence,
				Reasoning:  payload.Reasoning,
			}
		case stream.ContentDeltaPayload:
			content.WriteString(payload.Content)
		}

		if writeErr := h.writeWS(ctx, ws, ev); writeErr != nil {
			slog.Info("ws chat client gone", "conversation_id", pt.conversation.ID, "error", writeErr)
			return false
		}

		if ev.Type == stream.EventDone {
			completed = true
		}
	}

	if !completed {
		return false
	}

	if err := h.persistTurn(r, pt, content.String(), routing); err != nil {
		slog.Error("failed to persist ws turn", "conversation_id", pt.conversation.ID, "error", err)
	}
	return true
}

func (h *ChatHandler) writeWS(ctx context.Context, ws *websocket.Conn, ev *stream.Event) error {
	data, err := json.Marshal(wsEvent{Type: ev.Type, Data: ev.Data})
	if err != nil {
		return err
	}
	return ws.Write(ctx, websocket.MessageText, data)
}

func (h *ChatHandler) checkOrigin(r *http.Request) bool {
	if h.cfg.IsDevelopment() {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || h.cfg.FrontendURL == "*" {
		return true
	}
	if origin == h.cfg.FrontendURL {
		return true
	}
	slog.Warn("WebSocket origin rejected", "origin", origin, "allowed", h.cfg.FrontendURL)
	return false
}
