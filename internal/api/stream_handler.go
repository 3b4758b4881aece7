package api

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/tahmidanik/dishari/internal/domain"
	"github.com/tahmidanik/dishari/internal/stream"
)

// HandleChatStream handles POST /api/chat/stream: the same turn as
// HandleChat, delivered as an SSE event sequence. The remote may
// close the connection at any point; emission stops immediately and
// no synthetic terminal event is attempted over the dead transport.
func (h *ChatHandler) HandleChatStream(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeRequest(w, r)
	if !ok {
		return
	}

	pt, err := h.prepare(r, req)
	if err != nil {
		slog.Warn("chat stream rejected", "error", err)
		Error(w, statusFromError(err), rejectionMessage(err))
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		Error(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	slog.Info("chat stream started",
		"conversation_id", pt.conversation.ID,
		"user_id", pt.actx.UserID,
		"language", pt.language,
	)

	var content strings.Builder
	var routing domain.RoutingDecision
	completed := false

	for ev, err := range h.orch.Stream(r.Context(), pt.message, pt.actx) {
		if err != nil {
			slog.Error("turn failed mid-stream", "conversation_id", pt.conversation.ID, "error", err)
			errEv := stream.Error("assistant failed to respond", codeFromError(err))
			if writeErr := stream.WriteSSE(w, errEv); writeErr != nil {
				slog.Warn("failed to write stream error event", "error", writeErr)
				return
			}
			flusher.Flush()
			return
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

		if writeErr := stream.WriteSSE(w, ev); writeErr != nil {
			// Remote closed; cease emission, nothing to flush.
			slog.Info("chat stream client gone", "conversation_id", pt.conversation.ID, "error", writeErr)
			return
		}
		flusher.Flush()

		if ev.Type == stream.EventDone {
			completed = true
		}
	}

	// Persist only fully delivered turns: an aborted stream must not
	// leave an assistant message the client never received.
	if !completed {
		return
	}

	if err := h.persistTurn(r, pt, content.String(), routing); err != nil {
		slog.Error("failed to persist streamed turn", "conversation_id", pt.conversation.ID, "error", err)
	}
}
