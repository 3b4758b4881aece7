// Package stream defines the typed event sequence a streamed turn
// emits, the SSE framing it travels in, and the chunker that slices
// handler content into deltas.
//
// The canonical sequence for one turn is:
//
//	status("routing") → agent_start → content_delta* → tool_call* → done|error
//
// Exactly one terminal event (done or error) ends the stream; nothing
// follows it.
package stream

import (
	"github.com/tahmidanik/dishari/internal/domain"
)

// EventType names one kind of stream event.
type EventType string

const (
	EventStatus       EventType = "status"
	EventAgentStart   EventType = "agent_start"
	EventContentDelta EventType = "content_delta"
	EventToolCall     EventType = "tool_call"
	EventDone         EventType = "done"
	EventError        EventType = "error"
)

// Event is one framed unit of server-pushed data. Data marshals to
// the event's JSON payload line.
type Event struct {
	Type EventType
	Data any
}

// StatusPayload reports orchestrator progress.
type StatusPayload struct {
	Stage string `json:"stage"`
}

// AgentStartPayload announces the dispatched capability.
type AgentStartPayload struct {
	Agent      string  `json:"agent"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

// ContentDeltaPayload carries one content chunk. Indexes are strictly
// increasing from zero; concatenating deltas in emission order
// reconstructs the full response content.
type ContentDeltaPayload struct {
	Content string `json:"content"`
	Index   int    `json:"index"`
}

// ToolCallPayload surfaces one extracted action.
type ToolCallPayload struct {
	Action domain.Action `json:"action"`
}

// DonePayload terminates a successful stream.
type DonePayload struct {
	Agent          string          `json:"agent"`
	ConversationID string          `json:"conversationId,omitempty"`
	Actions        []domain.Action `json:"actions,omitempty"`
}

// ErrorPayload terminates a failed stream.
type ErrorPayload struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Status builds a status event.
func Status(stage string) *Event {
	return &Event{Type: EventStatus, Data: StatusPayload{Stage: stage}}
}

// AgentStart builds an agent_start event from a routing decision.
func AgentStart(d domain.RoutingDecision) *Event {
	return &Event{Type: EventAgentStart, Data: AgentStartPayload{
		Agent:      string(d.AgentTag),
		Confidence: d.Confidence,
		Reasoning:  d.Reasoning,
	}}
}

// ContentDelta builds one content chunk event.
func ContentDelta(content string, index int) *Event {
	return &Event{Type: EventContentDelta, Data: ContentDeltaPayload{Content: content, Index: index}}
}

// ToolCall builds a tool_call event for one action.
func ToolCall(a domain.Action) *Event {
	return &Event{Type: EventToolCall, Data: ToolCallPayload{Action: a}}
}

// Done builds the successful terminal event.
func Done(tag domain.AgentTag, conversationID string, actions []domain.Action) *Event {
	return &Event{Type: EventDone, Data: DonePayload{
		Agent:          string(tag),
		ConversationID: conversationID,
		Actions:        actions,
	}}
}

// Error builds the failure terminal event.
func Error(message, code string) *Event {
	return &Event{Type: EventError, Data: ErrorPayload{Message: message, Code: code}}
}
