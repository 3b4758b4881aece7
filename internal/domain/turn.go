package domain

// AgentContext is the read-only bundle handed to the router and the
// selected capability handler for exactly one turn. Handlers must not
// retain it past the call.
type AgentContext struct {
	History        []Message // bounded window, oldest first
	Language       Language
	UserID         string
	ConversationID string
	TaskSummary    string
	RoadmapSummary string
	QuestSummary   string
	Extra          map[string]any
}

// RoutingDecision is the router's verdict for one turn. Confidence
// below the orchestrator's threshold forces dispatch to TagGeneral
// regardless of AgentTag.
type RoutingDecision struct {
	AgentTag   AgentTag `json:"agent"`
	Confidence float64  `json:"confidence"`
	Reasoning  string   `json:"reasoning"`
}

// HandlerResponse is the output of one capability handler. Metadata
// may carry a "topic" string and a "toolResults" slice of structured
// action payloads.
type HandlerResponse struct {
	Content  string
	Metadata map[string]any
}

// ToolResults returns the metadata toolResults entries, if any.
func (r *HandlerResponse) ToolResults() []any {
	if r == nil || r.Metadata == nil {
		return nil
	}
	if tr, ok := r.Metadata["toolResults"].([]any); ok {
		return tr
	}
	return nil
}

// Action is a structured directive extracted from a handler response,
// e.g. navigate to a page or render a roadmap. Actions are surfaced
// alongside the assistant message but never persisted as messages.
type Action struct {
	Kind   string         `json:"action"`
	Params map[string]any `json:"params,omitempty"`
}
