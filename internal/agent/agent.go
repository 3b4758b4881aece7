// Package agent implements the capability handlers that answer chat
// messages, and the router that picks one per turn.
package agent

import (
	"context"

	"github.com/tahmidanik/dishari/internal/domain"
)

// CapabilityHandler answers one message for one capability tag.
// Implementations must be stateless with respect to the context
// bundle: nothing from actx may be retained past the call.
type CapabilityHandler interface {
	// Tag reports which capability this handler serves.
	Tag() domain.AgentTag

	// Process produces the response for one turn. Failures propagate
	// to the orchestrator; handlers never fall back among themselves.
	Process(ctx context.Context, message string, actx *domain.AgentContext) (*domain.HandlerResponse, error)
}

// Router classifies a message into a capability tag. Classify never
// fails a turn: internal errors degrade to the general tag with zero
// confidence.
type Router interface {
	Classify(ctx context.Context, message string, actx *domain.AgentContext) domain.RoutingDecision
}

// Registry maps capability tags to handlers. It is built once at
// startup and read-only afterwards, so it needs no locking.
type Registry struct {
	handlers map[domain.AgentTag]CapabilityHandler
}

// NewRegistry builds a registry from the given handlers. A later
// handler with the same tag replaces an earlier one.
func NewRegistry(handlers ...CapabilityHandler) *Registry {
	m := make(map[domain.AgentTag]CapabilityHandler, len(handlers))
	for _, h := range handlers {
		m[h.Tag()] = h
	}
	return &Registry{handlers: m}
}

// Resolve returns the handler registered for tag.
func (r *Registry) Resolve(tag domain.AgentTag) (CapabilityHandler, bool) {
	h, ok := r.handlers[tag]
	return h, ok
}

// Tags returns the registered tags in vocabulary order.
func (r *Registry) Tags() []domain.AgentTag {
	var tags []domain.AgentTag
	for _, t := range domain.AgentTags {
		if _, ok := r.handlers[t]; ok {
			tags = append(tags, t)
		}
	}
	return tags
}
