package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tahmidanik/dishari/internal/domain"
	"github.com/tahmidanik/dishari/internal/model"
)

const routerSystem = `You are the message router of a learning platform assistant.
Classify the user's message into exactly one capability:
- general: greetings, small talk, anything that fits nowhere else
- learning: explaining concepts, study questions, "teach me X"
- task: the user's task list, deadlines, what to work on next
- code: programming questions, debugging, code review
- roadmap: learning roadmaps, curriculum progress, what to learn next
Respond with a single JSON object:
{"agent": "<capability>", "confidence": <0..1>, "reasoning": "<one short sentence>"}`

// ModelRouter classifies messages with a JSON-mode model call.
type ModelRouter struct {
	model  model.Client
	logger *slog.Logger
}

// NewModelRouter creates a model-backed router.
func NewModelRouter(client model.Client, logger *slog.Logger) *ModelRouter {
	if logger == nil {
		logger = slog.Default()
	}
	return &ModelRouter{model: client, logger: logger}
}

var _ Router = (*ModelRouter)(nil)

// fallbackDecision is returned whenever classification cannot be
// trusted; it is a degraded routing, not an error.
func fallbackDecision() domain.RoutingDecision {
	return domain.RoutingDecision{AgentTag: domain.TagGeneral, Confidence: 0, Reasoning: "fallback"}
}

// Classify never fails the turn. Backend errors, unparseable output
// and out-of-vocabulary tags all degrade to the general tag.
func (r *ModelRouter) Classify(ctx context.Context, message string, actx *domain.AgentContext) domain.RoutingDecision {
	out, err := r.model.Generate(ctx, model.Request{
		System:      routerSystem,
		Prompt:      classifyPrompt(message, actx),
		JSON:        true,
		Temperature: 0.1,
	})
	if err != nil {
		r.logger.Warn("router classification failed, falling back to general", "error", err)
		return fallbackDecision()
	}

	decision, err := parseDecision(out)
	if err != nil {
		r.logger.Warn("router returned unparseable classification", "error", err)
		return fallbackDecision()
	}
	return decision
}

func classifyPrompt(message string, actx *domain.AgentContext) string {
	var b strings.Builder
	if actx != nil && len(actx.History) > 0 {
		b.WriteString("Recent conversation:\n")
		// The last few exchanges are enough signal for topic routing.
		tail := actx.History
		if len(tail) > 4 {
			tail = tail[len(tail)-4:]
		}
		for _, m := range tail {
			fmt.Fprintf(&b, "%s: %s\n", m.Role, m.Content)
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "Message to classify: %s", message)
	return b.String()
}

// parseDecision parses the classification JSON, normalizing tag and
// confidence. The model occasionally wraps JSON in a code fence even
// in JSON mode; strip it before decoding.
func parseDecision(out string) (domain.RoutingDecision, error) {
	raw := stripCodeFence(out)

	var parsed struct {
		Agent      string  `json:"agent"`
		Confidence float64 `json:"confidence"`
		Reasoning  string  `json:"reasoning"`
	}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return domain.RoutingDecision{}, fmt.Errorf("decode routing decision: %w", err)
	}

	tag, ok := domain.ParseAgentTag(strings.ToLower(strings.TrimSpace(parsed.Agent)))
	if !ok {
		tag = domain.TagGeneral
	}

	confidence := parsed.Confidence
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}

	reasoning := strings.TrimSpace(parsed.Reasoning)
	if reasoning == "" {
		reasoning = "unspecified"
	}

	return domain.RoutingDecision{AgentTag: tag, Confidence: confidence, Reasoning: reasoning}, nil
}

func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
