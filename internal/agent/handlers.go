package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/tahmidanik/dishari/internal/domain"
	"github.com/tahmidanik/dishari/internal/model"
)

// modelHandler is the shared scaffolding behind all five capability
// handlers: build a prompt from the turn context, call the backend,
// wrap the output. Variants differ only in tag and system prompt.
type modelHandler struct {
	tag    domain.AgentTag
	system string
	model  model.Client
}

var _ CapabilityHandler = (*modelHandler)(nil)

func (h *modelHandler) Tag() domain.AgentTag {
	return h.tag
}

func (h *modelHandler) Process(ctx context.Context, message string, actx *domain.AgentContext) (*domain.HandlerResponse, error) {
	out, err := h.model.Generate(ctx, model.Request{
		System:      h.system + languageInstruction(actx),
		Prompt:      turnPrompt(message, actx),
		Temperature: 0.7,
	})
	if err != nil {
		return nil, fmt.Errorf("%s handler: %w", h.tag, err)
	}

	return &domain.HandlerResponse{
		Content:  out,
		Metadata: map[string]any{"agent": string(h.tag)},
	}, nil
}

// languageInstruction appends the response-language rule to a system
// prompt. English needs no instruction; it is the prompts' language.
func languageInstruction(actx *domain.AgentContext) string {
	if actx != nil && actx.Language == domain.LanguageBengali {
		return "\nRespond in Bengali (বাংলা). Keep code identifiers and commands in English."
	}
	return ""
}

// turnPrompt renders the history window, the per-domain summaries and
// the new message into one prompt. Empty history is fine: the block
// is simply omitted.
func turnPrompt(message string, actx *domain.AgentContext) string {
	var b strings.Builder

	if actx != nil {
		if actx.TaskSummary != "" {
			fmt.Fprintf(&b, "The user's tasks:\n%s\n\n", actx.TaskSummary)
		}
		if actx.RoadmapSummary != "" {
			fmt.Fprintf(&b, "The user's roadmaps:\n%s\n\n", actx.RoadmapSummary)
		}
		if actx.QuestSummary != "" {
			fmt.Fprintf(&b, "The user's quests:\n%s\n\n", actx.QuestSummary)
		}
		if len(actx.History) > 0 {
			b.WriteString("Conversation so far:\n")
			for _, m := range actx.History {
				fmt.Fprintf(&b, "%s: %s\n", m.Role, m.Content)
			}
			b.WriteString("\n")
		}
	}

	fmt.Fprintf(&b, "user: %s", message)
	return b.String()
}

const (
	generalSystem = `You are Dishari, a friendly assistant on a learning platform.
Answer helpfully and concisely. If the user asks about their tasks,
roadmaps or study topics, use the provided context.`

	learningSystem = `You are Dishari's learning tutor. Explain concepts step by step
with short examples, and check understanding with one brief follow-up
question when it helps. Prefer plain language over jargon.`

	taskSystem = `You are Dishari's task coach. Help the user plan, prioritize and
finish the tasks listed in their context. When the user should open a
page of the app, include a directive like
{"action": "navigate", "params": {"path": "/tasks"}} in your answer.`

	codeSystem = `You are Dishari's programming mentor. Answer with working code in
fenced blocks, explain the why briefly, and point out pitfalls. Never
invent APIs.`

	roadmapSystem = `You are Dishari's roadmap guide. Help the user follow and adjust
their learning roadmaps. When presenting a full roadmap, include a
directive like {"action": "render_roadmap", "params": {"roadmap": {...}}}
so the app can render it.`
)

// NewGeneralHandler answers anything without a better home.
func NewGeneralHandler(client model.Client) CapabilityHandler {
	return &modelHandler{tag: domain.TagGeneral, system: generalSystem, model: client}
}

// NewLearningHandler explains concepts and study material.
func NewLearningHandler(client model.Client) CapabilityHandler {
	return &modelHandler{tag: domain.TagLearning, system: learningSystem, model: client}
}

// NewTaskHandler coaches the user through their task list.
func NewTaskHandler(client model.Client) CapabilityHandler {
	return &modelHandler{tag: domain.TagTask, system: taskSystem, model: client}
}

// NewCodeHandler answers programming questions.
func NewCodeHandler(client model.Client) CapabilityHandler {
	return &modelHandler{tag: domain.TagCode, system: codeSystem, model: client}
}

// NewRoadmapHandler works with learning roadmaps.
func NewRoadmapHandler(client model.Client) CapabilityHandler {
	return &modelHandler{tag: domain.TagRoadmap, system: roadmapSystem, model: client}
}

// DefaultRegistry registers the five capability handlers.
func DefaultRegistry(client model.Client) *Registry {
	return NewRegistry(
		NewGeneralHandler(client),
		NewLearningHandler(client),
		NewTaskHandler(client),
		NewCodeHandler(client),
		NewRoadmapHandler(client),
	)
}
