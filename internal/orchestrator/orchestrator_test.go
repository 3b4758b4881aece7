package orchestrator

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/tahmidanik/dishari/internal/actions"
	"github.com/tahmidanik/dishari/internal/agent"
	"github.com/tahmidanik/dishari/internal/domain"
	"github.com/tahmidanik/dishari/internal/stream"
)

type stubRouter struct {
	decision domain.RoutingDecision
}

func (r *stubRouter) Classify(ctx context.Context, message string, actx *domain.AgentContext) domain.RoutingDecision {
	return r.decision
}

type stubHandler struct {
	tag     domain.AgentTag
	content string
	err     error
	calls   int
}

func (h *stubHandler) Tag() domain.AgentTag { return h.tag }

func (h *stubHandler) Process(ctx context.Context, message string, actx *domain.AgentContext) (*domain.HandlerResponse, error) {
	h.calls++
	if h.err != nil {
		return nil, h.err
	}
	return &domain.HandlerResponse{Content: h.content}, nil
}

func newTestOrchestrator(decision domain.RoutingDecision, handlers ...agent.CapabilityHandler) *Orchestrator {
	return New(&stubRouter{decision: decision}, agent.NewRegistry(handlers...), actions.NewExtractor(), Config{}, nil)
}

func TestRunDispatchesConfidentRouting(t *testing.T) {
	t.Parallel()

	general := &stubHandler{tag: domain.TagGeneral, content: "general answer"}
	learning := &stubHandler{tag: domain.TagLearning, content: "learning answer"}
	o := newTestOrchestrator(
		domain.RoutingDecision{AgentTag: domain.TagLearning, Confidence: 0.9, Reasoning: "study question"},
		general, learning,
	)

	result, err := o.Run(context.Background(), "explain goroutines", nil)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result.Routing.AgentTag != domain.TagLearning {
		t.Errorf("Expected learning tag, got %s", result.Routing.AgentTag)
	}
	if result.Response.Content != "learning answer" {
		t.Errorf("Expected learning handler response, got %q", result.Response.Content)
	}
	if learning.calls != 1 || general.calls != 0 {
		t.Errorf("Expected exactly one learning call, got learning=%d general=%d", learning.calls, general.calls)
	}
}

func TestRunNormalizesUnknownTag(t *testing.T) {
	t.Parallel()

	general := &stubHandler{tag: domain.TagGeneral, content: "general answer"}
	o := newTestOrchestrator(
		domain.RoutingDecision{AgentTag: "unknown_tag", Confidence: 0.95, Reasoning: "made up"},
		general,
	)

	result, err := o.Run(context.Background(), "hello", nil)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	// The surfaced tag must always be in the legal vocabulary.
	if result.Routing.AgentTag != domain.TagGeneral {
		t.Errorf("Expected general tag, got %s", result.Routing.AgentTag)
	}
	if result.Routing.Confidence != 0.95 {
		t.Errorf("Expected confidence preserved, got %v", result.Routing.Confidence)
	}
	if general.calls != 1 {
		t.Errorf("Expected general handler to run, got %d calls", general.calls)
	}
}

func TestRunLowConfidenceFallsBackToGeneral(t *testing.T) {
	t.Parallel()

	general := &stubHandler{tag: domain.TagGeneral, content: "general answer"}
	task := &stubHandler{tag: domain.TagTask, content: "task answer"}
	o := newTestOrchestrator(
		domain.RoutingDecision{AgentTag: domain.TagTask, Confidence: 0.2, Reasoning: "weak signal"},
		general, task,
	)

	result, err := o.Run(context.Background(), "hmm", nil)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result.Routing.AgentTag != domain.TagGeneral {
		t.Errorf("Expected fallback to general, got %s", result.Routing.AgentTag)
	}
	if task.calls != 0 {
		t.Errorf("Expected task handler untouched, got %d calls", task.calls)
	}
	if general.calls != 1 {
		t.Errorf("Expected general handler to run, got %d calls", general.calls)
	}
}

func TestRunHandlerFailureIsTerminal(t *testing.T) {
	t.Parallel()

	backendErr := errors.New("backend down")
	general := &stubHandler{tag: domain.TagGeneral, content: "general answer"}
	code := &stubHandler{tag: domain.TagCode, err: backendErr}
	o := newTestOrchestrator(
		domain.RoutingDecision{AgentTag: domain.TagCode, Confidence: 0.8, Reasoning: "code"},
		general, code,
	)

	_, err := o.Run(context.Background(), "fix my code", nil)
	if !errors.Is(err, backendErr) {
		t.Fatalf("Expected handler error, got %v", err)
	}
	// No silent re-dispatch after a handler already ran.
	if general.calls != 0 {
		t.Errorf("Expected no fallback dispatch after failure, got %d general calls", general.calls)
	}
}

func TestRunFailsWithoutGeneralHandler(t *testing.T) {
	t.Parallel()

	code := &stubHandler{tag: domain.TagCode, content: "code answer"}
	o := newTestOrchestrator(
		domain.RoutingDecision{AgentTag: domain.TagLearning, Confidence: 0.1, Reasoning: "weak"},
		code,
	)

	if _, err := o.Run(context.Background(), "hi", nil); err == nil {
		t.Fatal("Expected error when no general handler is registered")
	}
}

func collectStream(t *testing.T, o *Orchestrator, message string, actx *domain.AgentContext) ([]*stream.Event, error) {
	t.Helper()
	var events []*stream.Event
	for ev, err := range o.Stream(context.Background(), message, actx) {
		if err != nil {
			return events, err
		}
		events = append(events, ev)
	}
	return events, nil
}

func TestStreamEventSequence(t *testing.T) {
	t.Parallel()

	content := `Here you go. {"action": "navigate", "params": {"path": "/tasks"}}`
	task := &stubHandler{tag: domain.TagTask, content: content}
	general := &stubHandler{tag: domain.TagGeneral}
	o := New(&stubRouter{decision: domain.RoutingDecision{AgentTag: domain.TagTask, Confidence: 0.9, Reasoning: "tasks"}},
		agent.NewRegistry(general, task), actions.NewExtractor(), Config{ChunkSize: 10}, nil)

	actx := &domain.AgentContext{ConversationID: "conv-42"}
	events, err := collectStream(t, o, "what next?", actx)
	if err != nil {
		t.Fatalf("Stream failed: %v", err)
	}

	if events[0].Type != stream.EventStatus {
		t.Errorf("Expected first event status, got %s", events[0].Type)
	}
	if events[1].Type != stream.EventAgentStart {
		t.Errorf("Expected second event agent_start, got %s", events[1].Type)
	}
	last := events[len(events)-1]
	if last.Type != stream.EventDone {
		t.Fatalf("Expected terminal done, got %s", last.Type)
	}

	done, ok := last.Data.(stream.DonePayload)
	if !ok {
		t.Fatalf("Expected DonePayload, got %T", last.Data)
	}
	if done.Agent != string(domain.TagTask) {
		t.Errorf("Expected done agent task, got %q", done.Agent)
	}
	if done.ConversationID != "conv-42" {
		t.Errorf("Expected conversation id in done payload, got %q", done.ConversationID)
	}
	if len(done.Actions) != 1 || done.Actions[0].Kind != "navigate" {
		t.Errorf("Expected navigate action in done payload, got %v", done.Actions)
	}

	// Deltas sit between agent_start and the tool calls, indexed from 0.
	var rebuilt strings.Builder
	sawToolCall := false
	index := 0
	for _, ev := range events[2 : len(events)-1] {
		switch payload := ev.Data.(type) {
		case stream.ContentDeltaPayload:
			if sawToolCall {
				t.Error("content_delta after tool_call")
			}
			if payload.Index != index {
				t.Errorf("Expected delta index %d, got %d", index, payload.Index)
			}
			index++
			rebuilt.WriteString(payload.Content)
		case stream.ToolCallPayload:
			sawToolCall = true
		default:
			t.Errorf("Unexpected event %s between agent_start and done", ev.Type)
		}
	}
	if !sawToolCall {
		t.Error("Expected a tool_call event")
	}
	if rebuilt.String() != content {
		t.Errorf("Expected deltas to reconstruct content, got %q", rebuilt.String())
	}
}

func TestStreamMatchesBufferedRun(t *testing.T) {
	t.Parallel()

	content := strings.Repeat("বাংলা আর English মিলে ", 9)
	general := &stubHandler{tag: domain.TagGeneral, content: content}
	o := New(&stubRouter{decision: domain.RoutingDecision{AgentTag: domain.TagGeneral, Confidence: 0.7, Reasoning: "chat"}},
		agent.NewRegistry(general), actions.NewExtractor(), Config{ChunkSize: 7}, nil)

	result, err := o.Run(context.Background(), "hello", nil)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	events, err := collectStream(t, o, "hello", nil)
	if err != nil {
		t.Fatalf("Stream failed: %v", err)
	}

	var rebuilt strings.Builder
	for _, ev := range events {
		if payload, ok := ev.Data.(stream.ContentDeltaPayload); ok {
			rebuilt.WriteString(payload.Content)
		}
	}
	if rebuilt.String() != result.Response.Content {
		t.Errorf("Streamed content differs from buffered content")
	}
}

func TestStreamHandlerFailureYieldsSingleError(t *testing.T) {
	t.Parallel()

	backendErr := errors.New("backend down")
	general := &stubHandler{tag: domain.TagGeneral, err: backendErr}
	o := newTestOrchestrator(
		domain.RoutingDecision{AgentTag: domain.TagGeneral, Confidence: 0.9, Reasoning: "chat"},
		general,
	)

	events, err := collectStream(t, o, "hello", nil)
	if !errors.Is(err, backendErr) {
		t.Fatalf("Expected terminal handler error, got %v", err)
	}
	for _, ev := range events {
		if ev.Type == stream.EventContentDelta || ev.Type == stream.EventDone {
			t.Errorf("Expected no partial content after failure, got %s", ev.Type)
		}
	}
}

func TestStreamStopsWhenConsumerStops(t *testing.T) {
	t.Parallel()

	general := &stubHandler{tag: domain.TagGeneral, content: strings.Repeat("x", 500)}
	o := New(&stubRouter{decision: domain.RoutingDecision{AgentTag: domain.TagGeneral, Confidence: 0.9}},
		agent.NewRegistry(general), actions.NewExtractor(), Config{ChunkSize: 10}, nil)

	seen := 0
	for ev, err := range o.Stream(context.Background(), "hello", nil) {
		if err != nil {
			t.Fatalf("Stream failed: %v", err)
		}
		seen++
		if ev.Type == stream.EventContentDelta {
			break
		}
	}
	if seen != 3 {
		t.Errorf("Expected to stop after 3 events, saw %d", seen)
	}
}
