// Package orchestrator sequences one chat turn: classify the message,
// dispatch the selected capability handler, extract actions, and
// deliver the result buffered or streamed. Both delivery protocols
// drive the same turn steps, which is what keeps them content-
// equivalent.
package orchestrator

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"time"

	"github.com/tahmidanik/dishari/internal/actions"
	"github.com/tahmidanik/dishari/internal/agent"
	"github.com/tahmidanik/dishari/internal/domain"
	"github.com/tahmidanik/dishari/internal/stream"
)

// DefaultConfidenceThreshold gates dispatch: routing below it falls
// back to the general handler.
const DefaultConfidenceThreshold = 0.5

// State names one orchestrator phase. ERROR is reachable from any
// non-terminal state.
type State string

const (
	StateStart            State = "START"
	StateRouted           State = "ROUTED"
	StateProcessed        State = "PROCESSED"
	StateActionsExtracted State = "ACTIONS_EXTRACTED"
	StateDone             State = "DONE"
	StateError            State = "ERROR"
)

// Config holds per-deployment tunables.
type Config struct {
	ConfidenceThreshold float64
	ChunkSize           int
	ChunkDelay          time.Duration
}

// Orchestrator runs turns. Construct one at startup and share it; it
// holds only read-only collaborators.
type Orchestrator struct {
	router    agent.Router
	registry  *agent.Registry
	extractor *actions.Extractor
	cfg       Config
	logger    *slog.Logger
}

// New creates an orchestrator, applying defaults for unset tunables.
func New(router agent.Router, registry *agent.Registry, extractor *actions.Extractor, cfg Config, logger *slog.Logger) *Orchestrator {
	if cfg.ConfidenceThreshold <= 0 {
		cfg.ConfidenceThreshold = DefaultConfidenceThreshold
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = stream.DefaultChunkSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		router:    router,
		registry:  registry,
		extractor: extractor,
		cfg:       cfg,
		logger:    logger,
	}
}

// Result is the assembled output of one successful turn.
type Result struct {
	Response *domain.HandlerResponse
	Routing  domain.RoutingDecision
	Actions  []domain.Action
}

// turn tracks the state machine for one message. Every turn produces
// exactly one routing decision and exactly one handler response (or a
// terminal error).
type turn struct {
	o       *Orchestrator
	message string
	actx    *domain.AgentContext

	state   State
	routing domain.RoutingDecision
	handler agent.CapabilityHandler
	resp    *domain.HandlerResponse
	actions []domain.Action
}

func (o *Orchestrator) newTurn(message string, actx *domain.AgentContext) *turn {
	return &turn{o: o, message: message, actx: actx, state: StateStart}
}

// route performs START → ROUTED. It cannot fail: the router degrades
// internally, an out-of-vocabulary tag is normalized, and a
// sub-threshold confidence forces the general tag before the state is
// left. After this step the decision's tag is always legal.
func (t *turn) route(ctx context.Context) {
	d := t.o.router.Classify(ctx, t.message, t.actx)

	raw := d.AgentTag
	if _, ok := domain.ParseAgentTag(string(d.AgentTag)); !ok {
		d.AgentTag = domain.TagGeneral
	}
	if d.Confidence < t.o.cfg.ConfidenceThreshold {
		d.AgentTag = domain.TagGeneral
	}

	t.routing = d
	t.state = StateRouted

	t.o.logger.Info("turn routed",
		"conversation_id", conversationID(t.actx),
		"raw_tag", raw,
		"agent", d.AgentTag,
		"confidence", d.Confidence,
	)
}

// dispatch resolves the handler for the routed tag. A missing
// registration is itself a routing inconsistency, recovered by
// forcing general; only a registry without a general handler fails.
func (t *turn) dispatch() error {
	h, ok := t.o.registry.Resolve(t.routing.AgentTag)
	if !ok {
		t.o.logger.Warn("no handler registered for tag, forcing general", "tag", t.routing.AgentTag)
		t.routing.AgentTag = domain.TagGeneral
		h, ok = t.o.registry.Resolve(domain.TagGeneral)
		if !ok {
			t.state = StateError
			return fmt.Errorf("no general handler registered")
		}
	}
	t.handler = h
	return nil
}

// process performs ROUTED → PROCESSED. Handler failure is terminal
// for the turn; there is no silent re-dispatch once a handler ran, to
// avoid duplicate side effects.
func (t *turn) process(ctx context.Context) error {
	start := time.Now()
	resp, err := t.handler.Process(ctx, t.message, t.actx)
	if err != nil {
		t.state = StateError
		return fmt.Errorf("handler %s failed: %w", t.routing.AgentTag, err)
	}
	t.resp = resp
	t.state = StateProcessed

	t.o.logger.Info("turn processed",
		"conversation_id", conversationID(t.actx),
		"agent", t.routing.AgentTag,
		"content_len", len(resp.Content),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

// extract performs PROCESSED → ACTIONS_EXTRACTED. This step never
// fails a turn: extraction trouble means no actions.
func (t *turn) extract() {
	t.actions = t.o.extractor.Extract(t.resp)
	t.state = StateActionsExtracted
}

func (t *turn) finish() *Result {
	t.state = StateDone
	return &Result{Response: t.resp, Routing: t.routing, Actions: t.actions}
}

// Run executes one buffered turn.
func (o *Orchestrator) Run(ctx context.Context, message string, actx *domain.AgentContext) (*Result, error) {
	t := o.newTurn(message, actx)

	t.route(ctx)
	if err := t.dispatch(); err != nil {
		return nil, err
	}
	if err := t.process(ctx); err != nil {
		return nil, err
	}
	t.extract()
	return t.finish(), nil
}

// Stream executes one turn as the canonical event sequence. The
// sequence is a view over the same transitions Run makes:
// concatenating the content_delta payloads reconstructs exactly the
// content a buffered run would return. A yielded error is terminal;
// the caller emits it as the single error event. Stopping the
// iteration (client gone) stops all further work.
func (o *Orchestrator) Stream(ctx context.Context, message string, actx *domain.AgentContext) iter.Seq2[*stream.Event, error] {
	return func(yield func(*stream.Event, error) bool) {
		t := o.newTurn(message, actx)

		if !yield(stream.Status("routing"), nil) {
			return
		}
		t.route(ctx)
		if err := t.dispatch(); err != nil {
			yield(nil, err)
			return
		}
		if !yield(stream.AgentStart(t.routing), nil) {
			return
		}

		if err := t.process(ctx); err != nil {
			yield(nil, err)
			return
		}

		for i, chunk := range stream.Chunks(t.resp.Content, o.cfg.ChunkSize) {
			if i > 0 && o.cfg.ChunkDelay > 0 {
				// Pacing only; correctness does not depend on it.
				select {
				case <-ctx.Done():
					return
				case <-time.After(o.cfg.ChunkDelay):
				}
			}
			if !yield(stream.ContentDelta(chunk, i), nil) {
				return
			}
		}

		t.extract()
		for _, a := range t.actions {
			if !yield(stream.ToolCall(a), nil) {
				return
			}
		}

		t.finish()
		yield(stream.Done(t.routing.AgentTag, conversationID(t.actx), t.actions), nil)
	}
}

func conversationID(actx *domain.AgentContext) string {
	if actx == nil {
		return ""
	}
	return actx.ConversationID
}
