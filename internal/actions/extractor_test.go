package actions

import (
	"reflect"
	"testing"

	"github.com/tahmidanik/dishari/internal/domain"
)

func TestExtractInlineDirective(t *testing.T) {
	t.Parallel()

	e := NewExtractor()
	resp := &domain.HandlerResponse{
		Content: `Open your task list: {"action": "navigate", "params": {"path": "/tasks"}} and start with the first item.`,
	}

	got := e.Extract(resp)
	if len(got) != 1 {
		t.Fatalf("Expected 1 action, got %d", len(got))
	}
	if got[0].Kind != "navigate" {
		t.Errorf("Expected kind navigate, got %q", got[0].Kind)
	}
	if got[0].Params["path"] != "/tasks" {
		t.Errorf("Expected path /tasks, got %v", got[0].Params["path"])
	}
}

func TestExtractFlattenedParams(t *testing.T) {
	t.Parallel()

	e := NewExtractor()
	resp := &domain.HandlerResponse{
		Content: `{"action": "navigate", "path": "/roadmaps", "highlight": true}`,
	}

	got := e.Extract(resp)
	if len(got) != 1 {
		t.Fatalf("Expected 1 action, got %d", len(got))
	}
	want := map[string]any{"path": "/roadmaps", "highlight": true}
	if !reflect.DeepEqual(got[0].Params, want) {
		t.Errorf("Expected params %v, got %v", want, got[0].Params)
	}
}

func TestExtractSkipsMalformedJSON(t *testing.T) {
	t.Parallel()

	e := NewExtractor()
	resp := &domain.HandlerResponse{
		Content: `{"action": "navigate", "params": {broken and a valid one later {"action": "render_roadmap"}`,
	}

	got := e.Extract(resp)
	if len(got) != 1 {
		t.Fatalf("Expected 1 action, got %d", len(got))
	}
	if got[0].Kind != "render_roadmap" {
		t.Errorf("Expected kind render_roadmap, got %q", got[0].Kind)
	}
	if got[0].Params != nil {
		t.Errorf("Expected nil params, got %v", got[0].Params)
	}
}

func TestExtractIgnoresObjectsWithoutActionKey(t *testing.T) {
	t.Parallel()

	e := NewExtractor()
	resp := &domain.HandlerResponse{
		Content: `Here is a config example: {"timeout": 30, "retries": 3}. Nothing to do.`,
	}

	if got := e.Extract(resp); len(got) != 0 {
		t.Errorf("Expected no actions, got %v", got)
	}
}

func TestExtractNestedObjectNotDoubleCounted(t *testing.T) {
	t.Parallel()

	e := NewExtractor()
	resp := &domain.HandlerResponse{
		Content: `{"action": "render_roadmap", "params": {"roadmap": {"action": "nested", "title": "Go"}}}`,
	}

	got := e.Extract(resp)
	if len(got) != 1 {
		t.Fatalf("Expected 1 action, got %d", len(got))
	}
	if got[0].Kind != "render_roadmap" {
		t.Errorf("Expected kind render_roadmap, got %q", got[0].Kind)
	}
}

func TestExtractToolResults(t *testing.T) {
	t.Parallel()

	e := NewExtractor()
	resp := &domain.HandlerResponse{
		Content: `Inline first: {"action": "navigate", "params": {"path": "/tasks"}}`,
		Metadata: map[string]any{
			"toolResults": []any{
				`{"action": "notify", "params": {"level": "info"}}`,
				map[string]any{"action": "refresh"},
				`not json at all`,
				42,
			},
		},
	}

	got := e.Extract(resp)
	if len(got) != 3 {
		t.Fatalf("Expected 3 actions, got %d: %v", len(got), got)
	}
	// Inline matches come before metadata matches.
	kinds := []string{got[0].Kind, got[1].Kind, got[2].Kind}
	want := []string{"navigate", "notify", "refresh"}
	if !reflect.DeepEqual(kinds, want) {
		t.Errorf("Expected order %v, got %v", want, kinds)
	}
}

func TestExtractIdempotent(t *testing.T) {
	t.Parallel()

	e := NewExtractor()
	resp := &domain.HandlerResponse{
		Content: `{"action": "navigate", "params": {"path": "/tasks"}} then {"action": "refresh"}`,
	}

	first := e.Extract(resp)
	second := e.Extract(resp)
	if !reflect.DeepEqual(first, second) {
		t.Errorf("Expected identical results, got %v then %v", first, second)
	}
	if len(first) != 2 {
		t.Errorf("Expected 2 actions, got %d", len(first))
	}
}

func TestExtractNilAndEmpty(t *testing.T) {
	t.Parallel()

	e := NewExtractor()
	if got := e.Extract(nil); got != nil {
		t.Errorf("Expected nil for nil response, got %v", got)
	}
	if got := e.Extract(&domain.HandlerResponse{Content: ""}); len(got) != 0 {
		t.Errorf("Expected no actions for empty content, got %v", got)
	}
	if got := e.Extract(&domain.HandlerResponse{Content: `{"action": ""}`}); len(got) != 0 {
		t.Errorf("Expected empty action kind to be rejected, got %v", got)
	}
}
