// Package actions extracts structured UI directives from handler
// responses. Extraction is a best-effort post-processing stage: it
// never fails a turn, it only finds fewer actions.
package actions

import (
	"encoding/json"
	"strings"

	"github.com/tahmidanik/dishari/internal/domain"
)

// Extractor scans a handler response for action directives. It is
// pure and idempotent: the same response yields the same ordered
// action list every time.
type Extractor struct{}

// NewExtractor creates an extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}

// Extract unions two strategies over one response: JSON objects with
// an "action" key embedded in the content text, then structured
// metadata toolResults. Inline matches come first.
func (e *Extractor) Extract(resp *domain.HandlerResponse) []domain.Action {
	if resp == nil {
		return nil
	}

	actions := scanContent(resp.Content)
	for _, tr := range resp.ToolResults() {
		if a, ok := actionFromValue(tr); ok {
			actions = append(actions, a)
		}
	}
	return actions
}

// scanContent walks the text looking for JSON objects that carry an
// "action" key. Each candidate is decoded opportunistically; whatever
// does not parse is skipped, not errored.
func scanContent(content string) []domain.Action {
	var actions []domain.Action

	for i := 0; i < len(content); i++ {
		if content[i] != '{' {
			continue
		}

		dec := json.NewDecoder(strings.NewReader(content[i:]))
		var raw map[string]any
		if err := dec.Decode(&raw); err != nil {
			continue
		}
		if a, ok := actionFromMap(raw); ok {
			actions = append(actions, a)
			// Skip past the decoded object so nested objects inside
			// it are not matched again.
			i += int(dec.InputOffset()) - 1
		}
	}

	return actions
}

// actionFromValue coerces one toolResults entry into an action.
// String payloads are parsed as JSON; maps are used as-is.
func actionFromValue(v any) (domain.Action, bool) {
	switch t := v.(type) {
	case string:
		var raw map[string]any
		if err := json.Unmarshal([]byte(t), &raw); err != nil {
			return domain.Action{}, false
		}
		return actionFromMap(raw)
	case map[string]any:
		return actionFromMap(t)
	default:
		return domain.Action{}, false
	}
}

// actionFromMap keeps only objects whose "action" key is a non-empty
// string. Params come from a "params" object when present, otherwise
// from the remaining top-level keys.
func actionFromMap(raw map[string]any) (domain.Action, bool) {
	kind, ok := raw["action"].(string)
	if !ok || kind == "" {
		return domain.Action{}, false
	}

	if p, ok := raw["params"].(map[string]any); ok {
		return domain.Action{Kind: kind, Params: p}, true
	}

	params := make(map[string]any, len(raw)-1)
	for k, v := range raw {
		if k == "action" {
			continue
		}
		params[k] = v
	}
	if len(params) == 0 {
		params = nil
	}
	return domain.Action{Kind: kind, Params: params}, true
}
