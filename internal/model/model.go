// Package model provides the client for the external generation
// backend. The rest of the pipeline depends only on the Client
// interface; the production implementation talks to Gemini.
package model

import "context"

// Request is one generation call. When JSON is set the backend is
// asked for a single JSON object as output (used by the router).
type Request struct {
	System      string
	Prompt      string
	JSON        bool
	Temperature float32
}

// Client generates a completion for a request. Implementations must
// honor ctx cancellation; retry policy, if any, lives behind this
// interface, never in the callers.
type Client interface {
	Generate(ctx context.Context, req Request) (string, error)
}
