// Package llm fixes the external LLM service interface the agent loop calls
// through. The model itself is out of scope: this package
// only defines the message-completion contract (assistant text or
// structured tool-use requests, plus input/output token counts) and a
// registry of model tiers, modeled on the pkg/llms provider
// abstraction (pkg/llms/types.go, pkg/llms/registry.go) and its concrete
// Anthropic adapter (pkg/llms/anthropic.go).
package llm

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/wittyreference/feature-factory/internal/model"
)

// ToolDeclaration describes one tool the model may call, in the shape every
// major provider's "tools" request field expects.
type ToolDeclaration struct {
	Name        string
	Description string
	InputSchema json.RawMessage
}

// Request is one message-completion call.
type Request struct {
	Model        string
	SystemPrompt string
	Messages     []model.Message
	Tools        []ToolDeclaration
	MaxTokens    int
}

// Response is the model's reply: either assistant text, one or more
// tool-use blocks, or both (some providers interleave reasoning text with a
// tool call in the same turn).
type Response struct {
	Blocks       []model.ContentBlock
	StopReason   string
	InputTokens  int
	OutputTokens int
}

// HasToolUse reports whether the response contains at least one tool_use
// block the agent loop must dispatch before the phase can proceed.
func (r *Response) HasToolUse() bool {
	for _, b := range r.Blocks {
		if b.Type == "tool_use" {
			return true
		}
	}
	return false
}

// Text concatenates every text block in the response, which is what the
// agent loop attempts to parse as the persona's structured JSON output.
func (r *Response) Text() string {
	var out string
	for _, b := range r.Blocks {
		if b.Type == "text" {
			out += b.Text
		}
	}
	return out
}

// Client is the external LLM service contract. Implementations report
// token counts accurately enough to drive the cost accountant;
// exact pricing correctness is the caller's concern, not this interface's.
type Client interface {
	Complete(ctx context.Context, req Request) (*Response, error)
}

// Registry resolves a model tier name (sonnet/opus/haiku, or a
// caller-defined alias) to a Client. Mirrors this codebase's
// pkg/llms/registry.go pattern of a name-keyed provider map.
type Registry struct {
	clients map[string]Client
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{clients: make(map[string]Client)}
}

// Register binds a model tier name to a Client.
func (r *Registry) Register(name string, c Client) {
	r.clients[name] = c
}

// Resolve looks up a Client by model tier name.
func (r *Registry) Resolve(name string) (Client, error) {
	c, ok := r.clients[name]
	if !ok {
		return nil, fmt.Errorf("llm: no client registered for model %q", name)
	}
	return c, nil
}
