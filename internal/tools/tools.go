// Package tools implements the fixed tool surface every phase's agent loop
// dispatches against: Read, Write, Edit, Glob, Grep, and Bash.
// Every tool is rooted at a boundary directory (the sandbox clone) and
// enforces the same path-containment invariant the file tools use
// (pkg/tools/file_writer.go, pkg/tools/read_file.go validatePath), plus a
// credential-leak scan on tool output this codebase has no equivalent for.
package tools

import (
	"context"
	"encoding/json"
)

// Call is one model-issued tool invocation.
type Call struct {
	Name  string
	Input json.RawMessage
}

// Result is the outcome returned to the agent loop for feeding back to the
// model as a tool_result block.
type Result struct {
	Success bool
	Content string
	Error   string
	// SkipCredentialScan tells Dispatch not to scan Content. Read sets it
	// when its path is exempt from the scan, so fixture content that merely
	// looks like a secret is not flagged; Write and Edit always set it,
	// since they scan their own input and return only a short summary.
	SkipCredentialScan bool
}

// Tool is the contract every dispatchable tool implements, mirroring the
// Tool interface pattern (pkg/tools/interfaces.go) narrowed to this
// orchestrator's fixed six tools.
type Tool interface {
	Name() string
	Description() string
	InputSchema() json.RawMessage
	Execute(ctx context.Context, input json.RawMessage) Result
}

// Registry resolves a tool by name and enforces the allow-list a persona
// declares (AgentPersona.AllowedTools).
type Registry struct {
	tools map[string]Tool
}

// NewRegistry builds an empty Registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool, keyed by its own name.
func (r *Registry) Register(t Tool) {
	r.tools[t.Name()] = t
}

// Declarations returns the llm.ToolDeclaration-shaped metadata for every
// tool in allowed (or all registered tools if allowed is empty), for
// building the request's Tools field.
func (r *Registry) Declarations(allowed []string) []Tool {
	if len(allowed) == 0 {
		out := make([]Tool, 0, len(r.tools))
		for _, t := range r.tools {
			out = append(out, t)
		}
		return out
	}
	out := make([]Tool, 0, len(allowed))
	for _, name := range allowed {
		if t, ok := r.tools[name]; ok {
			out = append(out, t)
		}
	}
	return out
}

// Dispatch runs call.Name against the registry, scanning the result for
// leaked credentials before returning it to the caller. A
// tool name absent from the registry, or excluded by allowed, is a
// dispatch-time error rather than a tool Result so the agent loop can tell
// the two failure modes apart.
func (r *Registry) Dispatch(ctx context.Context, call Call, allowed []string) (Result, error) {
	t, ok := r.tools[call.Name]
	if !ok {
		return Result{}, &UnknownToolError{Name: call.Name}
	}
	if len(allowed) > 0 && !contains(allowed, call.Name) {
		return Result{}, &UnknownToolError{Name: call.Name}
	}
	res := t.Execute(ctx, call.Input)
	if res.Success && !res.SkipCredentialScan {
		if leak := ScanForCredentials(res.Content); leak != "" {
			return Result{Success: false, Error: "credential leak detected: " + leak}, nil
		}
	}
	return res, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// UnknownToolError reports a call to an unregistered or disallowed tool.
type UnknownToolError struct {
	Name string
}

func (e *UnknownToolError) Error() string {
	return "tools: unknown or disallowed tool " + e.Name
}
