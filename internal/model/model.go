// Package model defines the data model shared across the orchestrator:
// agent personas, workflow/phase definitions, the persisted workflow state
// machine, phase results, and the supporting value types.
//
// These are plain records with no behavior beyond small invariant helpers,
// mirroring the preference for simple structs over deep type
// hierarchies (pkg/session, pkg/checkpoint/state.go).
package model

import (
	"encoding/json"
	"time"
)

// AgentName identifies one of the closed set of agent personas.
type AgentName string

const (
	AgentArchitect AgentName = "architect"
	AgentSpec      AgentName = "spec"
	AgentTestGen   AgentName = "test-gen"
	AgentDev       AgentName = "dev"
	AgentQA        AgentName = "qa"
	AgentReview    AgentName = "review"
	AgentDocs      AgentName = "docs"
)

// ModelTier is the closed set of LLM tiers a persona may default to.
type ModelTier string

const (
	ModelSonnet ModelTier = "sonnet"
	ModelOpus   ModelTier = "opus"
	ModelHaiku  ModelTier = "haiku"
)

// ValidationResult is returned by an AgentPersona's Validator.
type ValidationResult struct {
	OK     bool
	Reason string
}

// Validator decides whether an agent's structured output is acceptable for
// the given phase context. Supplied as data by the caller: the
// core only enforces the ok/reason contract.
type Validator func(output json.RawMessage, phaseCtx *PhaseContext) ValidationResult

// PhaseContext is the read-only view of orchestrator state a validator or
// hook may consult. It is a narrowed projection of WorkflowState so
// validators can't mutate orchestrator-owned state.
type PhaseContext struct {
	SessionID       string
	Workflow        string
	Description     string
	PhaseIndex      int
	PhaseResults    map[AgentName]PhaseResult
	CumulativeCost  float64
	CumulativeTurns int
}

// AgentPersona is an immutable, externally supplied configuration for one
// LLM role.
type AgentPersona struct {
	Name          AgentName
	SystemPrompt  string
	OutputSchema  json.RawMessage
	Validator     Validator
	AllowedTools  []string
	DefaultModel  ModelTier
}

// HookName is one of the closed set of pre-phase hooks.
type HookName string

const (
	HookTDDEnforcement      HookName = "tdd-enforcement"
	HookCoverageThreshold   HookName = "coverage-threshold"
	HookTestPassingEnforce  HookName = "test-passing-enforcement"
)

// WorkflowPhase binds one agent persona to a phase's policy.
type WorkflowPhase struct {
	Agent            AgentName
	DisplayName      string
	ApprovalRequired bool
	PrePhaseHooks    []HookName
	MaxRetries       *int // nil means "use the global default"
}

// Workflow is an ordered sequence of phases plus a name.
type Workflow struct {
	Name   string
	Phases []WorkflowPhase
}

// Status is the closed set of WorkflowState.Status values.
type Status string

const (
	StatusRunning          Status = "running"
	StatusAwaitingApproval Status = "awaiting-approval"
	StatusCompleted        Status = "completed"
	StatusFailed           Status = "failed"
	StatusCancelled        Status = "cancelled"
)

// PhaseResult is the immutable record of one completed (or finally failed)
// phase attempt-sequence.
type PhaseResult struct {
	Agent         AgentName       `json:"agent"`
	Status        string          `json:"status"` // "completed" | "failed"
	Output        json.RawMessage `json:"output,omitempty"`
	FilesCreated  []string        `json:"files_created,omitempty"`
	FilesModified []string        `json:"files_modified,omitempty"`
	Commits       []string        `json:"commits,omitempty"`
	CostUSD       float64         `json:"cost_usd"`
	Turns         int             `json:"turns"`
	RetryAttempts int             `json:"retry_attempts"`
	Error         string          `json:"error,omitempty"`
}

// WorkflowState is the orchestrator-owned, persisted state machine for one
// session.
type WorkflowState struct {
	SessionID          string                        `json:"sessionId"`
	Workflow           string                        `json:"workflow"`
	Description        string                        `json:"description"`
	Status             Status                        `json:"status"`
	CurrentPhaseIndex  int                           `json:"currentPhaseIndex"`
	PhaseResults       map[AgentName]PhaseResult     `json:"phaseResults"`
	Checkpoints        map[AgentName]string          `json:"checkpoints"`
	CumulativeCostUSD  float64                       `json:"cumulativeCostUsd"`
	CumulativeTurns    int                           `json:"cumulativeTurns"`
	StartedAt          time.Time                     `json:"startedAt"`
	UpdatedAt          time.Time                     `json:"updatedAt"`
	CompletedAt        *time.Time                    `json:"completedAt,omitempty"`
	Error              string                        `json:"error,omitempty"`
}

// Clone deep-copies the state so callers (session store, driver) can hand
// out read snapshots without aliasing mutable maps.
func (s *WorkflowState) Clone() *WorkflowState {
	if s == nil {
		return nil
	}
	out := *s
	out.PhaseResults = make(map[AgentName]PhaseResult, len(s.PhaseResults))
	for k, v := range s.PhaseResults {
		cp := v
		cp.FilesCreated = append([]string(nil), v.FilesCreated...)
		cp.FilesModified = append([]string(nil), v.FilesModified...)
		cp.Commits = append([]string(nil), v.Commits...)
		out.PhaseResults[k] = cp
	}
	out.Checkpoints = make(map[AgentName]string, len(s.Checkpoints))
	for k, v := range s.Checkpoints {
		out.Checkpoints[k] = v
	}
	if s.CompletedAt != nil {
		t := *s.CompletedAt
		out.CompletedAt = &t
	}
	return &out
}

// Resumable reports whether the state can be picked up by a later process
//.
func (s *WorkflowState) Resumable() bool {
	return s != nil && s.Status == StatusAwaitingApproval
}

// Role is the closed set of Message.Role values used inside one phase's
// ephemeral agent-loop conversation.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleToolResult Role = "tool-result"
)

// Message is one ephemeral turn in a phase's conversation. Messages are
// never persisted across phases; only the structured output in
// PhaseResult crosses a phase boundary.
type Message struct {
	Role    Role
	Text    string
	Blocks  []ContentBlock
}

// ContentBlock is either a tool-use request (from the assistant) or a
// tool-result (fed back to the model), matching the shape every major LLM
// API uses for structured tool calling.
type ContentBlock struct {
	Type      string // "text" | "tool_use" | "tool_result"
	Text      string
	ToolUseID string
	ToolName  string
	Input     json.RawMessage
	Result    string
	IsError   bool
}

// WorkItem is produced by work sources.
type WorkItem struct {
	ID                string
	Source            string
	Summary           string
	Priority          string // critical|high|medium|low
	Tier              int    // 1..4
	SuggestedWorkflow string
	ResourceSIDs      []string
	Status            string
	Consumed          bool
}
