// Package orcherr defines the orchestrator's structured error type and the
// sentinel errors used to classify failures as recoverable or not. The
// shape mirrors the ToolRegistryError pattern (pkg/tools/registry.go): a
// component/action/message triple wrapping a cause, which prints well in
// logs and supports errors.Is/As.
package orcherr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure per the error taxonomy.
type Kind string

const (
	KindToolExecution      Kind = "tool_execution"
	KindSandboxViolation   Kind = "sandbox_violation"
	KindCredentialLeak     Kind = "credential_leak"
	KindParseFailure       Kind = "parse_failure"
	KindValidationFailure  Kind = "validation_failure"
	KindAgentTimeout       Kind = "agent_timeout"
	KindStallHardStop      Kind = "stall_hard_stop"
	KindPrePhaseHook       Kind = "pre_phase_hook"
	KindBudgetExceeded     Kind = "budget_exceeded"
	KindWorkflowTime       Kind = "workflow_time_exceeded"
	KindApprovalDenial     Kind = "approval_denial"
	KindModelUnavailable   Kind = "model_unavailable"
)

// Recoverable reports whether a failure of this kind may be retried by the
// phase executor. Non-recoverable kinds must
// bubble as a single workflow-error event.
func (k Kind) Recoverable() bool {
	switch k {
	case KindPrePhaseHook, KindBudgetExceeded, KindWorkflowTime, KindApprovalDenial:
		return false
	default:
		return true
	}
}

// Error is the structured error carried through the phase executor and
// workflow driver. Phase is the agent-persona name the error occurred in,
// empty when not phase-scoped.
type Error struct {
	Kind    Kind
	Phase   string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Phase != "" {
		if e.Err != nil {
			return fmt.Sprintf("[%s:%s] %s: %v", e.Phase, e.Kind, e.Message, e.Err)
		}
		return fmt.Sprintf("[%s:%s] %s", e.Phase, e.Kind, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New constructs an *Error.
func New(kind Kind, phase, message string, cause error) *Error {
	return &Error{Kind: kind, Phase: phase, Message: message, Err: cause}
}

// Recoverable reports whether err (if it is, or wraps, an *Error) may be
// retried. Errors of an unrecognized shape are treated as non-recoverable
// so unknown failures fail closed rather than retry forever.
func Recoverable(err error) bool {
	var oe *Error
	if errors.As(err, &oe) {
		return oe.Kind.Recoverable()
	}
	return false
}

// Sentinel errors for simple control-flow branches that don't need the
// full structured Error (sessions, sandbox, config lookups).
var (
	ErrSessionNotFound  = errors.New("session not found")
	ErrSessionNotResume = errors.New("session is not resumable")
	ErrSandboxDirty     = errors.New("source working tree is not clean")
	ErrWorkflowNotFound = errors.New("workflow not found")
	ErrAgentNotFound    = errors.New("agent persona not found")
	ErrInvalidState     = errors.New("invalid workflow state transition")
)
