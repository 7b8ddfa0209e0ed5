package phase

import (
	"context"
	"fmt"
	"time"

	"github.com/wittyreference/feature-factory/internal/agentloop"
	"github.com/wittyreference/feature-factory/internal/checkpoint"
	"github.com/wittyreference/feature-factory/internal/model"
	"github.com/wittyreference/feature-factory/internal/orcherr"
)

// PhaseRecorder receives one phase's outcome, total duration across all
// attempts, and retry count, matching internal/metrics.Recorder.RecordPhase
// without this package importing internal/metrics directly.
type PhaseRecorder interface {
	RecordPhase(ctx context.Context, agent, outcome string, duration time.Duration, retries int)
}

// Attempt runs one agent-loop attempt for a retry and returns its result.
// feedback is the retry-feedback preamble (empty on attempt 1); the
// workflow driver supplies this closure so phase stays agnostic of how the
// agent loop's Input is assembled (personas, model routing, learnings).
type Attempt func(ctx context.Context, attemptNumber int, feedback string) (*agentloop.AgentResult, error)

// Callbacks lets the workflow driver observe hook and retry events as they
// happen, for its own event stream (pre-phase-hook and retry events).
type Callbacks struct {
	OnPrePhaseHook func(hook model.HookName, ok bool, reason string)
	OnRetry        func(attempt int, reason string)
}

// Config controls retry defaults and optional instrumentation.
type Config struct {
	// DefaultMaxRetries is used when a WorkflowPhase doesn't override it.
	DefaultMaxRetries int

	// Rec, if set, records this phase's outcome and duration once Execute
	// returns. Nil is a valid no-instrumentation default.
	Rec PhaseRecorder
}

// Execute runs phase.PrePhaseHooks, then the agent loop, up to
// 1+maxRetries times, merging results across attempts and honoring
// persona validation. It returns the checkpoint tag created for this
// phase (for the caller to persist into
// WorkflowState.Checkpoints) alongside the accumulated PhaseResult. A
// non-nil error means the workflow itself must stop (a non-recoverable
// failure, including a failed pre-phase hook). Exhausting retries without
// a non-recoverable cause returns a failed PhaseResult with a nil error,
// so the caller can decide how to report it.
func Execute(
	ctx context.Context,
	checkpoints *checkpoint.Manager,
	hooks map[model.HookName]Hook,
	hookCtx HookContext,
	sessionID string,
	phaseIndex int,
	wp model.WorkflowPhase,
	cfg Config,
	validate model.Validator,
	run Attempt,
	cb Callbacks,
) (result model.PhaseResult, tag string, err error) {
	start := time.Now()
	defer func() {
		if cfg.Rec != nil {
			outcome := result.Status
			if outcome == "" {
				outcome = "failed"
			}
			cfg.Rec.RecordPhase(ctx, string(wp.Agent), outcome, time.Since(start), result.RetryAttempts)
		}
	}()

	var createErr error
	tag, createErr = checkpoints.Create(ctx, sessionID, phaseIndex, wp.DisplayName)
	if createErr != nil {
		return model.PhaseResult{Agent: wp.Agent, Status: "failed"}, "", orcherr.New(orcherr.KindToolExecution, string(wp.Agent), "create pre-phase checkpoint", createErr)
	}

	maxAttempts := 1 + cfg.DefaultMaxRetries
	if wp.MaxRetries != nil {
		maxAttempts = 1 + *wp.MaxRetries
	}

	accumulated := model.PhaseResult{Agent: wp.Agent}
	var lastFailure string

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		for _, hookName := range wp.PrePhaseHooks {
			hookFn, ok := hooks[hookName]
			if !ok {
				return accumulated, tag, orcherr.New(orcherr.KindPrePhaseHook, string(wp.Agent),
					fmt.Sprintf("no hook registered for %q", hookName), nil)
			}
			hookErr := hookFn(ctx, hookCtx)
			if cb.OnPrePhaseHook != nil {
				reason := ""
				if hookErr != nil {
					reason = hookErr.Error()
				}
				cb.OnPrePhaseHook(hookName, hookErr == nil, reason)
			}
			if hookErr != nil {
				accumulated.Status = "failed"
				accumulated.Error = hookErr.Error()
				return accumulated, tag, orcherr.New(orcherr.KindPrePhaseHook, string(wp.Agent),
					fmt.Sprintf("pre-phase hook %q failed", hookName), hookErr)
			}
		}

		feedback := ""
		if lastFailure != "" {
			touched := append(append([]string(nil), accumulated.FilesCreated...), accumulated.FilesModified...)
			feedback = RetryFeedback(lastFailure, touched)
		}
		attemptResult, runErr := run(ctx, attempt, feedback)
		if runErr != nil {
			if !orcherr.Recoverable(runErr) {
				accumulated.Status = "failed"
				accumulated.Error = runErr.Error()
				return accumulated, tag, runErr
			}
			lastFailure = runErr.Error()
			if cb.OnRetry != nil {
				cb.OnRetry(attempt, lastFailure)
			}
			continue
		}

		mergeResult(&accumulated, attemptResult)

		if validate != nil {
			vr := validate(attemptResult.Output, hookCtx.PhaseCtx)
			if !vr.OK {
				lastFailure = "Validation failed: " + vr.Reason
				if cb.OnRetry != nil {
					cb.OnRetry(attempt, lastFailure)
				}
				continue
			}
		}

		accumulated.Status = "completed"
		accumulated.Output = attemptResult.Output
		accumulated.RetryAttempts = attempt - 1
		return accumulated, tag, nil
	}

	accumulated.Status = "failed"
	accumulated.Error = lastFailure
	accumulated.RetryAttempts = maxAttempts - 1
	return accumulated, tag, nil
}

// mergeResult folds one attempt's AgentResult into the phase's running
// total: files/commits accumulate (deduplicated), cost and turns sum.
func mergeResult(acc *model.PhaseResult, r *agentloop.AgentResult) {
	acc.FilesCreated = appendUnique(acc.FilesCreated, r.FilesCreated...)
	acc.FilesModified = appendUnique(acc.FilesModified, r.FilesModified...)
	acc.Commits = appendUnique(acc.Commits, r.Commits...)
	acc.CostUSD += r.CostUSD
	acc.Turns += r.Turns
}

func appendUnique(dst []string, items ...string) []string {
	seen := make(map[string]bool, len(dst))
	for _, d := range dst {
		seen[d] = true
	}
	for _, item := range items {
		if !seen[item] {
			dst = append(dst, item)
			seen[item] = true
		}
	}
	return dst
}

// RetryFeedback composes the preamble injected on attempt >= 2: a PHASE
// RETRY heading, the failure reason, the files already touched across
// earlier attempts, and an explicit continue-don't-restart instruction.
func RetryFeedback(reason string, filesTouched []string) string {
	msg := "**PHASE RETRY**\n\nThe previous attempt at this phase failed: " + reason + "\n"
	if len(filesTouched) > 0 {
		msg += "\nFiles already created or modified in earlier attempts:\n"
		for _, f := range filesTouched {
			msg += "- " + f + "\n"
		}
	}
	msg += "\nDo NOT start over; continue from where you stopped."
	return msg
}
