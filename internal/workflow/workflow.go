// Package workflow implements the top-level driver: RunWorkflow,
// ContinueWorkflow, and ResumeWorkflow, each producing a channel of
// typed Events. The driver owns WorkflowState persistence,
// budget/time enforcement at the workflow level, approval-gate suspension,
// and phase-to-phase wiring of the agent loop, but delegates retry/hook
// logic to internal/phase and tool/model execution to internal/agentloop.
package workflow

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/wittyreference/feature-factory/internal/agentloop"
	"github.com/wittyreference/feature-factory/internal/checkpoint"
	"github.com/wittyreference/feature-factory/internal/cost"
	"github.com/wittyreference/feature-factory/internal/model"
	"github.com/wittyreference/feature-factory/internal/orcherr"
	"github.com/wittyreference/feature-factory/internal/phase"
	"github.com/wittyreference/feature-factory/internal/sandbox"
	"github.com/wittyreference/feature-factory/internal/session"
)

// ApprovalMode is the closed set of approval-gate policies.
type ApprovalMode string

const (
	ApprovalAfterEachPhase ApprovalMode = "after-each-phase"
	ApprovalNone           ApprovalMode = "none"
)

// EventType is the closed set of events the driver emits.
type EventType string

const (
	EventWorkflowStarted   EventType = "workflow-started"
	EventWorkflowResumed   EventType = "workflow-resumed"
	EventWorkflowCompleted EventType = "workflow-completed"
	EventWorkflowError     EventType = "workflow-error"
	EventPhaseStarted      EventType = "phase-started"
	EventPhaseCompleted    EventType = "phase-completed"
	EventPhaseRetry        EventType = "phase-retry"
	EventPrePhaseHook      EventType = "pre-phase-hook"
	EventCheckpointCreated EventType = "checkpoint-created"
	EventApprovalRequested EventType = "approval-requested"
	EventApprovalReceived  EventType = "approval-received"
	EventCostUpdate        EventType = "cost-update"
)

// Event is one entry in the driver's event stream. Fields not relevant to
// Type are left zero-valued.
type Event struct {
	Seq       int       `json:"seq"`
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
	SessionID string    `json:"sessionId"`

	TotalPhases int             `json:"totalPhases,omitempty"`
	PhaseIndex  int             `json:"phaseIndex,omitempty"`
	Agent       model.AgentName `json:"agent,omitempty"`

	Hook   model.HookName `json:"hook,omitempty"`
	HookOK bool           `json:"hookOk,omitempty"`

	Attempt int `json:"attempt,omitempty"`

	CheckpointTag string `json:"checkpointTag,omitempty"`

	Approved bool `json:"approved,omitempty"`

	CumulativeCostUSD float64 `json:"cumulativeCostUsd,omitempty"`
	CumulativeTurns   int     `json:"cumulativeTurns,omitempty"`

	Reason string `json:"reason,omitempty"`
	Error  string `json:"error,omitempty"`
}

// LearningsLoader returns the current learnings preamble, re-read fresh at
// workflow start and at every resume so a learnings file edited between
// runs takes effect immediately.
type LearningsLoader func() (string, error)

// Driver owns the workflow/persona registries and the collaborators every
// phase needs. One Driver instance runs exactly one workflow at a time:
// scheduling is single-threaded and cooperative, with no in-process
// parallelism across phases.
type Driver struct {
	Workflows map[string]model.Workflow
	Personas  map[model.AgentName]model.AgentPersona

	Sessions    *session.Store
	Checkpoints *checkpoint.Manager
	Hooks       map[model.HookName]phase.Hook
	PhaseConfig phase.Config

	AgentDeps agentloop.Deps
	AgentCaps agentloop.Caps
	// ModelIDs maps a persona's default tier to the concrete model
	// identifier passed to llm.Request.Model; an unmapped tier falls back
	// to the tier name itself.
	ModelIDs map[model.ModelTier]string

	Accountant *cost.Accountant

	// Sandbox, if non-nil, is the disposable clone phases run inside;
	// BoundaryRoot is used directly otherwise.
	Sandbox      *sandbox.Sandbox
	BoundaryRoot string

	LoadLearnings   LearningsLoader
	WorkflowTimeout time.Duration
	Approval        ApprovalMode

	HookTestCommand     []string
	HookCoverageCommand []string
}

func (d *Driver) boundaryRoot() string {
	if d.Sandbox != nil {
		return d.Sandbox.Dir
	}
	return d.BoundaryRoot
}

func (d *Driver) modelID(tier model.ModelTier) string {
	if id, ok := d.ModelIDs[tier]; ok {
		return id
	}
	return string(tier)
}

// RunWorkflow starts a new session for workflowName and returns its event
// stream. sessionID, if empty, is generated.
func (d *Driver) RunWorkflow(ctx context.Context, workflowName, description, sessionID string) (<-chan Event, error) {
	wf, ok := d.Workflows[workflowName]
	if !ok {
		return nil, orcherr.ErrWorkflowNotFound
	}
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	state := &model.WorkflowState{
		SessionID:    sessionID,
		Workflow:     workflowName,
		Description:  description,
		Status:       model.StatusRunning,
		PhaseResults: map[model.AgentName]model.PhaseResult{},
		Checkpoints:  map[model.AgentName]string{},
		StartedAt:    time.Now().UTC(),
	}
	if err := d.Sessions.Save(ctx, state); err != nil {
		return nil, fmt.Errorf("workflow: persist initial state: %w", err)
	}

	learnings := ""
	if d.LoadLearnings != nil {
		if l, err := d.LoadLearnings(); err == nil {
			learnings = l
		}
	}

	events := make(chan Event, 16)
	go func() {
		defer close(events)
		emitter := newEmitter(events, sessionID)
		emitter.emit(Event{Type: EventWorkflowStarted, TotalPhases: len(wf.Phases)})
		d.drive(ctx, state, wf, learnings, emitter)
	}()
	return events, nil
}

// ContinueWorkflow resumes a session currently awaiting approval.
func (d *Driver) ContinueWorkflow(ctx context.Context, sessionID string, approved bool, reason string) (<-chan Event, error) {
	state, err := d.Sessions.Get(sessionID)
	if err != nil {
		return nil, err
	}
	if state.Status != model.StatusAwaitingApproval {
		return nil, orcherr.ErrInvalidState
	}
	wf, ok := d.Workflows[state.Workflow]
	if !ok {
		return nil, orcherr.ErrWorkflowNotFound
	}

	events := make(chan Event, 16)
	emitter := newEmitter(events, sessionID)
	go func() {
		defer close(events)
		emitter.emit(Event{Type: EventApprovalReceived, Approved: approved, Reason: reason})
		if !approved {
			state.Status = model.StatusCancelled
			state.Error = reason
			d.Sessions.Save(ctx, state)
			emitter.emit(Event{Type: EventWorkflowError, Error: reason})
			return
		}
		state.Status = model.StatusRunning
		d.Sessions.Save(ctx, state)

		learnings := ""
		if d.LoadLearnings != nil {
			if l, lerr := d.LoadLearnings(); lerr == nil {
				learnings = l
			}
		}
		d.drive(ctx, state, wf, learnings, emitter)
	}()
	return events, nil
}

// ResumeWorkflow reloads a persisted session (after a process restart) and
// continues the phase loop from its currentPhaseIndex.
func (d *Driver) ResumeWorkflow(ctx context.Context, sessionID string) (<-chan Event, error) {
	state, err := d.Sessions.Get(sessionID)
	if err != nil {
		return nil, err
	}
	if !state.Resumable() {
		return nil, orcherr.ErrSessionNotResume
	}
	wf, ok := d.Workflows[state.Workflow]
	if !ok {
		return nil, orcherr.ErrWorkflowNotFound
	}
	d.Accountant.SetCumulativeUSD(state.CumulativeCostUSD)

	learnings := ""
	if d.LoadLearnings != nil {
		if l, lerr := d.LoadLearnings(); lerr == nil {
			learnings = l
		}
	}

	events := make(chan Event, 16)
	emitter := newEmitter(events, sessionID)
	go func() {
		defer close(events)
		emitter.emit(Event{Type: EventWorkflowResumed, PhaseIndex: state.CurrentPhaseIndex})
		d.drive(ctx, state, wf, learnings, emitter)
	}()
	return events, nil
}

// drive runs wf's phases from state.CurrentPhaseIndex to completion, an
// approval suspend, or a failure, persisting state at every transition.
func (d *Driver) drive(ctx context.Context, state *model.WorkflowState, wf model.Workflow, learnings string, emitter *emitter) {
	workflowDeadline := time.Time{}
	if d.WorkflowTimeout > 0 {
		workflowDeadline = state.StartedAt.Add(d.WorkflowTimeout)
	}

	for state.CurrentPhaseIndex < len(wf.Phases) {
		i := state.CurrentPhaseIndex
		wp := wf.Phases[i]

		if !workflowDeadline.IsZero() && time.Now().After(workflowDeadline) {
			d.fail(ctx, state, emitter, "workflow wall-clock time exceeded")
			return
		}
		if err := d.Accountant.CheckBudget(); err != nil {
			d.fail(ctx, state, emitter, err.Error())
			return
		}

		emitter.emit(Event{Type: EventPhaseStarted, PhaseIndex: i, Agent: wp.Agent, TotalPhases: len(wf.Phases)})

		tag, tagErr := d.Checkpoints.Create(ctx, state.SessionID, i, wp.DisplayName)
		if tagErr != nil {
			d.fail(ctx, state, emitter, fmt.Sprintf("create checkpoint: %v", tagErr))
			return
		}
		emitter.emit(Event{Type: EventCheckpointCreated, PhaseIndex: i, Agent: wp.Agent, CheckpointTag: tag})

		persona, ok := d.Personas[wp.Agent]
		if !ok {
			d.fail(ctx, state, emitter, fmt.Sprintf("no persona registered for agent %q", wp.Agent))
			return
		}

		phaseCtx := &model.PhaseContext{
			SessionID:       state.SessionID,
			Workflow:        state.Workflow,
			Description:     state.Description,
			PhaseIndex:      i,
			PhaseResults:    state.PhaseResults,
			CumulativeCost:  d.Accountant.CumulativeUSD(),
			CumulativeTurns: state.CumulativeTurns,
		}
		hookCtx := phase.HookContext{
			PhaseCtx:        phaseCtx,
			BoundaryRoot:    d.boundaryRoot(),
			TestCommand:     d.HookTestCommand,
			CoverageCommand: d.HookCoverageCommand,
		}

		priorSummary := summarizePhaseResults(state.PhaseResults)
		startCommit := ""
		if d.Sandbox != nil {
			startCommit = d.Sandbox.StartCommit
		}
		run := func(ctx context.Context, attempt int, feedback string) (*agentloop.AgentResult, error) {
			retryFeedback := ""
			if attempt > 1 {
				retryFeedback = feedback
			}
			return agentloop.Run(ctx, d.AgentDeps, d.AgentCaps, agentloop.Input{
				Persona:             persona,
				ModelID:             d.modelID(persona.DefaultModel),
				AllowedTools:        persona.AllowedTools,
				Description:         state.Description,
				PriorResultsSummary: priorSummary,
				RetryFeedback:       retryFeedback,
				LearningsPreamble:   learnings,
				BoundaryRoot:        d.boundaryRoot(),
				StartCommit:         startCommit,
			})
		}

		cb := phase.Callbacks{
			OnPrePhaseHook: func(hook model.HookName, ok bool, reason string) {
				emitter.emit(Event{Type: EventPrePhaseHook, PhaseIndex: i, Agent: wp.Agent, Hook: hook, HookOK: ok, Reason: reason})
			},
			OnRetry: func(attempt int, reason string) {
				emitter.emit(Event{Type: EventPhaseRetry, PhaseIndex: i, Agent: wp.Agent, Attempt: attempt, Reason: reason})
			},
		}

		result, _, err := phase.Execute(ctx, d.Checkpoints, d.Hooks, hookCtx, state.SessionID, i, wp, d.PhaseConfig, persona.Validator, run, cb)
		if err != nil {
			d.fail(ctx, state, emitter, err.Error())
			return
		}
		if result.Status != "completed" {
			d.fail(ctx, state, emitter, result.Error)
			return
		}

		state.PhaseResults[wp.Agent] = result
		state.Checkpoints[wp.Agent] = tag
		state.CumulativeCostUSD = d.Accountant.CumulativeUSD()
		state.CumulativeTurns += result.Turns
		state.CurrentPhaseIndex = i + 1

		emitter.emit(Event{Type: EventPhaseCompleted, PhaseIndex: i, Agent: wp.Agent})
		if err := d.Sessions.Save(ctx, state); err != nil {
			d.fail(ctx, state, emitter, fmt.Sprintf("persist state after phase: %v", err))
			return
		}
		emitter.emit(Event{Type: EventCostUpdate, CumulativeCostUSD: state.CumulativeCostUSD, CumulativeTurns: state.CumulativeTurns})

		if wp.ApprovalRequired && d.Approval == ApprovalAfterEachPhase {
			state.Status = model.StatusAwaitingApproval
			if err := d.Sessions.Save(ctx, state); err != nil {
				d.fail(ctx, state, emitter, fmt.Sprintf("persist awaiting-approval state: %v", err))
				return
			}
			emitter.emit(Event{Type: EventApprovalRequested, PhaseIndex: i, Agent: wp.Agent})
			return
		}
	}

	d.finalize(ctx, state)
	state.Status = model.StatusCompleted
	now := time.Now().UTC()
	state.CompletedAt = &now
	d.Sessions.Save(ctx, state)
	emitter.emit(Event{Type: EventWorkflowCompleted})
}

// finalize runs end-of-workflow cleanup: checkpoint tag removal and, if a
// sandbox is active, copying results back to the source tree.
func (d *Driver) finalize(ctx context.Context, state *model.WorkflowState) {
	if d.Sandbox != nil {
		d.Sandbox.CopyResultsBack(ctx)
		sandbox.Cleanup(d.Sandbox.Dir)
	}
	d.Checkpoints.Cleanup(ctx, state.SessionID)
}

func (d *Driver) fail(ctx context.Context, state *model.WorkflowState, emitter *emitter, reason string) {
	state.Status = model.StatusFailed
	state.Error = reason
	d.Sessions.Save(ctx, state)
	emitter.emit(Event{Type: EventWorkflowError, Error: reason})
}

// summarizePhaseResults renders a short per-agent digest of completed phase
// outputs for the next phase's initial prompt.
func summarizePhaseResults(results map[model.AgentName]model.PhaseResult) string {
	if len(results) == 0 {
		return ""
	}
	var b strings.Builder
	for agent, r := range results {
		excerpt := string(r.Output)
		if len(excerpt) > 500 {
			excerpt = excerpt[:500] + "..."
		}
		fmt.Fprintf(&b, "### %s (%s)\n%s\n\n", agent, r.Status, excerpt)
	}
	return b.String()
}

// emitter assigns monotonically increasing sequence numbers and timestamps
// to events as they're sent on the channel.
type emitter struct {
	ch        chan<- Event
	sessionID string
	seq       int
}

func newEmitter(ch chan<- Event, sessionID string) *emitter {
	return &emitter{ch: ch, sessionID: sessionID}
}

func (e *emitter) emit(ev Event) {
	e.seq++
	ev.Seq = e.seq
	ev.Timestamp = time.Now().UTC()
	ev.SessionID = e.sessionID
	e.ch <- ev
}
