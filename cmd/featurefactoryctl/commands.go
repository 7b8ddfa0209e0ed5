package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/wittyreference/feature-factory/internal/checkpoint"
	"github.com/wittyreference/feature-factory/internal/model"
	"github.com/wittyreference/feature-factory/internal/session"
	"github.com/wittyreference/feature-factory/internal/workflow"
)

// RunCmd starts a new workflow run.
type RunCmd struct {
	Workflow    string `arg:"" help:"Workflow name, as declared in the workflow set config."`
	Description string `arg:"" help:"Natural-language description of the work to do."`
	SessionID   string `name:"session-id" help:"Explicit session ID (random UUID if omitted)."`
}

func (c *RunCmd) Run(rc *runContext, ctx context.Context) error {
	lc, err := rc.loadConfig()
	if err != nil {
		return err
	}
	if rc.cli.DryRun {
		fmt.Println("config OK: workflows, personas, and runtime config all validated")
		return nil
	}
	driver, cleanup, err := rc.buildDriver(lc)
	if err != nil {
		return err
	}
	defer cleanup()

	events, err := driver.RunWorkflow(ctx, c.Workflow, c.Description, c.SessionID)
	if err != nil {
		return fmt.Errorf("featurefactoryctl: start workflow: %w", err)
	}
	return renderEvents(events)
}

// ResumeCmd resumes an interrupted workflow.
type ResumeCmd struct {
	SessionID string `arg:"" optional:"" help:"Session ID to resume; the most recent resumable session if omitted."`
}

func (c *ResumeCmd) Run(rc *runContext, ctx context.Context) error {
	lc, err := rc.loadConfig()
	if err != nil {
		return err
	}
	driver, cleanup, err := rc.buildDriver(lc)
	if err != nil {
		return err
	}
	defer cleanup()

	sessionID := c.SessionID
	if sessionID == "" {
		state, err := driver.Sessions.GetResumable()
		if err != nil {
			return fmt.Errorf("featurefactoryctl: find resumable session: %w", err)
		}
		if state == nil {
			return fmt.Errorf("featurefactoryctl: no resumable session found")
		}
		sessionID = state.SessionID
	}
	events, err := driver.ResumeWorkflow(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("featurefactoryctl: resume workflow: %w", err)
	}
	return renderEvents(events)
}

// ApproveCmd approves or rejects a session awaiting approval.
type ApproveCmd struct {
	SessionID string `arg:"" help:"Session ID awaiting approval."`
	Reject    bool   `help:"Reject instead of approve."`
	Reason    string `help:"Reason recorded alongside the decision."`
}

func (c *ApproveCmd) Run(rc *runContext, ctx context.Context) error {
	lc, err := rc.loadConfig()
	if err != nil {
		return err
	}
	driver, cleanup, err := rc.buildDriver(lc)
	if err != nil {
		return err
	}
	defer cleanup()

	events, err := driver.ContinueWorkflow(ctx, c.SessionID, !c.Reject, c.Reason)
	if err != nil {
		return fmt.Errorf("featurefactoryctl: continue workflow: %w", err)
	}
	return renderEvents(events)
}

// RollbackCmd resets the working tree to a phase's pre-execution
// checkpoint, without touching session state. Use this to hand-recover a
// sandbox/working tree after inspecting a failed run; re-running the
// phase is a separate `resume`.
type RollbackCmd struct {
	SessionID string `arg:"" help:"Session ID whose checkpoint to roll back to."`
	Agent     string `arg:"" help:"Agent name the checkpoint tag was created for (e.g. dev)."`
}

func (c *RollbackCmd) Run(rc *runContext) error {
	sessions, err := session.NewStore(rc.cli.SessionDir)
	if err != nil {
		return err
	}
	state, err := sessions.Get(c.SessionID)
	if err != nil {
		return fmt.Errorf("featurefactoryctl: load session %s: %w", c.SessionID, err)
	}
	tag, ok := state.Checkpoints[model.AgentName(c.Agent)]
	if !ok || tag == "" {
		return fmt.Errorf("featurefactoryctl: no checkpoint recorded for agent %q in session %s", c.Agent, c.SessionID)
	}

	cwd, err := os.Getwd()
	if err != nil {
		return err
	}
	mgr := checkpoint.NewManager(cwd)
	if err := mgr.Rollback(context.Background(), tag); err != nil {
		return fmt.Errorf("featurefactoryctl: rollback to %s: %w", tag, err)
	}
	fmt.Printf("rolled back working tree to checkpoint %s\n", tag)
	return nil
}

// ListSessCmd lists persisted sessions.
type ListSessCmd struct{}

func (c *ListSessCmd) Run(rc *runContext) error {
	sessions, err := session.NewStore(rc.cli.SessionDir)
	if err != nil {
		return err
	}
	states, err := sessions.List()
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	for _, s := range states {
		if err := enc.Encode(s); err != nil {
			return err
		}
	}
	return nil
}

// GCSessionsCmd deletes old or failed sessions.
type GCSessionsCmd struct {
	OlderThan     time.Duration `name:"older-than" help:"Delete sessions last updated before this long ago." default:"168h"`
	IncludeFailed bool          `name:"include-failed" help:"Also delete failed sessions regardless of age."`
}

func (c *GCSessionsCmd) Run(rc *runContext) error {
	sessions, err := session.NewStore(rc.cli.SessionDir)
	if err != nil {
		return err
	}
	deleted, err := sessions.Cleanup(session.CleanupOptions{OlderThan: c.OlderThan, IncludeFailed: c.IncludeFailed})
	if err != nil {
		return err
	}
	for _, id := range deleted {
		fmt.Println(id)
	}
	fmt.Fprintf(os.Stderr, "deleted %d session(s)\n", len(deleted))
	return nil
}

func renderEvents(events <-chan workflow.Event) error {
	enc := json.NewEncoder(os.Stdout)
	var lastErr string
	for ev := range events {
		if err := enc.Encode(ev); err != nil {
			return err
		}
		if ev.Type == workflow.EventWorkflowError {
			lastErr = ev.Error
		}
	}
	if lastErr != "" {
		return fmt.Errorf("featurefactoryctl: workflow ended in error: %s", lastErr)
	}
	return nil
}
