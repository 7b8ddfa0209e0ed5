package phase

import (
	"context"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/wittyreference/feature-factory/internal/agentloop"
	"github.com/wittyreference/feature-factory/internal/checkpoint"
	"github.com/wittyreference/feature-factory/internal/model"
	"github.com/wittyreference/feature-factory/internal/orcherr"
)

func newTestCheckpointManager(t *testing.T) *checkpoint.Manager {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available in test environment")
	}
	dir := t.TempDir()
	run := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		cmd.Env = append(os.Environ(),
			"GIT_AUTHOR_NAME=test", "GIT_AUTHOR_EMAIL=test@example.com",
			"GIT_COMMITTER_NAME=test", "GIT_COMMITTER_EMAIL=test@example.com")
		if out, err := cmd.CombinedOutput(); err != nil {
			t.Fatalf("git %v: %v\n%s", args, err, out)
		}
	}
	run("init")
	run("config", "user.email", "test@example.com")
	run("config", "user.name", "test")
	os.WriteFile(filepath.Join(dir, "f.txt"), []byte("v1"), 0o644)
	run("add", ".")
	run("commit", "-m", "init")
	return checkpoint.NewManager(dir)
}

func basicPhase() model.WorkflowPhase {
	return model.WorkflowPhase{Agent: model.AgentDev, DisplayName: "Dev Implementation"}
}

func TestExecuteSucceedsOnFirstAttempt(t *testing.T) {
	cm := newTestCheckpointManager(t)
	calls := 0
	run := func(ctx context.Context, attempt int, feedback string) (*agentloop.AgentResult, error) {
		calls++
		return &agentloop.AgentResult{Output: json.RawMessage(`{"ok":true}`), FilesCreated: []string{"a.go"}, CostUSD: 0.01, Turns: 2}, nil
	}
	result, tag, err := Execute(context.Background(), cm, Hooks, HookContext{PhaseCtx: &model.PhaseContext{}},
		"sess-1", 0, basicPhase(), Config{DefaultMaxRetries: 2}, nil, run, Callbacks{})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.Status != "completed" {
		t.Fatalf("expected completed, got %q (err=%s)", result.Status, result.Error)
	}
	if calls != 1 {
		t.Fatalf("expected exactly 1 attempt, got %d", calls)
	}
	if tag == "" {
		t.Fatal("expected a checkpoint tag")
	}
	if result.RetryAttempts != 0 {
		t.Fatalf("expected 0 retry attempts, got %d", result.RetryAttempts)
	}
}

func TestExecuteRetriesOnValidationFailureThenSucceeds(t *testing.T) {
	cm := newTestCheckpointManager(t)
	attemptCount := 0
	run := func(ctx context.Context, attempt int, feedback string) (*agentloop.AgentResult, error) {
		attemptCount++
		if attempt == 1 {
			if feedback != "" {
				t.Fatalf("expected no feedback on first attempt, got %q", feedback)
			}
			return &agentloop.AgentResult{Output: json.RawMessage(`{"ok":false}`), FilesCreated: []string{"a.go"}}, nil
		}
		if feedback == "" {
			t.Fatal("expected retry feedback on second attempt")
		}
		return &agentloop.AgentResult{Output: json.RawMessage(`{"ok":true}`), FilesModified: []string{"a.go"}, FilesCreated: []string{"b.go"}}, nil
	}
	validate := func(output json.RawMessage, phaseCtx *model.PhaseContext) model.ValidationResult {
		var out struct{ OK bool `json:"ok"` }
		json.Unmarshal(output, &out)
		if !out.OK {
			return model.ValidationResult{OK: false, Reason: "ok flag was false"}
		}
		return model.ValidationResult{OK: true}
	}
	var retries []string
	cb := Callbacks{OnRetry: func(attempt int, reason string) { retries = append(retries, reason) }}

	result, _, err := Execute(context.Background(), cm, Hooks, HookContext{PhaseCtx: &model.PhaseContext{}},
		"sess-1", 0, basicPhase(), Config{DefaultMaxRetries: 2}, validate, run, cb)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.Status != "completed" {
		t.Fatalf("expected eventual success, got %q", result.Status)
	}
	if attemptCount != 2 {
		t.Fatalf("expected 2 attempts, got %d", attemptCount)
	}
	if result.RetryAttempts != 1 {
		t.Fatalf("expected 1 retry attempt recorded, got %d", result.RetryAttempts)
	}
	if len(retries) != 1 {
		t.Fatalf("expected 1 retry callback, got %d", len(retries))
	}
	// files from both attempts should be merged and deduplicated.
	if len(result.FilesCreated) != 2 {
		t.Fatalf("expected 2 distinct created files across attempts, got %v", result.FilesCreated)
	}
}

func TestExecutePropagatesNonRecoverableFailureImmediately(t *testing.T) {
	cm := newTestCheckpointManager(t)
	calls := 0
	run := func(ctx context.Context, attempt int, feedback string) (*agentloop.AgentResult, error) {
		calls++
		return nil, orcherr.New(orcherr.KindBudgetExceeded, string(model.AgentDev), "budget exceeded", nil)
	}
	result, _, err := Execute(context.Background(), cm, Hooks, HookContext{PhaseCtx: &model.PhaseContext{}},
		"sess-1", 0, basicPhase(), Config{DefaultMaxRetries: 3}, nil, run, Callbacks{})
	if err == nil {
		t.Fatal("expected non-recoverable error to propagate")
	}
	if calls != 1 {
		t.Fatalf("expected a single attempt before abort, got %d", calls)
	}
	if result.Status != "failed" {
		t.Fatalf("expected failed status, got %q", result.Status)
	}
}

func TestExecuteExhaustsRetriesAndReturnsFailedWithNilError(t *testing.T) {
	cm := newTestCheckpointManager(t)
	run := func(ctx context.Context, attempt int, feedback string) (*agentloop.AgentResult, error) {
		return nil, orcherr.New(orcherr.KindAgentTimeout, string(model.AgentDev), "max turns exceeded", nil)
	}
	result, _, err := Execute(context.Background(), cm, Hooks, HookContext{PhaseCtx: &model.PhaseContext{}},
		"sess-1", 0, basicPhase(), Config{DefaultMaxRetries: 2}, nil, run, Callbacks{})
	if err != nil {
		t.Fatalf("expected retry exhaustion to return a nil error (caller reports the failed PhaseResult), got %v", err)
	}
	if result.Status != "failed" {
		t.Fatalf("expected failed status, got %q", result.Status)
	}
	if result.RetryAttempts != 2 {
		t.Fatalf("expected 2 retry attempts recorded, got %d", result.RetryAttempts)
	}
}

func TestExecuteAbortsImmediatelyOnPrePhaseHookFailure(t *testing.T) {
	cm := newTestCheckpointManager(t)
	calls := 0
	run := func(ctx context.Context, attempt int, feedback string) (*agentloop.AgentResult, error) {
		calls++
		return &agentloop.AgentResult{Output: json.RawMessage(`{}`)}, nil
	}
	phase := basicPhase()
	phase.PrePhaseHooks = []model.HookName{model.HookTDDEnforcement}

	var hookEvents []string
	cb := Callbacks{OnPrePhaseHook: func(hook model.HookName, ok bool, reason string) {
		hookEvents = append(hookEvents, string(hook))
	}}

	_, _, err := Execute(context.Background(), cm, Hooks, HookContext{PhaseCtx: &model.PhaseContext{PhaseResults: map[model.AgentName]model.PhaseResult{}}},
		"sess-1", 0, phase, Config{DefaultMaxRetries: 2}, nil, run, cb)
	if err == nil {
		t.Fatal("expected pre-phase hook failure to abort the phase")
	}
	var oe *orcherr.Error
	if oe2, ok := err.(*orcherr.Error); ok {
		oe = oe2
	}
	if oe == nil || oe.Kind != orcherr.KindPrePhaseHook {
		t.Fatalf("expected KindPrePhaseHook, got %v", err)
	}
	if calls != 0 {
		t.Fatalf("expected the agent loop never to run, got %d calls", calls)
	}
	if len(hookEvents) != 1 {
		t.Fatalf("expected exactly 1 hook event, got %v", hookEvents)
	}
}

func TestRetryFeedbackContainsRequiredSections(t *testing.T) {
	msg := RetryFeedback("QA rejected the output", []string{"a.go", "b.go"})
	for _, want := range []string{"PHASE RETRY", "QA rejected the output", "a.go", "b.go", "Do NOT start over"} {
		if !containsSubstr(msg, want) {
			t.Fatalf("expected retry feedback to contain %q, got:\n%s", want, msg)
		}
	}
}

func containsSubstr(haystack, needle string) bool {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return true
		}
	}
	return false
}
