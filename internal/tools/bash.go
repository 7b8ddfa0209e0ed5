package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"time"
)

const (
	defaultBashTimeout = 2 * time.Minute
	maxBashTimeout     = 10 * time.Minute
)

type bashInput struct {
	Command string `json:"command"`
	Timeout int    `json:"timeout_seconds"`
}

// BashTool runs a shell command with its working directory fixed to the
// sandbox boundary. Grounded on this codebase's
// pkg/tools/command.go CommandTool, trimmed to drop the allow-listed
// command table: sandbox containment here comes from the working directory
// and git-clone isolation, not from restricting which binaries may run.
type BashTool struct {
	boundary *Boundary
}

// NewBashTool constructs a BashTool rooted at boundary.
func NewBashTool(boundary *Boundary) *BashTool {
	return &BashTool{boundary: boundary}
}

func (t *BashTool) Name() string        { return "Bash" }
func (t *BashTool) Description() string { return "Runs a shell command in the sandbox working directory." }

func (t *BashTool) InputSchema() json.RawMessage {
	return json.RawMessage(`{"type":"object","properties":{"command":{"type":"string"},"timeout_seconds":{"type":"integer"}},"required":["command"]}`)
}

func (t *BashTool) Execute(ctx context.Context, input json.RawMessage) Result {
	var in bashInput
	if err := json.Unmarshal(input, &in); err != nil {
		return Result{Error: fmt.Sprintf("Bash: invalid input: %v", err)}
	}
	if in.Command == "" {
		return Result{Error: "Bash: command is required"}
	}
	timeout := defaultBashTimeout
	if in.Timeout > 0 {
		timeout = clampBashTimeout(time.Duration(in.Timeout) * time.Second)
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, "bash", "-c", in.Command)
	cmd.Dir = t.boundary.Root()
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	combined := stdout.String()
	if stderr.Len() > 0 {
		if combined != "" {
			combined += "\n"
		}
		combined += stderr.String()
	}
	combined = headAndTailTruncate(combined, 30000)

	if err != nil {
		if runCtx.Err() == context.DeadlineExceeded {
			return Result{Error: fmt.Sprintf("Bash: command timed out after %s", timeout)}
		}
		return Result{Content: combined, Error: err.Error()}
	}
	return Result{Success: true, Content: combined}
}

// clampBashTimeout enforces the maximum timeout a caller may request;
// requested durations above maxBashTimeout are silently capped rather than
// rejected outright, matching the tolerant style of the other tools' input
// handling (e.g. Bash's own missing-timeout default).
func clampBashTimeout(requested time.Duration) time.Duration {
	if requested > maxBashTimeout {
		return maxBashTimeout
	}
	return requested
}

// headAndTailTruncate keeps the first and last half of maxChars, matching
// the context manager's Bash truncation rule: long build or
// test output usually has its useful signal at the start (what ran) and the
// end (pass/fail summary), not the middle.
func headAndTailTruncate(s string, maxChars int) string {
	if len(s) <= maxChars {
		return s
	}
	half := maxChars / 2
	return s[:half] + "\n... (truncated) ...\n" + s[len(s)-half:]
}
