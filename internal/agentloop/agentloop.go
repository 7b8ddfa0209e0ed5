// Package agentloop runs one phase attempt's inner loop: it drives a single
// persona through repeated LLM calls and tool dispatches until the model
// returns parseable structured output, a cap is hit, or the stall tracker
// hard-stops it. One Run call is one agent-loop iteration sequence as
// described by the phase executor (internal/phase); it knows nothing about
// retries across attempts, checkpoints, or approval gates.
package agentloop

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/wittyreference/feature-factory/internal/contextmgr"
	"github.com/wittyreference/feature-factory/internal/cost"
	"github.com/wittyreference/feature-factory/internal/llm"
	"github.com/wittyreference/feature-factory/internal/model"
	"github.com/wittyreference/feature-factory/internal/orcherr"
	"github.com/wittyreference/feature-factory/internal/stall"
	"github.com/wittyreference/feature-factory/internal/tools"
)

// ToolRecorder receives one tool dispatch's duration and outcome,
// matching internal/metrics.Recorder.RecordTool's signature without this
// package importing internal/metrics directly.
type ToolRecorder interface {
	RecordTool(ctx context.Context, tool string, duration time.Duration, err error)
}

// Deps are the shared collaborators a Run call needs. They are owned by the
// phase executor and reused across attempts within one phase (except the
// stall tracker, which Run builds fresh per attempt).
type Deps struct {
	LLM        *llm.Registry
	Tools      *tools.Registry
	Accountant *cost.Accountant
	ContextMgr *contextmgr.Manager
	Logger     *slog.Logger
	Rec        ToolRecorder // optional; nil disables tool-dispatch metrics
}

// Caps bounds one Run call.
type Caps struct {
	MaxTurns    int
	MaxDuration time.Duration
	Stall       stall.Config
}

// Input is everything one agent-loop run needs beyond the shared Deps.
type Input struct {
	Persona      model.AgentPersona
	ModelID      string // the concrete model identifier passed to llm.Request.Model
	AllowedTools []string

	Description          string // the workflow's user-supplied description
	PriorResultsSummary  string // rendered summary of relevant prior PhaseResults
	RetryFeedback        string // non-empty only on a retry attempt
	LearningsPreamble    string // non-empty when a learnings/known-failures file applies

	// BoundaryRoot is the sandbox clone's working directory, used to derive
	// FilesCreated/FilesModified/Commits after the loop completes.
	BoundaryRoot string
	// StartCommit is the sandbox's commit at phase-attempt start; commits
	// authored by Bash-invoked git commands after this point are reported
	// in AgentResult.Commits.
	StartCommit string
}

// AgentResult is the outcome of one successful Run call.
type AgentResult struct {
	Output        json.RawMessage
	FilesCreated  []string
	FilesModified []string
	Commits       []string
	CostUSD       float64
	Turns         int
	DurationMs    int64
}

// Run executes the agent loop: assemble the
// initial message, call the model, dispatch any tool-use requests, feed the
// stall tracker, and repeat until the model's assistant text parses as
// valid structured output (optionally checked against the persona's output
// schema) or a cap/budget/stall condition ends the attempt early.
func Run(ctx context.Context, deps Deps, caps Caps, in Input) (*AgentResult, error) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	client, err := deps.LLM.Resolve(in.ModelID)
	if err != nil {
		return nil, orcherr.New(orcherr.KindModelUnavailable, string(in.Persona.Name), "resolve model client", err)
	}

	var schema *jsonschema.Schema
	if len(in.Persona.OutputSchema) > 0 {
		schema, err = compileSchema(in.Persona.OutputSchema)
		if err != nil {
			return nil, orcherr.New(orcherr.KindValidationFailure, string(in.Persona.Name), "compile persona output schema", err)
		}
	}

	declarations := deps.Tools.Declarations(in.AllowedTools)
	toolDecls := make([]llm.ToolDeclaration, 0, len(declarations))
	for _, t := range declarations {
		toolDecls = append(toolDecls, llm.ToolDeclaration{Name: t.Name(), Description: t.Description(), InputSchema: t.InputSchema()})
	}

	msgs := []model.Message{{Role: model.RoleUser, Text: composeInitialMessage(in)}}
	tracker := stall.NewTracker(caps.Stall)

	start := time.Now()
	touchedPaths := map[string]bool{}
	var totalCost float64
	turn := 0

	for {
		turn++
		if caps.MaxTurns > 0 && turn > caps.MaxTurns {
			return nil, orcherr.New(orcherr.KindAgentTimeout, string(in.Persona.Name), fmt.Sprintf("max turns exceeded (%d)", caps.MaxTurns), nil)
		}
		if caps.MaxDuration > 0 && time.Since(start) > caps.MaxDuration {
			return nil, orcherr.New(orcherr.KindAgentTimeout, string(in.Persona.Name), fmt.Sprintf("time exceeded (%s)", caps.MaxDuration), nil)
		}
		if err := deps.Accountant.CheckBudget(); err != nil {
			return nil, err
		}

		msgs = deps.ContextMgr.MaybeCompact(msgs)

		resp, err := client.Complete(ctx, llm.Request{
			Model:        in.ModelID,
			SystemPrompt: in.Persona.SystemPrompt,
			Messages:     msgs,
			Tools:        toolDecls,
		})
		if err != nil {
			return nil, orcherr.New(orcherr.KindModelUnavailable, string(in.Persona.Name), "model completion call failed", err)
		}
		callCost := deps.Accountant.Record(in.Persona.DefaultModel, resp.InputTokens, resp.OutputTokens)
		totalCost += callCost
		logger.Debug("agentloop turn", "persona", in.Persona.Name, "turn", turn, "input_tokens", resp.InputTokens, "output_tokens", resp.OutputTokens, "cost_usd", callCost)
		msgs = append(msgs, model.Message{Role: model.RoleAssistant, Text: resp.Text(), Blocks: resp.Blocks})

		if resp.HasToolUse() {
			class, hardStop, nudge, err := dispatchToolUse(ctx, deps, tracker, resp.Blocks, in.AllowedTools, touchedPaths, &msgs)
			if err != nil {
				return nil, err
			}
			if hardStop {
				logger.Warn("agentloop stalled", "persona", in.Persona.Name, "classification", class)
				return nil, orcherr.New(orcherr.KindStallHardStop, string(in.Persona.Name), "exhausted stall interventions", &stall.StalledError{Classification: class})
			}
			if nudge != "" {
				logger.Info("agentloop intervention", "persona", in.Persona.Name, "classification", class)
				msgs = append(msgs, model.Message{Role: model.RoleUser, Text: nudge})
			}
			continue
		}

		text := strings.TrimSpace(resp.Text())
		output, parseErr := validateOutput(text, schema)
		if parseErr != nil {
			msgs = append(msgs, model.Message{Role: model.RoleUser, Text: fmt.Sprintf(
				"Your last response could not be parsed as the required structured output: %v. Respond again with only the corrected JSON.", parseErr)})
			continue
		}

		created, modified := classifyTouchedPaths(ctx, in.BoundaryRoot, touchedPaths)
		commits := commitsSince(ctx, in.BoundaryRoot, in.StartCommit)
		logger.Info("agentloop completed", "persona", in.Persona.Name, "turns", turn, "cost_usd", totalCost,
			"files_created", len(created), "files_modified", len(modified))
		return &AgentResult{
			Output:        output,
			FilesCreated:  created,
			FilesModified: modified,
			Commits:       commits,
			CostUSD:       totalCost,
			Turns:         turn,
			DurationMs:    time.Since(start).Milliseconds(),
		}, nil
	}
}

// composeInitialMessage assembles the first user turn from the workflow
// description, the prior-phase summary, optional retry feedback, and an
// optional learnings preamble, in that order.
func composeInitialMessage(in Input) string {
	var b strings.Builder
	b.WriteString(in.Description)
	if in.PriorResultsSummary != "" {
		b.WriteString("\n\n## Prior phase results\n")
		b.WriteString(in.PriorResultsSummary)
	}
	if in.RetryFeedback != "" {
		b.WriteString("\n\n## Retry feedback\nThe previous attempt at this phase was rejected:\n")
		b.WriteString(in.RetryFeedback)
	}
	if in.LearningsPreamble != "" {
		b.WriteString("\n\n## Known failure patterns\n")
		b.WriteString(in.LearningsPreamble)
	}
	return b.String()
}

// dispatchToolUse runs every tool_use block in blocks, appends the
// corresponding tool_result messages to *msgs, and returns the most severe
// stall classification observed during this turn plus the tracker's
// verdict for it.
func dispatchToolUse(ctx context.Context, deps Deps, tracker *stall.Tracker, blocks []model.ContentBlock, allowed []string, touchedPaths map[string]bool, msgs *[]model.Message) (stall.Classification, bool, string, error) {
	worst := stall.Normal
	for _, b := range blocks {
		if b.Type != "tool_use" {
			continue
		}
		call := tools.Call{Name: b.ToolName, Input: b.Input}
		toolStart := time.Now()
		res, err := deps.Tools.Dispatch(ctx, call, allowed)
		if deps.Rec != nil {
			deps.Rec.RecordTool(ctx, b.ToolName, time.Since(toolStart), err)
		}
		if err != nil {
			res = tools.Result{Success: false, Error: err.Error()}
		}
		if res.Success && (b.ToolName == "Write" || b.ToolName == "Edit") {
			if p, ok := extractPath(b.Input); ok {
				touchedPaths[p] = true
			}
		}

		content := res.Content
		if !res.Success {
			content = res.Error
		}
		truncated := contextmgr.TruncateToolOutput(b.ToolName, content)
		*msgs = append(*msgs, model.Message{Role: model.RoleToolResult, Blocks: []model.ContentBlock{{
			Type: "tool_result", ToolUseID: b.ToolUseID, ToolName: b.ToolName, Result: truncated, IsError: !res.Success,
		}}})

		class := tracker.Observe(b.ToolName, stall.HashInput(b.Input))
		if severity(class) > severity(worst) {
			worst = class
		}
	}
	if worst == stall.Normal {
		return worst, false, "", nil
	}
	nudge, hardStop := tracker.Intervene(worst)
	return worst, hardStop, nudge, nil
}

func severity(c stall.Classification) int {
	switch c {
	case stall.Repetition:
		return 3
	case stall.Oscillation:
		return 2
	case stall.Idle:
		return 1
	default:
		return 0
	}
}

type pathCarryingInput struct {
	Path string `json:"path"`
}

func extractPath(input json.RawMessage) (string, bool) {
	var in pathCarryingInput
	if err := json.Unmarshal(input, &in); err != nil || in.Path == "" {
		return "", false
	}
	return in.Path, true
}

func compileSchema(raw json.RawMessage) (*jsonschema.Schema, error) {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("agentloop: unmarshal output schema: %w", err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("persona-output.json", doc); err != nil {
		return nil, fmt.Errorf("agentloop: add output schema resource: %w", err)
	}
	schema, err := c.Compile("persona-output.json")
	if err != nil {
		return nil, fmt.Errorf("agentloop: compile output schema: %w", err)
	}
	return schema, nil
}

// validateOutput parses text as JSON and, if schema is non-nil, validates
// it against the persona's declared output schema.
func validateOutput(text string, schema *jsonschema.Schema) (json.RawMessage, error) {
	if text == "" {
		return nil, fmt.Errorf("empty assistant response")
	}
	var generic interface{}
	if err := json.Unmarshal([]byte(text), &generic); err != nil {
		return nil, fmt.Errorf("not valid JSON: %w", err)
	}
	if schema != nil {
		if err := schema.Validate(generic); err != nil {
			return nil, fmt.Errorf("failed output schema validation: %w", err)
		}
	}
	return json.RawMessage(text), nil
}

// classifyTouchedPaths splits the set of paths observed under Write/Edit
// calls into created vs. modified, using `git status --porcelain` in
// boundaryRoot. If git is unavailable or boundaryRoot isn't a repository,
// every touched path is reported as modified rather than failing the
// phase over a reporting detail.
func classifyTouchedPaths(ctx context.Context, boundaryRoot string, touched map[string]bool) (created, modified []string) {
	if len(touched) == 0 {
		return nil, nil
	}
	statusByPath := gitStatusPorcelain(ctx, boundaryRoot)
	for p := range touched {
		switch statusByPath[p] {
		case "A", "??":
			created = append(created, p)
		default:
			modified = append(modified, p)
		}
	}
	return created, modified
}

func gitStatusPorcelain(ctx context.Context, dir string) map[string]string {
	out := map[string]string{}
	if dir == "" {
		return out
	}
	cmd := exec.CommandContext(ctx, "git", "status", "--porcelain")
	cmd.Dir = dir
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	if err := cmd.Run(); err != nil {
		return out
	}
	for _, line := range strings.Split(stdout.String(), "\n") {
		if len(line) < 4 {
			continue
		}
		code := strings.TrimSpace(line[:2])
		path := strings.TrimSpace(line[3:])
		out[path] = code
	}
	return out
}

// commitsSince returns the commit hashes authored after startCommit, oldest
// first, or nil if there are none or git/boundaryRoot is unusable.
func commitsSince(ctx context.Context, boundaryRoot, startCommit string) []string {
	if boundaryRoot == "" || startCommit == "" {
		return nil
	}
	cmd := exec.CommandContext(ctx, "git", "log", "--reverse", "--format=%H", startCommit+"..HEAD")
	cmd.Dir = boundaryRoot
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	if err := cmd.Run(); err != nil {
		return nil
	}
	var out []string
	for _, line := range strings.Split(strings.TrimSpace(stdout.String()), "\n") {
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}
