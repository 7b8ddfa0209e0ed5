package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/wittyreference/feature-factory/internal/agentloop"
	"github.com/wittyreference/feature-factory/internal/checkpoint"
	"github.com/wittyreference/feature-factory/internal/config"
	"github.com/wittyreference/feature-factory/internal/contextmgr"
	"github.com/wittyreference/feature-factory/internal/learnings"
	"github.com/wittyreference/feature-factory/internal/llm"
	"github.com/wittyreference/feature-factory/internal/llm/anthropicapi"
	"github.com/wittyreference/feature-factory/internal/metrics"
	"github.com/wittyreference/feature-factory/internal/model"
	"github.com/wittyreference/feature-factory/internal/phase"
	"github.com/wittyreference/feature-factory/internal/sandbox"
	"github.com/wittyreference/feature-factory/internal/session"
	"github.com/wittyreference/feature-factory/internal/tools"
	"github.com/wittyreference/feature-factory/internal/tools/mcp"
	"github.com/wittyreference/feature-factory/internal/workflow"
)

// runContext carries the parsed CLI and logger into every subcommand's
// Run method, following kong's pattern of a shared bindable context
// (cmd/hector's *CLI parameter).
type runContext struct {
	cli    *CLI
	logger *slog.Logger
}

// loadedConfig is every config document a command needs, loaded once.
type loadedConfig struct {
	workflows *config.WorkflowSetConfig
	personas  *config.PersonaSetConfig
	runtime   *config.RuntimeConfig
}

func (rc *runContext) loadConfig() (*loadedConfig, error) {
	if err := config.LoadEnvFiles(); err != nil {
		rc.logger.Warn("no .env file loaded", "error", err)
	}

	wfCfg, err := config.LoadWorkflowSet(rc.cli.WorkflowsFile)
	if err != nil {
		return nil, err
	}
	personaCfg, err := config.LoadPersonaSet(rc.cli.PersonasFile)
	if err != nil {
		return nil, err
	}
	runtimeCfg, err := config.LoadRuntimeConfig(rc.cli.RuntimeFile)
	if err != nil {
		return nil, err
	}
	return &loadedConfig{workflows: wfCfg, personas: personaCfg, runtime: runtimeCfg}, nil
}

// alwaysOKValidator is the default applied to every config-declared
// persona: YAML can't express an arbitrary Go closure, so the reference
// CLI accepts whatever structured output the persona returns and leaves
// output-schema enforcement to each phase's OutputSchema/tool contract.
func alwaysOKValidator(_ json.RawMessage, _ *model.PhaseContext) model.ValidationResult {
	return model.ValidationResult{OK: true}
}

func toWorkflows(cfg *config.WorkflowSetConfig) map[string]model.Workflow {
	out := make(map[string]model.Workflow, len(cfg.Workflows))
	for _, wf := range cfg.Workflows {
		phases := make([]model.WorkflowPhase, 0, len(wf.Phases))
		for _, p := range wf.Phases {
			hooks := make([]model.HookName, 0, len(p.PrePhaseHooks))
			for _, h := range p.PrePhaseHooks {
				hooks = append(hooks, model.HookName(h))
			}
			phases = append(phases, model.WorkflowPhase{
				Agent:            model.AgentName(p.Agent),
				DisplayName:      p.DisplayName,
				ApprovalRequired: p.ApprovalRequired,
				PrePhaseHooks:    hooks,
				MaxRetries:       p.MaxRetries,
			})
		}
		out[wf.Name] = model.Workflow{Name: wf.Name, Phases: phases}
	}
	return out
}

func toPersonas(cfg *config.PersonaSetConfig) (map[model.AgentName]model.AgentPersona, error) {
	out := make(map[model.AgentName]model.AgentPersona, len(cfg.Personas))
	for _, p := range cfg.Personas {
		systemPrompt := p.SystemPrompt
		if p.SystemPromptFile != "" {
			b, err := os.ReadFile(p.SystemPromptFile)
			if err != nil {
				return nil, fmt.Errorf("config: read system_prompt_file for %q: %w", p.Name, err)
			}
			systemPrompt = string(b)
		}
		var schema json.RawMessage
		if p.OutputSchemaFile != "" {
			b, err := os.ReadFile(p.OutputSchemaFile)
			if err != nil {
				return nil, fmt.Errorf("config: read output_schema_file for %q: %w", p.Name, err)
			}
			schema = b
		} else if p.OutputSchema != "" {
			schema = json.RawMessage(p.OutputSchema)
		}
		out[model.AgentName(p.Name)] = model.AgentPersona{
			Name:         model.AgentName(p.Name),
			SystemPrompt: systemPrompt,
			OutputSchema: schema,
			Validator:    alwaysOKValidator,
			AllowedTools: p.AllowedTools,
			DefaultModel: modelTierFromString(p.DefaultModel),
		}
	}
	return out, nil
}

func modelTierFromString(s string) model.ModelTier {
	switch s {
	case string(model.ModelHaiku):
		return model.ModelHaiku
	case string(model.ModelOpus):
		return model.ModelOpus
	default:
		return model.ModelSonnet
	}
}

// buildDriver wires every core package into one workflow.Driver, following
// the loaded config. boundaryRoot is resolved from the sandbox when
// enabled, otherwise the current working directory.
func (rc *runContext) buildDriver(lc *loadedConfig) (*workflow.Driver, func(), error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, nil, fmt.Errorf("featurefactoryctl: resolve working directory: %w", err)
	}

	sessions, err := session.NewStore(rc.cli.SessionDir)
	if err != nil {
		return nil, nil, fmt.Errorf("featurefactoryctl: open session store: %w", err)
	}

	checkpoints := checkpoint.NewManager(cwd)
	lc.runtime.ApplyCheckpointToggle(checkpoints)

	var sb *sandbox.Sandbox
	boundaryRoot := cwd
	cleanup := func() {}
	if lc.runtime.SandboxEnabled {
		sb, err = sandbox.Create(context.Background(), cwd, "")
		if err != nil {
			return nil, nil, fmt.Errorf("featurefactoryctl: create sandbox: %w", err)
		}
		boundaryRoot = sb.Dir
		cleanup = func() { os.RemoveAll(sb.Dir) }
	}

	boundary, err := tools.NewBoundary(boundaryRoot)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("featurefactoryctl: create tool boundary: %w", err)
	}
	toolRegistry := tools.NewRegistry()
	toolRegistry.Register(tools.NewReadTool(boundary))
	toolRegistry.Register(tools.NewWriteTool(boundary))
	toolRegistry.Register(tools.NewEditTool(boundary))
	toolRegistry.Register(tools.NewGlobTool(boundary))
	toolRegistry.Register(tools.NewGrepTool(boundary))
	toolRegistry.Register(tools.NewBashTool(boundary))

	if lc.runtime.MCP.Command != "" {
		forwarder := mcp.New(lc.runtime.MCPForwarderConfig())
		if err := forwarder.Connect(context.Background()); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("featurefactoryctl: connect MCP forwarder: %w", err)
		}
		for _, adapter := range forwarder.ToolAdapters() {
			toolRegistry.Register(adapter)
		}
		prevCleanup := cleanup
		cleanup = func() {
			forwarder.Close()
			prevCleanup()
		}
	} else {
		rc.logger.Warn("no MCP command configured; send_sms/make_call/get_debugger_logs/validate_* tools unavailable")
	}

	llmRegistry := llm.NewRegistry()
	if apiKey := os.Getenv("ANTHROPIC_API_KEY"); apiKey != "" {
		client, err := anthropicapi.New(anthropicapi.Config{APIKey: apiKey})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("featurefactoryctl: build Anthropic client: %w", err)
		}
		for _, tier := range []model.ModelTier{model.ModelSonnet, model.ModelOpus, model.ModelHaiku} {
			llmRegistry.Register(string(tier), client)
		}
		// The agent loop resolves by the concrete model ID when a tier is
		// mapped in model_ids, so register those names too.
		for _, id := range lc.runtime.ResolvedModelIDs() {
			llmRegistry.Register(id, client)
		}
	} else {
		rc.logger.Warn("ANTHROPIC_API_KEY not set; no LLM client registered, runs will fail at the first phase")
	}

	estimator, err := contextmgr.NewTiktokenEstimator()
	if err != nil {
		rc.logger.Warn("falling back to heuristic token estimator", "error", err)
		estimator = contextmgr.HeuristicEstimator{}
	}

	accountant, err := lc.runtime.NewAccountant()
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	rec, provider, err := metrics.NewPrometheusRecorder("feature_factory")
	if err != nil {
		rc.logger.Warn("metrics recorder unavailable, continuing without it", "error", err)
		rec = metrics.Noop()
	}
	_ = provider // exposed for an operator-added /metrics endpoint outside this CLI's scope

	workflows := toWorkflows(lc.workflows)
	personas, err := toPersonas(lc.personas)
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	learningsLoader := learnings.Loader{
		LearningsFilePath: lc.runtime.LearningsFilePath,
		PatternsFilePath:  lc.runtime.PatternsFilePath,
	}

	approval := workflow.ApprovalAfterEachPhase
	if lc.runtime.Autonomous {
		approval = workflow.ApprovalNone
	}

	driver := &workflow.Driver{
		Workflows:   workflows,
		Personas:    personas,
		Sessions:    sessions,
		Checkpoints: checkpoints,
		Hooks:       phase.Hooks,
		PhaseConfig: phase.Config{
			DefaultMaxRetries: lc.runtime.DefaultMaxRetries,
			Rec:               rec,
		},
		AgentDeps: agentloop.Deps{
			LLM:        llmRegistry,
			Tools:      toolRegistry,
			Accountant: accountant,
			ContextMgr: contextmgr.NewManager(lc.runtime.ContextManagerConfig(estimator, "")),
			Logger:     rc.logger,
			Rec:        rec,
		},
		AgentCaps: agentloop.Caps{
			MaxTurns:    lc.runtime.MaxTurnsPerPhase,
			MaxDuration: lc.runtime.MaxPhaseDuration,
			Stall:       lc.runtime.StallConfig(),
		},
		ModelIDs:            lc.runtime.ResolvedModelIDs(),
		Accountant:          accountant,
		Sandbox:             sb,
		BoundaryRoot:        boundaryRoot,
		LoadLearnings:       learningsLoader.AsFunc(),
		WorkflowTimeout:     lc.runtime.MaxWorkflowDuration,
		Approval:            approval,
		HookTestCommand:     lc.runtime.HookTestCommand,
		HookCoverageCommand: lc.runtime.HookCoverageCommand,
	}
	return driver, cleanup, nil
}
