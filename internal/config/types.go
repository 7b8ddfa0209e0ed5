// Package config loads the three YAML configuration documents the
// orchestrator needs to start a run: the workflow set (phase sequences),
// the persona set (agent system prompts, schemas, allowed tools), and the
// runtime config (budget, caps, thresholds, and the §6 environment
// overrides). The load pipeline — read bytes, parse YAML/JSON, expand
// environment variables, decode via mapstructure, apply defaults,
// validate — mirrors pkg/config/loader.go's Loader.Load.
package config

import (
	"time"

	"github.com/wittyreference/feature-factory/internal/model"
)

// WorkflowSetConfig is the on-disk shape of the workflow registry: an
// ordered phase list per named workflow.
type WorkflowSetConfig struct {
	Workflows []WorkflowConfig `yaml:"workflows"`
}

// WorkflowConfig is one named, ordered sequence of phases.
type WorkflowConfig struct {
	Name   string        `yaml:"name"`
	Phases []PhaseConfig `yaml:"phases"`
}

// PhaseConfig binds one agent persona into a workflow's phase sequence.
type PhaseConfig struct {
	Agent            string   `yaml:"agent"`
	DisplayName      string   `yaml:"display_name"`
	ApprovalRequired bool     `yaml:"approval_required"`
	PrePhaseHooks    []string `yaml:"pre_phase_hooks"`
	// MaxRetries overrides RuntimeConfig.DefaultMaxRetries for this phase
	// only. A nil pointer (the field absent from YAML) means "use the
	// global default"; explicit 0 means "never retry this phase".
	MaxRetries *int `yaml:"max_retries"`
}

// PersonaSetConfig is the on-disk shape of the persona registry.
type PersonaSetConfig struct {
	Personas []PersonaConfig `yaml:"personas"`
}

// PersonaConfig configures one agent persona. SystemPrompt and
// OutputSchema may be given inline or loaded from a file; *File wins when
// both are set. A relative *File path is read as given, so it resolves
// against the process working directory, not the config file's directory.
type PersonaConfig struct {
	Name             string   `yaml:"name"`
	SystemPrompt     string   `yaml:"system_prompt"`
	SystemPromptFile string   `yaml:"system_prompt_file"`
	OutputSchema     string   `yaml:"output_schema"`
	OutputSchemaFile string   `yaml:"output_schema_file"`
	AllowedTools     []string `yaml:"allowed_tools"`
	DefaultModel     string   `yaml:"default_model"`
}

// StallConfig mirrors internal/stall.Config in YAML-decodable form.
type StallConfig struct {
	RepetitionThreshold int  `yaml:"repetition_threshold"`
	OscillationWindow   int  `yaml:"oscillation_window"`
	IdleTurns           int  `yaml:"idle_turns"`
	MaxInterventions    int  `yaml:"max_interventions"`
	Disabled            bool `yaml:"disabled"`
}

// RateConfig is one model tier's per-million-token USD price pair, mirroring
// internal/cost.Rate.
type RateConfig struct {
	InputPerMillion  float64 `yaml:"input_per_million"`
	OutputPerMillion float64 `yaml:"output_per_million"`
}

// RuntimeConfig holds every knob that controls how a run behaves rather
// than what it does: budget, caps, stall/compaction thresholds, and the
// sandbox/checkpoint/autonomous toggles. Most YAML keys match the §6
// environment variables after the FEATURE_FACTORY_ prefix is stripped and
// lower-cased; the exception is MAX_RETRIES_PER_PHASE, which
// ApplyEnvOverrides maps to default_max_retries.
type RuntimeConfig struct {
	// MaxBudgetUSD is a decimal string or the literal "unlimited", decoded
	// by cost.ParseBudget.
	MaxBudgetUSD string                `yaml:"max_budget_usd"`
	Rates        map[string]RateConfig `yaml:"rates"`
	ModelIDs     map[string]string     `yaml:"model_ids"`

	MaxTurnsPerPhase    int           `yaml:"max_turns_per_phase"`
	MaxPhaseDuration    time.Duration `yaml:"max_phase_duration"`
	MaxWorkflowDuration time.Duration `yaml:"max_workflow_duration"`
	DefaultMaxRetries   int           `yaml:"default_max_retries"`

	Stall                      StallConfig `yaml:"stall"`
	ContextCompactionThreshold int         `yaml:"context_compaction_threshold"`
	KeepTurnPairs              int         `yaml:"keep_turn_pairs"`

	// GitCheckpoints is a pointer so "absent from YAML" (defaults to
	// enabled) is distinguishable from an explicit "false".
	GitCheckpoints *bool `yaml:"git_checkpoints"`
	SandboxEnabled bool  `yaml:"sandbox_enabled"`

	Autonomous             bool `yaml:"autonomous"`
	AutonomousAcknowledged bool `yaml:"autonomous_acknowledged"`

	HookTestCommand     []string `yaml:"hook_test_command"`
	HookCoverageCommand []string `yaml:"hook_coverage_command"`
	CoverageThreshold   float64  `yaml:"coverage_threshold"`

	LearningsFilePath string `yaml:"learnings_file_path"`
	PatternsFilePath  string `yaml:"patterns_file_path"`

	// MCP configures the telephony-forwarder MCP tool family (send_sms,
	// make_call, get_debugger_logs, validate_*). Command empty means the
	// MCP sub-family is not configured and won't be connected or
	// registered.
	MCP MCPConfig `yaml:"mcp"`
}

// MCPConfig is the on-disk shape of internal/tools/mcp.Config.
type MCPConfig struct {
	Command string            `yaml:"command"`
	Args    []string          `yaml:"args"`
	Env     map[string]string `yaml:"env"`
}

// modelTier resolves a YAML model-tier string to the closed model.ModelTier
// set, defaulting to sonnet for anything unrecognized.
func modelTier(s string) model.ModelTier {
	switch s {
	case string(model.ModelHaiku):
		return model.ModelHaiku
	case string(model.ModelOpus):
		return model.ModelOpus
	default:
		return model.ModelSonnet
	}
}
