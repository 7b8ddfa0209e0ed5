package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/wittyreference/feature-factory/internal/checkpoint"
)

func checkpointManagerForTest(t *testing.T) *checkpoint.Manager {
	t.Helper()
	return checkpoint.NewManager(t.TempDir())
}

func writeTempFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

func TestLoadWorkflowSetValidatesPhases(t *testing.T) {
	dir := t.TempDir()
	path := writeTempFile(t, dir, "workflows.yaml", `
workflows:
  - name: bugfix
    phases:
      - agent: architect
        display_name: "Architect"
      - agent: dev
        display_name: "Dev Implementation"
        pre_phase_hooks: ["tdd-enforcement"]
        max_retries: 3
`)
	cfg, err := LoadWorkflowSet(path)
	if err != nil {
		t.Fatalf("LoadWorkflowSet: %v", err)
	}
	if len(cfg.Workflows) != 1 || len(cfg.Workflows[0].Phases) != 2 {
		t.Fatalf("unexpected decode: %+v", cfg)
	}
	if got := *cfg.Workflows[0].Phases[1].MaxRetries; got != 3 {
		t.Fatalf("max_retries = %d, want 3", got)
	}
}

func TestLoadWorkflowSetRejectsUnknownAgent(t *testing.T) {
	dir := t.TempDir()
	path := writeTempFile(t, dir, "workflows.yaml", `
workflows:
  - name: bugfix
    phases:
      - agent: wizard
        display_name: "Wizard"
`)
	if _, err := LoadWorkflowSet(path); err == nil {
		t.Fatal("expected validation error for unknown agent")
	}
}

func TestLoadWorkflowSetRejectsUnknownHook(t *testing.T) {
	dir := t.TempDir()
	path := writeTempFile(t, dir, "workflows.yaml", `
workflows:
  - name: bugfix
    phases:
      - agent: dev
        display_name: "Dev"
        pre_phase_hooks: ["made-up-hook"]
`)
	if _, err := LoadWorkflowSet(path); err == nil {
		t.Fatal("expected validation error for unknown hook")
	}
}

func TestLoadPersonaSetRequiresSystemPrompt(t *testing.T) {
	dir := t.TempDir()
	path := writeTempFile(t, dir, "personas.yaml", `
personas:
  - name: architect
    allowed_tools: ["read_file"]
`)
	if _, err := LoadPersonaSet(path); err == nil {
		t.Fatal("expected validation error for missing system prompt")
	}
}

func TestLoadPersonaSetAcceptsInlinePrompt(t *testing.T) {
	dir := t.TempDir()
	path := writeTempFile(t, dir, "personas.yaml", `
personas:
  - name: architect
    system_prompt: "You are the architect."
    default_model: opus
    allowed_tools: ["read_file", "write_file"]
`)
	cfg, err := LoadPersonaSet(path)
	if err != nil {
		t.Fatalf("LoadPersonaSet: %v", err)
	}
	if len(cfg.Personas) != 1 || cfg.Personas[0].DefaultModel != "opus" {
		t.Fatalf("unexpected decode: %+v", cfg)
	}
}

func TestLoadRuntimeConfigExpandsEnvVars(t *testing.T) {
	os.Setenv("FF_TEST_BUDGET", "42.50")
	defer os.Unsetenv("FF_TEST_BUDGET")

	dir := t.TempDir()
	path := writeTempFile(t, dir, "runtime.yaml", `
max_budget_usd: "${FF_TEST_BUDGET}"
max_turns_per_phase: 10
`)
	cfg, err := LoadRuntimeConfig(path)
	if err != nil {
		t.Fatalf("LoadRuntimeConfig: %v", err)
	}
	if cfg.MaxBudgetUSD != "42.50" {
		t.Fatalf("max_budget_usd = %q, want 42.50", cfg.MaxBudgetUSD)
	}
	if cfg.MaxTurnsPerPhase != 10 {
		t.Fatalf("max_turns_per_phase = %d, want 10", cfg.MaxTurnsPerPhase)
	}
}

func TestLoadRuntimeConfigAppliesDefaultsWhenPathEmpty(t *testing.T) {
	cfg, err := LoadRuntimeConfig("")
	if err != nil {
		t.Fatalf("LoadRuntimeConfig: %v", err)
	}
	if cfg.MaxTurnsPerPhase != defaultMaxTurnsPerPhase {
		t.Fatalf("max_turns_per_phase = %d, want default %d", cfg.MaxTurnsPerPhase, defaultMaxTurnsPerPhase)
	}
	if !cfg.GitCheckpointsEnabled() {
		t.Fatal("expected git checkpoints enabled by default")
	}
}

func TestAutonomousEnvOverrideRaisesCapsAndEnablesSandbox(t *testing.T) {
	os.Setenv("FEATURE_FACTORY_AUTONOMOUS", "true")
	defer os.Unsetenv("FEATURE_FACTORY_AUTONOMOUS")

	cfg, err := LoadRuntimeConfig("")
	if err != nil {
		t.Fatalf("LoadRuntimeConfig: %v", err)
	}
	if cfg.MaxTurnsPerPhase != autonomousMaxTurnsPerPhase {
		t.Fatalf("max_turns_per_phase = %d, want autonomous default %d", cfg.MaxTurnsPerPhase, autonomousMaxTurnsPerPhase)
	}
	if !cfg.SandboxEnabled {
		t.Fatal("expected sandbox enabled in autonomous mode")
	}
}

func TestGitCheckpointsEnvOverrideDisables(t *testing.T) {
	os.Setenv("FEATURE_FACTORY_GIT_CHECKPOINTS", "false")
	defer os.Unsetenv("FEATURE_FACTORY_GIT_CHECKPOINTS")

	cfg, err := LoadRuntimeConfig("")
	if err != nil {
		t.Fatalf("LoadRuntimeConfig: %v", err)
	}
	if cfg.GitCheckpointsEnabled() {
		t.Fatal("expected git checkpoints disabled by env override")
	}

	mgr := checkpointManagerForTest(t)
	cfg.ApplyCheckpointToggle(mgr)
}

func TestMaxRetriesPerPhaseEnvOverride(t *testing.T) {
	os.Setenv("FEATURE_FACTORY_MAX_RETRIES_PER_PHASE", "7")
	defer os.Unsetenv("FEATURE_FACTORY_MAX_RETRIES_PER_PHASE")

	cfg, err := LoadRuntimeConfig("")
	if err != nil {
		t.Fatalf("LoadRuntimeConfig: %v", err)
	}
	if cfg.DefaultMaxRetries != 7 {
		t.Fatalf("default_max_retries = %d, want 7", cfg.DefaultMaxRetries)
	}
}

func TestContextCompactionThresholdEnvOverride(t *testing.T) {
	os.Setenv("FEATURE_FACTORY_CONTEXT_COMPACTION_THRESHOLD", "99000")
	defer os.Unsetenv("FEATURE_FACTORY_CONTEXT_COMPACTION_THRESHOLD")

	cfg, err := LoadRuntimeConfig("")
	if err != nil {
		t.Fatalf("LoadRuntimeConfig: %v", err)
	}
	if cfg.ContextCompactionThreshold != 99000 {
		t.Fatalf("context_compaction_threshold = %d, want 99000", cfg.ContextCompactionThreshold)
	}
}

func TestLoadRuntimeConfigRejectsInvalidBudget(t *testing.T) {
	dir := t.TempDir()
	path := writeTempFile(t, dir, "runtime.yaml", `max_budget_usd: "not-a-number"`)
	if _, err := LoadRuntimeConfig(path); err == nil {
		t.Fatal("expected validation error for malformed budget")
	}
}

func TestNewAccountantUsesConfiguredBudgetAndRates(t *testing.T) {
	cfg := RuntimeConfig{MaxBudgetUSD: "10.00"}
	cfg.SetDefaults()
	acct, err := cfg.NewAccountant()
	if err != nil {
		t.Fatalf("NewAccountant: %v", err)
	}
	if err := acct.CheckBudget(); err != nil {
		t.Fatalf("expected budget check to pass with no spend yet: %v", err)
	}
}

func TestStallConfigMapsFields(t *testing.T) {
	cfg := RuntimeConfig{Stall: StallConfig{RepetitionThreshold: 3, MaxInterventions: 2}}
	sc := cfg.StallConfig()
	if sc.RepetitionThreshold != 3 || sc.MaxInterventions != 2 {
		t.Fatalf("unexpected stall.Config: %+v", sc)
	}
}

func TestLoadRuntimeConfigDecodesMCPSection(t *testing.T) {
	dir := t.TempDir()
	path := writeTempFile(t, dir, "runtime.yaml", `
mcp:
  command: mcp-telephony-server
  args: ["--flag"]
  env:
    API_KEY: secret
`)
	cfg, err := LoadRuntimeConfig(path)
	if err != nil {
		t.Fatalf("LoadRuntimeConfig: %v", err)
	}
	if cfg.MCP.Command != "mcp-telephony-server" {
		t.Fatalf("mcp.command = %q, want mcp-telephony-server", cfg.MCP.Command)
	}
	if len(cfg.MCP.Args) != 1 || cfg.MCP.Args[0] != "--flag" {
		t.Fatalf("mcp.args = %+v", cfg.MCP.Args)
	}
	if cfg.MCP.Env["API_KEY"] != "secret" {
		t.Fatalf("mcp.env = %+v", cfg.MCP.Env)
	}

	fc := cfg.MCPForwarderConfig()
	if fc.Command != "mcp-telephony-server" || len(fc.Args) != 1 || fc.Env["API_KEY"] != "secret" {
		t.Fatalf("MCPForwarderConfig() = %+v", fc)
	}
}
