package config

import (
	"fmt"

	"github.com/wittyreference/feature-factory/internal/cost"
	"github.com/wittyreference/feature-factory/internal/model"
)

var validAgentNames = map[string]bool{
	string(model.AgentArchitect): true,
	string(model.AgentSpec):      true,
	string(model.AgentTestGen):   true,
	string(model.AgentDev):       true,
	string(model.AgentQA):        true,
	string(model.AgentReview):    true,
	string(model.AgentDocs):      true,
}

var validHookNames = map[string]bool{
	string(model.HookTDDEnforcement):     true,
	string(model.HookCoverageThreshold):  true,
	string(model.HookTestPassingEnforce): true,
}

// Validate checks that every workflow names at least one phase and every
// phase's agent and hooks are in the closed sets internal/model defines.
func (w WorkflowSetConfig) Validate() error {
	if len(w.Workflows) == 0 {
		return fmt.Errorf("config: workflow set has no workflows")
	}
	seen := make(map[string]bool, len(w.Workflows))
	for _, wf := range w.Workflows {
		if wf.Name == "" {
			return fmt.Errorf("config: workflow with empty name")
		}
		if seen[wf.Name] {
			return fmt.Errorf("config: duplicate workflow name %q", wf.Name)
		}
		seen[wf.Name] = true
		if len(wf.Phases) == 0 {
			return fmt.Errorf("config: workflow %q has no phases", wf.Name)
		}
		for i, p := range wf.Phases {
			if !validAgentNames[p.Agent] {
				return fmt.Errorf("config: workflow %q phase %d: unknown agent %q", wf.Name, i, p.Agent)
			}
			if p.DisplayName == "" {
				return fmt.Errorf("config: workflow %q phase %d: empty display_name", wf.Name, i)
			}
			for _, h := range p.PrePhaseHooks {
				if !validHookNames[h] {
					return fmt.Errorf("config: workflow %q phase %d: unknown hook %q", wf.Name, i, h)
				}
			}
			if p.MaxRetries != nil && *p.MaxRetries < 0 {
				return fmt.Errorf("config: workflow %q phase %d: max_retries must be >= 0", wf.Name, i)
			}
		}
	}
	return nil
}

// Validate checks that every persona names a known agent, appears once, and
// has a system prompt (inline or via file). The output schema is optional
// and is not checked here.
func (p PersonaSetConfig) Validate() error {
	if len(p.Personas) == 0 {
		return fmt.Errorf("config: persona set has no personas")
	}
	seen := make(map[string]bool, len(p.Personas))
	for _, persona := range p.Personas {
		if !validAgentNames[persona.Name] {
			return fmt.Errorf("config: persona has unknown agent name %q", persona.Name)
		}
		if seen[persona.Name] {
			return fmt.Errorf("config: duplicate persona %q", persona.Name)
		}
		seen[persona.Name] = true
		if persona.SystemPrompt == "" && persona.SystemPromptFile == "" {
			return fmt.Errorf("config: persona %q has neither system_prompt nor system_prompt_file", persona.Name)
		}
	}
	return nil
}

// Validate checks RuntimeConfig's numeric fields are sane once defaults
// have been applied.
func (r RuntimeConfig) Validate() error {
	if r.MaxTurnsPerPhase <= 0 {
		return fmt.Errorf("config: max_turns_per_phase must be > 0")
	}
	if r.MaxPhaseDuration <= 0 {
		return fmt.Errorf("config: max_phase_duration must be > 0")
	}
	if r.MaxWorkflowDuration <= 0 {
		return fmt.Errorf("config: max_workflow_duration must be > 0")
	}
	if r.DefaultMaxRetries < 0 {
		return fmt.Errorf("config: default_max_retries must be >= 0")
	}
	if r.ContextCompactionThreshold <= 0 {
		return fmt.Errorf("config: context_compaction_threshold must be > 0")
	}
	if r.CoverageThreshold < 0 || r.CoverageThreshold > 1 {
		return fmt.Errorf("config: coverage_threshold must be within [0, 1]")
	}
	if _, err := cost.ParseBudget(r.MaxBudgetUSD); err != nil {
		return fmt.Errorf("config: max_budget_usd: %w", err)
	}
	return nil
}
