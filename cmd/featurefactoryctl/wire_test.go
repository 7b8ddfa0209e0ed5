package main

import (
	"testing"

	"github.com/wittyreference/feature-factory/internal/config"
	"github.com/wittyreference/feature-factory/internal/model"
)

func TestToWorkflowsConvertsHooksAndRetries(t *testing.T) {
	retries := 3
	cfg := &config.WorkflowSetConfig{
		Workflows: []config.WorkflowConfig{
			{
				Name: "bug-fix",
				Phases: []config.PhaseConfig{
					{Agent: "dev", DisplayName: "Dev", PrePhaseHooks: []string{"tdd-enforcement"}, MaxRetries: &retries},
				},
			},
		},
	}
	got := toWorkflows(cfg)
	wf, ok := got["bug-fix"]
	if !ok || len(wf.Phases) != 1 {
		t.Fatalf("unexpected conversion: %+v", got)
	}
	if wf.Phases[0].Agent != model.AgentDev {
		t.Fatalf("agent = %q, want dev", wf.Phases[0].Agent)
	}
	if len(wf.Phases[0].PrePhaseHooks) != 1 || wf.Phases[0].PrePhaseHooks[0] != model.HookTDDEnforcement {
		t.Fatalf("hooks = %+v", wf.Phases[0].PrePhaseHooks)
	}
	if wf.Phases[0].MaxRetries == nil || *wf.Phases[0].MaxRetries != 3 {
		t.Fatalf("max retries not carried through: %+v", wf.Phases[0].MaxRetries)
	}
}

func TestToPersonasAppliesInlinePromptAndDefaultModel(t *testing.T) {
	cfg := &config.PersonaSetConfig{
		Personas: []config.PersonaConfig{
			{Name: "architect", SystemPrompt: "plan the change", DefaultModel: "opus", AllowedTools: []string{"read_file"}},
		},
	}
	got, err := toPersonas(cfg)
	if err != nil {
		t.Fatalf("toPersonas: %v", err)
	}
	p, ok := got[model.AgentArchitect]
	if !ok {
		t.Fatal("architect persona missing")
	}
	if p.SystemPrompt != "plan the change" {
		t.Fatalf("system prompt = %q", p.SystemPrompt)
	}
	if p.DefaultModel != model.ModelOpus {
		t.Fatalf("default model = %q, want opus", p.DefaultModel)
	}
	if p.Validator == nil {
		t.Fatal("expected a default validator to be set")
	}
	if vr := p.Validator(nil, nil); !vr.OK {
		t.Fatal("default validator should always accept")
	}
}

func TestParseLogLevelRejectsUnknown(t *testing.T) {
	if _, err := parseLogLevel("verbose"); err == nil {
		t.Fatal("expected error for unknown log level")
	}
	if _, err := parseLogLevel("debug"); err != nil {
		t.Fatalf("parseLogLevel(debug): %v", err)
	}
}
