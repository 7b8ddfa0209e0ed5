package phase

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/wittyreference/feature-factory/internal/model"
)

func TestTDDEnforcementPassesOnRedTests(t *testing.T) {
	hc := HookContext{PhaseCtx: &model.PhaseContext{PhaseResults: map[model.AgentName]model.PhaseResult{
		model.AgentTestGen: {Output: json.RawMessage(`{"testsCreated":3,"allTestsFailing":true}`)},
	}}}
	if err := tddEnforcement(context.Background(), hc); err != nil {
		t.Fatalf("expected pass, got %v", err)
	}
}

func TestTDDEnforcementFailsWhenTestsPass(t *testing.T) {
	hc := HookContext{PhaseCtx: &model.PhaseContext{PhaseResults: map[model.AgentName]model.PhaseResult{
		model.AgentTestGen: {Output: json.RawMessage(`{"testsCreated":3,"allTestsFailing":false}`)},
	}}}
	if err := tddEnforcement(context.Background(), hc); err == nil {
		t.Fatal("expected failure when tests are not all failing")
	}
}

func TestTDDEnforcementFailsWithoutTestGenResult(t *testing.T) {
	hc := HookContext{PhaseCtx: &model.PhaseContext{PhaseResults: map[model.AgentName]model.PhaseResult{}}}
	if err := tddEnforcement(context.Background(), hc); err == nil {
		t.Fatal("expected failure when no test-gen result exists")
	}
}

func TestParseAverageCoverage(t *testing.T) {
	output := "ok  	example/pkg1	0.010s	coverage: 85.0% of statements\nok  	example/pkg2	0.020s	coverage: 75.0% of statements\n"
	pct, ok := parseAverageCoverage(output)
	if !ok {
		t.Fatal("expected coverage to be parsed")
	}
	if pct != 80.0 {
		t.Fatalf("expected average 80.0, got %v", pct)
	}
}

func TestParseAverageCoverageNoMatches(t *testing.T) {
	if _, ok := parseAverageCoverage("no coverage info here"); ok {
		t.Fatal("expected no match")
	}
}

func TestCoverageThresholdFailsBelowFloor(t *testing.T) {
	hc := HookContext{
		BoundaryRoot:      t.TempDir(),
		CoverageCommand:   []string{"sh", "-c", "echo 'coverage: 50.0% of statements'"},
		CoverageThreshold: 80,
	}
	if err := coverageThreshold(context.Background(), hc); err == nil {
		t.Fatal("expected failure below threshold")
	}
}

func TestCoverageThresholdPassesAboveFloor(t *testing.T) {
	hc := HookContext{
		BoundaryRoot:      t.TempDir(),
		CoverageCommand:   []string{"sh", "-c", "echo 'coverage: 95.0% of statements'"},
		CoverageThreshold: 80,
	}
	if err := coverageThreshold(context.Background(), hc); err != nil {
		t.Fatalf("expected pass, got %v", err)
	}
}

func TestTestPassingEnforcementFailsOnNonzeroExit(t *testing.T) {
	hc := HookContext{BoundaryRoot: t.TempDir(), TestCommand: []string{"sh", "-c", "exit 1"}}
	if err := testPassingEnforcement(context.Background(), hc); err == nil {
		t.Fatal("expected failure on nonzero exit")
	}
}

func TestTestPassingEnforcementPassesOnZeroExit(t *testing.T) {
	hc := HookContext{BoundaryRoot: t.TempDir(), TestCommand: []string{"sh", "-c", "exit 0"}}
	if err := testPassingEnforcement(context.Background(), hc); err != nil {
		t.Fatalf("expected pass, got %v", err)
	}
}
