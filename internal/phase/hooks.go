// Package phase implements the phase executor: retry loop, pre-phase hook
// enforcement, and checkpoint creation around one agent-loop attempt
// sequence. hooks.go holds the three named pre-phase hooks
// (tdd-enforcement, coverage-threshold, test-passing-enforcement).
package phase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"

	"github.com/wittyreference/feature-factory/internal/model"
)

// DefaultCoverageThresholdPercent is the line-coverage floor the
// coverage-threshold hook enforces when HookContext.CoverageThreshold is
// unset.
const DefaultCoverageThresholdPercent = 80.0

// HookContext is what a pre-phase hook needs beyond the phase it's gating:
// the read-only workflow view, the sandbox working directory the test
// commands run in, and the commands themselves (overridable per project;
// default to the Go toolchain since that's this orchestrator's own stack).
type HookContext struct {
	PhaseCtx          *model.PhaseContext
	BoundaryRoot      string
	TestCommand       []string
	CoverageCommand   []string
	CoverageThreshold float64
}

// Hook is one named pre-phase precondition. A non-nil error is the failure
// reason; nil means the hook passed.
type Hook func(ctx context.Context, hc HookContext) error

// Hooks is the registry of the three pre-phase hooks this orchestrator supports.
var Hooks = map[model.HookName]Hook{
	model.HookTDDEnforcement:     tddEnforcement,
	model.HookCoverageThreshold:  coverageThreshold,
	model.HookTestPassingEnforce: testPassingEnforcement,
}

type testGenOutput struct {
	TestsCreated    int  `json:"testsCreated"`
	AllTestsFailing bool `json:"allTestsFailing"`
}

// tddEnforcement passes iff the prior test-gen phase reported
// testsCreated > 0 and allTestsFailing = true, enforcing red-before-green
// ahead of the dev phase.
func tddEnforcement(ctx context.Context, hc HookContext) error {
	pr, ok := hc.PhaseCtx.PhaseResults[model.AgentTestGen]
	if !ok {
		return fmt.Errorf("tdd-enforcement: no test-gen phase result found")
	}
	var out testGenOutput
	if err := json.Unmarshal(pr.Output, &out); err != nil {
		return fmt.Errorf("tdd-enforcement: parse test-gen output: %w", err)
	}
	if !(out.TestsCreated > 0 && out.AllTestsFailing) {
		return fmt.Errorf("tdd-enforcement: expected testsCreated>0 and allTestsFailing=true from the test-gen phase, got testsCreated=%d allTestsFailing=%v",
			out.TestsCreated, out.AllTestsFailing)
	}
	return nil
}

var coverageLineRe = regexp.MustCompile(`coverage:\s+([\d.]+)%\s+of statements`)

// coverageThreshold runs hc.CoverageCommand and passes iff the average
// reported line coverage across all matched packages is >= the threshold.
func coverageThreshold(ctx context.Context, hc HookContext) error {
	threshold := hc.CoverageThreshold
	if threshold <= 0 {
		threshold = DefaultCoverageThresholdPercent
	}
	cmd := hc.CoverageCommand
	if len(cmd) == 0 {
		cmd = []string{"go", "test", "./...", "-cover"}
	}
	out, err := runCommand(ctx, hc.BoundaryRoot, cmd)
	if err != nil {
		return fmt.Errorf("coverage-threshold: run coverage command: %w", err)
	}
	pct, ok := parseAverageCoverage(out)
	if !ok {
		return fmt.Errorf("coverage-threshold: could not parse a coverage percentage from the test command's output")
	}
	if pct < threshold {
		return fmt.Errorf("coverage-threshold: line coverage %.1f%% is below the required %.1f%%", pct, threshold)
	}
	return nil
}

func parseAverageCoverage(output string) (float64, bool) {
	matches := coverageLineRe.FindAllStringSubmatch(output, -1)
	if len(matches) == 0 {
		return 0, false
	}
	var sum float64
	for _, m := range matches {
		v, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			continue
		}
		sum += v
	}
	return sum / float64(len(matches)), true
}

// testPassingEnforcement passes iff hc.TestCommand exits zero.
func testPassingEnforcement(ctx context.Context, hc HookContext) error {
	cmd := hc.TestCommand
	if len(cmd) == 0 {
		cmd = []string{"go", "test", "./..."}
	}
	if out, err := runCommand(ctx, hc.BoundaryRoot, cmd); err != nil {
		return fmt.Errorf("test-passing-enforcement: tests failed: %w\n%s", err, out)
	}
	return nil
}

func runCommand(ctx context.Context, dir string, argv []string) (string, error) {
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = dir
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	err := cmd.Run()
	return out.String(), err
}
