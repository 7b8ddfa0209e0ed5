package config

import "time"

const (
	defaultMaxTurnsPerPhase           = 40
	defaultMaxPhaseDuration           = 20 * time.Minute
	defaultMaxWorkflowDuration        = 4 * time.Hour
	defaultMaxRetriesPerPhase         = 2
	defaultContextCompactionThreshold = 120_000
	defaultKeepTurnPairs              = 8
	defaultCoverageThreshold          = 0.80
	defaultMaxBudgetUSD               = "25.00"

	autonomousMaxTurnsPerPhase    = 80
	autonomousMaxRetriesPerPhase  = 4
	autonomousMaxWorkflowDuration = 12 * time.Hour
	autonomousMaxBudgetUSD        = "100.00"
)

// SetDefaults fills every zero-valued field with the orchestrator's
// baseline. Autonomous mode raises the caps and turns the sandbox on; git
// checkpoints default to enabled in either mode. Approval gates are not a
// RuntimeConfig field: the CLI drops them when Autonomous is set.
func (r *RuntimeConfig) SetDefaults() {
	if r.Autonomous {
		r.setDefault(&r.MaxTurnsPerPhase, autonomousMaxTurnsPerPhase)
		r.setDefault(&r.DefaultMaxRetries, autonomousMaxRetriesPerPhase)
		if r.MaxWorkflowDuration <= 0 {
			r.MaxWorkflowDuration = autonomousMaxWorkflowDuration
		}
		if r.MaxBudgetUSD == "" {
			r.MaxBudgetUSD = autonomousMaxBudgetUSD
		}
		r.SandboxEnabled = true
	} else {
		r.setDefault(&r.MaxTurnsPerPhase, defaultMaxTurnsPerPhase)
		r.setDefault(&r.DefaultMaxRetries, defaultMaxRetriesPerPhase)
		if r.MaxWorkflowDuration <= 0 {
			r.MaxWorkflowDuration = defaultMaxWorkflowDuration
		}
		if r.MaxBudgetUSD == "" {
			r.MaxBudgetUSD = defaultMaxBudgetUSD
		}
	}

	if r.MaxPhaseDuration <= 0 {
		r.MaxPhaseDuration = defaultMaxPhaseDuration
	}
	if r.ContextCompactionThreshold <= 0 {
		r.ContextCompactionThreshold = defaultContextCompactionThreshold
	}
	if r.KeepTurnPairs <= 0 {
		r.KeepTurnPairs = defaultKeepTurnPairs
	}
	if r.CoverageThreshold <= 0 {
		r.CoverageThreshold = defaultCoverageThreshold
	}
	if r.GitCheckpoints == nil {
		enabled := true
		r.GitCheckpoints = &enabled
	}
}

// GitCheckpointsEnabled reports the effective checkpoint toggle, treating
// an unset field as enabled.
func (r *RuntimeConfig) GitCheckpointsEnabled() bool {
	return r.GitCheckpoints == nil || *r.GitCheckpoints
}

func (r *RuntimeConfig) setDefault(field *int, value int) {
	if *field <= 0 {
		*field = value
	}
}
