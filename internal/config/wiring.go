package config

import (
	"fmt"

	"github.com/wittyreference/feature-factory/internal/checkpoint"
	"github.com/wittyreference/feature-factory/internal/contextmgr"
	"github.com/wittyreference/feature-factory/internal/cost"
	"github.com/wittyreference/feature-factory/internal/model"
	"github.com/wittyreference/feature-factory/internal/stall"
	"github.com/wittyreference/feature-factory/internal/tools/mcp"
)

// StallConfig converts the decoded StallConfig into stall.Config.
func (r RuntimeConfig) StallConfig() stall.Config {
	return stall.Config{
		RepetitionThreshold: r.Stall.RepetitionThreshold,
		OscillationWindow:   r.Stall.OscillationWindow,
		IdleTurns:           r.Stall.IdleTurns,
		MaxInterventions:    r.Stall.MaxInterventions,
		Disabled:            r.Stall.Disabled,
	}
}

// ContextManagerConfig builds a contextmgr.Config from the runtime
// thresholds plus a caller-supplied estimator (nil falls back to
// contextmgr's heuristic) and system prompt.
func (r RuntimeConfig) ContextManagerConfig(estimator contextmgr.Estimator, systemPrompt string) contextmgr.Config {
	return contextmgr.Config{
		Estimator:           estimator,
		CompactionThreshold: r.ContextCompactionThreshold,
		KeepTurnPairs:       r.KeepTurnPairs,
		SystemPrompt:        systemPrompt,
	}
}

// CostRates converts the configured per-tier rate table to cost.Rate,
// falling back to cost.DefaultRates for any tier left unconfigured.
func (r RuntimeConfig) CostRates() map[model.ModelTier]cost.Rate {
	rates := make(map[model.ModelTier]cost.Rate, len(cost.DefaultRates))
	for tier, rate := range cost.DefaultRates {
		rates[tier] = rate
	}
	for tierName, rc := range r.Rates {
		rates[modelTier(tierName)] = cost.Rate{
			InputPerMillion:  rc.InputPerMillion,
			OutputPerMillion: rc.OutputPerMillion,
		}
	}
	return rates
}

// NewAccountant builds a cost.Accountant from the configured budget and
// rate table.
func (r RuntimeConfig) NewAccountant() (*cost.Accountant, error) {
	budget, err := cost.ParseBudget(r.MaxBudgetUSD)
	if err != nil {
		return nil, fmt.Errorf("config: max_budget_usd: %w", err)
	}
	return cost.NewAccountant(r.CostRates(), budget), nil
}

// ResolvedModelIDs converts the configured tier->model-ID map to
// model.ModelTier keys, for Driver.ModelIDs.
func (r RuntimeConfig) ResolvedModelIDs() map[model.ModelTier]string {
	out := make(map[model.ModelTier]string, len(r.ModelIDs))
	for tierName, id := range r.ModelIDs {
		out[modelTier(tierName)] = id
	}
	return out
}

// MCPForwarderConfig converts the configured MCP section to mcp.Config.
func (r RuntimeConfig) MCPForwarderConfig() mcp.Config {
	return mcp.Config{Command: r.MCP.Command, Args: r.MCP.Args, Env: r.MCP.Env}
}

// ApplyCheckpointToggle disables mgr when the configuration (YAML or the
// FEATURE_FACTORY_GIT_CHECKPOINTS override) turns git checkpointing off.
func (r RuntimeConfig) ApplyCheckpointToggle(mgr *checkpoint.Manager) {
	if !r.GitCheckpointsEnabled() {
		mgr.Disable()
	}
}
