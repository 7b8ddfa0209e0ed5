// Package cost tracks per-model USD spend across a workflow and enforces
// the budget ceiling before each phase's agent loop starts.
package cost

import (
	"fmt"
	"math"
	"sync"

	"github.com/wittyreference/feature-factory/internal/model"
	"github.com/wittyreference/feature-factory/internal/orcherr"
)

// Rate is the per-million-token USD price pair for one model tier.
type Rate struct {
	InputPerMillion  float64
	OutputPerMillion float64
}

// DefaultRates is the static lookup table. Prices are illustrative
// placeholders; operators override them via config for their actual
// negotiated rate.
var DefaultRates = map[model.ModelTier]Rate{
	model.ModelHaiku:  {InputPerMillion: 0.80, OutputPerMillion: 4.00},
	model.ModelSonnet: {InputPerMillion: 3.00, OutputPerMillion: 15.00},
	model.ModelOpus:   {InputPerMillion: 15.00, OutputPerMillion: 75.00},
}

// Unlimited is the special budget value meaning "no cap".
const Unlimited = "unlimited"

// ParseBudget converts a budget string (a decimal USD amount, or the
// literal "unlimited") to a float64 ceiling, mapping "unlimited" to +Inf.
func ParseBudget(s string) (float64, error) {
	if s == Unlimited {
		return math.Inf(1), nil
	}
	var v float64
	if _, err := fmt.Sscanf(s, "%f", &v); err != nil {
		return 0, fmt.Errorf("cost: invalid budget %q: %w", s, err)
	}
	return v, nil
}

// Accountant maintains cumulative spend and answers the pre-phase budget
// check. Safe for concurrent use, though a single workflow driver only
// ever calls it from one goroutine at a time.
type Accountant struct {
	mu            sync.Mutex
	rates         map[model.ModelTier]Rate
	maxBudgetUSD  float64
	cumulativeUSD float64
}

// NewAccountant builds an Accountant. A nil rates map falls back to
// DefaultRates.
func NewAccountant(rates map[model.ModelTier]Rate, maxBudgetUSD float64) *Accountant {
	if rates == nil {
		rates = DefaultRates
	}
	return &Accountant{rates: rates, maxBudgetUSD: maxBudgetUSD}
}

// CheckBudget returns a non-recoverable *orcherr.Error if cumulative spend
// has already reached the ceiling. Called immediately before a phase's
// agent loop begins, and again before each iteration inside it.
func (a *Accountant) CheckBudget() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cumulativeUSD >= a.maxBudgetUSD {
		return orcherr.New(orcherr.KindBudgetExceeded, "", fmt.Sprintf(
			"cumulative cost $%.4f has reached the budget ceiling $%.4f", a.cumulativeUSD, a.maxBudgetUSD), nil)
	}
	return nil
}

// Record adds the cost of one model invocation to the cumulative total and
// returns that call's cost in USD. An unknown tier costs nothing recorded
// beyond a zero addition — callers should treat that as a configuration
// bug, not silently charge an arbitrary rate.
func (a *Accountant) Record(tier model.ModelTier, inputTokens, outputTokens int) float64 {
	rate, ok := a.rates[tier]
	if !ok {
		return 0
	}
	callCost := (float64(inputTokens)*rate.InputPerMillion + float64(outputTokens)*rate.OutputPerMillion) / 1e6

	a.mu.Lock()
	a.cumulativeUSD += callCost
	a.mu.Unlock()
	return callCost
}

// CumulativeUSD returns the running total spent so far.
func (a *Accountant) CumulativeUSD() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cumulativeUSD
}

// SetCumulativeUSD restores the accountant's running total, used when
// resuming a session whose persisted state already carries a cumulative
// cost.
func (a *Accountant) SetCumulativeUSD(v float64) {
	a.mu.Lock()
	a.cumulativeUSD = v
	a.mu.Unlock()
}
