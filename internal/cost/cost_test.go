package cost

import (
	"math"
	"testing"

	"github.com/wittyreference/feature-factory/internal/model"
	"github.com/wittyreference/feature-factory/internal/orcherr"
)

func TestParseBudgetUnlimited(t *testing.T) {
	got, err := ParseBudget("unlimited")
	if err != nil {
		t.Fatal(err)
	}
	if !math.IsInf(got, 1) {
		t.Fatalf("expected +Inf, got %v", got)
	}
}

func TestParseBudgetNumeric(t *testing.T) {
	got, err := ParseBudget("12.50")
	if err != nil {
		t.Fatal(err)
	}
	if got != 12.50 {
		t.Fatalf("expected 12.50, got %v", got)
	}
}

func TestRecordAccumulatesCost(t *testing.T) {
	a := NewAccountant(nil, 100)
	c1 := a.Record(model.ModelSonnet, 1_000_000, 0)
	if c1 != 3.0 {
		t.Fatalf("expected $3.00 for 1M input tokens at sonnet rate, got %v", c1)
	}
	c2 := a.Record(model.ModelSonnet, 0, 1_000_000)
	if c2 != 15.0 {
		t.Fatalf("expected $15.00 for 1M output tokens at sonnet rate, got %v", c2)
	}
	if a.CumulativeUSD() != 18.0 {
		t.Fatalf("expected cumulative $18.00, got %v", a.CumulativeUSD())
	}
}

func TestCheckBudgetFailsNonRecoverably(t *testing.T) {
	a := NewAccountant(nil, 1.0)
	a.Record(model.ModelOpus, 1_000_000, 0)

	err := a.CheckBudget()
	if err == nil {
		t.Fatal("expected budget exceeded error")
	}
	if orcherr.Recoverable(err) {
		t.Fatal("expected budget exceeded to be non-recoverable")
	}
}

func TestCheckBudgetUnlimitedNeverFails(t *testing.T) {
	a := NewAccountant(nil, math.Inf(1))
	a.Record(model.ModelOpus, 1_000_000_000, 1_000_000_000)
	if err := a.CheckBudget(); err != nil {
		t.Fatalf("expected unlimited budget to never fail, got %v", err)
	}
}

func TestSetCumulativeUSDRestoresState(t *testing.T) {
	a := NewAccountant(nil, 100)
	a.SetCumulativeUSD(42.5)
	if a.CumulativeUSD() != 42.5 {
		t.Fatalf("expected restored cumulative cost, got %v", a.CumulativeUSD())
	}
}
