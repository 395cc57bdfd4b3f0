package plan

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func TestDefaultPlans(t *testing.T) {
	plans := DefaultPlans()
	if len(plans) != 6 {
		t.Fatalf("expected 6 default plans, got %d", len(plans))
	}

	wantSizes := []float64{6000, 15000, 25000, 50000, 100000, 200000}
	for i, p := range plans {
		if !p.AccountSize.Equal(d(wantSizes[i])) {
			t.Errorf("plan %d: expected size %.0f, got %s", i, wantSizes[i], p.AccountSize)
		}
		// Every default plan carries the 10% drawdown limit.
		if !p.MaxOverallLoss.Equal(p.AccountSize.Mul(d(0.10))) {
			t.Errorf("plan %d: expected maxLoss=10%% of size, got %s", i, p.MaxOverallLoss)
		}
	}
}

func TestForAccountSize(t *testing.T) {
	p := ForAccountSize(d(42000))
	if !p.MaxOverallLoss.Equal(d(4200)) {
		t.Errorf("expected maxLoss=4200, got %s", p.MaxOverallLoss)
	}
}

func TestParseList_Valid(t *testing.T) {
	plans, err := ParseList("6000:600,15000:1500, 25000:2500")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(plans) != 3 {
		t.Fatalf("expected 3 plans, got %d", len(plans))
	}
	if !plans[1].AccountSize.Equal(d(15000)) || !plans[1].MaxOverallLoss.Equal(d(1500)) {
		t.Errorf("plan 1 parsed wrong: %s:%s", plans[1].AccountSize, plans[1].MaxOverallLoss)
	}
}

func TestParseList_FractionalValues(t *testing.T) {
	plans, err := ParseList("7500.50:750.05")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !plans[0].AccountSize.Equal(d(7500.50)) {
		t.Errorf("expected size 7500.50, got %s", plans[0].AccountSize)
	}
}

func TestParseList_Invalid(t *testing.T) {
	tests := []string{
		"6000",            // missing loss
		"6000:600:1",      // too many fields
		"abc:600",         // non-numeric size
		"6000:-600",       // negative loss
		"0:0",             // zero values
		"6000:7000",       // loss above account size
		"6000:600,,15000", // empty entry
	}
	for _, spec := range tests {
		if _, err := ParseList(spec); !errors.Is(err, ErrInvalidPlanSpec) {
			t.Errorf("expected ErrInvalidPlanSpec for %q, got %v", spec, err)
		}
	}
}

func TestParseList_Empty(t *testing.T) {
	for _, spec := range []string{"", "   "} {
		if _, err := ParseList(spec); !errors.Is(err, ErrEmptyPlanSpec) {
			t.Errorf("expected ErrEmptyPlanSpec for %q, got %v", spec, err)
		}
	}
}

func TestParseList_OrderPreserved(t *testing.T) {
	plans, err := ParseList("200000:20000,6000:600")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !plans[0].AccountSize.Equal(d(200000)) {
		t.Errorf("expected first plan to be 200000, got %s", plans[0].AccountSize)
	}
}
