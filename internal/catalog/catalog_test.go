package catalog

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"deposit-reconciler-go/internal/models"

	"github.com/shopspring/decimal"
)

func testPlans() []models.PlanDefinition {
	return []models.PlanDefinition{
		{
			Id:    "gold",
			Order: 2,
			Amounts: map[string]decimal.Decimal{
				"USDT": decimal.NewFromInt(100),
			},
			DurationDays:     30,
			PayoutPercentage: decimal.NewFromInt(250),
		},
		{
			Id:    "starter",
			Order: 1,
			Amounts: map[string]decimal.Decimal{
				"USDT": decimal.NewFromInt(25),
			},
			DurationDays:     10,
			PayoutPercentage: decimal.NewFromInt(210),
		},
	}
}

func TestNewPlanCatalog_OrdersPlans(t *testing.T) {
	c, err := NewPlanCatalog(testPlans())
	if err != nil {
		t.Fatalf("NewPlanCatalog failed: %v", err)
	}

	plans := c.Plans()
	if plans[0].Id != "starter" || plans[1].Id != "gold" {
		t.Errorf("expected plans ranked ascending by order, got %s then %s", plans[0].Id, plans[1].Id)
	}
	if c.EntryOrder() != 1 {
		t.Errorf("expected entry order 1, got %d", c.EntryOrder())
	}
}

func TestLoadPlanCatalog_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plans.yaml")
	contents := `plans:
  - id: starter
    order: 1
    duration_days: 30
    payout_percentage: "210"
    amounts:
      USDT: "25"
  - id: gold
    order: 2
    duration_days: 60
    payout_percentage: "300"
    amounts:
      USDT: "500"
`
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("Failed to write plans file: %v", err)
	}

	c, err := LoadPlanCatalog(path)
	if err != nil {
		t.Fatalf("LoadPlanCatalog failed: %v", err)
	}

	plans := c.Plans()
	if len(plans) != 2 || plans[0].Id != "starter" || plans[1].Id != "gold" {
		t.Errorf("unexpected catalog contents: %+v", plans)
	}
	if plans[1].DurationDays != 60 {
		t.Errorf("expected gold duration 60, got %d", plans[1].DurationDays)
	}
	price, ok := plans[0].AmountFor("USDT")
	if !ok || !price.Equal(decimal.NewFromInt(25)) {
		t.Errorf("expected starter price 25 USDT, got %s (ok=%v)", price, ok)
	}

	if _, err := LoadPlanCatalog(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing plans file")
	}
}

func TestPlanCatalog_ById(t *testing.T) {
	c, err := NewPlanCatalog(testPlans())
	if err != nil {
		t.Fatalf("NewPlanCatalog failed: %v", err)
	}

	plan, err := c.ById("gold")
	if err != nil {
		t.Fatalf("ById(gold) failed: %v", err)
	}
	if plan.Order != 2 {
		t.Errorf("expected order 2, got %d", plan.Order)
	}

	if _, err := c.ById("missing"); !errors.Is(err, ErrPlanNotFound) {
		t.Errorf("expected ErrPlanNotFound, got %v", err)
	}
}

func TestPlanCatalog_Predecessor(t *testing.T) {
	c, err := NewPlanCatalog(testPlans())
	if err != nil {
		t.Fatalf("NewPlanCatalog failed: %v", err)
	}

	gold, _ := c.ById("gold")
	pred, ok := c.Predecessor(gold)
	if !ok || pred.Id != "starter" {
		t.Errorf("expected predecessor starter, got %v (ok=%v)", pred.Id, ok)
	}

	starter, _ := c.ById("starter")
	if _, ok := c.Predecessor(starter); ok {
		t.Error("entry plan should have no predecessor")
	}
}

func TestNewPlanCatalog_RejectsDuplicates(t *testing.T) {
	plans := testPlans()
	plans[1].Order = 2 // collides with gold
	if _, err := NewPlanCatalog(plans); err == nil {
		t.Error("expected error for duplicate order")
	}

	plans = testPlans()
	plans[1].Id = "gold"
	if _, err := NewPlanCatalog(plans); err == nil {
		t.Error("expected error for duplicate id")
	}
}

func TestPlanDefinition_Profit(t *testing.T) {
	plan := testPlans()[1] // starter, 210%
	profit := plan.Profit(decimal.NewFromInt(25))
	want := decimal.NewFromFloat(27.5)
	if !profit.Equal(want) {
		t.Errorf("expected profit %s, got %s", want, profit)
	}
}

func TestTokenRegistry_BaseUnits(t *testing.T) {
	r, err := NewTokenRegistry([]TokenInfo{
		{Symbol: "USDT", ContractAddress: "0x55d398326f99059ff775485246999027b3197955", Decimals: 18},
		{Symbol: "USDC", ContractAddress: "0x8ac76a51cc950d9822d68b83fe1ad97b32cd580d", Decimals: 6},
	})
	if err != nil {
		t.Fatalf("NewTokenRegistry failed: %v", err)
	}

	tests := []struct {
		currency string
		amount   string
		want     string
	}{
		{"USDT", "25", "25000000000000000000"},
		{"USDC", "25", "25000000"},
		{"usdc", "1.5", "1500000"}, // symbol lookup is case-insensitive
		{"USDC", "0.0000001", "0"}, // below one base unit truncates
	}
	for _, tt := range tests {
		amount, _ := decimal.NewFromString(tt.amount)
		got, err := r.BaseUnits(tt.currency, amount)
		if err != nil {
			t.Fatalf("BaseUnits(%s, %s) failed: %v", tt.currency, tt.amount, err)
		}
		if got.String() != tt.want {
			t.Errorf("BaseUnits(%s, %s) = %s, want %s", tt.currency, tt.amount, got, tt.want)
		}
	}

	if _, err := r.BaseUnits("DOGE", decimal.NewFromInt(1)); !errors.Is(err, ErrTokenNotFound) {
		t.Errorf("expected ErrTokenNotFound, got %v", err)
	}
}

func TestTokenRegistry_RoundTrip(t *testing.T) {
	r, err := NewTokenRegistry([]TokenInfo{
		{Symbol: "USDT", ContractAddress: "0x55d3", Decimals: 18},
	})
	if err != nil {
		t.Fatalf("NewTokenRegistry failed: %v", err)
	}

	amount := decimal.RequireFromString("12.34")
	base, err := r.BaseUnits("USDT", amount)
	if err != nil {
		t.Fatalf("BaseUnits failed: %v", err)
	}
	back, err := r.FromBaseUnits("USDT", base)
	if err != nil {
		t.Fatalf("FromBaseUnits failed: %v", err)
	}
	if !back.Equal(amount) {
		t.Errorf("round trip changed amount: %s -> %s", amount, back)
	}
}
