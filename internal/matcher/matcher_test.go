package matcher

import (
	"testing"
	"time"

	"deposit-reconciler-go/internal/catalog"
	"deposit-reconciler-go/internal/models"

	"github.com/shopspring/decimal"
)

const (
	systemAddress = "0xSySTEM"
	usdtContract  = "0x55d398326f99059ff775485246999027b3197955"
	payer         = "0xPayer1"
)

var createdAt = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func testMatcher(t *testing.T) *Matcher {
	t.Helper()
	registry, err := catalog.NewTokenRegistry([]catalog.TokenInfo{
		{Symbol: "USDT", ContractAddress: usdtContract, Decimals: 18},
	})
	if err != nil {
		t.Fatalf("NewTokenRegistry failed: %v", err)
	}
	return New(registry, systemAddress, 0.05)
}

func pendingDeposit(amount string) *models.DepositRecord {
	return &models.DepositRecord{
		Id:          "dep-1",
		UserAddress: payer,
		PlanId:      "starter",
		Currency:    "USDT",
		Amount:      decimal.RequireFromString(amount),
		Status:      models.StatusPending,
		CreatedAt:   createdAt,
	}
}

func event(value string, at time.Time) models.TransferEvent {
	return models.TransferEvent{
		From:            payer,
		To:              systemAddress,
		ContractAddress: usdtContract,
		Value:           decimal.RequireFromString(value),
		Timestamp:       at,
		TxHash:          "0xtx-" + value,
	}
}

func TestMatch_WithinTolerance(t *testing.T) {
	m := testMatcher(t)

	// 26 paid against an expected 25 is within 5%.
	ev := event("26000000000000000000", createdAt.Add(3*time.Second))
	got, err := m.Match(pendingDeposit("25"), []models.TransferEvent{ev})
	if err != nil {
		t.Fatalf("Match failed: %v", err)
	}
	if got == nil || got.TxHash != ev.TxHash {
		t.Fatalf("expected match on %s, got %+v", ev.TxHash, got)
	}
}

func TestMatch_ToleranceBoundary(t *testing.T) {
	m := testMatcher(t)
	pending := pendingDeposit("25")

	// expected 25e18, 5% band: [23.75e18, 26.25e18], inclusive.
	tests := []struct {
		name  string
		value string
		match bool
	}{
		{"exact lower bound", "23750000000000000000", true},
		{"one base unit below", "23749999999999999999", false},
		{"exact upper bound", "26250000000000000000", true},
		{"one base unit above", "26250000000000000001", false},
		{"exact amount", "25000000000000000000", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := m.Match(pending, []models.TransferEvent{event(tt.value, createdAt.Add(time.Minute))})
			if err != nil {
				t.Fatalf("Match failed: %v", err)
			}
			if (got != nil) != tt.match {
				t.Errorf("value %s: matched=%v, want %v", tt.value, got != nil, tt.match)
			}
		})
	}
}

func TestMatchPayment_NonIntegralBoundary(t *testing.T) {
	// A low-decimals token makes the tolerance band land between base
	// units: expected 67, 5% band raw [63.65, 70.35], so the usable
	// whole-unit band is [64, 70].
	registry, err := catalog.NewTokenRegistry([]catalog.TokenInfo{
		{Symbol: "CRED", ContractAddress: "0xCredContract", Decimals: 1},
	})
	if err != nil {
		t.Fatalf("NewTokenRegistry failed: %v", err)
	}
	m := New(registry, systemAddress, 0.05)
	amount := decimal.RequireFromString("6.7")

	tests := []struct {
		name  string
		value string
		match bool
	}{
		{"below rounded-up lower bound", "63", false},
		{"rounded-up lower bound", "64", true},
		{"rounded-down upper bound", "70", true},
		{"above rounded-down upper bound", "71", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := event(tt.value, createdAt.Add(time.Minute))
			ev.ContractAddress = "0xCredContract"
			got, err := m.MatchPayment(payer, "CRED", amount, createdAt, []models.TransferEvent{ev})
			if err != nil {
				t.Fatalf("MatchPayment failed: %v", err)
			}
			if (got != nil) != tt.match {
				t.Errorf("value %s: matched=%v, want %v", tt.value, got != nil, tt.match)
			}
		})
	}
}

func TestMatch_TemporalFilter(t *testing.T) {
	m := testMatcher(t)

	// Amount-correct but before the record was created: never matches.
	stale := event("25000000000000000000", createdAt.Add(-time.Second))
	got, err := m.Match(pendingDeposit("25"), []models.TransferEvent{stale})
	if err != nil {
		t.Fatalf("Match failed: %v", err)
	}
	if got != nil {
		t.Errorf("stale event must not match, got %+v", got)
	}

	// At exactly createdAt it does.
	atCreation := event("25000000000000000000", createdAt)
	got, err = m.Match(pendingDeposit("25"), []models.TransferEvent{atCreation})
	if err != nil {
		t.Fatalf("Match failed: %v", err)
	}
	if got == nil {
		t.Error("event at createdAt should match")
	}
}

func TestMatch_IdentityFilters(t *testing.T) {
	m := testMatcher(t)
	pending := pendingDeposit("25")
	base := event("25000000000000000000", createdAt.Add(time.Minute))

	wrongPayer := base
	wrongPayer.From = "0xSomeoneElse"

	wrongRecipient := base
	wrongRecipient.To = "0xNotUs"

	wrongContract := base
	wrongContract.ContractAddress = "0xDifferentToken"

	for name, ev := range map[string]models.TransferEvent{
		"wrong payer":     wrongPayer,
		"wrong recipient": wrongRecipient,
		"wrong contract":  wrongContract,
	} {
		got, err := m.Match(pending, []models.TransferEvent{ev})
		if err != nil {
			t.Fatalf("Match failed: %v", err)
		}
		if got != nil {
			t.Errorf("%s must not match", name)
		}
	}

	// Address comparison is case-insensitive.
	mixedCase := base
	mixedCase.From = "0xpAYER1"
	mixedCase.To = "0xsystem"
	got, err := m.Match(pending, []models.TransferEvent{mixedCase})
	if err != nil {
		t.Fatalf("Match failed: %v", err)
	}
	if got == nil {
		t.Error("case-insensitive address compare should match")
	}
}

func TestMatch_EarliestWins(t *testing.T) {
	m := testMatcher(t)

	later := event("25000000000000000000", createdAt.Add(10*time.Minute))
	earlier := event("25100000000000000000", createdAt.Add(2*time.Minute))
	got, err := m.Match(pendingDeposit("25"), []models.TransferEvent{later, earlier})
	if err != nil {
		t.Fatalf("Match failed: %v", err)
	}
	if got == nil || got.TxHash != earlier.TxHash {
		t.Errorf("expected earliest qualifying event, got %+v", got)
	}
}

func TestMatchPayment_AccessAmounts(t *testing.T) {
	m := testMatcher(t)

	// 10 days at 1 USDT/day.
	amount := decimal.NewFromInt(10)
	ev := event("10000000000000000000", createdAt.Add(time.Minute))
	got, err := m.MatchPayment(payer, "USDT", amount, createdAt, []models.TransferEvent{ev})
	if err != nil {
		t.Fatalf("MatchPayment failed: %v", err)
	}
	if got == nil {
		t.Error("expected access payment to match")
	}
}

func TestMatch_UnknownCurrency(t *testing.T) {
	m := testMatcher(t)
	pending := pendingDeposit("25")
	pending.Currency = "DOGE"

	if _, err := m.Match(pending, nil); err == nil {
		t.Error("expected error for unconfigured currency")
	}
}
