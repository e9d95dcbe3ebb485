package matcher

import (
	"fmt"
	"strings"
	"time"

	"deposit-reconciler-go/internal/catalog"
	"deposit-reconciler-go/internal/models"

	"github.com/shopspring/decimal"
)

// Matcher decides whether a batch of observed transfer events contains
// a qualifying payment for a pending record. It is pure: data in,
// decision out, no I/O - network concerns live with the caller.
type Matcher struct {
	registry      *catalog.TokenRegistry
	systemAddress string
	tolerance     decimal.Decimal // allowed deviation as a fraction, e.g. 0.05
}

// New builds a matcher for the given receiving address. tolerancePct
// absorbs rounding noise from decimal-to-base-unit conversion on the
// payer's side; the default used by callers is 0.05.
func New(registry *catalog.TokenRegistry, systemAddress string, tolerancePct float64) *Matcher {
	return &Matcher{
		registry:      registry,
		systemAddress: systemAddress,
		tolerance:     decimal.NewFromFloat(tolerancePct),
	}
}

// Match returns the qualifying payment for a pending deposit, or nil
// when none exists in the batch.
func (m *Matcher) Match(pending *models.DepositRecord, events []models.TransferEvent) (*models.TransferEvent, error) {
	return m.MatchPayment(pending.UserAddress, pending.Currency, pending.Amount, pending.CreatedAt, events)
}

// MatchPayment is the generalized form shared by deposit and access
// watches. A qualifying event is from payer to the system address, on
// the currency's token contract, not older than since, with a value
// within the inclusive tolerance band around the expected amount.
// When several events qualify, the earliest by timestamp wins, so an
// ambiguous batch resolves deterministically instead of failing.
func (m *Matcher) MatchPayment(payer, currency string, amount decimal.Decimal, since time.Time, events []models.TransferEvent) (*models.TransferEvent, error) {
	contract, err := m.registry.ContractFor(currency)
	if err != nil {
		return nil, err
	}
	expected, err := m.registry.BaseUnits(currency, amount)
	if err != nil {
		return nil, err
	}
	if !expected.IsPositive() {
		return nil, fmt.Errorf("expected payment for %s %s is not positive in base units", amount, currency)
	}

	one := decimal.NewFromInt(1)
	// Bounds are inclusive in whole base units: the low bound rounds up
	// and the high bound rounds down, so a non-integral boundary never
	// admits a value outside the band.
	low := expected.Mul(one.Sub(m.tolerance)).Ceil()
	high := expected.Mul(one.Add(m.tolerance)).Truncate(0)

	var best *models.TransferEvent
	for i := range events {
		ev := &events[i]
		if !strings.EqualFold(ev.From, payer) {
			continue
		}
		if !strings.EqualFold(ev.To, m.systemAddress) {
			continue
		}
		if !strings.EqualFold(ev.ContractAddress, contract) {
			continue
		}
		// Events predating the record never match, even with a correct
		// amount - a stale transfer cannot pay for a new record.
		if ev.Timestamp.Before(since) {
			continue
		}
		if ev.Value.LessThan(low) || ev.Value.GreaterThan(high) {
			continue
		}
		if best == nil || ev.Timestamp.Before(best.Timestamp) {
			best = ev
		}
	}
	return best, nil
}
