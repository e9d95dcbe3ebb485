package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// DepositStatus is the closed set of lifecycle states for a deposit.
// Legal transitions: PENDING -> ACTIVE -> COMPLETED, or PENDING -> CANCELLED.
type DepositStatus string

const (
	StatusPending   DepositStatus = "PENDING"
	StatusActive    DepositStatus = "ACTIVE"
	StatusCompleted DepositStatus = "COMPLETED"
	StatusCancelled DepositStatus = "CANCELLED"
)

// Valid reports whether s is one of the known statuses.
func (s DepositStatus) Valid() bool {
	switch s {
	case StatusPending, StatusActive, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether no further transition is possible from s.
func (s DepositStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// CanTransitionTo reports whether moving from s to next is legal.
func (s DepositStatus) CanTransitionTo(next DepositStatus) bool {
	switch s {
	case StatusPending:
		return next == StatusActive || next == StatusCancelled
	case StatusActive:
		return next == StatusCompleted
	}
	return false
}

// PlanDefinition describes one investment plan from the catalog.
// Plans are ranked by Order; a plan may only be opened once the plan
// ranked directly below it has an ACTIVE or COMPLETED deposit.
type PlanDefinition struct {
	Id               string
	Order            int
	Amounts          map[string]decimal.Decimal // currency symbol -> plan price
	DurationDays     int
	PayoutPercentage decimal.Decimal // 210 means a 2.1x total return
}

// AmountFor returns the plan price in the given currency.
func (p PlanDefinition) AmountFor(currency string) (decimal.Decimal, bool) {
	amount, ok := p.Amounts[currency]
	return amount, ok
}

// Profit returns the payout minus the principal for a deposit of the
// given amount.
func (p PlanDefinition) Profit(amount decimal.Decimal) decimal.Decimal {
	payout := amount.Mul(p.PayoutPercentage).Div(decimal.NewFromInt(100))
	return payout.Sub(amount)
}

// DepositRecord is one user deposit into a plan. Records are never
// deleted, only transitioned - the table is the audit trail.
type DepositRecord struct {
	Id            string          `db:"id"`
	UserAddress   string          `db:"user_address"`
	PlanId        string          `db:"plan_id"`
	Currency      string          `db:"currency"`
	Amount        decimal.Decimal `db:"amount"`
	Status        DepositStatus   `db:"status"`
	CreatedAt     time.Time       `db:"created_at"`
	ActivatedAt   *time.Time      `db:"activated_at"`
	CompletedAt   *time.Time      `db:"completed_at"`
	CancelledAt   *time.Time      `db:"cancelled_at"`
	MatchedTxHash string          `db:"matched_tx_hash"`
}

// AccessRecord tracks the daily platform-access subscription for one
// user. Unlike deposits there is a single mutable row per user; each
// qualifying payment extends ExpiresAt rather than creating a record.
type AccessRecord struct {
	UserAddress   string     `db:"user_address"`
	LastPaymentAt *time.Time `db:"last_payment_at"`
	ExpiresAt     *time.Time `db:"expires_at"`
	PendingDays   int        `db:"pending_days"`
	PendingSince  *time.Time `db:"pending_since"`
	UpdatedAt     time.Time  `db:"updated_at"`
}

// IsActive reports whether the subscription covers the given instant.
func (a AccessRecord) IsActive(now time.Time) bool {
	return a.ExpiresAt != nil && a.ExpiresAt.After(now)
}

// RemainingDays returns whole days of access left, rounded down.
func (a AccessRecord) RemainingDays(now time.Time) int {
	if !a.IsActive(now) {
		return 0
	}
	return int(a.ExpiresAt.Sub(now).Hours() / 24)
}

// HasPendingIntent reports whether a payment intent is being watched.
func (a AccessRecord) HasPendingIntent() bool {
	return a.PendingSince != nil
}

// AccessIntent is an in-flight subscription payment being watched.
type AccessIntent struct {
	UserAddress string
	Days        int
	Since       time.Time
}

// TransferEvent is a token transfer observed on the public ledger.
// Supplied by the chain-query collaborator; never mutated here.
type TransferEvent struct {
	From            string
	To              string
	ContractAddress string
	Value           decimal.Decimal // integer, smallest token unit
	Timestamp       time.Time
	TxHash          string
	BlockNumber     int64
}
