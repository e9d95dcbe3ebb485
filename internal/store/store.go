package store

import (
	"context"
	"errors"
	"time"

	"deposit-reconciler-go/internal/models"

	"github.com/shopspring/decimal"
)

// Sentinel errors shared across all backend implementations.
var (
	ErrNotFound          = errors.New("record not found")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrSequenceViolation = errors.New("plan sequence violation")
	ErrDuplicateMatch    = errors.New("transaction already matched")
)

// CreateDepositParams contains the parameters for opening a deposit.
type CreateDepositParams struct {
	UserAddress string
	PlanId      string
	Currency    string
	Amount      decimal.Decimal
}

// DepositStore is the contract every deposit-ledger backend must satisfy.
// All mutations are atomic per record: a transition either fully applies
// or is rejected with ErrNotFound/ErrInvalidTransition, never half-done.
type DepositStore interface {
	Create(ctx context.Context, params CreateDepositParams) (*models.DepositRecord, error)
	Find(ctx context.Context, id string) (*models.DepositRecord, error)
	ListByUser(ctx context.Context, userAddress string) ([]models.DepositRecord, error)
	ListByStatus(ctx context.Context, status models.DepositStatus) ([]models.DepositRecord, error)

	// Activate moves PENDING -> ACTIVE, recording the matched tx hash.
	// A hash already consumed by another record yields ErrDuplicateMatch.
	Activate(ctx context.Context, id, txHash string) error
	// Cancel moves PENDING -> CANCELLED.
	Cancel(ctx context.Context, id string) error
	// Complete moves ACTIVE -> COMPLETED. Completing an already
	// COMPLETED record is a no-op, not an error.
	Complete(ctx context.Context, id string) error
}

// AccessStore is the contract for the platform-access subscription ledger.
type AccessStore interface {
	Get(ctx context.Context, userAddress string) (*models.AccessRecord, error)
	IsActive(ctx context.Context, userAddress string, now time.Time) (bool, error)

	// RecordPayment extends the subscription by days from
	// max(now, current expiry) and clears any pending intent.
	RecordPayment(ctx context.Context, userAddress, txHash string, days int, now time.Time) (*models.AccessRecord, error)

	SetPendingIntent(ctx context.Context, userAddress string, days int, since time.Time) error
	ClearPendingIntent(ctx context.Context, userAddress string) error
	ListPendingIntents(ctx context.Context) ([]models.AccessIntent, error)
}
