package chain

import (
	"context"
	"errors"
	"time"

	"deposit-reconciler-go/internal/models"
)

// ErrUpstreamUnavailable marks transient collaborator failures
// (network errors, HTTP 5xx, rate limits). Watch loops absorb it
// against their attempt budget; it never reaches an end user.
var ErrUpstreamUnavailable = errors.New("ledger query upstream unavailable")

// EventSource is the required contract of the ledger-query
// collaborator: list token-transfer events on a contract involving a
// counterparty address, at or after the given instant.
type EventSource interface {
	TransferEvents(ctx context.Context, contractAddress, counterparty string, since time.Time) ([]models.TransferEvent, error)
}
