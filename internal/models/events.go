package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Domain event topics consumed by the notification/UI layer.
const (
	TopicDepositActivated = "deposit:activated"
	TopicDepositTimeout   = "deposit:timeout"
	TopicDepositCompleted = "deposit:completed"
	TopicAccessExtended   = "access:extended"
)

// DepositActivated is published when a qualifying payment was matched
// and the deposit moved PENDING -> ACTIVE.
type DepositActivated struct {
	Id     string
	TxHash string
}

// DepositTimeout is published when the watch budget was exhausted and
// the deposit moved PENDING -> CANCELLED.
type DepositTimeout struct {
	Id string
}

// DepositCompleted is published when a deposit term elapsed and the
// deposit moved ACTIVE -> COMPLETED.
type DepositCompleted struct {
	Id     string
	Profit decimal.Decimal
}

// AccessExtended is published when a subscription payment was matched.
type AccessExtended struct {
	UserAddress string
	ExpiresAt   time.Time
}
