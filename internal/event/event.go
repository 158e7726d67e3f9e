package event

import (
	"time"
)

// Source identifies the on-chain program a delivery originated from.
// Only the baskt program is observed today; the (source, name) pair is kept
// in the routing key so a second program can be added without touching
// existing handlers.
const SourceBaskt = "baskt"

// Event names as emitted by the baskt program.
const (
	OrderCreated           = "orderCreated"
	OrderCancelled         = "orderCancelled"
	PositionOpened         = "positionOpened"
	PositionClosed         = "positionClosed"
	PositionLiquidated     = "positionLiquidated"
	CollateralAdded        = "collateralAdded"
	BasktCreated           = "basktCreated"
	BasktActivated         = "basktActivated"
	BasktConfigUpdated     = "basktConfigUpdated"
	BasktRebalanced        = "basktRebalanced"
	BasktClosed            = "basktClosed"
	BasktDecommissioning   = "basktDecommissioningInitiated"
	RebalanceRequest       = "rebalanceRequest"
	LiquidityAdded         = "liquidityAdded"
	WithdrawalQueued       = "withdrawalQueued"
	WithdrawQueueProcessed = "withdrawQueueProcessed"
	ProtocolStateUpdated   = "protocolStateUpdated"
)

// Catalog lists every event name the adapter subscribes to.
func Catalog() []string {
	return []string{
		OrderCreated,
		OrderCancelled,
		PositionOpened,
		PositionClosed,
		PositionLiquidated,
		CollateralAdded,
		BasktCreated,
		BasktActivated,
		BasktConfigUpdated,
		BasktRebalanced,
		BasktClosed,
		BasktDecommissioning,
		RebalanceRequest,
		LiquidityAdded,
		WithdrawalQueued,
		WithdrawQueueProcessed,
		ProtocolStateUpdated,
	}
}

// DomainEvent is a single delivery from the ledger event stream.
// DeliveryID is the transaction signature and serves as the idempotency key:
// the same DeliveryID may arrive more than once and must converge to the
// same end state as a single delivery.
type DomainEvent struct {
	Source     string
	Name       string
	DeliveryID string

	// Payload is the typed payload struct for Name (see payloads.go).
	Payload any

	// Raw is the original JSON payload, persisted to the audit log so a
	// FAILED delivery can be replayed byte-for-byte.
	Raw []byte

	ObservedAt time.Time
}

// Status is the audit-log lifecycle of a delivery.
// RECEIVED -> PROCESSING -> {COMPLETED | FAILED}. Terminal states are never
// overwritten except FAILED -> PROCESSING on manual replay.
type Status string

const (
	StatusReceived   Status = "RECEIVED"
	StatusProcessing Status = "PROCESSING"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
)

// OrderAction distinguishes open-position orders from close-position orders.
type OrderAction string

const (
	ActionOpen  OrderAction = "Open"
	ActionClose OrderAction = "Close"
)
