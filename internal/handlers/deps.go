// Package handlers contains the domain handlers the router dispatches to:
// one per ledger event, each an idempotent read-modify-write against the
// off-chain store, some issuing follow-up transactions back to the ledger.
package handlers

import (
	"context"

	"BasktSync/internal/event"
	"BasktSync/internal/store"
)

// Store interfaces are declared here, on the consumer side; the concrete
// implementations live in internal/store. Tests substitute in-memory fakes.

type OrderStore interface {
	Upsert(ctx context.Context, o store.Order) error
	Get(ctx context.Context, orderPDA string) (*store.Order, error)
	MarkFilled(ctx context.Context, orderPDA, positionPDA, txRef string) (bool, error)
	SetStatus(ctx context.Context, orderPDA string, status store.OrderStatus) error
}

type PositionStore interface {
	Create(ctx context.Context, p store.Position) (bool, error)
	Get(ctx context.Context, positionPDA string) (*store.Position, error)
	ApplyClose(ctx context.Context, positionPDA string, e store.PartialCloseEntry) (applied, fullyClosed bool, err error)
	MarkLiquidated(ctx context.Context, positionPDA string, exitPrice int64, s event.SettlementDetails) (bool, error)
	AddCollateral(ctx context.Context, positionPDA string, newCollateral int64) error
}

type BasktStore interface {
	Upsert(ctx context.Context, b store.BasktMetadata) error
	Get(ctx context.Context, basktID string) (*store.BasktMetadata, error)
	SetStatus(ctx context.Context, basktID string, status store.BasktStatus) error
	ResyncConfig(ctx context.Context, basktID string, configs []event.AssetWeight, baselineNav, feeIndex int64, bumpRebalance bool) error
	AppendRebalance(ctx context.Context, e store.RebalanceHistoryEntry) (bool, error)
}

type LiquidityStore interface {
	UpsertPool(ctx context.Context, p store.LiquidityPool) error
	CreateRequest(ctx context.Context, r store.WithdrawRequest) (bool, error)
	GetRequest(ctx context.Context, requestID uint64) (*store.WithdrawRequest, error)
	HasEarlierQueued(ctx context.Context, requestID uint64) (bool, error)
	ApplyProcessed(ctx context.Context, requestID uint64, lpBurnedTotal, amountPaidTotal int64) (store.WithdrawStatus, error)
}

type FeeStore interface {
	Insert(ctx context.Context, f store.FeeEvent) error
}

type ProtocolStore interface {
	Upsert(ctx context.Context, p store.ProtocolConfig) error
}

// NavSource prices new positions and activation baselines.
type NavSource interface {
	GetNav(ctx context.Context, basktID string) (int64, error)
	GetAssetPrice(ctx context.Context, ticker string) (int64, error)
}

// IntentPublisher is set in pipeline mode; handlers then publish intents
// instead of submitting transactions themselves.
type IntentPublisher interface {
	Publish(ctx context.Context, intent, deliveryID string, payload any) error
}
