package handlers

import (
	"github.com/rs/zerolog"

	"BasktSync/internal/chain"
	"BasktSync/internal/event"
	"BasktSync/internal/observability"
	"BasktSync/internal/router"
)

// Deps gathers everything the handler set needs. Intents is nil in direct
// mode; handlers then submit transactions themselves.
type Deps struct {
	Chain     chain.Client
	Retry     chain.RetryPolicy
	Orders    OrderStore
	Positions PositionStore
	Baskts    BasktStore
	Pool      LiquidityStore
	Fees      FeeStore
	Protocol  ProtocolStore
	Nav       NavSource
	Intents   IntentPublisher
	Log       zerolog.Logger
	Metrics   *observability.Metrics
}

// RegisterAll wires every baskt program event to its handler.
func RegisterAll(r *router.Router, d Deps) {
	orders := NewOrderHandlers(d.Chain, d.Retry, d.Orders, d.Positions, d.Nav, d.Intents, d.Log, d.Metrics)
	positions := NewPositionHandlers(d.Chain, d.Retry, d.Orders, d.Positions, d.Pool, d.Fees, d.Log, d.Metrics)
	baskts := NewBasktHandlers(d.Chain, d.Retry, d.Baskts, d.Nav, d.Intents, d.Log, d.Metrics)
	liquidity := NewLiquidityHandlers(d.Chain, d.Retry, d.Pool, d.Fees, d.Log, d.Metrics)
	protocol := NewProtocolHandlers(d.Chain, d.Retry, d.Protocol, d.Log, d.Metrics)

	r.Register(event.SourceBaskt, event.OrderCreated, "orders.created", orders.HandleCreated)
	r.Register(event.SourceBaskt, event.OrderCancelled, "orders.cancelled", orders.HandleCancelled)

	r.Register(event.SourceBaskt, event.PositionOpened, "positions.opened", positions.HandleOpened)
	r.Register(event.SourceBaskt, event.PositionClosed, "positions.closed", positions.HandleClosed)
	r.Register(event.SourceBaskt, event.PositionLiquidated, "positions.liquidated", positions.HandleLiquidated)
	r.Register(event.SourceBaskt, event.CollateralAdded, "positions.collateral", positions.HandleCollateralAdded)

	r.Register(event.SourceBaskt, event.BasktCreated, "baskts.created", baskts.HandleCreated)
	r.Register(event.SourceBaskt, event.BasktActivated, "baskts.activated", baskts.HandleActivated)
	r.Register(event.SourceBaskt, event.BasktConfigUpdated, "baskts.config", baskts.HandleConfigUpdated)
	r.Register(event.SourceBaskt, event.BasktRebalanced, "baskts.rebalanced", baskts.HandleRebalanced)
	r.Register(event.SourceBaskt, event.BasktClosed, "baskts.closed", baskts.HandleClosed)
	r.Register(event.SourceBaskt, event.BasktDecommissioning, "baskts.decommissioning", baskts.HandleDecommissioning)
	r.Register(event.SourceBaskt, event.RebalanceRequest, "baskts.rebalance_request", baskts.HandleRebalanceRequest)

	r.Register(event.SourceBaskt, event.LiquidityAdded, "liquidity.added", liquidity.HandleLiquidityAdded)
	r.Register(event.SourceBaskt, event.WithdrawalQueued, "liquidity.queued", liquidity.HandleWithdrawalQueued)
	r.Register(event.SourceBaskt, event.WithdrawQueueProcessed, "liquidity.processed", liquidity.HandleQueueProcessed)

	r.Register(event.SourceBaskt, event.ProtocolStateUpdated, "protocol.state", protocol.HandleStateUpdated)
}
