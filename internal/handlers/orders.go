package handlers

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"BasktSync/internal/chain"
	"BasktSync/internal/event"
	"BasktSync/internal/ingestion"
	"BasktSync/internal/observability"
	"BasktSync/internal/store"
)

// positionNamespace seeds deterministic position id derivation. Deriving the
// id from the order PDA means a replayed order-open event computes the same
// id and converges on the existing row instead of opening a second position.
var positionNamespace = uuid.MustParse("f3b1a9d4-7c52-4e8b-9b6e-2d94c1a07f38")

// DerivePositionID returns the deterministic position id for an order.
func DerivePositionID(orderPDA string) string {
	return uuid.NewSHA1(positionNamespace, []byte(orderPDA)).String()
}

// OrderHandlers reacts to order lifecycle events. An observed Open order is
// filled by submitting the program's openPosition instruction (or, in
// pipeline mode, by publishing an intent for the execution pipeline).
type OrderHandlers struct {
	chain     chain.Client
	retry     chain.RetryPolicy
	orders    OrderStore
	positions PositionStore
	nav       NavSource
	intents   IntentPublisher
	log       zerolog.Logger
	metrics   *observability.Metrics
}

func NewOrderHandlers(
	c chain.Client,
	retry chain.RetryPolicy,
	orders OrderStore,
	positions PositionStore,
	nav NavSource,
	intents IntentPublisher,
	log zerolog.Logger,
	metrics *observability.Metrics,
) *OrderHandlers {
	return &OrderHandlers{
		chain:     c,
		retry:     retry,
		orders:    orders,
		positions: positions,
		nav:       nav,
		intents:   intents,
		log:       log.With().Str("handler", "orders").Logger(),
		metrics:   metrics,
	}
}

// HandleCreated projects the order and acts on it.
func (h *OrderHandlers) HandleCreated(ctx context.Context, evt event.DomainEvent) error {
	p, ok := evt.Payload.(*event.OrderCreatedPayload)
	if !ok {
		return fmt.Errorf("unexpected payload %T", evt.Payload)
	}

	o := store.Order{
		OrderPDA:    p.OrderPDA,
		OrderID:     p.OrderID,
		BasktID:     p.BasktID,
		Owner:       p.Owner,
		Action:      p.Action,
		Status:      store.OrderPending,
		OpenParams:  p.OpenParams,
		CloseParams: p.CloseParams,
		CreatedAt:   time.Unix(p.Timestamp, 0).UTC(),
	}
	if err := h.orders.Upsert(ctx, o); err != nil {
		return err
	}

	// Replay fast path: an order already past PENDING was acted on by an
	// earlier delivery.
	if existing, err := h.orders.Get(ctx, p.OrderPDA); err == nil &&
		existing.Status != store.OrderPending {
		return nil
	}

	if p.Action == event.ActionOpen {
		return h.fillOpen(ctx, evt, p)
	}
	return h.fillClose(ctx, evt, p)
}

func (h *OrderHandlers) fillOpen(ctx context.Context, evt event.DomainEvent, p *event.OrderCreatedPayload) error {
	if h.intents != nil {
		// Pipeline mode: publish intent, the execution pipeline opens the
		// position and the resulting positionOpened event fills the order.
		return h.intents.Publish(ctx, ingestion.IntentOrderCreated, evt.DeliveryID, p)
	}

	positionID := DerivePositionID(p.OrderPDA)

	entryPrice, err := h.nav.GetNav(ctx, p.BasktID)
	if err != nil {
		return fmt.Errorf("price open order %s: %w", p.OrderPDA, err)
	}

	txSig, err := h.chain.OpenPosition(ctx, chain.OpenPositionParams{
		PositionID: positionID,
		OrderPDA:   p.OrderPDA,
		Owner:      p.Owner,
		BasktID:    p.BasktID,
		Size:       p.OpenParams.Size,
		Collateral: p.OpenParams.Collateral,
		EntryPrice: entryPrice,
		IsLong:     p.OpenParams.IsLong,
	})
	if err != nil {
		// The off-chain state must reflect a confirmed on-chain open, so a
		// rejected submission fails the delivery.
		if h.metrics != nil {
			h.metrics.TxFailed.WithLabelValues("openPosition").Inc()
		}
		return fmt.Errorf("open position for order %s: %w", p.OrderPDA, err)
	}
	if h.metrics != nil {
		h.metrics.TxSubmitted.WithLabelValues("openPosition").Inc()
	}

	if _, err := h.orders.MarkFilled(ctx, p.OrderPDA, positionID, txSig); err != nil {
		return err
	}

	created, err := h.positions.Create(ctx, store.Position{
		PositionPDA: positionID,
		Owner:       p.Owner,
		BasktID:     p.BasktID,
		Size:        p.OpenParams.Size,
		Collateral:  p.OpenParams.Collateral,
		EntryPrice:  entryPrice,
		IsLong:      p.OpenParams.IsLong,
		OpenedAt:    time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	if created {
		h.log.Info().
			Str("order_pda", p.OrderPDA).
			Str("position", positionID).
			Int64("size", p.OpenParams.Size).
			Msg("position opened for order")
	}
	return nil
}

func (h *OrderHandlers) fillClose(ctx context.Context, evt event.DomainEvent, p *event.OrderCreatedPayload) error {
	if h.intents != nil {
		return h.intents.Publish(ctx, ingestion.IntentOrderCreated, evt.DeliveryID, p)
	}

	txSig, err := h.chain.ClosePosition(ctx, chain.ClosePositionParams{
		PositionPDA: p.CloseParams.PositionPDA,
		OrderPDA:    p.OrderPDA,
		SizeToClose: p.CloseParams.SizeToClose,
	})
	if err != nil {
		if h.metrics != nil {
			h.metrics.TxFailed.WithLabelValues("closePosition").Inc()
		}
		return fmt.Errorf("close position for order %s: %w", p.OrderPDA, err)
	}
	if h.metrics != nil {
		h.metrics.TxSubmitted.WithLabelValues("closePosition").Inc()
	}

	_, err = h.orders.MarkFilled(ctx, p.OrderPDA, p.CloseParams.PositionPDA, txSig)
	return err
}

// HandleCancelled transitions the order projection to CANCELLED.
func (h *OrderHandlers) HandleCancelled(ctx context.Context, evt event.DomainEvent) error {
	p, ok := evt.Payload.(*event.OrderCancelledPayload)
	if !ok {
		return fmt.Errorf("unexpected payload %T", evt.Payload)
	}
	return h.orders.SetStatus(ctx, p.OrderPDA, store.OrderCancelled)
}
