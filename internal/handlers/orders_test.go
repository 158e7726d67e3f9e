package handlers_test

import (
	"testing"
	"time"

	"github.com/rs/zerolog"

	"BasktSync/internal/chain"
	"BasktSync/internal/event"
	"BasktSync/internal/handlers"
	"BasktSync/internal/store"
)

func testRetry() chain.RetryPolicy {
	return chain.RetryPolicy{MaxAttempts: 2, Delay: time.Millisecond}
}

func openOrderEvent(orderPDA, deliveryID string) event.DomainEvent {
	return event.DomainEvent{
		Source:     event.SourceBaskt,
		Name:       event.OrderCreated,
		DeliveryID: deliveryID,
		Payload: &event.OrderCreatedPayload{
			OrderPDA: orderPDA,
			OrderID:  1,
			BasktID:  "bskDEFI",
			Owner:    "user1",
			Action:   event.ActionOpen,
			OpenParams: &event.OpenParams{
				Size:       1_000_000,
				Collateral: 500_000,
				IsLong:     true,
				Leverage:   2,
			},
			Timestamp: time.Now().Unix(),
		},
	}
}

func TestHandleOrderCreated_OpensPosition(t *testing.T) {
	ch := newFakeChain()
	orders := newFakeOrders()
	positions := newFakePositions()
	nav := newFakeNav()
	nav.navs["bskDEFI"] = 1_100_000

	h := handlers.NewOrderHandlers(ch, testRetry(), orders, positions, nav, nil, zerolog.Nop(), nil)

	evt := openOrderEvent("ord1", "sig-1")
	if err := h.HandleCreated(t.Context(), evt); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if ch.openCalls != 1 {
		t.Errorf("openCalls = %d, want 1", ch.openCalls)
	}

	o, err := orders.Get(t.Context(), "ord1")
	if err != nil {
		t.Fatalf("order not stored: %v", err)
	}
	if o.Status != store.OrderFilled {
		t.Errorf("order status = %q, want %q", o.Status, store.OrderFilled)
	}

	posID := handlers.DerivePositionID("ord1")
	p, err := positions.Get(t.Context(), posID)
	if err != nil {
		t.Fatalf("position not created: %v", err)
	}
	if p.EntryPrice != 1_100_000 {
		t.Errorf("entry price = %d, want the oracle NAV 1100000", p.EntryPrice)
	}
	if p.RemainingSize != 1_000_000 {
		t.Errorf("remaining size = %d, want 1000000", p.RemainingSize)
	}
}

func TestHandleOrderCreated_ReplayOpensOnce(t *testing.T) {
	ch := newFakeChain()
	orders := newFakeOrders()
	positions := newFakePositions()
	nav := newFakeNav()
	nav.navs["bskDEFI"] = 1_000_000

	h := handlers.NewOrderHandlers(ch, testRetry(), orders, positions, nav, nil, zerolog.Nop(), nil)

	evt := openOrderEvent("ord1", "sig-1")
	if err := h.HandleCreated(t.Context(), evt); err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	if err := h.HandleCreated(t.Context(), evt); err != nil {
		t.Fatalf("replayed delivery: %v", err)
	}

	if ch.openCalls != 1 {
		t.Errorf("openCalls = %d, want 1 (replay must not submit again)", ch.openCalls)
	}
	if n := len(positions.positions); n != 1 {
		t.Errorf("positions = %d, want exactly 1", n)
	}
}

func TestHandleOrderCreated_DeterministicPositionID(t *testing.T) {
	a := handlers.DerivePositionID("ord1")
	b := handlers.DerivePositionID("ord1")
	c := handlers.DerivePositionID("ord2")
	if a != b {
		t.Errorf("same order derived different ids: %s vs %s", a, b)
	}
	if a == c {
		t.Error("different orders derived the same id")
	}
}

func TestHandleOrderCreated_NavUnavailableFails(t *testing.T) {
	ch := newFakeChain()
	orders := newFakeOrders()
	h := handlers.NewOrderHandlers(ch, testRetry(), orders, newFakePositions(), newFakeNav(), nil, zerolog.Nop(), nil)

	if err := h.HandleCreated(t.Context(), openOrderEvent("ord1", "sig-1")); err == nil {
		t.Fatal("expected error when no NAV quote is available")
	}
	if ch.openCalls != 0 {
		t.Errorf("openCalls = %d, want 0", ch.openCalls)
	}

	// The projection row exists and stays PENDING for replay.
	o, err := orders.Get(t.Context(), "ord1")
	if err != nil {
		t.Fatalf("order not stored: %v", err)
	}
	if o.Status != store.OrderPending {
		t.Errorf("order status = %q, want %q", o.Status, store.OrderPending)
	}
}

func TestHandleOrderCreated_SubmitFailureFailsDelivery(t *testing.T) {
	ch := newFakeChain()
	ch.openErr = chain.ErrNotFound
	nav := newFakeNav()
	nav.navs["bskDEFI"] = 1_000_000

	h := handlers.NewOrderHandlers(ch, testRetry(), newFakeOrders(), newFakePositions(), nav, nil, zerolog.Nop(), nil)

	if err := h.HandleCreated(t.Context(), openOrderEvent("ord1", "sig-1")); err == nil {
		t.Fatal("expected error when submission is rejected")
	}
}

func TestHandleOrderCreated_PipelineModePublishesIntent(t *testing.T) {
	ch := newFakeChain()
	intents := &fakeIntents{}
	h := handlers.NewOrderHandlers(ch, testRetry(), newFakeOrders(), newFakePositions(), newFakeNav(), intents, zerolog.Nop(), nil)

	if err := h.HandleCreated(t.Context(), openOrderEvent("ord1", "sig-1")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ch.openCalls != 0 {
		t.Errorf("openCalls = %d, want 0 in pipeline mode", ch.openCalls)
	}
	if len(intents.published) != 1 {
		t.Fatalf("published %d intents, want 1", len(intents.published))
	}
	if got := intents.published[0].deliveryID; got != "sig-1" {
		t.Errorf("intent delivery id = %q, want sig-1", got)
	}
}

func TestHandleOrderCreated_CloseOrder(t *testing.T) {
	ch := newFakeChain()
	orders := newFakeOrders()
	h := handlers.NewOrderHandlers(ch, testRetry(), orders, newFakePositions(), newFakeNav(), nil, zerolog.Nop(), nil)

	evt := event.DomainEvent{
		Source:     event.SourceBaskt,
		Name:       event.OrderCreated,
		DeliveryID: "sig-close",
		Payload: &event.OrderCreatedPayload{
			OrderPDA: "ord2",
			Action:   event.ActionClose,
			CloseParams: &event.CloseParams{
				PositionPDA: "pos1",
				SizeToClose: 400_000,
			},
		},
	}
	if err := h.HandleCreated(t.Context(), evt); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ch.closeCalls != 1 {
		t.Errorf("closeCalls = %d, want 1", ch.closeCalls)
	}

	o, _ := orders.Get(t.Context(), "ord2")
	if o.Status != store.OrderFilled {
		t.Errorf("order status = %q, want %q", o.Status, store.OrderFilled)
	}
}

func TestHandleOrderCancelled(t *testing.T) {
	orders := newFakeOrders()
	orders.Upsert(t.Context(), store.Order{OrderPDA: "ord1", Status: store.OrderPending})

	h := handlers.NewOrderHandlers(newFakeChain(), testRetry(), orders, newFakePositions(), newFakeNav(), nil, zerolog.Nop(), nil)

	evt := event.DomainEvent{
		Source:     event.SourceBaskt,
		Name:       event.OrderCancelled,
		DeliveryID: "sig-cancel",
		Payload:    &event.OrderCancelledPayload{OrderPDA: "ord1"},
	}
	if err := h.HandleCancelled(t.Context(), evt); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	o, _ := orders.Get(t.Context(), "ord1")
	if o.Status != store.OrderCancelled {
		t.Errorf("order status = %q, want %q", o.Status, store.OrderCancelled)
	}
}
