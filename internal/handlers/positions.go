package handlers

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"BasktSync/internal/chain"
	"BasktSync/internal/event"
	"BasktSync/internal/observability"
	"BasktSync/internal/store"
)

// PositionHandlers maintains the position read model. Per position the
// machine is NONE -> OPEN -> {CLOSED | LIQUIDATED}, with OPEN re-entering
// itself on every partial close until the remaining size hits zero.
type PositionHandlers struct {
	chain     chain.Reader
	retry     chain.RetryPolicy
	orders    OrderStore
	positions PositionStore
	pool      LiquidityStore
	fees      FeeStore
	log       zerolog.Logger
	metrics   *observability.Metrics
}

func NewPositionHandlers(
	c chain.Reader,
	retry chain.RetryPolicy,
	orders OrderStore,
	positions PositionStore,
	pool LiquidityStore,
	fees FeeStore,
	log zerolog.Logger,
	metrics *observability.Metrics,
) *PositionHandlers {
	return &PositionHandlers{
		chain:     c,
		retry:     retry,
		orders:    orders,
		positions: positions,
		pool:      pool,
		fees:      fees,
		log:       log.With().Str("handler", "positions").Logger(),
		metrics:   metrics,
	}
}

// HandleOpened reconciles the projection against the freshly created
// on-chain position. In pipeline mode this is where the position row is
// born; in direct mode the open-order handler already created it and the
// upsert converges on the same row.
func (h *PositionHandlers) HandleOpened(ctx context.Context, evt event.DomainEvent) error {
	p, ok := evt.Payload.(*event.PositionOpenedPayload)
	if !ok {
		return fmt.Errorf("unexpected payload %T", evt.Payload)
	}

	// The account may not be visible yet at this commitment level.
	onchain, err := chain.ReadWithRetry(ctx, h.retry, func(ctx context.Context) (*chain.Position, error) {
		return h.chain.GetPosition(ctx, p.PositionPDA)
	})
	if err != nil {
		return fmt.Errorf("read position %s: %w", p.PositionPDA, err)
	}
	if h.metrics != nil {
		h.metrics.ChainReads.WithLabelValues("position").Inc()
	}

	if _, err := h.positions.Create(ctx, store.Position{
		PositionPDA: onchain.PositionPDA,
		Owner:       onchain.Owner,
		BasktID:     onchain.BasktID,
		Size:        onchain.Size,
		Collateral:  onchain.Collateral,
		EntryPrice:  onchain.EntryPrice,
		IsLong:      onchain.IsLong,
		OpenedAt:    time.Unix(onchain.OpenedAt, 0).UTC(),
	}); err != nil {
		return err
	}

	if p.OrderPDA != "" {
		if _, err := h.orders.MarkFilled(ctx, p.OrderPDA, p.PositionPDA, evt.DeliveryID); err != nil {
			return err
		}
	}
	return nil
}

// HandleClosed applies one full or partial close slice.
func (h *PositionHandlers) HandleClosed(ctx context.Context, evt event.DomainEvent) error {
	p, ok := evt.Payload.(*event.PositionClosedPayload)
	if !ok {
		return fmt.Errorf("unexpected payload %T", evt.Payload)
	}

	settlement := p.Settlement.Normalize()
	if err := settlement.CheckConservation(); err != nil {
		return fmt.Errorf("position %s: %w", p.PositionPDA, err)
	}

	applied, fullyClosed, err := h.positions.ApplyClose(ctx, p.PositionPDA, store.PartialCloseEntry{
		TxRef:       evt.DeliveryID,
		CloseAmount: p.CloseAmount,
		ClosePrice:  p.ClosePrice,
		Settlement:  settlement,
	})
	if err != nil {
		return err
	}

	// The fee insert is keyed by the settling transaction and the pool
	// resync overwrites wholesale, so both run on replays too. A delivery
	// that failed after the close slice committed still converges when the
	// operator replays it.
	if err := h.recordPositionFee(ctx, evt, p.PositionPDA, settlement); err != nil {
		return err
	}
	if err := resyncPool(ctx, h.chain, h.retry, h.pool); err != nil {
		return err
	}

	if applied && fullyClosed {
		h.log.Info().Str("position", p.PositionPDA).Msg("position fully closed")
	}
	return nil
}

// HandleLiquidated terminally closes the whole remainder in one step.
func (h *PositionHandlers) HandleLiquidated(ctx context.Context, evt event.DomainEvent) error {
	p, ok := evt.Payload.(*event.PositionLiquidatedPayload)
	if !ok {
		return fmt.Errorf("unexpected payload %T", evt.Payload)
	}

	settlement := p.Settlement.Normalize()
	if err := settlement.CheckConservation(); err != nil {
		return fmt.Errorf("position %s: %w", p.PositionPDA, err)
	}

	applied, err := h.positions.MarkLiquidated(ctx, p.PositionPDA, p.ExitPrice, settlement)
	if err != nil {
		return err
	}

	if applied && settlement.BadDebtAmount > 0 {
		h.log.Warn().
			Str("position", p.PositionPDA).
			Int64("bad_debt", settlement.BadDebtAmount).
			Msg("bad debt absorbed by pool")
	}

	// Idempotent side effects run unconditionally so a replay after a
	// partial failure still records the fee and refreshes the pool mirror.
	if err := h.recordPositionFee(ctx, evt, p.PositionPDA, settlement); err != nil {
		return err
	}
	return resyncPool(ctx, h.chain, h.retry, h.pool)
}

// HandleCollateralAdded overwrites collateral with the absolute value the
// ledger reports.
func (h *PositionHandlers) HandleCollateralAdded(ctx context.Context, evt event.DomainEvent) error {
	p, ok := evt.Payload.(*event.CollateralAddedPayload)
	if !ok {
		return fmt.Errorf("unexpected payload %T", evt.Payload)
	}
	return h.positions.AddCollateral(ctx, p.PositionPDA, p.NewCollateral)
}

func (h *PositionHandlers) recordPositionFee(ctx context.Context, evt event.DomainEvent, positionPDA string, s event.SettlementDetails) error {
	total := s.FeeToTreasury + s.FeeToBlp
	if total == 0 {
		return nil
	}
	return h.fees.Insert(ctx, store.FeeEvent{
		EventType:   evt.Name,
		TxSignature: evt.DeliveryID,
		Payer:       positionPDA,
		FeePaidIn:   "USDC",
		PositionFee: total,
	})
}

// resyncPool refreshes the pool mirror wholesale from the ledger. Simpler
// and drift-free compared to patching aggregates per event.
func resyncPool(ctx context.Context, reader chain.Reader, retry chain.RetryPolicy, pool LiquidityStore) error {
	onchain, err := chain.ReadWithRetry(ctx, retry, func(ctx context.Context) (*chain.Pool, error) {
		return reader.GetPool(ctx)
	})
	if err != nil {
		return fmt.Errorf("read pool: %w", err)
	}

	return pool.UpsertPool(ctx, store.LiquidityPool{
		TotalLiquidity:    onchain.TotalLiquidity,
		TotalShares:       onchain.TotalShares,
		PendingLpTokens:   onchain.PendingLpTokens,
		WithdrawQueueHead: onchain.WithdrawQueueHead,
		WithdrawQueueTail: onchain.WithdrawQueueTail,
		DepositFeeBps:     onchain.DepositFeeBps,
		WithdrawalFeeBps:  onchain.WithdrawalFeeBps,
		LastUpdateTs:      onchain.UpdatedAt,
	})
}
