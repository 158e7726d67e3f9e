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

// LiquidityHandlers maintains the pool mirror and the withdrawal queue.
// Pool aggregates are never patched from event payloads; every event that
// moves pool state triggers a wholesale resync from the ledger.
type LiquidityHandlers struct {
	chain   chain.Reader
	retry   chain.RetryPolicy
	pool    LiquidityStore
	fees    FeeStore
	log     zerolog.Logger
	metrics *observability.Metrics
}

func NewLiquidityHandlers(
	c chain.Reader,
	retry chain.RetryPolicy,
	pool LiquidityStore,
	fees FeeStore,
	log zerolog.Logger,
	metrics *observability.Metrics,
) *LiquidityHandlers {
	return &LiquidityHandlers{
		chain:   c,
		retry:   retry,
		pool:    pool,
		fees:    fees,
		log:     log.With().Str("handler", "liquidity").Logger(),
		metrics: metrics,
	}
}

// HandleLiquidityAdded records the deposit fee and resyncs the pool.
func (h *LiquidityHandlers) HandleLiquidityAdded(ctx context.Context, evt event.DomainEvent) error {
	p, ok := evt.Payload.(*event.LiquidityAddedPayload)
	if !ok {
		return fmt.Errorf("unexpected payload %T", evt.Payload)
	}

	if p.Fee > 0 {
		if err := h.fees.Insert(ctx, store.FeeEvent{
			EventType:    evt.Name,
			TxSignature:  evt.DeliveryID,
			Payer:        p.Provider,
			FeePaidIn:    "USDC",
			LiquidityFee: p.Fee,
		}); err != nil {
			return err
		}
	}
	return resyncPool(ctx, h.chain, h.retry, h.pool)
}

// HandleWithdrawalQueued projects the queued request from its on-chain
// account and resyncs the pool tail.
func (h *LiquidityHandlers) HandleWithdrawalQueued(ctx context.Context, evt event.DomainEvent) error {
	p, ok := evt.Payload.(*event.WithdrawalQueuedPayload)
	if !ok {
		return fmt.Errorf("unexpected payload %T", evt.Payload)
	}

	onchain, err := chain.ReadWithRetry(ctx, h.retry, func(ctx context.Context) (*chain.WithdrawRequest, error) {
		return h.chain.GetWithdrawRequest(ctx, p.RequestID)
	})
	if err != nil {
		return fmt.Errorf("read withdraw request %d: %w", p.RequestID, err)
	}
	if h.metrics != nil {
		h.metrics.ChainReads.WithLabelValues("withdraw_request").Inc()
	}

	created, err := h.pool.CreateRequest(ctx, store.WithdrawRequest{
		RequestID:   onchain.RequestID,
		Provider:    onchain.Provider,
		RequestedLp: onchain.LpAmount,
		RequestedAt: time.Unix(onchain.CreatedAt, 0).UTC(),
	})
	if err != nil {
		return err
	}
	if created {
		h.log.Info().
			Uint64("request_id", onchain.RequestID).
			Str("provider", onchain.Provider).
			Int64("lp_amount", onchain.LpAmount).
			Msg("withdrawal queued")
	}
	return resyncPool(ctx, h.chain, h.retry, h.pool)
}

// HandleQueueProcessed applies one processing pass over the queue head.
// The queue drains strictly in request-id order, so a processed event for
// request n while an earlier request is still queued means deliveries
// arrived out of order; the delivery fails and is replayed once the earlier
// event lands.
func (h *LiquidityHandlers) HandleQueueProcessed(ctx context.Context, evt event.DomainEvent) error {
	p, ok := evt.Payload.(*event.WithdrawQueueProcessedPayload)
	if !ok {
		return fmt.Errorf("unexpected payload %T", evt.Payload)
	}

	earlier, err := h.pool.HasEarlierQueued(ctx, p.RequestID)
	if err != nil {
		return err
	}
	if earlier {
		return fmt.Errorf("request %d processed while an earlier request is still queued", p.RequestID)
	}

	status, err := h.pool.ApplyProcessed(ctx, p.RequestID, p.LpBurned, p.AmountPaid)
	if err != nil {
		return err
	}
	if status == store.WithdrawProcessing {
		h.log.Info().
			Uint64("request_id", p.RequestID).
			Int64("lp_burned", p.LpBurned).
			Msg("withdrawal partially fulfilled")
	}

	if p.Fee > 0 {
		if err := h.fees.Insert(ctx, store.FeeEvent{
			EventType:    evt.Name,
			TxSignature:  evt.DeliveryID,
			Payer:        p.Provider,
			FeePaidIn:    "USDC",
			LiquidityFee: p.Fee,
		}); err != nil {
			return err
		}
	}
	return resyncPool(ctx, h.chain, h.retry, h.pool)
}
