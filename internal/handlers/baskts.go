package handlers

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"BasktSync/internal/chain"
	"BasktSync/internal/event"
	"BasktSync/internal/ingestion"
	"BasktSync/internal/observability"
	"BasktSync/internal/store"
)

// BasktHandlers maintains baskt metadata and drives the creation flow:
// a created baskt is validated against its on-chain asset configuration and
// then activated with baseline prices fixed from the oracle feed.
type BasktHandlers struct {
	chain   chain.Client
	retry   chain.RetryPolicy
	baskts  BasktStore
	nav     NavSource
	intents IntentPublisher
	log     zerolog.Logger
	metrics *observability.Metrics
}

func NewBasktHandlers(
	c chain.Client,
	retry chain.RetryPolicy,
	baskts BasktStore,
	nav NavSource,
	intents IntentPublisher,
	log zerolog.Logger,
	metrics *observability.Metrics,
) *BasktHandlers {
	return &BasktHandlers{
		chain:   c,
		retry:   retry,
		baskts:  baskts,
		nav:     nav,
		intents: intents,
		log:     log.With().Str("handler", "baskts").Logger(),
		metrics: metrics,
	}
}

// HandleCreated validates the new baskt's composition on-chain and submits
// its activation. Validation failures fail the delivery so operators can
// replay after the asset set is fixed; an activation submission failure is
// only logged, because the baskt remains usable in Pending and a later
// creation event or manual activation can finish the job.
func (h *BasktHandlers) HandleCreated(ctx context.Context, evt event.DomainEvent) error {
	p, ok := evt.Payload.(*event.BasktCreatedPayload)
	if !ok {
		return fmt.Errorf("unexpected payload %T", evt.Payload)
	}

	onchain, err := chain.ReadWithRetry(ctx, h.retry, func(ctx context.Context) (*chain.Baskt, error) {
		return h.chain.GetBaskt(ctx, p.BasktID)
	})
	if err != nil {
		return fmt.Errorf("read baskt %s: %w", p.BasktID, err)
	}
	if h.metrics != nil {
		h.metrics.ChainReads.WithLabelValues("baskt").Inc()
	}

	baselines := make([]chain.AssetBaseline, 0, len(onchain.Assets))
	for _, w := range onchain.Assets {
		asset, err := h.chain.GetAsset(ctx, w.AssetPDA)
		if err != nil {
			return fmt.Errorf("read asset %s: %w", w.AssetPDA, err)
		}
		if !asset.Active {
			return fmt.Errorf("baskt %s: asset %s is inactive", p.BasktID, asset.Ticker)
		}
		if asset.Price <= 0 {
			return fmt.Errorf("baskt %s: asset %s has no valid price", p.BasktID, asset.Ticker)
		}

		price, err := h.nav.GetAssetPrice(ctx, asset.Ticker)
		if err != nil {
			return fmt.Errorf("baseline price for %s: %w", asset.Ticker, err)
		}
		baselines = append(baselines, chain.AssetBaseline{
			AssetPDA:      w.AssetPDA,
			BaselinePrice: price,
		})
	}

	// Activation goes out before the metadata row is written: a crash
	// between the two leaves no row, and the replayed delivery redoes both.
	if h.intents != nil {
		if err := h.intents.Publish(ctx, ingestion.IntentBasktCreated, evt.DeliveryID, p); err != nil {
			return err
		}
	} else if txSig, err := h.chain.ActivateBaskt(ctx, chain.ActivateBasktParams{
		BasktID:     p.BasktID,
		BaselineNav: event.PriceScale,
		Assets:      baselines,
	}); err != nil {
		if h.metrics != nil {
			h.metrics.TxFailed.WithLabelValues("activateBaskt").Inc()
		}
		h.log.Warn().Err(err).
			Str("baskt_id", p.BasktID).
			Msg("activation submission failed, baskt stays pending")
	} else {
		if h.metrics != nil {
			h.metrics.TxSubmitted.WithLabelValues("activateBaskt").Inc()
		}
		h.log.Info().
			Str("baskt_id", p.BasktID).
			Str("tx", txSig).
			Msg("baskt activation submitted")
	}

	return h.baskts.Upsert(ctx, store.BasktMetadata{
		BasktID:      p.BasktID,
		Name:         p.Name,
		Creator:      p.Creator,
		Status:       store.BasktPending,
		AssetConfigs: onchain.Assets,
		CreatedAt:    time.Unix(p.Timestamp, 0).UTC(),
	})
}

// HandleActivated resyncs the configuration from the ledger and flips the
// baskt to Active.
func (h *BasktHandlers) HandleActivated(ctx context.Context, evt event.DomainEvent) error {
	p, ok := evt.Payload.(*event.BasktActivatedPayload)
	if !ok {
		return fmt.Errorf("unexpected payload %T", evt.Payload)
	}
	if err := h.resyncFromChain(ctx, p.BasktID, false); err != nil {
		return err
	}
	return h.baskts.SetStatus(ctx, p.BasktID, store.BasktActive)
}

// HandleConfigUpdated resyncs the configuration wholesale from the ledger.
func (h *BasktHandlers) HandleConfigUpdated(ctx context.Context, evt event.DomainEvent) error {
	p, ok := evt.Payload.(*event.BasktConfigUpdatedPayload)
	if !ok {
		return fmt.Errorf("unexpected payload %T", evt.Payload)
	}
	return h.resyncFromChain(ctx, p.BasktID, false)
}

// HandleRebalanced appends a before/after record to the rebalance history
// and resyncs the configuration. The history row is keyed by the rebalancing
// transaction, so a replay appends nothing and skips the resync and the
// rebalance counter bump.
func (h *BasktHandlers) HandleRebalanced(ctx context.Context, evt event.DomainEvent) error {
	p, ok := evt.Payload.(*event.BasktRebalancedPayload)
	if !ok {
		return fmt.Errorf("unexpected payload %T", evt.Payload)
	}

	prev, err := h.baskts.Get(ctx, p.BasktID)
	if err != nil {
		return fmt.Errorf("load baskt %s: %w", p.BasktID, err)
	}

	appended, err := h.baskts.AppendRebalance(ctx, store.RebalanceHistoryEntry{
		BasktID:    p.BasktID,
		TxRef:      evt.DeliveryID,
		PrevAssets: prev.AssetConfigs,
		NewAssets:  p.NewAssets,
		PrevNav:    prev.BaselineNav,
		NewNav:     p.NewBaselineNav,
		FeeIndex:   p.FeeIndex,
	})
	if err != nil {
		return err
	}
	if !appended {
		return nil
	}
	return h.resyncFromChain(ctx, p.BasktID, true)
}

// HandleDecommissioning marks the baskt as winding down. New orders against
// it are rejected on-chain; existing positions keep settling.
func (h *BasktHandlers) HandleDecommissioning(ctx context.Context, evt event.DomainEvent) error {
	p, ok := evt.Payload.(*event.BasktDecommissioningPayload)
	if !ok {
		return fmt.Errorf("unexpected payload %T", evt.Payload)
	}
	return h.baskts.SetStatus(ctx, p.BasktID, store.BasktDecommissioning)
}

// HandleClosed marks the baskt terminally closed.
func (h *BasktHandlers) HandleClosed(ctx context.Context, evt event.DomainEvent) error {
	p, ok := evt.Payload.(*event.BasktClosedPayload)
	if !ok {
		return fmt.Errorf("unexpected payload %T", evt.Payload)
	}
	return h.baskts.SetStatus(ctx, p.BasktID, store.BasktClosed)
}

// HandleRebalanceRequest forwards the request to the execution pipeline. In
// direct mode rebalancing happens out of band and the request is only logged.
func (h *BasktHandlers) HandleRebalanceRequest(ctx context.Context, evt event.DomainEvent) error {
	p, ok := evt.Payload.(*event.RebalanceRequestPayload)
	if !ok {
		return fmt.Errorf("unexpected payload %T", evt.Payload)
	}
	if h.intents != nil {
		return h.intents.Publish(ctx, ingestion.IntentRebalanceRequested, evt.DeliveryID, p)
	}
	h.log.Info().
		Str("baskt_id", p.BasktID).
		Str("requested_by", p.RequestedBy).
		Msg("rebalance requested")
	return nil
}

// resyncFromChain overwrites the local configuration with a fresh ledger
// read. Mirrors are never patched incrementally from event payloads, so a
// missed intermediate update cannot leave the projection drifted.
func (h *BasktHandlers) resyncFromChain(ctx context.Context, basktID string, bumpRebalance bool) error {
	onchain, err := chain.ReadWithRetry(ctx, h.retry, func(ctx context.Context) (*chain.Baskt, error) {
		return h.chain.GetBaskt(ctx, basktID)
	})
	if err != nil {
		return fmt.Errorf("read baskt %s: %w", basktID, err)
	}
	if h.metrics != nil {
		h.metrics.ChainReads.WithLabelValues("baskt").Inc()
	}
	return h.baskts.ResyncConfig(ctx, basktID, onchain.Assets,
		onchain.BaselineNav, onchain.FeeIndex, bumpRebalance)
}
