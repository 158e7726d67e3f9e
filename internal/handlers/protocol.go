package handlers

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"BasktSync/internal/chain"
	"BasktSync/internal/event"
	"BasktSync/internal/observability"
	"BasktSync/internal/store"
)

// ProtocolHandlers mirrors the protocol-wide singleton config.
type ProtocolHandlers struct {
	chain    chain.Reader
	retry    chain.RetryPolicy
	protocol ProtocolStore
	log      zerolog.Logger
	metrics  *observability.Metrics
}

func NewProtocolHandlers(
	c chain.Reader,
	retry chain.RetryPolicy,
	protocol ProtocolStore,
	log zerolog.Logger,
	metrics *observability.Metrics,
) *ProtocolHandlers {
	return &ProtocolHandlers{
		chain:    c,
		retry:    retry,
		protocol: protocol,
		log:      log.With().Str("handler", "protocol").Logger(),
		metrics:  metrics,
	}
}

// HandleStateUpdated overwrites the config mirror from a fresh ledger read.
// The payload carries the new values too, but the read wins: if two updates
// land close together the mirror converges on the latest state either way.
func (h *ProtocolHandlers) HandleStateUpdated(ctx context.Context, evt event.DomainEvent) error {
	if _, ok := evt.Payload.(*event.ProtocolStateUpdatedPayload); !ok {
		return fmt.Errorf("unexpected payload %T", evt.Payload)
	}

	onchain, err := chain.ReadWithRetry(ctx, h.retry, func(ctx context.Context) (*chain.ProtocolState, error) {
		return h.chain.GetProtocolState(ctx)
	})
	if err != nil {
		return fmt.Errorf("read protocol state: %w", err)
	}
	if h.metrics != nil {
		h.metrics.ChainReads.WithLabelValues("protocol_state").Inc()
	}

	return h.protocol.Upsert(ctx, store.ProtocolConfig{
		Admin:             onchain.Admin,
		Treasury:          onchain.Treasury,
		OpenFeeBps:        onchain.OpenFeeBps,
		CloseFeeBps:       onchain.CloseFeeBps,
		LiquidationFeeBps: onchain.LiquidationFeeBps,
		Paused:            onchain.Paused,
	})
}
