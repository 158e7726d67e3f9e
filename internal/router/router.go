// Package router fans ledger events out to their registered handlers and
// keeps the event status ledger current.
//
// Delivery is at-least-once and the router never assumes exactly-once: all
// correctness comes from handler-level idempotency plus the audit trail,
// which lets an operator detect and replay FAILED deliveries.
package router

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"BasktSync/internal/event"
	"BasktSync/internal/observability"
)

// HandlerFunc processes one delivery. Handlers must be idempotent and safely
// re-runnable: the same delivery id can arrive again, and partial failures
// are replayed manually.
type HandlerFunc func(ctx context.Context, evt event.DomainEvent) error

// AuditLog is the event status ledger the router reports into.
type AuditLog interface {
	StoreEvent(ctx context.Context, evt event.DomainEvent) error
	MarkAs(ctx context.Context, deliveryID string, status event.Status, errMsg string) error
}

type routeKey struct {
	source string
	name   string
}

type registration struct {
	name string
	fn   HandlerFunc
}

// Router is the observer registry: (source, event name) -> handlers.
type Router struct {
	mu       sync.RWMutex
	handlers map[routeKey][]registration

	audit   AuditLog
	log     zerolog.Logger
	metrics *observability.Metrics
}

// New creates a router. audit may be nil, in which case no status
// bookkeeping is performed (used in tests and dry runs).
func New(audit AuditLog, log zerolog.Logger, metrics *observability.Metrics) *Router {
	return &Router{
		handlers: make(map[routeKey][]registration),
		audit:    audit,
		log:      log,
		metrics:  metrics,
	}
}

// Register appends a handler to the fan-out list for (source, eventName).
// Multiple handlers per event are allowed and mutually independent.
func (r *Router) Register(source, eventName, handlerName string, fn HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := routeKey{source: source, name: eventName}
	r.handlers[key] = append(r.handlers[key], registration{name: handlerName, fn: fn})
}

// Emit dispatches one delivery to every registered handler concurrently.
// The status ledger is marked COMPLETED only if all handlers succeed; any
// failure marks the delivery FAILED with the collected error text. Partial
// success is a known inconsistency surfaced for operator replay, not rolled
// back.
func (r *Router) Emit(ctx context.Context, evt event.DomainEvent) error {
	if r.audit != nil && evt.DeliveryID != "" {
		// Best-effort bookkeeping: a status-ledger outage must not stall
		// dispatch.
		if err := r.audit.StoreEvent(ctx, evt); err != nil {
			r.log.Warn().Err(err).Str("delivery_id", evt.DeliveryID).
				Msg("audit store failed")
		}
		if err := r.audit.MarkAs(ctx, evt.DeliveryID, event.StatusProcessing, ""); err != nil {
			r.log.Warn().Err(err).Str("delivery_id", evt.DeliveryID).
				Msg("audit transition failed")
		}
	}

	r.mu.RLock()
	regs := r.handlers[routeKey{source: evt.Source, name: evt.Name}]
	r.mu.RUnlock()

	if r.metrics != nil {
		r.metrics.EventsReceived.WithLabelValues(evt.Name).Inc()
	}

	if len(regs) == 0 {
		// No-op events are not errors.
		r.markAs(ctx, evt, event.StatusCompleted, "")
		return nil
	}

	errs := make([]error, len(regs))
	var wg sync.WaitGroup
	for i, reg := range regs {
		wg.Add(1)
		go func(i int, reg registration) {
			defer wg.Done()
			start := time.Now()
			if err := reg.fn(ctx, evt); err != nil {
				errs[i] = fmt.Errorf("%s: %w", reg.name, err)
				r.log.Error().Err(err).
					Str("handler", reg.name).
					Str("event", evt.Name).
					Str("delivery_id", evt.DeliveryID).
					Msg("handler failed")
			}
			if r.metrics != nil {
				r.metrics.HandlerDuration.WithLabelValues(reg.name).
					Observe(time.Since(start).Seconds())
			}
		}(i, reg)
	}
	wg.Wait()

	if err := errors.Join(errs...); err != nil {
		r.markAs(ctx, evt, event.StatusFailed, err.Error())
		if r.metrics != nil {
			r.metrics.EventsFailed.WithLabelValues(evt.Name).Inc()
		}
		return err
	}

	r.markAs(ctx, evt, event.StatusCompleted, "")
	if r.metrics != nil {
		r.metrics.EventsCompleted.WithLabelValues(evt.Name).Inc()
	}
	return nil
}

func (r *Router) markAs(ctx context.Context, evt event.DomainEvent, status event.Status, errMsg string) {
	if r.audit == nil || evt.DeliveryID == "" {
		return
	}
	if err := r.audit.MarkAs(ctx, evt.DeliveryID, status, errMsg); err != nil {
		r.log.Warn().Err(err).
			Str("delivery_id", evt.DeliveryID).
			Str("status", string(status)).
			Msg("audit transition failed")
	}
}
