// Package ingestion connects the ledger's event stream to the router.
//
// A relay service tails the baskt program and publishes every program event
// to NATS JetStream, one subject per event name, each message carrying the
// transaction signature that produced it. This package subscribes to that
// catalog, parses payloads into typed events and forwards them.
package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"

	"BasktSync/internal/event"
	"BasktSync/internal/router"
)

const (
	// EventStream carries raw program events from the relay.
	EventStream        = "BASKT_EVENTS"
	eventSubjectPrefix = "baskt.events."

	// IntentStream carries outbound intents in pipeline mode.
	IntentStream        = "BASKT_INTENTS"
	intentSubjectPrefix = "baskt.intents."
)

// envelope is the relay's wire format: the program event name, the
// transaction signature, and the borsh-decoded payload re-encoded as JSON.
type envelope struct {
	Signature string          `json:"signature"`
	Name      string          `json:"name"`
	Slot      uint64          `json:"slot"`
	Payload   json.RawMessage `json:"payload"`
}

// Subscriber bridges the JetStream subscription into router.Emit.
type Subscriber struct {
	js       jetstream.JetStream
	router   *router.Router
	audit    router.AuditLog
	log      zerolog.Logger
	consumer jetstream.ConsumeContext
}

// NewSubscriber wires the subscription to the router. audit records
// deliveries whose payloads never reach the router; it may be nil in tests.
func NewSubscriber(js jetstream.JetStream, r *router.Router, audit router.AuditLog, log zerolog.Logger) *Subscriber {
	return &Subscriber{js: js, router: r, audit: audit, log: log}
}

// Start creates the durable consumer over the whole event catalog and begins
// dispatching. Handler failures are recorded on the status ledger by the
// router and never interrupt the subscription; every message is acked so
// replay stays a deliberate operator action rather than broker redelivery.
func (s *Subscriber) Start(ctx context.Context) error {
	consumer, err := s.js.CreateOrUpdateConsumer(ctx, EventStream, jetstream.ConsumerConfig{
		Durable:       "baskt-sync",
		FilterSubject: eventSubjectPrefix + ">",
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       30 * time.Second,
		MaxDeliver:    5,
		DeliverPolicy: jetstream.DeliverAllPolicy,
	})
	if err != nil {
		return fmt.Errorf("ingestion: create consumer: %w", err)
	}

	cc, err := consumer.Consume(func(msg jetstream.Msg) {
		s.handleMessage(ctx, msg)
	})
	if err != nil {
		return fmt.Errorf("ingestion: consume: %w", err)
	}

	s.consumer = cc
	s.log.Info().Str("stream", EventStream).Msg("subscribed to ledger events")
	return nil
}

func (s *Subscriber) handleMessage(ctx context.Context, msg jetstream.Msg) {
	var env envelope
	if err := json.Unmarshal(msg.Data(), &env); err != nil {
		s.log.Error().Err(err).Str("subject", msg.Subject()).
			Msg("malformed relay envelope")
		msg.Term()
		return
	}

	evt := event.DomainEvent{
		Source:     event.SourceBaskt,
		Name:       env.Name,
		DeliveryID: env.Signature,
		Raw:        env.Payload,
		ObservedAt: time.Now(),
	}

	payload, err := ParsePayload(env.Name, env.Payload)
	if err != nil {
		// A permanently unparseable payload still gets a FAILED audit
		// record so it is visible to operators; redelivery cannot fix it.
		if s.audit != nil {
			if serr := s.audit.StoreEvent(ctx, evt); serr != nil {
				s.log.Error().Err(serr).Str("delivery_id", env.Signature).
					Msg("audit record for unparseable payload")
			} else if merr := s.audit.MarkAs(ctx, env.Signature, event.StatusFailed, err.Error()); merr != nil {
				s.log.Error().Err(merr).Str("delivery_id", env.Signature).
					Msg("mark unparseable payload failed")
			}
		}
		s.log.Error().Err(err).
			Str("event", env.Name).
			Str("delivery_id", env.Signature).
			Msg("payload parse failed")
		msg.Term()
		return
	}
	evt.Payload = payload

	// Emit's error is already recorded as a FAILED status entry; the
	// subscription keeps going regardless.
	_ = s.router.Emit(ctx, evt)
	msg.Ack()
}

// Stop gracefully stops consuming.
func (s *Subscriber) Stop() {
	if s.consumer != nil {
		s.consumer.Stop()
	}
	s.log.Info().Msg("ledger event subscription stopped")
}

// EnsureStreams creates the JetStream streams the engine depends on.
func EnsureStreams(ctx context.Context, js jetstream.JetStream) error {
	streams := []jetstream.StreamConfig{
		{
			Name:      EventStream,
			Subjects:  []string{eventSubjectPrefix + ">"},
			Storage:   jetstream.FileStorage,
			Retention: jetstream.LimitsPolicy,
			MaxAge:    72 * time.Hour,
			Replicas:  1,
		},
		{
			Name:      IntentStream,
			Subjects:  []string{intentSubjectPrefix + ">"},
			Storage:   jetstream.FileStorage,
			Retention: jetstream.LimitsPolicy,
			MaxAge:    72 * time.Hour,
			Replicas:  1,
		},
	}

	for _, cfg := range streams {
		if _, err := js.CreateOrUpdateStream(ctx, cfg); err != nil {
			return fmt.Errorf("ingestion: create stream %s: %w", cfg.Name, err)
		}
	}
	return nil
}

// Connect establishes a NATS connection and returns a JetStream context.
func Connect(url string, log zerolog.Logger) (*nats.Conn, jetstream.JetStream, error) {
	nc, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Msg("nats disconnected")
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			log.Info().Msg("nats reconnected")
		}),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("ingestion: nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("ingestion: jetstream: %w", err)
	}
	return nc, js, nil
}
