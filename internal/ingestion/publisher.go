package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"BasktSync/internal/observability"
)

// Intent names published in pipeline mode, when an external execution
// pipeline acts on the ledger instead of this engine submitting
// transactions directly.
const (
	IntentOrderCreated       = "orderCreated"
	IntentRebalanceRequested = "rebalanceRequested"
	IntentBasktCreated       = "basktCreated"
)

// IntentMessage is the structured message consumed by the execution
// pipeline. DeliveryID carries the signature of the event that produced the
// intent so the pipeline can deduplicate.
type IntentMessage struct {
	Intent     string    `json:"intent"`
	DeliveryID string    `json:"delivery_id"`
	Payload    any       `json:"payload"`
	EmittedAt  time.Time `json:"emitted_at"`
}

// IntentPublisher publishes intents to baskt.intents.{intent}.
type IntentPublisher struct {
	js      jetstream.JetStream
	metrics *observability.Metrics
}

func NewIntentPublisher(js jetstream.JetStream, metrics *observability.Metrics) *IntentPublisher {
	return &IntentPublisher{js: js, metrics: metrics}
}

// Publish sends one intent. Publishing uses the delivery id as the JetStream
// dedup id, so a replayed event publishes the intent at most once.
func (p *IntentPublisher) Publish(ctx context.Context, intent, deliveryID string, payload any) error {
	msg := IntentMessage{
		Intent:     intent,
		DeliveryID: deliveryID,
		Payload:    payload,
		EmittedAt:  time.Now(),
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("ingestion: marshal intent: %w", err)
	}

	_, err = p.js.Publish(ctx, intentSubjectPrefix+intent, data,
		jetstream.WithMsgID(deliveryID+":"+intent))
	if err != nil {
		return fmt.Errorf("ingestion: publish intent %s: %w", intent, err)
	}

	if p.metrics != nil {
		p.metrics.IntentsPublished.WithLabelValues(intent).Inc()
	}
	return nil
}
