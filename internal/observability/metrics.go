package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the engine's Prometheus metrics.
type Metrics struct {
	// Dispatch
	EventsReceived  *prometheus.CounterVec
	EventsCompleted *prometheus.CounterVec
	EventsFailed    *prometheus.CounterVec
	HandlerDuration *prometheus.HistogramVec

	// Chain interaction
	ChainReads       *prometheus.CounterVec
	ChainReadRetries prometheus.Counter
	TxSubmitted      *prometheus.CounterVec
	TxFailed         *prometheus.CounterVec

	// Operator actions
	ReplaysTotal prometheus.Counter

	// Pipeline mode
	IntentsPublished *prometheus.CounterVec
}

// NewMetrics creates and registers all metrics on the default registry.
func NewMetrics() *Metrics {
	handlerBuckets := []float64{
		0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5,
	}

	return &Metrics{
		EventsReceived: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "baskt_events_received_total",
			Help: "Deliveries received from the ledger event stream",
		}, []string{"event"}),

		EventsCompleted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "baskt_events_completed_total",
			Help: "Deliveries for which every handler succeeded",
		}, []string{"event"}),

		EventsFailed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "baskt_events_failed_total",
			Help: "Deliveries marked FAILED for operator replay",
		}, []string{"event"}),

		HandlerDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "baskt_handler_duration_seconds",
			Help:    "Wall time per handler invocation",
			Buckets: handlerBuckets,
		}, []string{"handler"}),

		ChainReads: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "baskt_chain_reads_total",
			Help: "Ledger account reads by account kind",
		}, []string{"account"}),

		ChainReadRetries: promauto.NewCounter(prometheus.CounterOpts{
			Name: "baskt_chain_read_retries_total",
			Help: "Ledger reads that needed at least one retry",
		}),

		TxSubmitted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "baskt_tx_submitted_total",
			Help: "Follow-up transactions submitted to the ledger",
		}, []string{"instruction"}),

		TxFailed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "baskt_tx_failed_total",
			Help: "Follow-up transaction submissions rejected",
		}, []string{"instruction"}),

		ReplaysTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "baskt_replays_total",
			Help: "Manual replays triggered through the operator API",
		}),

		IntentsPublished: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "baskt_intents_published_total",
			Help: "Intent messages published in pipeline mode",
		}, []string{"intent"}),
	}
}
