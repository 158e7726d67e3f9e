// Package server exposes the engine's operator surface: health probes,
// Prometheus metrics, the FAILED-delivery worklist and manual replay.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"BasktSync/internal/event"
	"BasktSync/internal/ingestion"
	"BasktSync/internal/observability"
	"BasktSync/internal/router"
	"BasktSync/internal/store"
)

// AuditReader is the audit-store surface the operator endpoints need.
type AuditReader interface {
	Get(ctx context.Context, deliveryID string) (*store.AuditRecord, error)
	ListFailed(ctx context.Context, limit int) ([]store.AuditRecord, error)
}

type Server struct {
	router  *router.Router
	audit   AuditReader
	health  *observability.HealthChecker
	log     zerolog.Logger
	metrics *observability.Metrics

	srv *http.Server
}

func New(addr string, rt *router.Router, audit AuditReader, health *observability.HealthChecker, log zerolog.Logger, metrics *observability.Metrics) *Server {
	s := &Server{
		router:  rt,
		audit:   audit,
		health:  health,
		log:     log.With().Str("component", "server").Logger(),
		metrics: metrics,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", health.LivenessHandler)
	mux.HandleFunc("GET /readyz", health.ReadinessHandler)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /v1/deliveries/failed", s.handleListFailed)
	mux.HandleFunc("POST /v1/deliveries/{id}/replay", s.handleReplay)

	s.srv = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.srv.Addr).Msg("operator server listening")
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// Handler exposes the route mux for tests.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

type failedDelivery struct {
	DeliveryID  string    `json:"delivery_id"`
	Event       string    `json:"event"`
	Error       string    `json:"error,omitempty"`
	FirstSeenAt time.Time `json:"first_seen_at"`
}

func (s *Server) handleListFailed(w http.ResponseWriter, r *http.Request) {
	records, err := s.audit.ListFailed(r.Context(), 100)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	out := make([]failedDelivery, 0, len(records))
	for _, rec := range records {
		out = append(out, failedDelivery{
			DeliveryID:  rec.DeliveryID,
			Event:       rec.Name,
			Error:       rec.Error.String,
			FirstSeenAt: rec.FirstSeenAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"failed": out})
}

// handleReplay re-emits one delivery from its audited payload. Handler
// idempotency makes this safe for any status, but only FAILED deliveries
// can transition back to PROCESSING, so replaying a COMPLETED delivery
// leaves the ledger untouched.
func (s *Server) handleReplay(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	rec, err := s.audit.Get(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "unknown delivery id")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	payload, err := ingestion.ParsePayload(rec.Name, rec.Payload)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	evt := event.DomainEvent{
		Source:     rec.Source,
		Name:       rec.Name,
		DeliveryID: rec.DeliveryID,
		Payload:    payload,
		Raw:        rec.Payload,
		ObservedAt: time.Now().UTC(),
	}

	if s.metrics != nil {
		s.metrics.ReplaysTotal.Inc()
	}
	s.log.Info().Str("delivery_id", id).Str("event", rec.Name).Msg("replaying delivery")

	if err := s.router.Emit(r.Context(), evt); err != nil {
		writeJSON(w, http.StatusOK, map[string]any{
			"delivery_id": id,
			"status":      string(event.StatusFailed),
			"error":       err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"delivery_id": id,
		"status":      string(event.StatusCompleted),
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
