package server_test

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"

	"BasktSync/internal/event"
	"BasktSync/internal/observability"
	"BasktSync/internal/router"
	"BasktSync/internal/server"
	"BasktSync/internal/store"
)

type fakeAuditReader struct {
	records map[string]*store.AuditRecord
}

func (f *fakeAuditReader) Get(ctx context.Context, deliveryID string) (*store.AuditRecord, error) {
	if r, ok := f.records[deliveryID]; ok {
		return r, nil
	}
	return nil, store.ErrNotFound
}

func (f *fakeAuditReader) ListFailed(ctx context.Context, limit int) ([]store.AuditRecord, error) {
	var out []store.AuditRecord
	for _, r := range f.records {
		if r.Status == event.StatusFailed {
			out = append(out, *r)
		}
	}
	return out, nil
}

func newTestServer(t *testing.T, audit server.AuditReader, rt *router.Router) *httptest.Server {
	t.Helper()
	s := httptest.NewServer(serverHandler(audit, rt))
	t.Cleanup(s.Close)
	return s
}

func serverHandler(audit server.AuditReader, rt *router.Router) http.Handler {
	health := observability.NewHealthChecker()
	health.SetReady(true)
	s := server.New("127.0.0.1:0", rt, audit, health, zerolog.Nop(), nil)
	return s.Handler()
}

func TestListFailed(t *testing.T) {
	audit := &fakeAuditReader{records: map[string]*store.AuditRecord{
		"sig-1": {
			DeliveryID: "sig-1",
			Source:     event.SourceBaskt,
			Name:       event.PositionClosed,
			Status:     event.StatusFailed,
			Error:      sql.NullString{String: "db down", Valid: true},
		},
		"sig-2": {
			DeliveryID: "sig-2",
			Source:     event.SourceBaskt,
			Name:       event.OrderCreated,
			Status:     event.StatusCompleted,
		},
	}}
	rt := router.New(nil, zerolog.Nop(), nil)
	ts := newTestServer(t, audit, rt)

	resp, err := http.Get(ts.URL + "/v1/deliveries/failed")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var body struct {
		Failed []struct {
			DeliveryID string `json:"delivery_id"`
			Event      string `json:"event"`
			Error      string `json:"error"`
		} `json:"failed"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(body.Failed) != 1 {
		t.Fatalf("failed deliveries = %d, want 1", len(body.Failed))
	}
	if body.Failed[0].DeliveryID != "sig-1" {
		t.Errorf("delivery id = %q, want sig-1", body.Failed[0].DeliveryID)
	}
}

func TestReplay_ReEmitsAuditedPayload(t *testing.T) {
	audit := &fakeAuditReader{records: map[string]*store.AuditRecord{
		"sig-1": {
			DeliveryID: "sig-1",
			Source:     event.SourceBaskt,
			Name:       event.LiquidityAdded,
			Status:     event.StatusFailed,
			Payload:    []byte(`{"provider": "lp1", "amount": 100, "fee": 1}`),
		},
	}}

	rt := router.New(nil, zerolog.Nop(), nil)
	var got *event.LiquidityAddedPayload
	rt.Register(event.SourceBaskt, event.LiquidityAdded, "capture", func(ctx context.Context, evt event.DomainEvent) error {
		got = evt.Payload.(*event.LiquidityAddedPayload)
		return nil
	})

	ts := newTestServer(t, audit, rt)

	resp, err := http.Post(ts.URL+"/v1/deliveries/sig-1/replay", "application/json", nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if got == nil {
		t.Fatal("handler was not invoked")
	}
	if got.Provider != "lp1" || got.Amount != 100 {
		t.Errorf("replayed payload = %+v, want the audited bytes", got)
	}

	var body map[string]any
	json.NewDecoder(resp.Body).Decode(&body)
	if body["status"] != string(event.StatusCompleted) {
		t.Errorf("reported status = %v, want COMPLETED", body["status"])
	}
}

func TestReplay_UnknownDelivery(t *testing.T) {
	ts := newTestServer(t, &fakeAuditReader{records: map[string]*store.AuditRecord{}}, router.New(nil, zerolog.Nop(), nil))

	resp, err := http.Post(ts.URL+"/v1/deliveries/missing/replay", "application/json", nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestReplay_UnparseablePayload(t *testing.T) {
	audit := &fakeAuditReader{records: map[string]*store.AuditRecord{
		"sig-1": {
			DeliveryID: "sig-1",
			Source:     event.SourceBaskt,
			Name:       "someUnknownEvent",
			Status:     event.StatusFailed,
			Payload:    []byte(`{}`),
		},
	}}
	ts := newTestServer(t, audit, router.New(nil, zerolog.Nop(), nil))

	resp, err := http.Post(ts.URL+"/v1/deliveries/sig-1/replay", "application/json", nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422", resp.StatusCode)
	}
}

func TestHealthEndpoints(t *testing.T) {
	ts := newTestServer(t, &fakeAuditReader{records: map[string]*store.AuditRecord{}}, router.New(nil, zerolog.Nop(), nil))

	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("/healthz status = %d, want 200", resp.StatusCode)
	}

	resp, err = http.Get(ts.URL + "/readyz")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("/readyz status = %d, want 200", resp.StatusCode)
	}
}
