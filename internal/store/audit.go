package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"BasktSync/internal/event"
)

// AuditRecord is one entry of the event status ledger, keyed by delivery id
// (transaction signature). It is the engine's idempotency and observability
// record: FAILED rows are the replay queue for operators.
type AuditRecord struct {
	DeliveryID    string
	Source        string
	Name          string
	Payload       []byte
	Status        event.Status
	Error         sql.NullString
	FirstSeenAt   time.Time
	LastUpdatedAt time.Time
}

type AuditStore struct {
	db *sql.DB
}

func NewAuditStore(db *sql.DB) *AuditStore {
	return &AuditStore{db: db}
}

// StoreEvent records a delivery in RECEIVED state. A redelivered id inserts
// nothing and keeps whatever status the first delivery reached.
func (s *AuditStore) StoreEvent(ctx context.Context, evt event.DomainEvent) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO baskt.event_audit
			(delivery_id, source, name, payload, status, first_seen_at, last_updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
		ON CONFLICT (delivery_id) DO NOTHING
	`, evt.DeliveryID, evt.Source, evt.Name, evt.Raw, string(event.StatusReceived))
	if err != nil {
		return fmt.Errorf("store: audit store event %s: %w", evt.DeliveryID, err)
	}
	return nil
}

// MarkAs transitions a delivery's status. Terminal states are preserved:
// COMPLETED is never overwritten, and FAILED can only move back to
// PROCESSING (manual replay). Disallowed transitions are silently dropped so
// a racing late write cannot regress the record.
func (s *AuditStore) MarkAs(ctx context.Context, deliveryID string, status event.Status, errMsg string) error {
	var e sql.NullString
	if errMsg != "" {
		e = sql.NullString{String: errMsg, Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		UPDATE baskt.event_audit
		SET status = $2, error = $3, last_updated_at = NOW()
		WHERE delivery_id = $1
		  AND (status IN ($4, $5) OR (status = $6 AND $2 = $5))
	`, deliveryID, string(status), e,
		string(event.StatusReceived), string(event.StatusProcessing),
		string(event.StatusFailed))
	if err != nil {
		return fmt.Errorf("store: audit mark %s as %s: %w", deliveryID, status, err)
	}
	return nil
}

// Get returns the audit record for a delivery id.
func (s *AuditStore) Get(ctx context.Context, deliveryID string) (*AuditRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT delivery_id, source, name, payload, status, error,
		       first_seen_at, last_updated_at
		FROM baskt.event_audit WHERE delivery_id = $1
	`, deliveryID)

	var r AuditRecord
	var status string
	err := row.Scan(&r.DeliveryID, &r.Source, &r.Name, &r.Payload, &status,
		&r.Error, &r.FirstSeenAt, &r.LastUpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: audit get %s: %w", deliveryID, err)
	}
	r.Status = event.Status(status)
	return &r, nil
}

// ListFailed returns the oldest FAILED deliveries, the operator's replay
// worklist.
func (s *AuditStore) ListFailed(ctx context.Context, limit int) ([]AuditRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT delivery_id, source, name, payload, status, error,
		       first_seen_at, last_updated_at
		FROM baskt.event_audit
		WHERE status = $1
		ORDER BY first_seen_at
		LIMIT $2
	`, string(event.StatusFailed), limit)
	if err != nil {
		return nil, fmt.Errorf("store: audit list failed: %w", err)
	}
	defer rows.Close()

	var out []AuditRecord
	for rows.Next() {
		var r AuditRecord
		var status string
		if err := rows.Scan(&r.DeliveryID, &r.Source, &r.Name, &r.Payload,
			&status, &r.Error, &r.FirstSeenAt, &r.LastUpdatedAt); err != nil {
			return nil, fmt.Errorf("store: scan audit record: %w", err)
		}
		r.Status = event.Status(status)
		out = append(out, r)
	}
	return out, rows.Err()
}
