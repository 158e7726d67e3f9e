package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// FeeEvent is one append-only revenue accounting record. Never mutated.
type FeeEvent struct {
	EventType    string
	TxSignature  string
	Payer        string
	FeePaidIn    string
	PositionFee  int64
	LiquidityFee int64
	BasktFee     int64
	CreatedAt    time.Time
}

type FeeStore struct {
	db *sql.DB
}

func NewFeeStore(db *sql.DB) *FeeStore {
	return &FeeStore{db: db}
}

// Insert appends a fee event. Insert-once per (tx signature, event type);
// redeliveries are silently dropped.
func (s *FeeStore) Insert(ctx context.Context, f FeeEvent) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO baskt.fee_events
			(event_type, tx_signature, payer, fee_paid_in,
			 position_fee, liquidity_fee, baskt_fee, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		ON CONFLICT (tx_signature, event_type) DO NOTHING
	`, f.EventType, f.TxSignature, f.Payer, f.FeePaidIn,
		f.PositionFee, f.LiquidityFee, f.BasktFee)
	if err != nil {
		return fmt.Errorf("store: insert fee event %s/%s: %w", f.EventType, f.TxSignature, err)
	}
	return nil
}

// ProtocolConfig mirrors the program's global configuration account.
type ProtocolConfig struct {
	Admin             string
	Treasury          string
	OpenFeeBps        int64
	CloseFeeBps       int64
	LiquidationFeeBps int64
	Paused            bool
	UpdatedAt         time.Time
}

type ProtocolStore struct {
	db *sql.DB
}

func NewProtocolStore(db *sql.DB) *ProtocolStore {
	return &ProtocolStore{db: db}
}

// Upsert overwrites the protocol config mirror wholesale.
func (s *ProtocolStore) Upsert(ctx context.Context, p ProtocolConfig) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO baskt.protocol_state
			(singleton, admin, treasury, open_fee_bps, close_fee_bps,
			 liquidation_fee_bps, paused, updated_at)
		VALUES (TRUE, $1, $2, $3, $4, $5, $6, NOW())
		ON CONFLICT (singleton) DO UPDATE SET
			admin = EXCLUDED.admin,
			treasury = EXCLUDED.treasury,
			open_fee_bps = EXCLUDED.open_fee_bps,
			close_fee_bps = EXCLUDED.close_fee_bps,
			liquidation_fee_bps = EXCLUDED.liquidation_fee_bps,
			paused = EXCLUDED.paused,
			updated_at = NOW()
	`, p.Admin, p.Treasury, p.OpenFeeBps, p.CloseFeeBps,
		p.LiquidationFeeBps, p.Paused)
	if err != nil {
		return fmt.Errorf("store: upsert protocol state: %w", err)
	}
	return nil
}

// Get returns the protocol config mirror.
func (s *ProtocolStore) Get(ctx context.Context) (*ProtocolConfig, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT admin, treasury, open_fee_bps, close_fee_bps,
		       liquidation_fee_bps, paused, updated_at
		FROM baskt.protocol_state WHERE singleton
	`)

	var p ProtocolConfig
	err := row.Scan(&p.Admin, &p.Treasury, &p.OpenFeeBps, &p.CloseFeeBps,
		&p.LiquidationFeeBps, &p.Paused, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get protocol state: %w", err)
	}
	return &p, nil
}
