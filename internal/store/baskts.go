package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"BasktSync/internal/event"
)

// BasktStatus is the lifecycle of a baskt.
type BasktStatus string

const (
	BasktPending         BasktStatus = "Pending"
	BasktActive          BasktStatus = "Active"
	BasktDecommissioning BasktStatus = "Decommissioning"
	BasktClosed          BasktStatus = "Closed"
)

// BasktStats aggregates open interest and volume per direction.
type BasktStats struct {
	LongOpenInterest  int64
	ShortOpenInterest int64
	LongVolume        int64
	ShortVolume       int64
}

// BasktMetadata mirrors one baskt. AssetConfigs and BaselineNav are
// overwritten wholesale from the ledger on every activation and rebalance,
// never patched field by field.
type BasktMetadata struct {
	BasktID        string
	Name           string
	Creator        string
	Status         BasktStatus
	BaselineNav    int64
	FeeIndex       int64
	RebalanceCount int64
	AssetConfigs   []event.AssetWeight
	Stats          BasktStats
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// RebalanceHistoryEntry is an immutable record of a single rebalance,
// capturing the configuration before and after. Keyed by the rebalancing
// transaction so redeliveries append nothing.
type RebalanceHistoryEntry struct {
	BasktID    string
	TxRef      string
	PrevAssets []event.AssetWeight
	NewAssets  []event.AssetWeight
	PrevNav    int64
	NewNav     int64
	FeeIndex   int64
	CreatedAt  time.Time
}

type BasktStore struct {
	db *sql.DB
}

func NewBasktStore(db *sql.DB) *BasktStore {
	return &BasktStore{db: db}
}

// Upsert creates the baskt metadata row or refreshes it wholesale.
func (s *BasktStore) Upsert(ctx context.Context, b BasktMetadata) error {
	assets, err := json.Marshal(b.AssetConfigs)
	if err != nil {
		return fmt.Errorf("store: marshal asset configs: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO baskt.baskts
			(baskt_id, name, creator, status, baseline_nav, fee_index,
			 rebalance_count, assets, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
		ON CONFLICT (baskt_id) DO UPDATE SET
			status = EXCLUDED.status,
			baseline_nav = EXCLUDED.baseline_nav,
			fee_index = EXCLUDED.fee_index,
			assets = EXCLUDED.assets,
			updated_at = NOW()
	`, b.BasktID, b.Name, b.Creator, string(b.Status), b.BaselineNav,
		b.FeeIndex, b.RebalanceCount, assets, b.CreatedAt)
	if err != nil {
		return fmt.Errorf("store: upsert baskt %s: %w", b.BasktID, err)
	}
	return nil
}

// Get returns the baskt metadata for an id.
func (s *BasktStore) Get(ctx context.Context, basktID string) (*BasktMetadata, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT baskt_id, name, creator, status, baseline_nav, fee_index,
		       rebalance_count, assets,
		       long_open_interest, short_open_interest,
		       long_volume, short_volume,
		       created_at, updated_at
		FROM baskt.baskts WHERE baskt_id = $1
	`, basktID)

	var b BasktMetadata
	var status string
	var assets []byte
	err := row.Scan(&b.BasktID, &b.Name, &b.Creator, &status, &b.BaselineNav,
		&b.FeeIndex, &b.RebalanceCount, &assets,
		&b.Stats.LongOpenInterest, &b.Stats.ShortOpenInterest,
		&b.Stats.LongVolume, &b.Stats.ShortVolume,
		&b.CreatedAt, &b.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get baskt %s: %w", basktID, err)
	}

	b.Status = BasktStatus(status)
	if len(assets) > 0 {
		if err := json.Unmarshal(assets, &b.AssetConfigs); err != nil {
			return nil, fmt.Errorf("store: decode asset configs: %w", err)
		}
	}
	return &b, nil
}

// SetStatus moves the baskt through its lifecycle.
func (s *BasktStore) SetStatus(ctx context.Context, basktID string, status BasktStatus) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE baskt.baskts SET status = $2, updated_at = NOW()
		WHERE baskt_id = $1
	`, basktID, string(status))
	if err != nil {
		return fmt.Errorf("store: set baskt %s status %s: %w", basktID, status, err)
	}
	return nil
}

// ResyncConfig replaces the asset configuration and baseline NAV wholesale
// and, when bumpRebalance is set, advances the rebalance counter.
func (s *BasktStore) ResyncConfig(ctx context.Context, basktID string, configs []event.AssetWeight, baselineNav, feeIndex int64, bumpRebalance bool) error {
	assets, err := json.Marshal(configs)
	if err != nil {
		return fmt.Errorf("store: marshal asset configs: %w", err)
	}

	bump := int64(0)
	if bumpRebalance {
		bump = 1
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE baskt.baskts
		SET assets = $2, baseline_nav = $3, fee_index = $4,
		    rebalance_count = rebalance_count + $5, updated_at = NOW()
		WHERE baskt_id = $1
	`, basktID, assets, baselineNav, feeIndex, bump)
	if err != nil {
		return fmt.Errorf("store: resync baskt %s config: %w", basktID, err)
	}
	return nil
}

// AppendRebalance appends one immutable rebalance record. Insert-once by
// transaction reference; returns false when the record already existed so a
// replayed rebalance does not advance the counter twice.
func (s *BasktStore) AppendRebalance(ctx context.Context, e RebalanceHistoryEntry) (bool, error) {
	prev, err := json.Marshal(e.PrevAssets)
	if err != nil {
		return false, fmt.Errorf("store: marshal prev assets: %w", err)
	}
	next, err := json.Marshal(e.NewAssets)
	if err != nil {
		return false, fmt.Errorf("store: marshal new assets: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO baskt.rebalance_history
			(baskt_id, tx_ref, prev_assets, new_assets, prev_nav, new_nav,
			 fee_index, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		ON CONFLICT (tx_ref) DO NOTHING
	`, e.BasktID, e.TxRef, prev, next, e.PrevNav, e.NewNav, e.FeeIndex)
	if err != nil {
		return false, fmt.Errorf("store: append rebalance %s: %w", e.TxRef, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}
