package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"BasktSync/internal/event"
)

// PositionStatus is the read-model lifecycle of a position.
type PositionStatus string

const (
	PositionOpen       PositionStatus = "OPEN"
	PositionClosed     PositionStatus = "CLOSED"
	PositionLiquidated PositionStatus = "LIQUIDATED"
)

// Position mirrors one on-chain position. RemainingSize is monotonically
// non-increasing and always equals Size minus the sum of recorded close
// amounts; the status flips to CLOSED exactly when it reaches zero.
type Position struct {
	PositionPDA         string
	Owner               string
	BasktID             string
	Size                int64
	RemainingSize       int64
	Collateral          int64
	RemainingCollateral int64
	EntryPrice          int64
	IsLong              bool
	Status              PositionStatus
	ExitPrice           sql.NullInt64
	History             []PartialCloseEntry
	OpenedAt            time.Time
	ClosedAt            sql.NullTime
}

// PartialCloseEntry is one slice of a position close, keyed by the
// transaction that settled it. Rows are append-only.
type PartialCloseEntry struct {
	TxRef       string
	CloseAmount int64
	ClosePrice  int64
	Settlement  event.SettlementDetails
	CreatedAt   time.Time
}

type PositionStore struct {
	db *sql.DB
}

func NewPositionStore(db *sql.DB) *PositionStore {
	return &PositionStore{db: db}
}

// Create inserts a new position projection. Returns false when the PDA
// already exists, so replayed open flows are a no-op.
func (s *PositionStore) Create(ctx context.Context, p Position) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO baskt.positions
			(position_pda, owner, baskt_id, size, remaining_size,
			 collateral, remaining_collateral, entry_price, is_long,
			 status, opened_at, updated_at)
		VALUES ($1, $2, $3, $4, $4, $5, $5, $6, $7, $8, $9, NOW())
		ON CONFLICT (position_pda) DO NOTHING
	`, p.PositionPDA, p.Owner, p.BasktID, p.Size, p.Collateral,
		p.EntryPrice, p.IsLong, string(PositionOpen), p.OpenedAt)
	if err != nil {
		return false, fmt.Errorf("store: create position %s: %w", p.PositionPDA, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// Get returns a position with its partial-close history.
func (s *PositionStore) Get(ctx context.Context, positionPDA string) (*Position, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT position_pda, owner, baskt_id, size, remaining_size,
		       collateral, remaining_collateral, entry_price, is_long,
		       status, exit_price, opened_at, closed_at
		FROM baskt.positions WHERE position_pda = $1
	`, positionPDA)

	var p Position
	var status string
	err := row.Scan(&p.PositionPDA, &p.Owner, &p.BasktID, &p.Size,
		&p.RemainingSize, &p.Collateral, &p.RemainingCollateral,
		&p.EntryPrice, &p.IsLong, &status, &p.ExitPrice,
		&p.OpenedAt, &p.ClosedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get position %s: %w", positionPDA, err)
	}
	p.Status = PositionStatus(status)

	rows, err := s.db.QueryContext(ctx, `
		SELECT tx_ref, close_amount, close_price, settlement, created_at
		FROM baskt.position_closes
		WHERE position_pda = $1
		ORDER BY created_at, tx_ref
	`, positionPDA)
	if err != nil {
		return nil, fmt.Errorf("store: get close history %s: %w", positionPDA, err)
	}
	defer rows.Close()

	for rows.Next() {
		var e PartialCloseEntry
		var settlement []byte
		if err := rows.Scan(&e.TxRef, &e.CloseAmount, &e.ClosePrice, &settlement, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: scan close entry: %w", err)
		}
		if err := json.Unmarshal(settlement, &e.Settlement); err != nil {
			return nil, fmt.Errorf("store: decode settlement: %w", err)
		}
		p.History = append(p.History, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &p, nil
}

// ApplyClose records one close slice, decrements the remaining size and
// collateral, and moves the owning baskt's open interest and volume, all in
// a single transaction. The history row is keyed by the settling
// transaction, so a redelivered event inserts nothing and every other write
// is skipped: replays converge instead of double-counting.
// Returns (applied, fullyClosed).
func (s *PositionStore) ApplyClose(ctx context.Context, positionPDA string, e PartialCloseEntry) (bool, bool, error) {
	settlement, err := json.Marshal(e.Settlement)
	if err != nil {
		return false, false, fmt.Errorf("store: marshal settlement: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, false, fmt.Errorf("store: begin close tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO baskt.position_closes
			(tx_ref, position_pda, close_amount, close_price, settlement, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (tx_ref) DO NOTHING
	`, e.TxRef, positionPDA, e.CloseAmount, e.ClosePrice, settlement)
	if err != nil {
		return false, false, fmt.Errorf("store: insert close entry: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// Already applied by an earlier delivery of the same transaction.
		return false, false, nil
	}

	var remaining int64
	var status, basktID string
	var isLong bool
	err = tx.QueryRowContext(ctx, `
		UPDATE baskt.positions
		SET remaining_size = remaining_size - $2,
		    remaining_collateral = GREATEST(remaining_collateral - $3, 0),
		    status = CASE WHEN remaining_size - $2 <= 0 THEN $4 ELSE status END,
		    closed_at = CASE WHEN remaining_size - $2 <= 0 THEN NOW() ELSE closed_at END,
		    updated_at = NOW()
		WHERE position_pda = $1 AND status = $5 AND remaining_size >= $2
		RETURNING remaining_size, status, baskt_id, is_long
	`, positionPDA, e.CloseAmount, e.Settlement.CollateralToRelease,
		string(PositionClosed), string(PositionOpen)).Scan(&remaining, &status, &basktID, &isLong)
	if err == sql.ErrNoRows {
		return false, false, fmt.Errorf(
			"store: close of %d rejected for position %s: not open or exceeds remaining size",
			e.CloseAmount, positionPDA)
	}
	if err != nil {
		return false, false, fmt.Errorf("store: apply close %s: %w", positionPDA, err)
	}

	if err := adjustBasktStats(ctx, tx, basktID, isLong, e.CloseAmount, e.ClosePrice); err != nil {
		return false, false, err
	}

	if err := tx.Commit(); err != nil {
		return false, false, fmt.Errorf("store: commit close: %w", err)
	}
	return true, PositionStatus(status) == PositionClosed, nil
}

// MarkLiquidated terminally closes a position in one step, shrinking the
// owning baskt's open interest by the full remainder in the same
// transaction. Liquidation never leaves a remainder and does not append to
// the partial-close history. Returns false when the position was missing or
// already terminal (replay).
func (s *PositionStore) MarkLiquidated(ctx context.Context, positionPDA string, exitPrice int64, settlement event.SettlementDetails) (bool, error) {
	data, err := json.Marshal(settlement)
	if err != nil {
		return false, fmt.Errorf("store: marshal settlement: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("store: begin liquidation tx: %w", err)
	}
	defer tx.Rollback()

	var remainder int64
	var basktID string
	var isLong bool
	err = tx.QueryRowContext(ctx, `
		SELECT remaining_size, baskt_id, is_long
		FROM baskt.positions
		WHERE position_pda = $1 AND status = $2
		FOR UPDATE
	`, positionPDA, string(PositionOpen)).Scan(&remainder, &basktID, &isLong)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("store: lock position %s: %w", positionPDA, err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE baskt.positions
		SET status = $2, exit_price = $3, liquidation_settlement = $4,
		    remaining_size = 0, remaining_collateral = 0,
		    closed_at = NOW(), updated_at = NOW()
		WHERE position_pda = $1
	`, positionPDA, string(PositionLiquidated), exitPrice, data)
	if err != nil {
		return false, fmt.Errorf("store: liquidate position %s: %w", positionPDA, err)
	}

	if err := adjustBasktStats(ctx, tx, basktID, isLong, remainder, exitPrice); err != nil {
		return false, err
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("store: commit liquidation: %w", err)
	}
	return true, nil
}

// adjustBasktStats shrinks one side's open interest by the closed contracts
// and grows that side's all-time volume by the slice's notional. Runs inside
// the close or liquidation transaction so the counters move exactly once per
// applied slice.
func adjustBasktStats(ctx context.Context, tx *sql.Tx, basktID string, isLong bool, contracts, price int64) error {
	notional := event.Notional(contracts, price)
	long, short := contracts, int64(0)
	longVol, shortVol := notional, int64(0)
	if !isLong {
		long, short = 0, contracts
		longVol, shortVol = 0, notional
	}

	_, err := tx.ExecContext(ctx, `
		UPDATE baskt.baskts
		SET long_open_interest = long_open_interest - $2,
		    short_open_interest = short_open_interest - $3,
		    long_volume = long_volume + $4,
		    short_volume = short_volume + $5,
		    updated_at = NOW()
		WHERE baskt_id = $1
	`, basktID, long, short, longVol, shortVol)
	if err != nil {
		return fmt.Errorf("store: adjust baskt %s stats: %w", basktID, err)
	}
	return nil
}

// AddCollateral overwrites the remaining collateral with the value reported
// by the ledger. Idempotent by construction: the event carries the absolute
// new collateral, not a delta.
func (s *PositionStore) AddCollateral(ctx context.Context, positionPDA string, newCollateral int64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE baskt.positions
		SET collateral = $2, remaining_collateral = $2, updated_at = NOW()
		WHERE position_pda = $1 AND status = $3
	`, positionPDA, newCollateral, string(PositionOpen))
	if err != nil {
		return fmt.Errorf("store: add collateral %s: %w", positionPDA, err)
	}
	return nil
}
