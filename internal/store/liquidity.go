package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// LiquidityPool is the off-chain mirror of the on-chain pool aggregate.
// It is refreshed by wholesale resync from the ledger; the engine never
// computes it incrementally.
type LiquidityPool struct {
	TotalLiquidity    int64
	TotalShares       int64
	PendingLpTokens   int64
	WithdrawQueueHead uint64
	WithdrawQueueTail uint64
	DepositFeeBps     int64
	WithdrawalFeeBps  int64
	LastUpdateTs      int64
}

// WithdrawStatus is the lifecycle of a queued withdrawal request.
type WithdrawStatus string

const (
	WithdrawQueued     WithdrawStatus = "QUEUED"
	WithdrawProcessing WithdrawStatus = "PROCESSING"
	WithdrawCompleted  WithdrawStatus = "COMPLETED"
)

// WithdrawRequest mirrors one on-chain withdrawal queue entry. Requests are
// drained strictly in request-id order by tail advancement.
type WithdrawRequest struct {
	RequestID   uint64
	Provider    string
	RequestedLp int64
	RemainingLp int64
	LpBurned    int64
	AmountPaid  int64
	Status      WithdrawStatus
	RequestedAt time.Time
	ProcessedAt sql.NullTime
}

type LiquidityStore struct {
	db *sql.DB
}

func NewLiquidityStore(db *sql.DB) *LiquidityStore {
	return &LiquidityStore{db: db}
}

// UpsertPool overwrites the singleton pool mirror with a fresh ledger read.
func (s *LiquidityStore) UpsertPool(ctx context.Context, p LiquidityPool) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO baskt.pool
			(singleton, total_liquidity, total_shares, pending_lp_tokens,
			 withdraw_queue_head, withdraw_queue_tail,
			 deposit_fee_bps, withdrawal_fee_bps, last_update_ts)
		VALUES (TRUE, $1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (singleton) DO UPDATE SET
			total_liquidity = EXCLUDED.total_liquidity,
			total_shares = EXCLUDED.total_shares,
			pending_lp_tokens = EXCLUDED.pending_lp_tokens,
			withdraw_queue_head = EXCLUDED.withdraw_queue_head,
			withdraw_queue_tail = EXCLUDED.withdraw_queue_tail,
			deposit_fee_bps = EXCLUDED.deposit_fee_bps,
			withdrawal_fee_bps = EXCLUDED.withdrawal_fee_bps,
			last_update_ts = EXCLUDED.last_update_ts
	`, p.TotalLiquidity, p.TotalShares, p.PendingLpTokens,
		int64(p.WithdrawQueueHead), int64(p.WithdrawQueueTail),
		p.DepositFeeBps, p.WithdrawalFeeBps, p.LastUpdateTs)
	if err != nil {
		return fmt.Errorf("store: upsert pool: %w", err)
	}
	return nil
}

// GetPool returns the pool mirror.
func (s *LiquidityStore) GetPool(ctx context.Context) (*LiquidityPool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT total_liquidity, total_shares, pending_lp_tokens,
		       withdraw_queue_head, withdraw_queue_tail,
		       deposit_fee_bps, withdrawal_fee_bps, last_update_ts
		FROM baskt.pool WHERE singleton
	`)

	var p LiquidityPool
	var head, tail int64
	err := row.Scan(&p.TotalLiquidity, &p.TotalShares, &p.PendingLpTokens,
		&head, &tail, &p.DepositFeeBps, &p.WithdrawalFeeBps, &p.LastUpdateTs)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get pool: %w", err)
	}
	p.WithdrawQueueHead = uint64(head)
	p.WithdrawQueueTail = uint64(tail)
	return &p, nil
}

// CreateRequest inserts a queued withdrawal request. Returns false when the
// request id already exists (redelivery).
func (s *LiquidityStore) CreateRequest(ctx context.Context, r WithdrawRequest) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO baskt.withdraw_requests
			(request_id, provider, requested_lp, remaining_lp, status, requested_at)
		VALUES ($1, $2, $3, $3, $4, $5)
		ON CONFLICT (request_id) DO NOTHING
	`, int64(r.RequestID), r.Provider, r.RequestedLp, string(WithdrawQueued), r.RequestedAt)
	if err != nil {
		return false, fmt.Errorf("store: create withdraw request %d: %w", r.RequestID, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// GetRequest returns one withdrawal request.
func (s *LiquidityStore) GetRequest(ctx context.Context, requestID uint64) (*WithdrawRequest, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT request_id, provider, requested_lp, remaining_lp,
		       lp_burned, amount_paid, status, requested_at, processed_at
		FROM baskt.withdraw_requests WHERE request_id = $1
	`, int64(requestID))

	var r WithdrawRequest
	var id int64
	var status string
	err := row.Scan(&id, &r.Provider, &r.RequestedLp, &r.RemainingLp,
		&r.LpBurned, &r.AmountPaid, &status, &r.RequestedAt, &r.ProcessedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get withdraw request %d: %w", requestID, err)
	}
	r.RequestID = uint64(id)
	r.Status = WithdrawStatus(status)
	return &r, nil
}

// HasEarlierQueued reports whether any request before requestID is still
// queued. The queue is FIFO: request n is never processed while n-1 is
// outstanding, so a true result means the delivery arrived out of order.
func (s *LiquidityStore) HasEarlierQueued(ctx context.Context, requestID uint64) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM baskt.withdraw_requests
			WHERE request_id < $1 AND status = $2
		)
	`, int64(requestID), string(WithdrawQueued)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("store: fifo check %d: %w", requestID, err)
	}
	return exists, nil
}

// ApplyProcessed records the amount actually paid and LP actually burned
// for one processing pass over a request. Partial fulfilment leaves the
// request PROCESSING with the remainder; full fulfilment completes it.
// The accumulators make replays idempotent: processing is keyed by absolute
// burned totals reported by the ledger, not by deltas.
func (s *LiquidityStore) ApplyProcessed(ctx context.Context, requestID uint64, lpBurnedTotal, amountPaidTotal int64) (WithdrawStatus, error) {
	var status string
	err := s.db.QueryRowContext(ctx, `
		UPDATE baskt.withdraw_requests
		SET lp_burned = GREATEST(lp_burned, $2),
		    amount_paid = GREATEST(amount_paid, $3),
		    remaining_lp = GREATEST(requested_lp - GREATEST(lp_burned, $2), 0),
		    status = CASE
			WHEN requested_lp - GREATEST(lp_burned, $2) <= 0 THEN $4
			ELSE $5
		    END,
		    processed_at = NOW()
		WHERE request_id = $1 AND status <> $4
		RETURNING status
	`, int64(requestID), lpBurnedTotal, amountPaidTotal,
		string(WithdrawCompleted), string(WithdrawProcessing)).Scan(&status)
	if err == sql.ErrNoRows {
		// Already completed by an earlier delivery.
		return WithdrawCompleted, nil
	}
	if err != nil {
		return "", fmt.Errorf("store: apply processed %d: %w", requestID, err)
	}
	return WithdrawStatus(status), nil
}
