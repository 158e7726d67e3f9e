package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"BasktSync/internal/event"
)

// OrderStatus is the read-model lifecycle of an order projection.
type OrderStatus string

const (
	OrderPending   OrderStatus = "PENDING"
	OrderFilled    OrderStatus = "FILLED"
	OrderCancelled OrderStatus = "CANCELLED"
	OrderFailed    OrderStatus = "FAILED"
)

// Order is the read-model projection of an on-chain order. It is owned by
// the order handlers and mutated only through status transitions.
type Order struct {
	OrderPDA    string
	OrderID     uint64
	BasktID     string
	Owner       string
	Action      event.OrderAction
	Status      OrderStatus
	OpenParams  *event.OpenParams
	CloseParams *event.CloseParams
	PositionPDA sql.NullString
	TxRef       sql.NullString
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type OrderStore struct {
	db *sql.DB
}

func NewOrderStore(db *sql.DB) *OrderStore {
	return &OrderStore{db: db}
}

// Upsert creates the order projection, or refreshes its immutable fields if
// the delivery was replayed. The status of an existing row is left alone so
// a replay cannot regress FILLED back to PENDING.
func (s *OrderStore) Upsert(ctx context.Context, o Order) error {
	openParams, err := marshalNullable(o.OpenParams)
	if err != nil {
		return fmt.Errorf("store: marshal open params: %w", err)
	}
	closeParams, err := marshalNullable(o.CloseParams)
	if err != nil {
		return fmt.Errorf("store: marshal close params: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO baskt.orders
			(order_pda, order_id, baskt_id, owner, action, status,
			 open_params, close_params, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
		ON CONFLICT (order_pda) DO UPDATE SET
			open_params = EXCLUDED.open_params,
			close_params = EXCLUDED.close_params,
			updated_at = NOW()
	`, o.OrderPDA, int64(o.OrderID), o.BasktID, o.Owner, string(o.Action),
		string(o.Status), openParams, closeParams, o.CreatedAt)
	if err != nil {
		return fmt.Errorf("store: upsert order %s: %w", o.OrderPDA, err)
	}
	return nil
}

// Get returns the order projection for a PDA.
func (s *OrderStore) Get(ctx context.Context, orderPDA string) (*Order, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT order_pda, order_id, baskt_id, owner, action, status,
		       open_params, close_params, position_pda, tx_ref,
		       created_at, updated_at
		FROM baskt.orders WHERE order_pda = $1
	`, orderPDA)

	var o Order
	var orderID int64
	var action, status string
	var openParams, closeParams []byte
	err := row.Scan(&o.OrderPDA, &orderID, &o.BasktID, &o.Owner, &action,
		&status, &openParams, &closeParams, &o.PositionPDA, &o.TxRef,
		&o.CreatedAt, &o.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get order %s: %w", orderPDA, err)
	}

	o.OrderID = uint64(orderID)
	o.Action = event.OrderAction(action)
	o.Status = OrderStatus(status)
	if err := unmarshalNullable(openParams, &o.OpenParams); err != nil {
		return nil, fmt.Errorf("store: decode open params: %w", err)
	}
	if err := unmarshalNullable(closeParams, &o.CloseParams); err != nil {
		return nil, fmt.Errorf("store: decode close params: %w", err)
	}
	return &o, nil
}

// MarkFilled transitions a PENDING order to FILLED, recording the position
// reference and the transaction that filled it. Returns false when the order
// was already past PENDING, which is how replays detect they are a no-op.
func (s *OrderStore) MarkFilled(ctx context.Context, orderPDA, positionPDA, txRef string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE baskt.orders
		SET status = $2, position_pda = $3, tx_ref = $4, updated_at = NOW()
		WHERE order_pda = $1 AND status = $5
	`, orderPDA, string(OrderFilled), positionPDA, txRef, string(OrderPending))
	if err != nil {
		return false, fmt.Errorf("store: mark order %s filled: %w", orderPDA, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// SetStatus applies a terminal status transition (CANCELLED, FAILED) to a
// PENDING order.
func (s *OrderStore) SetStatus(ctx context.Context, orderPDA string, status OrderStatus) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE baskt.orders
		SET status = $2, updated_at = NOW()
		WHERE order_pda = $1 AND status = $3
	`, orderPDA, string(status), string(OrderPending))
	if err != nil {
		return fmt.Errorf("store: set order %s status %s: %w", orderPDA, status, err)
	}
	return nil
}

func marshalNullable(v any) ([]byte, error) {
	switch t := v.(type) {
	case *event.OpenParams:
		if t == nil {
			return nil, nil
		}
	case *event.CloseParams:
		if t == nil {
			return nil, nil
		}
	}
	return json.Marshal(v)
}

func unmarshalNullable(data []byte, out any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, out)
}
