package chain

import (
	"BasktSync/internal/event"
)

// On-chain account mirrors, as returned by the gateway's point lookups.
// Field sets follow the baskt program's account layouts; amounts are int64
// base units, prices fixed-point at event.PriceScale.

type Order struct {
	OrderPDA    string             `json:"order_pda"`
	OrderID     uint64             `json:"order_id"`
	BasktID     string             `json:"baskt_id"`
	Owner       string             `json:"owner"`
	Action      event.OrderAction  `json:"action"`
	OpenParams  *event.OpenParams  `json:"open_params,omitempty"`
	CloseParams *event.CloseParams `json:"close_params,omitempty"`
}

type Position struct {
	PositionPDA string `json:"position_pda"`
	Owner       string `json:"owner"`
	BasktID     string `json:"baskt_id"`
	Size        int64  `json:"size"`
	Collateral  int64  `json:"collateral"`
	EntryPrice  int64  `json:"entry_price"`
	IsLong      bool   `json:"is_long"`
	OpenedAt    int64  `json:"opened_at"`
}

type Baskt struct {
	BasktID     string              `json:"baskt_id"`
	Name        string              `json:"name"`
	Creator     string              `json:"creator"`
	Status      string              `json:"status"`
	BaselineNav int64               `json:"baseline_nav"`
	FeeIndex    int64               `json:"fee_index"`
	Assets      []event.AssetWeight `json:"assets"`
}

type Asset struct {
	AssetPDA string `json:"asset_pda"`
	Ticker   string `json:"ticker"`
	Active   bool   `json:"active"`
	Price    int64  `json:"price"`
}

type Pool struct {
	TotalLiquidity    int64  `json:"total_liquidity"`
	TotalShares       int64  `json:"total_shares"`
	PendingLpTokens   int64  `json:"pending_lp_tokens"`
	WithdrawQueueHead uint64 `json:"withdraw_queue_head"`
	WithdrawQueueTail uint64 `json:"withdraw_queue_tail"`
	DepositFeeBps     int64  `json:"deposit_fee_bps"`
	WithdrawalFeeBps  int64  `json:"withdrawal_fee_bps"`
	UpdatedAt         int64  `json:"updated_at"`
}

type WithdrawRequest struct {
	RequestID uint64 `json:"request_id"`
	Provider  string `json:"provider"`
	LpAmount  int64  `json:"lp_amount"`
	CreatedAt int64  `json:"created_at"`
}

type ProtocolState struct {
	Admin             string `json:"admin"`
	Treasury          string `json:"treasury"`
	OpenFeeBps        int64  `json:"open_fee_bps"`
	CloseFeeBps       int64  `json:"close_fee_bps"`
	LiquidationFeeBps int64  `json:"liquidation_fee_bps"`
	Paused            bool   `json:"paused"`
}
