package event

// Typed payloads for every event in the catalog. All monetary amounts are
// int64 base units of the collateral mint; prices are fixed-point with
// PriceScale decimals, matching the on-chain representation.

// PriceScale is the fixed-point scale for prices and NAV values.
const PriceScale int64 = 1_000_000

// Notional returns the quote-denominated value of size contracts at price.
func Notional(size, price int64) int64 {
	return size * price / PriceScale
}

// OpenParams are the open-side parameters of an order.
type OpenParams struct {
	Size       int64 `json:"size"`
	Collateral int64 `json:"collateral"`
	IsLong     bool  `json:"is_long"`
	Leverage   int64 `json:"leverage"`
}

// CloseParams are the close-side parameters of an order.
type CloseParams struct {
	PositionPDA string `json:"position_pda"`
	SizeToClose int64  `json:"size_to_close"`
}

type OrderCreatedPayload struct {
	OrderPDA    string       `json:"order_pda"`
	OrderID     uint64       `json:"order_id"`
	BasktID     string       `json:"baskt_id"`
	Owner       string       `json:"owner"`
	Action      OrderAction  `json:"action"`
	OpenParams  *OpenParams  `json:"open_params,omitempty"`
	CloseParams *CloseParams `json:"close_params,omitempty"`
	Timestamp   int64        `json:"timestamp"`
}

type OrderCancelledPayload struct {
	OrderPDA string `json:"order_pda"`
	OrderID  uint64 `json:"order_id"`
	Owner    string `json:"owner"`
}

type PositionOpenedPayload struct {
	PositionPDA string `json:"position_pda"`
	OrderPDA    string `json:"order_pda"`
	Owner       string `json:"owner"`
	BasktID     string `json:"baskt_id"`
	Size        int64  `json:"size"`
	Collateral  int64  `json:"collateral"`
	EntryPrice  int64  `json:"entry_price"`
	IsLong      bool   `json:"is_long"`
	Timestamp   int64  `json:"timestamp"`
}

type PositionClosedPayload struct {
	PositionPDA string            `json:"position_pda"`
	BasktID     string            `json:"baskt_id"`
	CloseAmount int64             `json:"close_amount"`
	ClosePrice  int64             `json:"close_price"`
	IsLong      bool              `json:"is_long"`
	Settlement  SettlementDetails `json:"settlement"`
	Timestamp   int64             `json:"timestamp"`
}

type PositionLiquidatedPayload struct {
	PositionPDA string            `json:"position_pda"`
	BasktID     string            `json:"baskt_id"`
	ExitPrice   int64             `json:"exit_price"`
	IsLong      bool              `json:"is_long"`
	Settlement  SettlementDetails `json:"settlement"`
	Timestamp   int64             `json:"timestamp"`
}

type CollateralAddedPayload struct {
	PositionPDA   string `json:"position_pda"`
	Amount        int64  `json:"amount"`
	NewCollateral int64  `json:"new_collateral"`
}

type BasktCreatedPayload struct {
	BasktID   string `json:"baskt_id"`
	BasktPDA  string `json:"baskt_pda"`
	Name      string `json:"name"`
	Creator   string `json:"creator"`
	Timestamp int64  `json:"timestamp"`
}

// AssetWeight is one asset's configuration inside a baskt, as carried on
// activation and rebalance events.
type AssetWeight struct {
	Ticker        string `json:"ticker"`
	AssetPDA      string `json:"asset_pda"`
	WeightBps     int64  `json:"weight_bps"`
	BaselinePrice int64  `json:"baseline_price"`
	Direction     int8   `json:"direction"` // +1 long, -1 short
}

type BasktActivatedPayload struct {
	BasktID     string        `json:"baskt_id"`
	BaselineNav int64         `json:"baseline_nav"`
	Assets      []AssetWeight `json:"assets"`
	Timestamp   int64         `json:"timestamp"`
}

type BasktConfigUpdatedPayload struct {
	BasktID     string        `json:"baskt_id"`
	BaselineNav int64         `json:"baseline_nav"`
	Assets      []AssetWeight `json:"assets"`
}

type BasktRebalancedPayload struct {
	BasktID        string        `json:"baskt_id"`
	NewBaselineNav int64         `json:"new_baseline_nav"`
	NewAssets      []AssetWeight `json:"new_assets"`
	FeeIndex       int64         `json:"fee_index"`
	Timestamp      int64         `json:"timestamp"`
}

type BasktClosedPayload struct {
	BasktID string `json:"baskt_id"`
}

type BasktDecommissioningPayload struct {
	BasktID string `json:"baskt_id"`
}

type RebalanceRequestPayload struct {
	BasktID     string `json:"baskt_id"`
	RequestedBy string `json:"requested_by"`
	Timestamp   int64  `json:"timestamp"`
}

type LiquidityAddedPayload struct {
	Provider     string `json:"provider"`
	Amount       int64  `json:"amount"`
	SharesMinted int64  `json:"shares_minted"`
	Fee          int64  `json:"fee"`
	Timestamp    int64  `json:"timestamp"`
}

type WithdrawalQueuedPayload struct {
	RequestID uint64 `json:"request_id"`
	Provider  string `json:"provider"`
	LpAmount  int64  `json:"lp_amount"`
	Timestamp int64  `json:"timestamp"`
}

// WithdrawQueueProcessedPayload reports one processing pass over the queue
// head. LpBurned and AmountPaid are cumulative totals for the request, which
// may be less than requested when the pool could only partially fulfil it.
type WithdrawQueueProcessedPayload struct {
	RequestID  uint64 `json:"request_id"`
	Provider   string `json:"provider"`
	LpBurned   int64  `json:"lp_burned"`
	AmountPaid int64  `json:"amount_paid"`
	Fee        int64  `json:"fee"`
	Timestamp  int64  `json:"timestamp"`
}

type ProtocolStateUpdatedPayload struct {
	Admin             string `json:"admin"`
	Treasury          string `json:"treasury"`
	OpenFeeBps        int64  `json:"open_fee_bps"`
	CloseFeeBps       int64  `json:"close_fee_bps"`
	LiquidationFeeBps int64  `json:"liquidation_fee_bps"`
	Paused            bool   `json:"paused"`
	Timestamp         int64  `json:"timestamp"`
}
