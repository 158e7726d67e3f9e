package chain

import (
	"context"
)

// Reader performs point lookups of on-chain accounts by PDA. Reads issued
// right after an event was observed are subject to read-after-write lag and
// must go through ReadWithRetry.
type Reader interface {
	GetOrder(ctx context.Context, orderPDA string) (*Order, error)
	GetPosition(ctx context.Context, positionPDA string) (*Position, error)
	GetBaskt(ctx context.Context, basktID string) (*Baskt, error)
	GetAsset(ctx context.Context, assetPDA string) (*Asset, error)
	GetPool(ctx context.Context) (*Pool, error)
	GetWithdrawRequest(ctx context.Context, requestID uint64) (*WithdrawRequest, error)
	GetProtocolState(ctx context.Context) (*ProtocolState, error)
}

// OpenPositionParams are the arguments of the program's openPosition
// instruction.
type OpenPositionParams struct {
	PositionID string `json:"position_id"`
	OrderPDA   string `json:"order_pda"`
	Owner      string `json:"owner"`
	BasktID    string `json:"baskt_id"`
	Size       int64  `json:"size"`
	Collateral int64  `json:"collateral"`
	EntryPrice int64  `json:"entry_price"`
	IsLong     bool   `json:"is_long"`
}

// ClosePositionParams are the arguments of the closePosition instruction.
type ClosePositionParams struct {
	PositionPDA string `json:"position_pda"`
	OrderPDA    string `json:"order_pda"`
	SizeToClose int64  `json:"size_to_close"`
}

// ActivateBasktParams are the arguments of the activateBaskt instruction.
type ActivateBasktParams struct {
	BasktID     string          `json:"baskt_id"`
	BaselineNav int64           `json:"baseline_nav"`
	Assets      []AssetBaseline `json:"assets"`
}

// AssetBaseline fixes one asset's baseline price at activation time.
type AssetBaseline struct {
	AssetPDA      string `json:"asset_pda"`
	BaselinePrice int64  `json:"baseline_price"`
}

// Submitter submits new transactions back to the ledger. Each call returns
// the transaction signature or an error; submission is asynchronous on-chain
// and the resulting events flow back through the subscription.
type Submitter interface {
	OpenPosition(ctx context.Context, p OpenPositionParams) (string, error)
	ClosePosition(ctx context.Context, p ClosePositionParams) (string, error)
	LiquidatePosition(ctx context.Context, positionPDA string) (string, error)
	ActivateBaskt(ctx context.Context, p ActivateBasktParams) (string, error)
}

// Client is the full ledger collaborator surface.
type Client interface {
	Reader
	Submitter
}
