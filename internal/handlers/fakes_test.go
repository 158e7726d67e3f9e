package handlers_test

import (
	"context"
	"fmt"
	"sync"

	"BasktSync/internal/chain"
	"BasktSync/internal/event"
	"BasktSync/internal/store"
)

// In-memory fakes implementing the store interfaces in deps.go with the same
// idempotency semantics as the SQL implementations.

type fakeChain struct {
	mu sync.Mutex

	positions map[string]*chain.Position
	baskts    map[string]*chain.Baskt
	assets    map[string]*chain.Asset
	pool      *chain.Pool
	withdraws map[uint64]*chain.WithdrawRequest
	protocol  *chain.ProtocolState

	openCalls     int
	closeCalls    int
	activateCalls int

	openErr     error
	closeErr    error
	activateErr error
}

func newFakeChain() *fakeChain {
	return &fakeChain{
		positions: make(map[string]*chain.Position),
		baskts:    make(map[string]*chain.Baskt),
		assets:    make(map[string]*chain.Asset),
		withdraws: make(map[uint64]*chain.WithdrawRequest),
		pool:      &chain.Pool{TotalLiquidity: 1_000_000, TotalShares: 1_000_000},
	}
}

func (f *fakeChain) GetOrder(ctx context.Context, orderPDA string) (*chain.Order, error) {
	return nil, chain.ErrNotFound
}

func (f *fakeChain) GetPosition(ctx context.Context, positionPDA string) (*chain.Position, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.positions[positionPDA]; ok {
		return p, nil
	}
	return nil, chain.ErrNotFound
}

func (f *fakeChain) GetBaskt(ctx context.Context, basktID string) (*chain.Baskt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if b, ok := f.baskts[basktID]; ok {
		return b, nil
	}
	return nil, chain.ErrNotFound
}

func (f *fakeChain) GetAsset(ctx context.Context, assetPDA string) (*chain.Asset, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if a, ok := f.assets[assetPDA]; ok {
		return a, nil
	}
	return nil, chain.ErrNotFound
}

func (f *fakeChain) GetPool(ctx context.Context) (*chain.Pool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pool == nil {
		return nil, chain.ErrNotFound
	}
	return f.pool, nil
}

func (f *fakeChain) GetWithdrawRequest(ctx context.Context, requestID uint64) (*chain.WithdrawRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r, ok := f.withdraws[requestID]; ok {
		return r, nil
	}
	return nil, chain.ErrNotFound
}

func (f *fakeChain) GetProtocolState(ctx context.Context) (*chain.ProtocolState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.protocol == nil {
		return nil, chain.ErrNotFound
	}
	return f.protocol, nil
}

func (f *fakeChain) OpenPosition(ctx context.Context, p chain.OpenPositionParams) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.openCalls++
	if f.openErr != nil {
		return "", f.openErr
	}
	return fmt.Sprintf("sig-open-%d", f.openCalls), nil
}

func (f *fakeChain) ClosePosition(ctx context.Context, p chain.ClosePositionParams) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closeCalls++
	if f.closeErr != nil {
		return "", f.closeErr
	}
	return fmt.Sprintf("sig-close-%d", f.closeCalls), nil
}

func (f *fakeChain) LiquidatePosition(ctx context.Context, positionPDA string) (string, error) {
	return "sig-liq", nil
}

func (f *fakeChain) ActivateBaskt(ctx context.Context, p chain.ActivateBasktParams) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.activateCalls++
	if f.activateErr != nil {
		return "", f.activateErr
	}
	return fmt.Sprintf("sig-activate-%d", f.activateCalls), nil
}

type fakeOrders struct {
	mu     sync.Mutex
	orders map[string]*store.Order
}

func newFakeOrders() *fakeOrders {
	return &fakeOrders{orders: make(map[string]*store.Order)}
}

func (f *fakeOrders) Upsert(ctx context.Context, o store.Order) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if existing, ok := f.orders[o.OrderPDA]; ok {
		existing.OpenParams = o.OpenParams
		existing.CloseParams = o.CloseParams
		return nil
	}
	cp := o
	f.orders[o.OrderPDA] = &cp
	return nil
}

func (f *fakeOrders) Get(ctx context.Context, orderPDA string) (*store.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if o, ok := f.orders[orderPDA]; ok {
		cp := *o
		return &cp, nil
	}
	return nil, store.ErrNotFound
}

func (f *fakeOrders) MarkFilled(ctx context.Context, orderPDA, positionPDA, txRef string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[orderPDA]
	if !ok || o.Status != store.OrderPending {
		return false, nil
	}
	o.Status = store.OrderFilled
	o.PositionPDA.String, o.PositionPDA.Valid = positionPDA, true
	o.TxRef.String, o.TxRef.Valid = txRef, true
	return true, nil
}

func (f *fakeOrders) SetStatus(ctx context.Context, orderPDA string, status store.OrderStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if o, ok := f.orders[orderPDA]; ok {
		o.Status = status
	}
	return nil
}

type fakePositions struct {
	mu        sync.Mutex
	positions map[string]*store.Position
	closeTxs  map[string]bool

	// When set, close and liquidation apply the baskt stats delta in the
	// same step, mirroring the store's single-transaction semantics.
	baskts *fakeBaskts
}

func newFakePositions() *fakePositions {
	return &fakePositions{
		positions: make(map[string]*store.Position),
		closeTxs:  make(map[string]bool),
	}
}

func (f *fakePositions) adjustStats(basktID string, isLong bool, contracts, price int64) {
	if f.baskts == nil {
		return
	}
	notional := event.Notional(contracts, price)
	d := store.BasktStats{}
	if isLong {
		d.LongOpenInterest = -contracts
		d.LongVolume = notional
	} else {
		d.ShortOpenInterest = -contracts
		d.ShortVolume = notional
	}
	f.baskts.applyStats(basktID, d)
}

func (f *fakePositions) Create(ctx context.Context, p store.Position) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.positions[p.PositionPDA]; ok {
		return false, nil
	}
	cp := p
	cp.Status = store.PositionOpen
	cp.RemainingSize = p.Size
	cp.RemainingCollateral = p.Collateral
	f.positions[p.PositionPDA] = &cp
	return true, nil
}

func (f *fakePositions) Get(ctx context.Context, positionPDA string) (*store.Position, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.positions[positionPDA]; ok {
		cp := *p
		cp.History = append([]store.PartialCloseEntry(nil), p.History...)
		return &cp, nil
	}
	return nil, store.ErrNotFound
}

func (f *fakePositions) ApplyClose(ctx context.Context, positionPDA string, e store.PartialCloseEntry) (bool, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closeTxs[e.TxRef] {
		return false, false, nil
	}
	p, ok := f.positions[positionPDA]
	if !ok {
		return false, false, store.ErrNotFound
	}
	if p.Status != store.PositionOpen || e.CloseAmount > p.RemainingSize {
		return false, false, fmt.Errorf("close of %d rejected for position %s", e.CloseAmount, positionPDA)
	}
	f.closeTxs[e.TxRef] = true
	p.RemainingSize -= e.CloseAmount
	p.RemainingCollateral -= e.Settlement.CollateralToRelease
	if p.RemainingCollateral < 0 {
		p.RemainingCollateral = 0
	}
	p.History = append(p.History, e)
	f.adjustStats(p.BasktID, p.IsLong, e.CloseAmount, e.ClosePrice)
	if p.RemainingSize <= 0 {
		p.Status = store.PositionClosed
		return true, true, nil
	}
	return true, false, nil
}

func (f *fakePositions) MarkLiquidated(ctx context.Context, positionPDA string, exitPrice int64, s event.SettlementDetails) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.positions[positionPDA]
	if !ok || p.Status != store.PositionOpen {
		return false, nil
	}
	remainder := p.RemainingSize
	p.Status = store.PositionLiquidated
	p.ExitPrice.Int64, p.ExitPrice.Valid = exitPrice, true
	p.RemainingSize = 0
	p.RemainingCollateral = 0
	f.adjustStats(p.BasktID, p.IsLong, remainder, exitPrice)
	return true, nil
}

func (f *fakePositions) AddCollateral(ctx context.Context, positionPDA string, newCollateral int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.positions[positionPDA]; ok {
		p.Collateral = newCollateral
		p.RemainingCollateral = newCollateral
	}
	return nil
}

type fakeBaskts struct {
	mu          sync.Mutex
	baskts      map[string]*store.BasktMetadata
	rebalances  map[string]store.RebalanceHistoryEntry
	resyncCalls int
}

func newFakeBaskts() *fakeBaskts {
	return &fakeBaskts{
		baskts:     make(map[string]*store.BasktMetadata),
		rebalances: make(map[string]store.RebalanceHistoryEntry),
	}
}

func (f *fakeBaskts) Upsert(ctx context.Context, b store.BasktMetadata) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if existing, ok := f.baskts[b.BasktID]; ok {
		existing.Name = b.Name
		existing.AssetConfigs = b.AssetConfigs
		return nil
	}
	cp := b
	f.baskts[b.BasktID] = &cp
	return nil
}

func (f *fakeBaskts) Get(ctx context.Context, basktID string) (*store.BasktMetadata, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if b, ok := f.baskts[basktID]; ok {
		cp := *b
		return &cp, nil
	}
	return nil, store.ErrNotFound
}

func (f *fakeBaskts) SetStatus(ctx context.Context, basktID string, status store.BasktStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if b, ok := f.baskts[basktID]; ok {
		b.Status = status
	}
	return nil
}

func (f *fakeBaskts) ResyncConfig(ctx context.Context, basktID string, configs []event.AssetWeight, baselineNav, feeIndex int64, bumpRebalance bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resyncCalls++
	b, ok := f.baskts[basktID]
	if !ok {
		return store.ErrNotFound
	}
	b.AssetConfigs = configs
	b.BaselineNav = baselineNav
	b.FeeIndex = feeIndex
	if bumpRebalance {
		b.RebalanceCount++
	}
	return nil
}

func (f *fakeBaskts) applyStats(basktID string, d store.BasktStats) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.baskts[basktID]
	if !ok {
		return
	}
	b.Stats.LongOpenInterest += d.LongOpenInterest
	b.Stats.ShortOpenInterest += d.ShortOpenInterest
	b.Stats.LongVolume += d.LongVolume
	b.Stats.ShortVolume += d.ShortVolume
}

func (f *fakeBaskts) AppendRebalance(ctx context.Context, e store.RebalanceHistoryEntry) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.rebalances[e.TxRef]; ok {
		return false, nil
	}
	f.rebalances[e.TxRef] = e
	return true, nil
}

type fakeLiquidity struct {
	mu       sync.Mutex
	pool     *store.LiquidityPool
	requests map[uint64]*store.WithdrawRequest

	poolUpserts int
}

func newFakeLiquidity() *fakeLiquidity {
	return &fakeLiquidity{requests: make(map[uint64]*store.WithdrawRequest)}
}

func (f *fakeLiquidity) UpsertPool(ctx context.Context, p store.LiquidityPool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.poolUpserts++
	cp := p
	f.pool = &cp
	return nil
}

func (f *fakeLiquidity) CreateRequest(ctx context.Context, r store.WithdrawRequest) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.requests[r.RequestID]; ok {
		return false, nil
	}
	cp := r
	cp.Status = store.WithdrawQueued
	cp.RemainingLp = r.RequestedLp
	f.requests[r.RequestID] = &cp
	return true, nil
}

func (f *fakeLiquidity) GetRequest(ctx context.Context, requestID uint64) (*store.WithdrawRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r, ok := f.requests[requestID]; ok {
		cp := *r
		return &cp, nil
	}
	return nil, store.ErrNotFound
}

func (f *fakeLiquidity) HasEarlierQueued(ctx context.Context, requestID uint64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, r := range f.requests {
		if id < requestID && r.Status == store.WithdrawQueued {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeLiquidity) ApplyProcessed(ctx context.Context, requestID uint64, lpBurnedTotal, amountPaidTotal int64) (store.WithdrawStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.requests[requestID]
	if !ok {
		return "", store.ErrNotFound
	}
	if r.Status == store.WithdrawCompleted {
		return store.WithdrawCompleted, nil
	}
	if lpBurnedTotal > r.LpBurned {
		r.LpBurned = lpBurnedTotal
	}
	if amountPaidTotal > r.AmountPaid {
		r.AmountPaid = amountPaidTotal
	}
	r.RemainingLp = r.RequestedLp - r.LpBurned
	if r.RemainingLp <= 0 {
		r.RemainingLp = 0
		r.Status = store.WithdrawCompleted
	} else {
		r.Status = store.WithdrawProcessing
	}
	return r.Status, nil
}

type fakeFees struct {
	mu   sync.Mutex
	rows map[string]store.FeeEvent
}

func newFakeFees() *fakeFees {
	return &fakeFees{rows: make(map[string]store.FeeEvent)}
}

func (f *fakeFees) Insert(ctx context.Context, fe store.FeeEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := fe.TxSignature + "/" + fe.EventType
	if _, ok := f.rows[key]; ok {
		return nil
	}
	f.rows[key] = fe
	return nil
}

func (f *fakeFees) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.rows)
}

type fakeProtocol struct {
	mu     sync.Mutex
	config *store.ProtocolConfig
}

func (f *fakeProtocol) Upsert(ctx context.Context, p store.ProtocolConfig) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := p
	f.config = &cp
	return nil
}

type fakeNav struct {
	navs   map[string]int64
	prices map[string]int64
}

func newFakeNav() *fakeNav {
	return &fakeNav{navs: make(map[string]int64), prices: make(map[string]int64)}
}

func (f *fakeNav) GetNav(ctx context.Context, basktID string) (int64, error) {
	if v, ok := f.navs[basktID]; ok {
		return v, nil
	}
	return 0, fmt.Errorf("nav: no quote for baskt %s", basktID)
}

func (f *fakeNav) GetAssetPrice(ctx context.Context, ticker string) (int64, error) {
	if v, ok := f.prices[ticker]; ok {
		return v, nil
	}
	return 0, fmt.Errorf("nav: no quote for ticker %s", ticker)
}

type publishedIntent struct {
	intent     string
	deliveryID string
}

type fakeIntents struct {
	mu        sync.Mutex
	published []publishedIntent
}

func (f *fakeIntents) Publish(ctx context.Context, intent, deliveryID string, payload any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, publishedIntent{intent: intent, deliveryID: deliveryID})
	return nil
}
