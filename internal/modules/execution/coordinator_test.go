package execution

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tmarkos/quant-trader/internal/clients/broker"
	"github.com/tmarkos/quant-trader/internal/database"
	"github.com/tmarkos/quant-trader/internal/domain"
	"github.com/tmarkos/quant-trader/internal/modules/fusion"
	"github.com/tmarkos/quant-trader/internal/modules/portfolio"
	"github.com/tmarkos/quant-trader/internal/modules/risk"
	"github.com/tmarkos/quant-trader/internal/modules/strategy"
)

type fakeMarket struct {
	windows map[string]domain.Window
}

func (m *fakeMarket) GetWindow(_ context.Context, symbol string, _ int) (domain.Window, error) {
	w, ok := m.windows[symbol]
	if !ok {
		return nil, fmt.Errorf("no data for %s", symbol)
	}
	return w, nil
}

type fakeBroker struct {
	mu        sync.Mutex
	autoFill  bool
	fillPrice float64
	submitted []broker.OrderRequest
	orders    map[string]broker.OrderStatus
}

func newFakeBroker(autoFill bool, fillPrice float64) *fakeBroker {
	return &fakeBroker{
		autoFill:  autoFill,
		fillPrice: fillPrice,
		orders:    make(map[string]broker.OrderStatus),
	}
}

func (b *fakeBroker) SubmitOrder(_ context.Context, req broker.OrderRequest) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.submitted = append(b.submitted, req)
	id := fmt.Sprintf("order-%d", len(b.submitted))
	b.orders[id] = broker.OrderStatus{
		OrderID: id,
		Symbol:  req.Symbol,
		Side:    req.Side,
		Shares:  req.Shares,
		State:   broker.OrderPending,
	}
	return id, nil
}

func (b *fakeBroker) PollOrder(_ context.Context, orderID string) (broker.OrderStatus, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	status, ok := b.orders[orderID]
	if !ok {
		return broker.OrderStatus{}, fmt.Errorf("unknown order %s", orderID)
	}
	if b.autoFill && status.State == broker.OrderPending {
		status.State = broker.OrderFilled
		status.FillPrice = b.fillPrice
		b.orders[orderID] = status
	}
	return status, nil
}

func (b *fakeBroker) CancelOrder(_ context.Context, orderID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	status, ok := b.orders[orderID]
	if !ok {
		return fmt.Errorf("unknown order %s", orderID)
	}
	if !status.State.Terminal() {
		status.State = broker.OrderCancelled
		b.orders[orderID] = status
	}
	return nil
}

func (b *fakeBroker) submitCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.submitted)
}

// slowBroker delays submissions and records how many are in flight at
// once, to observe whether symbols dispatch concurrently.
type slowBroker struct {
	*fakeBroker
	delay time.Duration

	statMu      sync.Mutex
	inFlight    int
	maxInFlight int
}

func (b *slowBroker) SubmitOrder(ctx context.Context, req broker.OrderRequest) (string, error) {
	b.statMu.Lock()
	b.inFlight++
	if b.inFlight > b.maxInFlight {
		b.maxInFlight = b.inFlight
	}
	b.statMu.Unlock()

	time.Sleep(b.delay)

	b.statMu.Lock()
	b.inFlight--
	b.statMu.Unlock()

	return b.fakeBroker.SubmitOrder(ctx, req)
}

// decliningWindow produces closes that drive RSI to the floor so the
// single-strategy test config emits a strong BUY.
func decliningWindow(n int, start, step float64) domain.Window {
	w := make(domain.Window, n)
	day := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range w {
		c := start - float64(i)*step
		w[i] = domain.Candle{
			Date: day.AddDate(0, 0, i), Open: c, High: c, Low: c, Close: c, Volume: 1000,
		}
	}
	return w
}

func newTestLedger(t *testing.T) *portfolio.Ledger {
	t.Helper()
	db, err := database.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Migrate())

	ledger, err := portfolio.NewLedger(portfolio.NewStore(db), 100000, zerolog.Nop())
	require.NoError(t, err)
	return ledger
}

func newTestCoordinator(t *testing.T, market MarketData, brk broker.Broker, ledger *portfolio.Ledger) *Coordinator {
	t.Helper()
	return newTestCoordinatorWith(t, market, brk, ledger, []string{"AAPL"}, risk.DefaultLimits())
}

func newTestCoordinatorWith(t *testing.T, market MarketData, brk broker.Broker, ledger *portfolio.Ledger, symbols []string, limits risk.Limits) *Coordinator {
	t.Helper()

	riskMgr := risk.NewManager(limits, risk.NewPercentSizer(limits.MaxPositionPct), zerolog.Nop())
	engine := fusion.NewEngine(15, 15, zerolog.Nop())
	registry := strategy.NewRegistry(zerolog.Nop())

	cfg := strategy.Config{
		Name:       "test",
		Strategies: []string{"RSI"},
		Weights:    []float64{1},
	}

	return NewCoordinator(Options{
		Symbols:        symbols,
		LookbackDays:   60,
		CycleInterval:  time.Second,
		AdapterTimeout: time.Second,
		OrderTimeout:   time.Minute,
	}, market, registry, cfg, engine, riskMgr, ledger, brk, zerolog.Nop())
}

func TestCycleBuysOnStrongSignal(t *testing.T) {
	window := decliningWindow(40, 200, 2) // last close 122
	market := &fakeMarket{windows: map[string]domain.Window{"AAPL": window}}
	brk := newFakeBroker(true, window.LastClose())
	ledger := newTestLedger(t)

	c := newTestCoordinator(t, market, brk, ledger)
	ctx := context.Background()

	// First cycle dispatches the BUY, second cycle applies the fill
	require.NoError(t, c.runCycle(ctx))
	require.Equal(t, 1, brk.submitCount())
	assert.Equal(t, domain.SideBuy, brk.submitted[0].Side)

	require.NoError(t, c.runCycle(ctx))

	pos, ok := ledger.Position("AAPL")
	require.True(t, ok)
	assert.Equal(t, brk.submitted[0].Shares, pos.Shares)
	// Stop prices derived from fill via default limits
	assert.InDelta(t, window.LastClose()*0.95, pos.StopLossPrice, 1e-6)
	assert.InDelta(t, window.LastClose()*1.10, pos.TakeProfitPrice, 1e-6)
}

func TestStopLossOutranksFusionSignal(t *testing.T) {
	// Close 94 is below the 95 stop, while the declining series also
	// makes the RSI strategy scream BUY. The stop must win.
	window := decliningWindow(40, 172, 2) // last close 94
	market := &fakeMarket{windows: map[string]domain.Window{"AAPL": window}}
	brk := newFakeBroker(true, 94)
	ledger := newTestLedger(t)

	_, err := ledger.Apply(portfolio.Transaction{
		Symbol:          "AAPL",
		Action:          portfolio.ActionBuy,
		Shares:          50,
		Price:           100,
		StopLossPrice:   95,
		TakeProfitPrice: 110,
	})
	require.NoError(t, err)

	c := newTestCoordinator(t, market, brk, ledger)
	ctx := context.Background()

	require.NoError(t, c.runCycle(ctx))

	// Exactly one order this cycle: the stop exit, not a BUY
	require.Equal(t, 1, brk.submitCount())
	assert.Equal(t, domain.SideSell, brk.submitted[0].Side)
	assert.Equal(t, 50.0, brk.submitted[0].Shares)

	// Next cycle applies the fill and records a STOP_LOSS transaction
	require.NoError(t, c.runCycle(ctx))

	_, ok := ledger.Position("AAPL")
	assert.False(t, ok)

	txs, err := ledger.Transactions(10)
	require.NoError(t, err)
	var found bool
	for _, tx := range txs {
		if tx.Action == portfolio.ActionStopLoss {
			found = true
			assert.Equal(t, 94.0, tx.Price)
		}
	}
	assert.True(t, found, "expected a STOP_LOSS transaction")
}

func TestPendingOrderBlocksSymbol(t *testing.T) {
	window := decliningWindow(40, 200, 2)
	market := &fakeMarket{windows: map[string]domain.Window{"AAPL": window}}
	brk := newFakeBroker(false, 0) // orders never fill
	ledger := newTestLedger(t)

	c := newTestCoordinator(t, market, brk, ledger)
	ctx := context.Background()

	require.NoError(t, c.runCycle(ctx))
	require.Equal(t, 1, brk.submitCount())

	// The pending order must suppress further orders for the symbol
	require.NoError(t, c.runCycle(ctx))
	require.NoError(t, c.runCycle(ctx))
	assert.Equal(t, 1, brk.submitCount())
}

func TestSameCycleBuysCannotOverspendReserve(t *testing.T) {
	window := decliningWindow(40, 200, 2) // last close 122
	market := &fakeMarket{windows: map[string]domain.Window{
		"AAPL": window,
		"MSFT": window,
	}}
	brk := newFakeBroker(true, window.LastClose())
	ledger := newTestLedger(t)

	// One position nearly exhausts the cash the reserve floor allows,
	// so approving both symbols against the same snapshot would breach
	// the reserve and the exposure cap once both fill.
	limits := risk.DefaultLimits()
	limits.MaxPositionPct = 0.40
	limits.MaxExposurePct = 0.70
	limits.MinCashReservePct = 0.30

	c := newTestCoordinatorWith(t, market, brk, ledger, []string{"AAPL", "MSFT"}, limits)
	ctx := context.Background()

	// Both symbols emit a strong BUY, but only one order fits
	require.NoError(t, c.runCycle(ctx))
	assert.Equal(t, 1, brk.submitCount())

	// Second cycle applies the fill; the other symbol stays denied
	require.NoError(t, c.runCycle(ctx))
	assert.Equal(t, 1, brk.submitCount())

	snap := ledger.Snapshot()
	prices := map[string]float64{"AAPL": window.LastClose(), "MSFT": window.LastClose()}
	total := snap.TotalValue(prices)
	assert.GreaterOrEqual(t, snap.Cash, limits.MinCashReservePct*total-1e-6,
		"cash reserve floor must hold after fills")
	assert.LessOrEqual(t, total-snap.Cash, limits.MaxExposurePct*total+1e-6,
		"exposure cap must hold after fills")
}

func TestSymbolsDispatchConcurrently(t *testing.T) {
	window := decliningWindow(40, 200, 2)
	market := &fakeMarket{windows: map[string]domain.Window{
		"AAPL": window,
		"MSFT": window,
	}}
	brk := &slowBroker{fakeBroker: newFakeBroker(false, 0), delay: 50 * time.Millisecond}
	ledger := newTestLedger(t)

	c := newTestCoordinatorWith(t, market, brk, ledger, []string{"AAPL", "MSFT"}, risk.DefaultLimits())

	require.NoError(t, c.runCycle(context.Background()))
	require.Equal(t, 2, brk.submitCount())

	brk.statMu.Lock()
	defer brk.statMu.Unlock()
	assert.Equal(t, 2, brk.maxInFlight, "a slow dispatch must not stall the other symbol")
}

func TestFinalizeCancelsPendingOrders(t *testing.T) {
	window := decliningWindow(40, 200, 2)
	market := &fakeMarket{windows: map[string]domain.Window{"AAPL": window}}
	brk := newFakeBroker(false, 0)
	ledger := newTestLedger(t)

	c := newTestCoordinator(t, market, brk, ledger)
	require.NoError(t, c.runCycle(context.Background()))
	require.Equal(t, 1, brk.submitCount())

	c.finalize()

	brk.mu.Lock()
	defer brk.mu.Unlock()
	for _, status := range brk.orders {
		assert.Equal(t, broker.OrderCancelled, status.State)
	}
	assert.Empty(t, c.pendingOrders())
}
