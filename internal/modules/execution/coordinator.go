// Package execution runs the evaluation cycle: fetch data, evaluate
// strategies, fuse, admit through risk, and drive orders to completion.
package execution

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/tmarkos/quant-trader/internal/clients/broker"
	"github.com/tmarkos/quant-trader/internal/domain"
	"github.com/tmarkos/quant-trader/internal/metrics"
	"github.com/tmarkos/quant-trader/internal/modules/fusion"
	"github.com/tmarkos/quant-trader/internal/modules/portfolio"
	"github.com/tmarkos/quant-trader/internal/modules/risk"
	"github.com/tmarkos/quant-trader/internal/modules/strategy"
)

// MarketData is the candle source boundary
type MarketData interface {
	GetWindow(ctx context.Context, symbol string, lookbackDays int) (domain.Window, error)
}

// Options bundles the coordinator's tunables
type Options struct {
	Symbols        []string
	LookbackDays   int
	CycleInterval  time.Duration
	AdapterTimeout time.Duration
	OrderTimeout   time.Duration
}

// pendingOrder tracks one in-flight order. At most one exists per symbol;
// a symbol with a pending order is skipped by later cycles until the
// order resolves.
type pendingOrder struct {
	orderID     string
	symbol      string
	action      portfolio.Action
	shares      float64
	price       float64
	entryScore  float64
	submittedAt time.Time
}

// Coordinator owns the trading loop. It is the only component that talks
// to the broker and the only writer into the ledger.
type Coordinator struct {
	opts        Options
	market      MarketData
	registry    *strategy.Registry
	strategyCfg strategy.Config
	engine      *fusion.Engine
	riskMgr     *risk.Manager
	ledger      *portfolio.Ledger
	broker      broker.Broker
	log         zerolog.Logger

	mu      sync.Mutex
	pending map[string]pendingOrder

	// admitMu serializes BUY admission: the committed-snapshot read, the
	// risk check and the pending reservation must be atomic so that
	// concurrently evaluated symbols cannot both spend the same cash.
	admitMu sync.Mutex

	priceMu sync.RWMutex
	prices  map[string]float64
}

// NewCoordinator creates an execution coordinator
func NewCoordinator(
	opts Options,
	market MarketData,
	registry *strategy.Registry,
	strategyCfg strategy.Config,
	engine *fusion.Engine,
	riskMgr *risk.Manager,
	ledger *portfolio.Ledger,
	brk broker.Broker,
	log zerolog.Logger,
) *Coordinator {
	return &Coordinator{
		opts:        opts,
		market:      market,
		registry:    registry,
		strategyCfg: strategyCfg,
		engine:      engine,
		riskMgr:     riskMgr,
		ledger:      ledger,
		broker:      brk,
		log:         log.With().Str("component", "coordinator").Logger(),
		pending:     make(map[string]pendingOrder),
		prices:      make(map[string]float64),
	}
}

// SetBroker installs the execution venue. Must be called before Run;
// it exists because the paper broker needs the coordinator's price map
// at construction time.
func (c *Coordinator) SetBroker(b broker.Broker) {
	c.broker = b
}

// LastPrice returns the most recent close seen for a symbol. Used by the
// paper broker as its fill price source.
func (c *Coordinator) LastPrice(symbol string) (float64, error) {
	c.priceMu.RLock()
	defer c.priceMu.RUnlock()
	price, ok := c.prices[symbol]
	if !ok || price <= 0 {
		return 0, fmt.Errorf("no price for %s", symbol)
	}
	return price, nil
}

// Run drives evaluation cycles until the context is cancelled or the
// ledger reports corruption. On shutdown it resolves or cancels every
// in-flight order before returning.
func (c *Coordinator) Run(ctx context.Context) error {
	c.log.Info().
		Strs("symbols", c.opts.Symbols).
		Dur("interval", c.opts.CycleInterval).
		Str("strategy_config", c.strategyCfg.Name).
		Msg("Starting trading loop")

	ticker := time.NewTicker(c.opts.CycleInterval)
	defer ticker.Stop()

	for {
		if err := c.runCycle(ctx); err != nil {
			var corrupt *portfolio.CorruptionError
			if errors.As(err, &corrupt) {
				c.log.Error().Err(err).Msg("Ledger corruption, stopping")
				return err
			}
			c.log.Error().Err(err).Msg("Cycle failed")
		}

		select {
		case <-ctx.Done():
			c.finalize()
			return nil
		case <-ticker.C:
		}
	}
}

// runCycle performs one full evaluation pass over all symbols
func (c *Coordinator) runCycle(ctx context.Context) error {
	start := time.Now()
	defer func() {
		metrics.CyclesTotal.Inc()
		metrics.CycleDuration.Observe(time.Since(start).Seconds())
	}()

	if err := c.resolvePending(ctx); err != nil {
		return err
	}

	windows := c.fetchWindows(ctx)
	if len(windows) == 0 {
		return fmt.Errorf("no market data for any symbol")
	}

	snap := c.ledger.Snapshot()
	prices := c.currentPrices()

	// Stop conditions outrank everything: they run before fusion and
	// ignore the circuit breaker.
	for _, action := range c.riskMgr.CheckStopConditions(snap, prices) {
		if err := c.executeStop(ctx, action); err != nil {
			return err
		}
	}

	halted := c.riskMgr.UpdateBreaker(c.ledger.Snapshot())

	// Symbols are independent; evaluate them concurrently so one slow
	// strategy set or broker dispatch cannot stall the rest of the cycle.
	g, gctx := errgroup.WithContext(ctx)
	for _, symbol := range c.opts.Symbols {
		symbol := symbol
		window, ok := windows[symbol]
		if !ok {
			continue
		}
		if c.hasPending(symbol) {
			c.log.Debug().Str("symbol", symbol).Msg("Order in flight, skipping symbol")
			continue
		}
		g.Go(func() error {
			return c.evaluateSymbol(gctx, symbol, window, halted)
		})
	}

	return g.Wait()
}

// fetchWindows loads candle windows for all symbols concurrently and
// refreshes the shared price map. Symbols that fail are dropped from the
// cycle rather than failing it.
func (c *Coordinator) fetchWindows(ctx context.Context) map[string]domain.Window {
	var mu sync.Mutex
	windows := make(map[string]domain.Window, len(c.opts.Symbols))

	g, gctx := errgroup.WithContext(ctx)
	for _, symbol := range c.opts.Symbols {
		symbol := symbol
		g.Go(func() error {
			window, err := c.market.GetWindow(gctx, symbol, c.opts.LookbackDays)
			if err != nil {
				c.log.Warn().Err(err).Str("symbol", symbol).Msg("Market data fetch failed")
				return nil
			}
			mu.Lock()
			windows[symbol] = window
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	c.priceMu.Lock()
	for symbol, window := range windows {
		c.prices[symbol] = window.LastClose()
	}
	c.priceMu.Unlock()

	return windows
}

func (c *Coordinator) currentPrices() map[string]float64 {
	c.priceMu.RLock()
	defer c.priceMu.RUnlock()
	out := make(map[string]float64, len(c.prices))
	for k, v := range c.prices {
		out[k] = v
	}
	return out
}

// evaluateSymbol runs the configured strategies, fuses their signals and
// dispatches the resulting trade if risk admits it.
func (c *Coordinator) evaluateSymbol(ctx context.Context, symbol string, window domain.Window, halted bool) error {
	inputs := c.collectSignals(ctx, symbol, window)

	sig := c.engine.Fuse(symbol, window.LastClose(), inputs)
	metrics.SignalsTotal.WithLabelValues(string(sig.Type)).Inc()

	switch sig.Type {
	case strategy.SignalBuy:
		if halted {
			c.log.Info().Str("symbol", symbol).Msg("Circuit breaker halted, BUY suppressed")
			return nil
		}
		return c.executeBuy(ctx, sig)
	case strategy.SignalSell:
		// Sells are allowed while halted: reducing exposure is always
		// permitted.
		return c.executeSell(ctx, sig)
	default:
		return nil
	}
}

// collectSignals evaluates each configured strategy under its own
// timeout. A strategy that errors or times out is excluded; fusion
// renormalizes over the survivors.
func (c *Coordinator) collectSignals(ctx context.Context, symbol string, window domain.Window) []fusion.Input {
	weights := c.strategyCfg.NormalizedWeights()

	type result struct {
		idx    int
		signal strategy.Signal
		err    error
	}

	results := make(chan result, len(c.strategyCfg.Strategies))
	for i, name := range c.strategyCfg.Strategies {
		adapter, err := c.registry.Get(name)
		if err != nil {
			results <- result{idx: i, err: err}
			continue
		}

		go func(i int, adapter strategy.Adapter) {
			actx, cancel := context.WithTimeout(ctx, c.opts.AdapterTimeout)
			defer cancel()

			done := make(chan result, 1)
			go func() {
				sig, err := adapter.Evaluate(actx, symbol, window)
				done <- result{idx: i, signal: sig, err: err}
			}()

			select {
			case r := <-done:
				results <- r
			case <-actx.Done():
				results <- result{idx: i, err: fmt.Errorf("strategy %s timed out", adapter.Name())}
			}
		}(i, adapter)
	}

	inputs := make([]fusion.Input, 0, len(c.strategyCfg.Strategies))
	for range c.strategyCfg.Strategies {
		r := <-results
		name := c.strategyCfg.Strategies[r.idx]
		if r.err != nil {
			metrics.StrategyFailuresTotal.WithLabelValues(name).Inc()
			c.log.Warn().Err(r.err).
				Str("symbol", symbol).
				Str("strategy", name).
				Msg("Strategy excluded from fusion")
			continue
		}
		inputs = append(inputs, fusion.Input{Signal: r.signal, Weight: weights[r.idx]})
	}

	return inputs
}

func (c *Coordinator) executeBuy(ctx context.Context, sig fusion.CombinedSignal) error {
	// Admission and reservation are one atomic step: the snapshot the
	// risk check sees already carries every in-flight BUY as if filled,
	// and the new order joins the pending set before the lock is
	// released. Without this, two BUYs approved in the same cycle would
	// each be checked against the same unspent cash and together breach
	// the reserve and exposure limits once both fill.
	c.admitMu.Lock()
	snap := c.committedSnapshot(c.ledger.Snapshot())
	decision := c.riskMgr.SizePosition(sig, snap, c.currentPrices())
	if !decision.Approved {
		c.admitMu.Unlock()
		c.log.Info().
			Str("symbol", sig.Symbol).
			Str("check", decision.Check).
			Str("reason", decision.Reason).
			Msg("BUY denied")
		return nil
	}
	reserved := c.reserve(sig.Symbol, portfolio.ActionBuy, decision.Shares, sig.Price, sig.Score)
	c.admitMu.Unlock()
	if !reserved {
		return nil
	}

	return c.submitReserved(ctx, broker.OrderRequest{
		Symbol: sig.Symbol,
		Side:   domain.SideBuy,
		Shares: decision.Shares,
	})
}

func (c *Coordinator) executeSell(ctx context.Context, sig fusion.CombinedSignal) error {
	snap := c.ledger.Snapshot()
	decision := c.riskMgr.ValidateSell(sig, snap)
	if !decision.Approved {
		if decision.Check != "no_position" {
			c.log.Info().
				Str("symbol", sig.Symbol).
				Str("check", decision.Check).
				Str("reason", decision.Reason).
				Msg("SELL denied")
		}
		return nil
	}

	if !c.reserve(sig.Symbol, portfolio.ActionSell, decision.Shares, sig.Price, sig.Score) {
		return nil
	}

	return c.submitReserved(ctx, broker.OrderRequest{
		Symbol: sig.Symbol,
		Side:   domain.SideSell,
		Shares: decision.Shares,
	})
}

func (c *Coordinator) executeStop(ctx context.Context, action risk.StopAction) error {
	if c.hasPending(action.Symbol) {
		return nil
	}

	metrics.StopTriggersTotal.WithLabelValues(string(action.Kind)).Inc()

	txAction := portfolio.ActionStopLoss
	if action.Kind == risk.TakeProfit {
		txAction = portfolio.ActionTakeProfit
	}

	if !c.reserve(action.Symbol, txAction, action.Shares, action.Price, 0) {
		return nil
	}

	return c.submitReserved(ctx, broker.OrderRequest{
		Symbol: action.Symbol,
		Side:   domain.SideSell,
		Shares: action.Shares,
	})
}

// committedSnapshot overlays the snapshot with every in-flight BUY as if
// it had already filled at its dispatch price: cash is reduced by the
// reserved cost and a synthetic position holds the reserved shares. Risk
// checks against this view cannot double-spend cash that an unresolved
// order has already claimed.
func (c *Coordinator) committedSnapshot(snap portfolio.Snapshot) portfolio.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, po := range c.pending {
		if po.action != portfolio.ActionBuy {
			continue
		}
		snap.Cash -= po.shares * po.price
		snap.Positions[po.symbol] = portfolio.Position{
			Symbol:    po.symbol,
			Shares:    po.shares,
			CostBasis: po.price,
		}
	}
	return snap
}

// reserve registers the symbol's single in-flight slot before the order
// is submitted. Returns false if another order already holds the slot.
func (c *Coordinator) reserve(symbol string, action portfolio.Action, shares, price, score float64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.pending[symbol]; exists {
		return false
	}
	c.pending[symbol] = pendingOrder{
		symbol:      symbol,
		action:      action,
		shares:      shares,
		price:       price,
		entryScore:  score,
		submittedAt: time.Now(),
	}
	return true
}

// submitReserved sends a reserved order to the broker. The reservation
// is released on submission failure and bound to the broker order id on
// success.
func (c *Coordinator) submitReserved(ctx context.Context, req broker.OrderRequest) error {
	orderID, err := c.broker.SubmitOrder(ctx, req)
	if err != nil {
		metrics.OrdersTotal.WithLabelValues(string(req.Side), "submit_failed").Inc()
		c.log.Error().Err(err).
			Str("symbol", req.Symbol).
			Str("side", string(req.Side)).
			Msg("Order submission failed")
		c.clearPending(req.Symbol)
		return nil
	}

	c.mu.Lock()
	if po, ok := c.pending[req.Symbol]; ok {
		po.orderID = orderID
		c.pending[req.Symbol] = po
	}
	c.mu.Unlock()

	c.log.Info().
		Str("order_id", orderID).
		Str("symbol", req.Symbol).
		Str("side", string(req.Side)).
		Float64("shares", req.Shares).
		Msg("Order dispatched")

	return nil
}

// resolvePending polls every in-flight order once, applying fills to the
// ledger and cancelling orders that outlived the order timeout.
func (c *Coordinator) resolvePending(ctx context.Context) error {
	for _, po := range c.pendingOrders() {
		if po.orderID == "" {
			// Reservation whose submission is still in flight
			continue
		}
		status, err := c.broker.PollOrder(ctx, po.orderID)
		if err != nil {
			c.log.Warn().Err(err).Str("order_id", po.orderID).Msg("Order poll failed")
			if time.Since(po.submittedAt) > c.opts.OrderTimeout {
				c.abandon(ctx, po)
			}
			continue
		}

		switch {
		case status.State == broker.OrderFilled:
			if err := c.applyFill(po, status); err != nil {
				return err
			}
		case status.State.Terminal():
			metrics.OrdersTotal.WithLabelValues(string(status.Side), string(status.State)).Inc()
			c.log.Warn().
				Str("order_id", po.orderID).
				Str("symbol", po.symbol).
				Str("state", string(status.State)).
				Str("reason", status.Reason).
				Msg("Order did not fill")
			c.clearPending(po.symbol)
		case time.Since(po.submittedAt) > c.opts.OrderTimeout:
			c.abandon(ctx, po)
		}
	}
	return nil
}

// applyFill records a filled order in the ledger
func (c *Coordinator) applyFill(po pendingOrder, status broker.OrderStatus) error {
	tx := portfolio.Transaction{
		Symbol:     po.symbol,
		Action:     po.action,
		Shares:     status.Shares,
		Price:      status.FillPrice,
		Fees:       status.Fees,
		OrderID:    po.orderID,
		EntryScore: po.entryScore,
	}
	if po.action == portfolio.ActionBuy {
		tx.StopLossPrice, tx.TakeProfitPrice = c.riskMgr.StopPrices(status.FillPrice)
	}

	if _, err := c.ledger.Apply(tx); err != nil {
		var corrupt *portfolio.CorruptionError
		if errors.As(err, &corrupt) {
			return err
		}
		c.log.Error().Err(err).
			Str("order_id", po.orderID).
			Str("symbol", po.symbol).
			Msg("Failed to apply fill")
		c.clearPending(po.symbol)
		return nil
	}

	metrics.OrdersTotal.WithLabelValues(string(sideForAction(po.action)), "filled").Inc()
	c.clearPending(po.symbol)
	return nil
}

// abandon cancels an order that exceeded the order timeout
func (c *Coordinator) abandon(ctx context.Context, po pendingOrder) {
	if err := c.broker.CancelOrder(ctx, po.orderID); err != nil {
		c.log.Error().Err(err).Str("order_id", po.orderID).Msg("Order cancel failed")
	}
	metrics.OrdersTotal.WithLabelValues(string(sideForAction(po.action)), "timeout").Inc()
	c.log.Warn().
		Str("order_id", po.orderID).
		Str("symbol", po.symbol).
		Msg("Order timed out, cancelled")
	c.clearPending(po.symbol)
}

// finalize drains in-flight orders at shutdown: one last poll to catch
// fills, then cancellation for whatever is still open.
func (c *Coordinator) finalize() {
	ctx, cancel := context.WithTimeout(context.Background(), c.opts.OrderTimeout)
	defer cancel()

	for _, po := range c.pendingOrders() {
		if po.orderID == "" {
			c.clearPending(po.symbol)
			continue
		}
		status, err := c.broker.PollOrder(ctx, po.orderID)
		if err == nil && status.State == broker.OrderFilled {
			if err := c.applyFill(po, status); err != nil {
				c.log.Error().Err(err).Str("order_id", po.orderID).Msg("Failed to apply fill at shutdown")
			}
			continue
		}
		c.abandon(ctx, po)
	}

	c.log.Info().Msg("Trading loop stopped")
}

func (c *Coordinator) pendingOrders() []pendingOrder {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]pendingOrder, 0, len(c.pending))
	for _, po := range c.pending {
		out = append(out, po)
	}
	return out
}

func (c *Coordinator) hasPending(symbol string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.pending[symbol]
	return ok
}

func (c *Coordinator) clearPending(symbol string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.pending, symbol)
}

func sideForAction(a portfolio.Action) domain.Side {
	if a == portfolio.ActionBuy {
		return domain.SideBuy
	}
	return domain.SideSell
}
