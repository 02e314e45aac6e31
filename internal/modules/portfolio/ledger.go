// Package portfolio is the single source of truth for cash, positions and
// trade history. All mutation flows through Ledger.Apply.
package portfolio

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tmarkos/quant-trader/internal/metrics"
)

// CorruptionError marks a ledger invariant violation. The coordinator
// treats it as fatal: a ledger that disagrees with itself must not keep
// trading.
type CorruptionError struct {
	Reason string
}

func (e *CorruptionError) Error() string {
	return fmt.Sprintf("ledger corrupted: %s", e.Reason)
}

// Ledger holds portfolio state in memory and mirrors every change to the
// store. A single mutex serializes writers; reads take a consistent
// snapshot.
type Ledger struct {
	mu    sync.RWMutex
	store *Store
	log   zerolog.Logger

	cash              float64
	positions         map[string]Position
	realizedPnLToday  float64
	consecutiveLosses int
	startOfDayValue   float64
}

// NewLedger restores ledger state from the store, seeding cash when the
// database is empty.
func NewLedger(store *Store, initialCash float64, log zerolog.Logger) (*Ledger, error) {
	l := &Ledger{
		store:     store,
		log:       log.With().Str("component", "ledger").Logger(),
		positions: make(map[string]Position),
	}

	state, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load ledger state: %w", err)
	}

	if state == nil {
		l.cash = initialCash
		l.startOfDayValue = initialCash
		if err := store.Persist(l.snapshotLocked(), nil); err != nil {
			return nil, fmt.Errorf("failed to seed ledger: %w", err)
		}
		l.log.Info().Float64("cash", initialCash).Msg("Seeded new ledger")
	} else {
		l.cash = state.Cash
		l.positions = state.Positions
		l.realizedPnLToday = state.RealizedPnLToday
		l.consecutiveLosses = state.ConsecutiveLosses
		l.startOfDayValue = state.StartOfDayValue
		l.log.Info().
			Float64("cash", l.cash).
			Int("positions", len(l.positions)).
			Msg("Restored ledger")
	}

	l.publishMetrics()
	return l, nil
}

// Apply records one executed fill, updating cash, the position and the
// daily counters, and persists everything in one database transaction.
// It returns the recorded transaction with realized P&L filled in.
func (l *Ledger) Apply(tx Transaction) (Transaction, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if tx.Shares <= 0 || tx.Price <= 0 {
		return tx, fmt.Errorf("invalid transaction: shares=%.2f price=%.2f", tx.Shares, tx.Price)
	}
	if tx.Timestamp.IsZero() {
		tx.Timestamp = time.Now().UTC()
	}

	switch {
	case tx.Action == ActionBuy:
		if err := l.applyBuy(&tx); err != nil {
			return tx, err
		}
	case tx.Action.IsSell():
		if err := l.applySell(&tx); err != nil {
			return tx, err
		}
	default:
		return tx, fmt.Errorf("unknown transaction action: %q", tx.Action)
	}

	if err := l.checkInvariants(); err != nil {
		return tx, err
	}

	if err := l.store.Persist(l.snapshotLocked(), &tx); err != nil {
		return tx, fmt.Errorf("failed to persist ledger: %w", err)
	}

	l.publishMetrics()

	l.log.Info().
		Str("symbol", tx.Symbol).
		Str("action", string(tx.Action)).
		Float64("shares", tx.Shares).
		Float64("price", tx.Price).
		Float64("realized_pnl", tx.RealizedPnL).
		Float64("cash", l.cash).
		Msg("Applied transaction")

	return tx, nil
}

func (l *Ledger) applyBuy(tx *Transaction) error {
	cost := tx.Shares*tx.Price + tx.Fees
	if cost > l.cash+1e-9 {
		return fmt.Errorf("insufficient cash: need %.2f, have %.2f", cost, l.cash)
	}
	l.cash -= cost

	pos, exists := l.positions[tx.Symbol]
	if !exists {
		l.positions[tx.Symbol] = Position{
			Symbol:          tx.Symbol,
			Shares:          tx.Shares,
			CostBasis:       cost / tx.Shares,
			EntryScore:      tx.EntryScore,
			EntryAt:         tx.Timestamp,
			StopLossPrice:   tx.StopLossPrice,
			TakeProfitPrice: tx.TakeProfitPrice,
		}
		return nil
	}

	// Averaging in: recompute VWAP basis and rescale the stop prices so
	// they keep the same ratio to basis the incoming fill implied.
	newShares := pos.Shares + tx.Shares
	newBasis := (pos.Shares*pos.CostBasis + cost) / newShares
	if tx.Price > 0 {
		if tx.StopLossPrice > 0 {
			pos.StopLossPrice = newBasis * (tx.StopLossPrice / tx.Price)
		}
		if tx.TakeProfitPrice > 0 {
			pos.TakeProfitPrice = newBasis * (tx.TakeProfitPrice / tx.Price)
		}
	}
	pos.Shares = newShares
	pos.CostBasis = newBasis
	pos.EntryScore = tx.EntryScore
	l.positions[tx.Symbol] = pos
	return nil
}

func (l *Ledger) applySell(tx *Transaction) error {
	pos, exists := l.positions[tx.Symbol]
	if !exists {
		return fmt.Errorf("cannot sell %s: no open position", tx.Symbol)
	}
	if tx.Shares > pos.Shares+1e-9 {
		return fmt.Errorf("cannot sell %.2f shares of %s: only %.2f held", tx.Shares, tx.Symbol, pos.Shares)
	}

	proceeds := tx.Shares*tx.Price - tx.Fees
	l.cash += proceeds
	tx.RealizedPnL = proceeds - tx.Shares*pos.CostBasis

	l.realizedPnLToday += tx.RealizedPnL
	if tx.RealizedPnL < 0 {
		l.consecutiveLosses++
	} else {
		l.consecutiveLosses = 0
	}

	remaining := pos.Shares - tx.Shares
	if remaining < 1e-9 {
		delete(l.positions, tx.Symbol)
	} else {
		pos.Shares = remaining
		l.positions[tx.Symbol] = pos
	}
	return nil
}

// checkInvariants verifies internal consistency after a mutation.
// Callers must hold l.mu.
func (l *Ledger) checkInvariants() error {
	if l.cash < -1e-6 || math.IsNaN(l.cash) || math.IsInf(l.cash, 0) {
		return &CorruptionError{Reason: fmt.Sprintf("cash is %.6f", l.cash)}
	}
	for sym, pos := range l.positions {
		if pos.Shares <= 0 {
			return &CorruptionError{Reason: fmt.Sprintf("position %s has %.6f shares", sym, pos.Shares)}
		}
		if pos.CostBasis <= 0 || math.IsNaN(pos.CostBasis) {
			return &CorruptionError{Reason: fmt.Sprintf("position %s has cost basis %.6f", sym, pos.CostBasis)}
		}
	}
	return nil
}

// Snapshot returns a deep copy of current state
func (l *Ledger) Snapshot() Snapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.snapshotLocked()
}

func (l *Ledger) snapshotLocked() Snapshot {
	positions := make(map[string]Position, len(l.positions))
	for sym, pos := range l.positions {
		positions[sym] = pos
	}
	return Snapshot{
		Cash:              l.cash,
		Positions:         positions,
		RealizedPnLToday:  l.realizedPnLToday,
		ConsecutiveLosses: l.consecutiveLosses,
		StartOfDayValue:   l.startOfDayValue,
	}
}

// Position returns one position by symbol
func (l *Ledger) Position(symbol string) (Position, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	pos, ok := l.positions[symbol]
	return pos, ok
}

// ResetDay zeroes the daily counters and records the start-of-day value.
// Called by the session reset job before the first cycle of a session.
func (l *Ledger) ResetDay(startOfDayValue float64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.realizedPnLToday = 0
	l.startOfDayValue = startOfDayValue

	if err := l.store.Persist(l.snapshotLocked(), nil); err != nil {
		return fmt.Errorf("failed to persist day reset: %w", err)
	}

	l.log.Info().Float64("start_of_day_value", startOfDayValue).Msg("Reset daily counters")
	return nil
}

// Transactions returns the most recent trade history
func (l *Ledger) Transactions(limit int) ([]Transaction, error) {
	return l.store.Transactions(limit)
}

func (l *Ledger) publishMetrics() {
	metrics.PortfolioCash.Set(l.cash)
	metrics.OpenPositions.Set(float64(len(l.positions)))
}
