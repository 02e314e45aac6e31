// Package risk admits or denies trade intents against hard limits and
// runs the daily circuit breaker.
package risk

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/tmarkos/quant-trader/internal/metrics"
	"github.com/tmarkos/quant-trader/internal/modules/fusion"
	"github.com/tmarkos/quant-trader/internal/modules/portfolio"
)

// Decision is the risk manager's verdict on a trade intent. Denials carry
// the failed check name and a human-readable reason; they never shrink a
// request to make it fit.
type Decision struct {
	Approved bool    `json:"approved"`
	Shares   float64 `json:"shares"`
	Check    string  `json:"check,omitempty"`
	Reason   string  `json:"reason,omitempty"`
}

func deny(check, format string, args ...interface{}) Decision {
	metrics.RiskDenialsTotal.WithLabelValues(check).Inc()
	return Decision{Check: check, Reason: fmt.Sprintf(format, args...)}
}

// StopKind identifies which stop condition fired
type StopKind string

const (
	StopLoss   StopKind = "stop_loss"
	TakeProfit StopKind = "take_profit"
)

// StopAction is an exit demanded by a position's stop conditions. Stops
// outrank fused signals: the coordinator executes these before looking at
// strategy output.
type StopAction struct {
	Symbol string
	Kind   StopKind
	Shares float64
	Price  float64
}

// Manager enforces position, exposure and cash limits, and trips the
// daily circuit breaker. The breaker is sticky: once HALTED, it stays
// HALTED until the session reset, regardless of later recovery.
type Manager struct {
	limits Limits
	sizer  Sizer
	log    zerolog.Logger

	mu         sync.Mutex
	halted     bool
	haltReason string
}

// NewManager creates a risk manager
func NewManager(limits Limits, sizer Sizer, log zerolog.Logger) *Manager {
	return &Manager{
		limits: limits,
		sizer:  sizer,
		log:    log.With().Str("component", "risk").Logger(),
	}
}

// Limits returns the active limit set
func (m *Manager) Limits() Limits {
	return m.limits
}

// Halted reports the circuit breaker state and the trip reason
func (m *Manager) Halted() (bool, string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.halted, m.haltReason
}

// UpdateBreaker re-evaluates the circuit breaker against current daily
// stats. Called once per cycle before any BUY is considered. Tripping is
// one-way within a session.
func (m *Manager) UpdateBreaker(snap portfolio.Snapshot) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.halted {
		return true
	}

	if snap.StartOfDayValue > 0 {
		maxLoss := m.limits.MaxDailyLossPct * snap.StartOfDayValue
		if snap.RealizedPnLToday <= -maxLoss {
			m.halted = true
			m.haltReason = fmt.Sprintf("daily loss %.2f exceeds limit %.2f", -snap.RealizedPnLToday, maxLoss)
		}
	}
	if !m.halted && snap.ConsecutiveLosses >= m.limits.MaxConsecutiveLosses {
		m.halted = true
		m.haltReason = fmt.Sprintf("%d consecutive losses", snap.ConsecutiveLosses)
	}

	if m.halted {
		metrics.CircuitBreakerState.Set(1)
		m.log.Warn().Str("reason", m.haltReason).Msg("Circuit breaker HALTED")
	}
	return m.halted
}

// ResetSession re-arms the circuit breaker. Only the session reset job
// calls this.
func (m *Manager) ResetSession() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.halted {
		m.log.Info().Str("previous_reason", m.haltReason).Msg("Circuit breaker re-armed")
	}
	m.halted = false
	m.haltReason = ""
	metrics.CircuitBreakerState.Set(0)
}

// SizePosition evaluates a BUY intent. It sizes the position and then
// verifies the sized trade against every limit; any violation is a
// denial, never a reduced size.
func (m *Manager) SizePosition(sig fusion.CombinedSignal, snap portfolio.Snapshot, prices map[string]float64) Decision {
	if halted, reason := m.Halted(); halted {
		return deny("circuit_breaker", "trading halted: %s", reason)
	}
	if sig.Confidence < m.limits.MinConfidence {
		return deny("confidence", "confidence %.2f below minimum %.2f", sig.Confidence, m.limits.MinConfidence)
	}
	if _, exists := snap.Positions[sig.Symbol]; exists {
		return deny("position_exists", "already holding %s", sig.Symbol)
	}
	if sig.Price <= 0 {
		return deny("price", "no valid price for %s", sig.Symbol)
	}

	totalValue := snap.TotalValue(prices)
	shares := m.sizer.Size(totalValue, snap.Cash, sig.Price)
	if shares < 1 {
		return deny("size", "budget too small for one share of %s at %.2f", sig.Symbol, sig.Price)
	}

	cost := shares * sig.Price

	if cost > totalValue*m.limits.MaxPositionPct+1e-9 {
		return deny("max_position", "cost %.2f exceeds position limit %.2f", cost, totalValue*m.limits.MaxPositionPct)
	}

	remainingCash := snap.Cash - cost
	if remainingCash < totalValue*m.limits.MinCashReservePct {
		return deny("cash_reserve", "trade would leave %.2f cash, reserve requires %.2f",
			remainingCash, totalValue*m.limits.MinCashReservePct)
	}

	exposure := totalValue - snap.Cash + cost
	if exposure > totalValue*m.limits.MaxExposurePct+1e-9 {
		return deny("max_exposure", "exposure %.2f would exceed limit %.2f",
			exposure, totalValue*m.limits.MaxExposurePct)
	}

	return Decision{Approved: true, Shares: shares}
}

// ValidateSell evaluates a SELL intent. Sells are permitted while halted
// and regardless of signal confidence: reducing exposure is never gated,
// the only requirement is an open position to sell.
func (m *Manager) ValidateSell(sig fusion.CombinedSignal, snap portfolio.Snapshot) Decision {
	pos, exists := snap.Positions[sig.Symbol]
	if !exists {
		return deny("no_position", "no open position in %s", sig.Symbol)
	}
	return Decision{Approved: true, Shares: pos.Shares}
}

// CheckStopConditions scans open positions against current prices and
// returns the exits demanded by stop-loss or take-profit levels. These
// fire regardless of the circuit breaker and before fusion output is
// consulted.
func (m *Manager) CheckStopConditions(snap portfolio.Snapshot, prices map[string]float64) []StopAction {
	var actions []StopAction
	for sym, pos := range snap.Positions {
		price, ok := prices[sym]
		if !ok || price <= 0 {
			continue
		}
		switch {
		case pos.StopLossPrice > 0 && price <= pos.StopLossPrice:
			actions = append(actions, StopAction{Symbol: sym, Kind: StopLoss, Shares: pos.Shares, Price: price})
			m.log.Warn().
				Str("symbol", sym).
				Float64("price", price).
				Float64("stop", pos.StopLossPrice).
				Msg("Stop-loss triggered")
		case pos.TakeProfitPrice > 0 && price >= pos.TakeProfitPrice:
			actions = append(actions, StopAction{Symbol: sym, Kind: TakeProfit, Shares: pos.Shares, Price: price})
			m.log.Info().
				Str("symbol", sym).
				Float64("price", price).
				Float64("target", pos.TakeProfitPrice).
				Msg("Take-profit triggered")
		}
	}
	return actions
}

// StopPrices derives the stop-loss and take-profit levels for a new
// position entered at the given price.
func (m *Manager) StopPrices(entryPrice float64) (stopLoss, takeProfit float64) {
	return entryPrice * (1 - m.limits.StopLossPct), entryPrice * (1 + m.limits.TakeProfitPct)
}
