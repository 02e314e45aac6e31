package strategy

import (
	"context"
	"fmt"
	"math"

	"github.com/tmarkos/quant-trader/internal/domain"
	"github.com/tmarkos/quant-trader/pkg/formulas"
)

// MACDAdapter signals on MACD histogram zero-line crossovers
type MACDAdapter struct {
	fast   int
	slow   int
	signal int
}

// NewMACDAdapter creates a MACD adapter with the given EMA periods
func NewMACDAdapter(fast, slow, signal int) *MACDAdapter {
	return &MACDAdapter{fast: fast, slow: slow, signal: signal}
}

// Name returns the strategy identifier
func (a *MACDAdapter) Name() string {
	return "MACD"
}

// Evaluate produces a signal for one symbol from its candle window
func (a *MACDAdapter) Evaluate(_ context.Context, symbol string, window domain.Window) (Signal, error) {
	res := formulas.MACD(window.Closes(), a.fast, a.slow, a.signal)
	if res == nil {
		return hold(a.Name(), window, "insufficient data for MACD"), nil
	}

	price := window.LastClose()
	if price <= 0 {
		return hold(a.Name(), window, "no price"), nil
	}

	// Histogram magnitude relative to price, so the score is comparable
	// across symbols at different price levels.
	magnitude := math.Abs(res.Histogram) / price

	switch {
	case res.PrevHistogram <= 0 && res.Histogram > 0:
		// Bullish crossover: histogram crossed above zero this bar.
		return Signal{
			Strategy:   a.Name(),
			Type:       SignalBuy,
			Score:      clampScore(60 + magnitude*10000),
			Confidence: clamp01(0.55 + magnitude*100),
			Price:      price,
			Reason:     fmt.Sprintf("MACD bullish crossover: histogram %.4f", res.Histogram),
		}, nil
	case res.PrevHistogram >= 0 && res.Histogram < 0:
		return Signal{
			Strategy:   a.Name(),
			Type:       SignalSell,
			Score:      clampScore(60 + magnitude*10000),
			Confidence: clamp01(0.55 + magnitude*100),
			Price:      price,
			Reason:     fmt.Sprintf("MACD bearish crossover: histogram %.4f", res.Histogram),
		}, nil
	default:
		return hold(a.Name(), window, fmt.Sprintf("MACD no crossover: histogram %.4f", res.Histogram)), nil
	}
}
