package strategy

import (
	"context"
	"fmt"

	"github.com/tmarkos/quant-trader/internal/domain"
	"github.com/tmarkos/quant-trader/pkg/formulas"
)

// RSIAdapter signals on oversold/overbought conditions of the Relative
// Strength Index.
type RSIAdapter struct {
	period     int
	oversold   float64
	overbought float64
}

// NewRSIAdapter creates an RSI adapter with the given period and thresholds
func NewRSIAdapter(period int, oversold, overbought float64) *RSIAdapter {
	return &RSIAdapter{
		period:     period,
		oversold:   oversold,
		overbought: overbought,
	}
}

// Name returns the strategy identifier
func (a *RSIAdapter) Name() string {
	return "RSI"
}

// Evaluate produces a signal for one symbol from its candle window
func (a *RSIAdapter) Evaluate(_ context.Context, symbol string, window domain.Window) (Signal, error) {
	closes := window.Closes()
	rsi := formulas.RSI(closes, a.period)
	if rsi == nil {
		return hold(a.Name(), window, "insufficient data for RSI"), nil
	}

	v := *rsi
	switch {
	case v <= a.oversold:
		// The deeper into oversold territory, the stronger the signal.
		depth := (a.oversold - v) / a.oversold
		return Signal{
			Strategy:   a.Name(),
			Type:       SignalBuy,
			Score:      clampScore(50 + depth*150),
			Confidence: clamp01(0.5 + depth*1.5),
			Price:      window.LastClose(),
			Reason:     fmt.Sprintf("RSI oversold: %.1f <= %.1f", v, a.oversold),
		}, nil
	case v >= a.overbought:
		depth := (v - a.overbought) / (100 - a.overbought)
		return Signal{
			Strategy:   a.Name(),
			Type:       SignalSell,
			Score:      clampScore(50 + depth*150),
			Confidence: clamp01(0.5 + depth*1.5),
			Price:      window.LastClose(),
			Reason:     fmt.Sprintf("RSI overbought: %.1f >= %.1f", v, a.overbought),
		}, nil
	default:
		return hold(a.Name(), window, fmt.Sprintf("RSI neutral: %.1f", v)), nil
	}
}
