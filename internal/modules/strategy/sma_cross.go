package strategy

import (
	"context"
	"fmt"
	"math"

	"github.com/tmarkos/quant-trader/internal/domain"
	"github.com/tmarkos/quant-trader/pkg/formulas"
)

// SMACrossAdapter signals on golden/death crosses of two simple moving
// averages.
type SMACrossAdapter struct {
	fast int
	slow int
}

// NewSMACrossAdapter creates an SMA crossover adapter
func NewSMACrossAdapter(fast, slow int) *SMACrossAdapter {
	return &SMACrossAdapter{fast: fast, slow: slow}
}

// Name returns the strategy identifier
func (a *SMACrossAdapter) Name() string {
	return "SMACross"
}

// Evaluate produces a signal for one symbol from its candle window
func (a *SMACrossAdapter) Evaluate(_ context.Context, symbol string, window domain.Window) (Signal, error) {
	closes := window.Closes()
	if len(closes) < a.slow+1 {
		return hold(a.Name(), window, "insufficient data for SMA cross"), nil
	}

	fastMA := formulas.SMA(closes, a.fast)
	slowMA := formulas.SMA(closes, a.slow)
	if fastMA == nil || slowMA == nil {
		return hold(a.Name(), window, "insufficient data for SMA cross"), nil
	}

	cur := len(closes) - 1
	prev := cur - 1
	if math.IsNaN(fastMA[prev]) || math.IsNaN(slowMA[prev]) {
		return hold(a.Name(), window, "insufficient data for SMA cross"), nil
	}

	price := window.LastClose()
	spread := math.Abs(fastMA[cur]-slowMA[cur]) / slowMA[cur]

	switch {
	case fastMA[prev] <= slowMA[prev] && fastMA[cur] > slowMA[cur]:
		// Golden cross this bar.
		return Signal{
			Strategy:   a.Name(),
			Type:       SignalBuy,
			Score:      clampScore(65 + spread*1000),
			Confidence: clamp01(0.6 + spread*20),
			Price:      price,
			Reason:     fmt.Sprintf("golden cross: SMA%d %.2f over SMA%d %.2f", a.fast, fastMA[cur], a.slow, slowMA[cur]),
		}, nil
	case fastMA[prev] >= slowMA[prev] && fastMA[cur] < slowMA[cur]:
		return Signal{
			Strategy:   a.Name(),
			Type:       SignalSell,
			Score:      clampScore(65 + spread*1000),
			Confidence: clamp01(0.6 + spread*20),
			Price:      price,
			Reason:     fmt.Sprintf("death cross: SMA%d %.2f under SMA%d %.2f", a.fast, fastMA[cur], a.slow, slowMA[cur]),
		}, nil
	default:
		return hold(a.Name(), window, "no SMA crossover"), nil
	}
}
