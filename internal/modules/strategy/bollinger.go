package strategy

import (
	"context"
	"fmt"

	"github.com/tmarkos/quant-trader/internal/domain"
	"github.com/tmarkos/quant-trader/pkg/formulas"
)

// BollingerAdapter signals when price touches the outer Bollinger Bands
type BollingerAdapter struct {
	window int
	stdDev float64
}

// NewBollingerAdapter creates a Bollinger Bands adapter
func NewBollingerAdapter(window int, stdDev float64) *BollingerAdapter {
	return &BollingerAdapter{window: window, stdDev: stdDev}
}

// Name returns the strategy identifier
func (a *BollingerAdapter) Name() string {
	return "BollingerBands"
}

// Evaluate produces a signal for one symbol from its candle window
func (a *BollingerAdapter) Evaluate(_ context.Context, symbol string, window domain.Window) (Signal, error) {
	bands := formulas.Bollinger(window.Closes(), a.window, a.stdDev)
	if bands == nil {
		return hold(a.Name(), window, "insufficient data for Bollinger Bands"), nil
	}

	price := window.LastClose()
	width := bands.Upper - bands.Lower
	if width <= 0 {
		return hold(a.Name(), window, "degenerate bands"), nil
	}

	// %B position of price within the bands: 0 at the lower band, 1 at
	// the upper band.
	pctB := (price - bands.Lower) / width

	switch {
	case price <= bands.Lower:
		overshoot := (bands.Lower - price) / width
		return Signal{
			Strategy:   a.Name(),
			Type:       SignalBuy,
			Score:      clampScore(60 + overshoot*200),
			Confidence: clamp01(0.55 + overshoot*2),
			Price:      price,
			Reason:     fmt.Sprintf("price %.2f at lower band %.2f", price, bands.Lower),
		}, nil
	case price >= bands.Upper:
		overshoot := (price - bands.Upper) / width
		return Signal{
			Strategy:   a.Name(),
			Type:       SignalSell,
			Score:      clampScore(60 + overshoot*200),
			Confidence: clamp01(0.55 + overshoot*2),
			Price:      price,
			Reason:     fmt.Sprintf("price %.2f at upper band %.2f", price, bands.Upper),
		}, nil
	default:
		return hold(a.Name(), window, fmt.Sprintf("price inside bands: %%B %.2f", pctB)), nil
	}
}
