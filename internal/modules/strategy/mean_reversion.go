package strategy

import (
	"context"
	"fmt"
	"math"

	"github.com/tmarkos/quant-trader/internal/domain"
	"github.com/tmarkos/quant-trader/pkg/formulas"
)

// MeanReversionAdapter signals when price stretches away from a stack of
// moving averages, with MACD direction as a filter against fading a real
// trend.
type MeanReversionAdapter struct {
	maPeriods    []int
	deviationPct float64
}

// NewMeanReversionAdapter creates a mean reversion adapter
func NewMeanReversionAdapter(maPeriods []int, deviationPct float64) *MeanReversionAdapter {
	return &MeanReversionAdapter{maPeriods: maPeriods, deviationPct: deviationPct}
}

// Name returns the strategy identifier
func (a *MeanReversionAdapter) Name() string {
	return "MeanReversion"
}

// Evaluate produces a signal for one symbol from its candle window
func (a *MeanReversionAdapter) Evaluate(_ context.Context, symbol string, window domain.Window) (Signal, error) {
	closes := window.Closes()
	price := window.LastClose()
	if price <= 0 {
		return hold(a.Name(), window, "no price"), nil
	}

	// Average deviation of price from each moving average it has enough
	// data for. Positive means price is above its means.
	var totalDev float64
	var count int
	for _, period := range a.maPeriods {
		ma := formulas.SMA(closes, period)
		if ma == nil {
			continue
		}
		last := ma[len(ma)-1]
		if math.IsNaN(last) || last <= 0 {
			continue
		}
		totalDev += (price - last) / last
		count++
	}
	if count == 0 {
		return hold(a.Name(), window, "insufficient data for mean reversion"), nil
	}
	deviation := totalDev / float64(count)

	macd := formulas.MACD(closes, 12, 26, 9)

	switch {
	case deviation <= -a.deviationPct:
		// Stretched below the means. Skip if MACD says the downtrend is
		// still accelerating.
		if macd != nil && macd.Histogram < 0 && macd.Histogram < macd.PrevHistogram {
			return hold(a.Name(), window, "downtrend still accelerating"), nil
		}
		stretch := -deviation - a.deviationPct
		return Signal{
			Strategy:   a.Name(),
			Type:       SignalBuy,
			Score:      clampScore(55 + stretch*1500),
			Confidence: clamp01(0.55 + stretch*15),
			Price:      price,
			Reason:     fmt.Sprintf("price %.2f%% below moving averages", -deviation*100),
		}, nil
	case deviation >= a.deviationPct:
		if macd != nil && macd.Histogram > 0 && macd.Histogram > macd.PrevHistogram {
			return hold(a.Name(), window, "uptrend still accelerating"), nil
		}
		stretch := deviation - a.deviationPct
		return Signal{
			Strategy:   a.Name(),
			Type:       SignalSell,
			Score:      clampScore(55 + stretch*1500),
			Confidence: clamp01(0.55 + stretch*15),
			Price:      price,
			Reason:     fmt.Sprintf("price %.2f%% above moving averages", deviation*100),
		}, nil
	default:
		return hold(a.Name(), window, fmt.Sprintf("price near means: deviation %.2f%%", deviation*100)), nil
	}
}
