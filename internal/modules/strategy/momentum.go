package strategy

import (
	"context"
	"fmt"

	"github.com/tmarkos/quant-trader/internal/domain"
	"github.com/tmarkos/quant-trader/pkg/formulas"
)

// MomentumBreakoutAdapter signals when price breaks the recent range on
// elevated volume. An RSI filter keeps it out of already-stretched moves.
type MomentumBreakoutAdapter struct {
	lookback         int
	breakoutPct      float64
	volumeMultiplier float64
}

// NewMomentumBreakoutAdapter creates a momentum breakout adapter
func NewMomentumBreakoutAdapter(lookback int, breakoutPct, volumeMultiplier float64) *MomentumBreakoutAdapter {
	return &MomentumBreakoutAdapter{
		lookback:         lookback,
		breakoutPct:      breakoutPct,
		volumeMultiplier: volumeMultiplier,
	}
}

// Name returns the strategy identifier
func (a *MomentumBreakoutAdapter) Name() string {
	return "MomentumBreakout"
}

// Evaluate produces a signal for one symbol from its candle window
func (a *MomentumBreakoutAdapter) Evaluate(_ context.Context, symbol string, window domain.Window) (Signal, error) {
	if len(window) < a.lookback+1 {
		return hold(a.Name(), window, "insufficient data for breakout"), nil
	}

	// Range computed over the lookback bars preceding the current one,
	// so the current bar can break it.
	past := window[len(window)-a.lookback-1 : len(window)-1]
	recentHigh, recentLow := past[0].High, past[0].Low
	for _, c := range past {
		if c.High > recentHigh {
			recentHigh = c.High
		}
		if c.Low < recentLow {
			recentLow = c.Low
		}
	}

	price := window.LastClose()
	volumes := window.Volumes()
	avgVolume := formulas.Mean(volumes[len(volumes)-a.lookback-1 : len(volumes)-1])
	curVolume := volumes[len(volumes)-1]

	volumeRatio := 0.0
	if avgVolume > 0 {
		volumeRatio = curVolume / avgVolume
	}

	rsi := formulas.RSI(window.Closes(), 14)

	switch {
	case price > recentHigh*(1+a.breakoutPct):
		if volumeRatio < a.volumeMultiplier {
			return hold(a.Name(), window, fmt.Sprintf("breakout without volume: ratio %.2f", volumeRatio)), nil
		}
		if rsi != nil && *rsi > 75 {
			return hold(a.Name(), window, fmt.Sprintf("breakout filtered by RSI %.1f", *rsi)), nil
		}
		strength := (price - recentHigh) / recentHigh
		return Signal{
			Strategy:   a.Name(),
			Type:       SignalBuy,
			Score:      clampScore(60 + strength*500 + (volumeRatio-a.volumeMultiplier)*10),
			Confidence: clamp01(0.6 + strength*5 + (volumeRatio-a.volumeMultiplier)*0.1),
			Price:      price,
			Reason:     fmt.Sprintf("breakout above %.2f with %.1fx volume", recentHigh, volumeRatio),
		}, nil
	case price < recentLow*(1-a.breakoutPct):
		if rsi != nil && *rsi < 25 {
			return hold(a.Name(), window, fmt.Sprintf("breakdown filtered by RSI %.1f", *rsi)), nil
		}
		strength := (recentLow - price) / recentLow
		return Signal{
			Strategy:   a.Name(),
			Type:       SignalSell,
			Score:      clampScore(60 + strength*500),
			Confidence: clamp01(0.6 + strength*5),
			Price:      price,
			Reason:     fmt.Sprintf("breakdown below %.2f", recentLow),
		}, nil
	default:
		return hold(a.Name(), window, "price inside recent range"), nil
	}
}
