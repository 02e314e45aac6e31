package strategy

import (
	"context"
	"fmt"
	"math"

	"github.com/tmarkos/quant-trader/internal/domain"
	"github.com/tmarkos/quant-trader/pkg/formulas"
)

// VolumeConfirmationAdapter signals on volume surges that agree with price
// direction, using on-balance volume and price/volume correlation to
// confirm that money flow backs the move.
type VolumeConfirmationAdapter struct {
	volumeMAPeriod int
	surgeRatio     float64
	corrPeriods    int
}

// NewVolumeConfirmationAdapter creates a volume confirmation adapter
func NewVolumeConfirmationAdapter(volumeMAPeriod int, surgeRatio float64, corrPeriods int) *VolumeConfirmationAdapter {
	return &VolumeConfirmationAdapter{
		volumeMAPeriod: volumeMAPeriod,
		surgeRatio:     surgeRatio,
		corrPeriods:    corrPeriods,
	}
}

// Name returns the strategy identifier
func (a *VolumeConfirmationAdapter) Name() string {
	return "VolumeConfirmation"
}

// Evaluate produces a signal for one symbol from its candle window
func (a *VolumeConfirmationAdapter) Evaluate(_ context.Context, symbol string, window domain.Window) (Signal, error) {
	if len(window) < a.volumeMAPeriod+1 {
		return hold(a.Name(), window, "insufficient data for volume analysis"), nil
	}

	closes := window.Closes()
	volumes := window.Volumes()

	avgVolume := formulas.Mean(volumes[len(volumes)-a.volumeMAPeriod-1 : len(volumes)-1])
	if avgVolume <= 0 {
		return hold(a.Name(), window, "no volume history"), nil
	}
	volumeRatio := volumes[len(volumes)-1] / avgVolume

	prevClose := closes[len(closes)-2]
	price := window.LastClose()
	priceChange := 0.0
	if prevClose > 0 {
		priceChange = (price - prevClose) / prevClose
	}

	obvTrend := obvTrend(closes, volumes, 5)

	// Correlation between recent price moves and volume. Positive means
	// volume expands on the dominant direction.
	n := a.corrPeriods
	if n > len(closes)-1 {
		n = len(closes) - 1
	}
	returns := formulas.CalculateReturns(closes[len(closes)-n-1:])
	corr := formulas.Correlation(returns, volumes[len(volumes)-n:])

	switch {
	case volumeRatio >= a.surgeRatio && priceChange > 0.005 && obvTrend > 0:
		// Surge with rising price and rising OBV.
		return Signal{
			Strategy:   a.Name(),
			Type:       SignalBuy,
			Score:      clampScore(55 + (volumeRatio-a.surgeRatio)*20 + priceChange*1000),
			Confidence: clamp01(0.6 + (volumeRatio-1)*0.1 + math.Max(corr, 0)*0.1),
			Price:      price,
			Reason:     fmt.Sprintf("volume surge %.1fx with price up %.2f%%", volumeRatio, priceChange*100),
		}, nil
	case volumeRatio >= a.surgeRatio*0.85 && priceChange < -0.005:
		// Heavy selling: elevated volume on a down move.
		return Signal{
			Strategy:   a.Name(),
			Type:       SignalSell,
			Score:      clampScore(55 + (volumeRatio-1)*20 - priceChange*1000),
			Confidence: clamp01(0.6 - priceChange*15),
			Price:      price,
			Reason:     fmt.Sprintf("distribution: %.1fx volume with price down %.2f%%", volumeRatio, priceChange*100),
		}, nil
	case volumeRatio < 0.7 && priceChange > 0.01:
		// Rally on shrinking volume lacks sponsorship.
		return Signal{
			Strategy:   a.Name(),
			Type:       SignalSell,
			Score:      clampScore(50 + priceChange*500),
			Confidence: clamp01(0.55 + priceChange*10),
			Price:      price,
			Reason:     fmt.Sprintf("rally on %.1fx volume lacks confirmation", volumeRatio),
		}, nil
	default:
		return hold(a.Name(), window, fmt.Sprintf("no volume signal: ratio %.2f", volumeRatio)), nil
	}
}

// obvTrend returns the normalized change of on-balance volume over the
// last span bars. Positive means accumulation.
func obvTrend(closes, volumes []float64, span int) float64 {
	if len(closes) < 2 || len(closes) != len(volumes) {
		return 0
	}

	obv := make([]float64, len(closes))
	obv[0] = volumes[0]
	for i := 1; i < len(closes); i++ {
		switch {
		case closes[i] > closes[i-1]:
			obv[i] = obv[i-1] + volumes[i]
		case closes[i] < closes[i-1]:
			obv[i] = obv[i-1] - volumes[i]
		default:
			obv[i] = obv[i-1]
		}
	}

	if len(obv) <= span {
		span = len(obv) - 1
	}
	base := obv[len(obv)-1-span]
	if base == 0 {
		return 0
	}
	return (obv[len(obv)-1] - base) / math.Abs(base)
}
