package formulas

import (
	"github.com/markcheno/go-talib"
)

// RSI calculates the Relative Strength Index over the full series.
//
// RSI Formula:
//   RSI = 100 - (100 / (1 + RS))
//   where RS = Average Gain / Average Loss over N periods
//
// Returns the current (latest) RSI value, or nil if there is not enough data.
func RSI(closes []float64, length int) *float64 {
	if len(closes) < length+1 {
		return nil
	}

	rsi := talib.Rsi(closes, length)
	return lastValid(rsi)
}

// MACDResult holds the latest MACD line, signal line and histogram values,
// plus the previous histogram value for crossover detection.
type MACDResult struct {
	MACD          float64
	Signal        float64
	Histogram     float64
	PrevHistogram float64
}

// MACD calculates Moving Average Convergence Divergence.
// Returns nil if the series is too short for the slow period plus signal.
func MACD(closes []float64, fast, slow, signal int) *MACDResult {
	if len(closes) < slow+signal {
		return nil
	}

	macd, sig, hist := talib.Macd(closes, fast, slow, signal)
	if len(hist) < 2 {
		return nil
	}

	cur := len(hist) - 1
	if isNaN(macd[cur]) || isNaN(sig[cur]) || isNaN(hist[cur]) || isNaN(hist[cur-1]) {
		return nil
	}

	return &MACDResult{
		MACD:          macd[cur],
		Signal:        sig[cur],
		Histogram:     hist[cur],
		PrevHistogram: hist[cur-1],
	}
}

// BollingerResult holds the latest Bollinger Band values.
type BollingerResult struct {
	Upper  float64
	Middle float64
	Lower  float64
}

// Bollinger calculates Bollinger Bands (SMA +/- stdDev standard deviations).
// Returns nil if there is not enough data for the window.
func Bollinger(closes []float64, window int, stdDev float64) *BollingerResult {
	if len(closes) < window {
		return nil
	}

	upper, middle, lower := talib.BBands(closes, window, stdDev, stdDev, talib.SMA)
	cur := len(closes) - 1
	if isNaN(upper[cur]) || isNaN(middle[cur]) || isNaN(lower[cur]) {
		return nil
	}

	return &BollingerResult{
		Upper:  upper[cur],
		Middle: middle[cur],
		Lower:  lower[cur],
	}
}

// SMA calculates a simple moving average series.
func SMA(values []float64, window int) []float64 {
	if len(values) < window {
		return nil
	}
	return talib.Sma(values, window)
}

// lastValid returns a pointer to the last non-NaN value of a series
func lastValid(series []float64) *float64 {
	if len(series) == 0 {
		return nil
	}
	v := series[len(series)-1]
	if isNaN(v) {
		return nil
	}
	return &v
}

// isNaN checks if a float64 is NaN
func isNaN(f float64) bool {
	return f != f
}
