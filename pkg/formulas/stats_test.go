package formulas

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMeanAndStdDev(t *testing.T) {
	data := []float64{2, 4, 4, 4, 5, 5, 7, 9}

	assert.InDelta(t, 5.0, Mean(data), 1e-9)
	assert.InDelta(t, 2.138, StdDev(data), 0.001)

	assert.Equal(t, 0.0, Mean(nil))
	assert.Equal(t, 0.0, StdDev(nil))
}

func TestCalculateReturns(t *testing.T) {
	prices := []float64{100, 110, 99}
	returns := CalculateReturns(prices)

	assert.Len(t, returns, 2)
	assert.InDelta(t, 0.10, returns[0], 1e-9)
	assert.InDelta(t, -0.10, returns[1], 1e-9)

	assert.Empty(t, CalculateReturns([]float64{100}))
}

func TestCorrelation(t *testing.T) {
	x := []float64{1, 2, 3, 4, 5}
	y := []float64{2, 4, 6, 8, 10}
	assert.InDelta(t, 1.0, Correlation(x, y), 1e-9)

	inv := []float64{10, 8, 6, 4, 2}
	assert.InDelta(t, -1.0, Correlation(x, inv), 1e-9)

	// Degenerate inputs return 0 instead of NaN
	flat := []float64{3, 3, 3, 3, 3}
	assert.Equal(t, 0.0, Correlation(x, flat))
	assert.Equal(t, 0.0, Correlation(x, []float64{1, 2}))
}

func TestRSIBounds(t *testing.T) {
	up := make([]float64, 30)
	for i := range up {
		up[i] = 100 + float64(i)
	}

	rsi := RSI(up, 14)
	assert.NotNil(t, rsi)
	assert.InDelta(t, 100.0, *rsi, 1e-6)

	assert.Nil(t, RSI(up[:10], 14))
}
