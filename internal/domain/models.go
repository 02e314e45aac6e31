package domain

import (
	"fmt"
	"strings"
	"time"
)

// Side represents the trade direction (BUY or SELL)
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// IsValid checks if the side is valid
func (s Side) IsValid() bool {
	return s == SideBuy || s == SideSell
}

// SideFromString creates a Side from a string (case-insensitive)
func SideFromString(value string) (Side, error) {
	switch strings.ToUpper(strings.TrimSpace(value)) {
	case "BUY":
		return SideBuy, nil
	case "SELL":
		return SideSell, nil
	default:
		return "", fmt.Errorf("invalid side: %q", value)
	}
}

// Candle is a single OHLCV bar
type Candle struct {
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume int64     `json:"volume"`
}

// Window is a chronologically ordered series of candles for one symbol,
// oldest first. Strategy adapters receive a window per evaluation and must
// not retain it across cycles.
type Window []Candle

// Closes returns the close series
func (w Window) Closes() []float64 {
	out := make([]float64, len(w))
	for i, c := range w {
		out[i] = c.Close
	}
	return out
}

// Highs returns the high series
func (w Window) Highs() []float64 {
	out := make([]float64, len(w))
	for i, c := range w {
		out[i] = c.High
	}
	return out
}

// Lows returns the low series
func (w Window) Lows() []float64 {
	out := make([]float64, len(w))
	for i, c := range w {
		out[i] = c.Low
	}
	return out
}

// Volumes returns the volume series as floats
func (w Window) Volumes() []float64 {
	out := make([]float64, len(w))
	for i, c := range w {
		out[i] = float64(c.Volume)
	}
	return out
}

// LastClose returns the most recent close, or 0 for an empty window
func (w Window) LastClose() float64 {
	if len(w) == 0 {
		return 0
	}
	return w[len(w)-1].Close
}
