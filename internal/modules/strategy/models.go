package strategy

import (
	"context"

	"github.com/tmarkos/quant-trader/internal/domain"
)

// SignalType is a strategy's directional recommendation
type SignalType string

const (
	SignalBuy  SignalType = "BUY"
	SignalSell SignalType = "SELL"
	SignalHold SignalType = "HOLD"
)

// Signal is the result of one strategy evaluation for one symbol in one
// cycle. Signals are produced fresh each cycle and are never reused.
type Signal struct {
	Strategy   string     `json:"strategy"`
	Type       SignalType `json:"signal"`
	Score      float64    `json:"score"`      // signal strength, 0-100
	Confidence float64    `json:"confidence"` // self-reported certainty, 0-1
	Price      float64    `json:"price"`
	Reason     string     `json:"reason"`
}

// Adapter wraps one strategy algorithm. Implementations must be stateless
// or hold only per-call state; the coordinator invokes adapters
// concurrently across symbols and strategies.
type Adapter interface {
	Name() string
	Evaluate(ctx context.Context, symbol string, window domain.Window) (Signal, error)
}

// hold builds a HOLD signal with zero confidence
func hold(name string, window domain.Window, reason string) Signal {
	return Signal{
		Strategy:   name,
		Type:       SignalHold,
		Score:      0,
		Confidence: 0,
		Price:      window.LastClose(),
		Reason:     reason,
	}
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

func clampScore(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 100 {
		return 100
	}
	return f
}
