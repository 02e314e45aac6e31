// Package fusion combines per-strategy signals into one decision per symbol.
package fusion

import (
	"github.com/rs/zerolog"

	"github.com/tmarkos/quant-trader/internal/modules/strategy"
)

// CombinedSignal is the fused decision for one symbol in one cycle.
// Score is directional: positive favors BUY, negative favors SELL.
type CombinedSignal struct {
	Symbol       string              `json:"symbol"`
	Type         strategy.SignalType `json:"signal"`
	Score        float64             `json:"score"`      // -100..100
	Confidence   float64             `json:"confidence"` // 0..1
	Price        float64             `json:"price"`
	Degraded     bool                `json:"degraded"` // true when no strategy produced a usable signal
	Contributing []strategy.Signal   `json:"contributing"`
}

// Input pairs a strategy signal with its configured weight. Failed or
// timed-out strategies are excluded before fusion; their weight is
// redistributed across the survivors.
type Input struct {
	Signal strategy.Signal
	Weight float64
}

// Engine fuses weighted strategy signals into a single decision
type Engine struct {
	buyThreshold  float64
	sellThreshold float64
	log           zerolog.Logger
}

// NewEngine creates a fusion engine. Thresholds are on the directional
// score scale; a fused score must strictly exceed buyThreshold (or fall
// strictly below -sellThreshold) to act.
func NewEngine(buyThreshold, sellThreshold float64, log zerolog.Logger) *Engine {
	return &Engine{
		buyThreshold:  buyThreshold,
		sellThreshold: sellThreshold,
		log:           log.With().Str("component", "fusion").Logger(),
	}
}

// Fuse combines the surviving strategy signals for one symbol.
//
// Weights are renormalized over the inputs present, so a failed strategy
// never silently drags the score toward zero. With no inputs at all the
// result is a degraded HOLD with zero confidence.
func (e *Engine) Fuse(symbol string, price float64, inputs []Input) CombinedSignal {
	if len(inputs) == 0 {
		e.log.Warn().Str("symbol", symbol).Msg("No usable strategy signals, holding")
		return CombinedSignal{
			Symbol:     symbol,
			Type:       strategy.SignalHold,
			Score:      0,
			Confidence: 0,
			Price:      price,
			Degraded:   true,
		}
	}

	var weightSum float64
	for _, in := range inputs {
		weightSum += in.Weight
	}
	if weightSum <= 0 {
		return CombinedSignal{
			Symbol:   symbol,
			Type:     strategy.SignalHold,
			Price:    price,
			Degraded: true,
		}
	}

	var score, confidence float64
	contributing := make([]strategy.Signal, 0, len(inputs))
	for _, in := range inputs {
		w := in.Weight / weightSum
		switch in.Signal.Type {
		case strategy.SignalBuy:
			score += w * in.Signal.Score
		case strategy.SignalSell:
			score -= w * in.Signal.Score
		}
		confidence += w * in.Signal.Confidence
		contributing = append(contributing, in.Signal)
	}

	decision := strategy.SignalHold
	switch {
	case score > e.buyThreshold:
		decision = strategy.SignalBuy
	case score < -e.sellThreshold:
		decision = strategy.SignalSell
	}

	e.log.Debug().
		Str("symbol", symbol).
		Float64("score", score).
		Float64("confidence", confidence).
		Str("decision", string(decision)).
		Int("strategies", len(inputs)).
		Msg("Fused signals")

	return CombinedSignal{
		Symbol:       symbol,
		Type:         decision,
		Score:        score,
		Confidence:   confidence,
		Price:        price,
		Contributing: contributing,
	}
}
