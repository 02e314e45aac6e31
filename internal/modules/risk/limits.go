package risk

import (
	"encoding/json"
	"fmt"
	"os"
)

// Limits are the hard risk parameters. Loaded once at startup; changing
// them requires a restart so a running session never sees limits move
// under it.
type Limits struct {
	MaxPositionPct       float64 `json:"max_position_pct"`        // max single position as fraction of total value
	MaxExposurePct       float64 `json:"max_exposure_pct"`        // max total position value as fraction of total value
	MinCashReservePct    float64 `json:"min_cash_reserve_pct"`    // cash floor as fraction of total value
	MaxDailyLossPct      float64 `json:"max_daily_loss_pct"`      // circuit breaker: daily realized loss limit
	MaxConsecutiveLosses int     `json:"max_consecutive_losses"`  // circuit breaker: losing trades in a row
	StopLossPct          float64 `json:"stop_loss_pct"`           // per-position stop distance below basis
	TakeProfitPct        float64 `json:"take_profit_pct"`         // per-position target above basis
	MinConfidence        float64 `json:"min_confidence"`          // fused signals below this never trade
}

// DefaultLimits returns the baseline limit set
func DefaultLimits() Limits {
	return Limits{
		MaxPositionPct:       0.10,
		MaxExposurePct:       0.80,
		MinCashReservePct:    0.10,
		MaxDailyLossPct:      0.03,
		MaxConsecutiveLosses: 3,
		StopLossPct:          0.05,
		TakeProfitPct:        0.10,
		MinConfidence:        0.3,
	}
}

// Validate checks limit sanity
func (l Limits) Validate() error {
	pcts := map[string]float64{
		"max_position_pct":     l.MaxPositionPct,
		"max_exposure_pct":     l.MaxExposurePct,
		"min_cash_reserve_pct": l.MinCashReservePct,
		"max_daily_loss_pct":   l.MaxDailyLossPct,
		"stop_loss_pct":        l.StopLossPct,
		"take_profit_pct":      l.TakeProfitPct,
		"min_confidence":       l.MinConfidence,
	}
	for name, v := range pcts {
		if v < 0 || v > 1 {
			return fmt.Errorf("%s must be in [0, 1], got %.4f", name, v)
		}
	}
	if l.MaxPositionPct == 0 {
		return fmt.Errorf("max_position_pct must be positive")
	}
	if l.MaxConsecutiveLosses < 1 {
		return fmt.Errorf("max_consecutive_losses must be at least 1, got %d", l.MaxConsecutiveLosses)
	}
	if l.MinCashReservePct+l.MaxExposurePct > 1 {
		return fmt.Errorf("min_cash_reserve_pct + max_exposure_pct cannot exceed 1")
	}
	return nil
}

// LoadLimits reads limits from a JSON file, falling back to defaults when
// the path is empty or the file does not exist.
func LoadLimits(path string) (Limits, error) {
	limits := DefaultLimits()
	if path == "" {
		return limits, nil
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return limits, nil
	}
	if err != nil {
		return Limits{}, fmt.Errorf("failed to read risk limits: %w", err)
	}

	if err := json.Unmarshal(data, &limits); err != nil {
		return Limits{}, fmt.Errorf("failed to parse risk limits: %w", err)
	}
	if err := limits.Validate(); err != nil {
		return Limits{}, fmt.Errorf("invalid risk limits: %w", err)
	}
	return limits, nil
}
