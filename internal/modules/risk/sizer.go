package risk

import "math"

// Sizer converts an approved trade intent into a share count
type Sizer interface {
	Size(totalValue, cash, price float64) float64
}

// PercentSizer allocates a fixed fraction of total portfolio value per
// position, capped by available cash, rounded down to whole shares.
type PercentSizer struct {
	Pct float64
}

// NewPercentSizer creates a percent-of-portfolio sizer
func NewPercentSizer(pct float64) *PercentSizer {
	return &PercentSizer{Pct: pct}
}

// Size returns the whole-share count for a new position
func (s *PercentSizer) Size(totalValue, cash, price float64) float64 {
	if price <= 0 {
		return 0
	}
	budget := math.Min(totalValue*s.Pct, cash)
	return math.Floor(budget / price)
}
