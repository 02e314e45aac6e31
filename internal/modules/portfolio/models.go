package portfolio

import "time"

// Action is the transaction kind recorded in the ledger
type Action string

const (
	ActionBuy        Action = "BUY"
	ActionSell       Action = "SELL"
	ActionStopLoss   Action = "STOP_LOSS"
	ActionTakeProfit Action = "TAKE_PROFIT"
)

// IsSell reports whether the action reduces a position
func (a Action) IsSell() bool {
	return a == ActionSell || a == ActionStopLoss || a == ActionTakeProfit
}

// Position is an open holding. CostBasis is the volume-weighted average
// entry price including fees.
type Position struct {
	Symbol          string    `json:"symbol"`
	Shares          float64   `json:"shares"`
	CostBasis       float64   `json:"cost_basis"`
	EntryScore      float64   `json:"entry_score"`
	EntryAt         time.Time `json:"entry_at"`
	StopLossPrice   float64   `json:"stop_loss_price"`
	TakeProfitPrice float64   `json:"take_profit_price"`
}

// MarketValue returns the position value at the given price
func (p Position) MarketValue(price float64) float64 {
	return p.Shares * price
}

// UnrealizedPnL returns profit against cost basis at the given price
func (p Position) UnrealizedPnL(price float64) float64 {
	return (price - p.CostBasis) * p.Shares
}

// Transaction is one executed fill, the append-only unit of the ledger.
// RealizedPnL is set on sells only. The entry metadata fields carry the
// stop prices and fused score for BUY fills so Apply stays the single
// mutation path.
type Transaction struct {
	ID          int64     `json:"id"`
	Timestamp   time.Time `json:"timestamp"`
	Symbol      string    `json:"symbol"`
	Action      Action    `json:"action"`
	Shares      float64   `json:"shares"`
	Price       float64   `json:"price"`
	Fees        float64   `json:"fees"`
	RealizedPnL float64   `json:"realized_pnl"`
	OrderID     string    `json:"order_id,omitempty"`

	// Entry metadata, BUY only. Not persisted in the transactions table.
	EntryScore      float64 `json:"-"`
	StopLossPrice   float64 `json:"-"`
	TakeProfitPrice float64 `json:"-"`
}

// Snapshot is a consistent read-only copy of ledger state
type Snapshot struct {
	Cash              float64             `json:"cash"`
	Positions         map[string]Position `json:"positions"`
	RealizedPnLToday  float64             `json:"realized_pnl_today"`
	ConsecutiveLosses int                 `json:"consecutive_losses"`
	StartOfDayValue   float64             `json:"start_of_day_value"`
}

// TotalValue returns cash plus positions marked at the given prices.
// Symbols without a quote are marked at cost basis.
func (s Snapshot) TotalValue(prices map[string]float64) float64 {
	total := s.Cash
	for sym, pos := range s.Positions {
		price, ok := prices[sym]
		if !ok {
			price = pos.CostBasis
		}
		total += pos.MarketValue(price)
	}
	return total
}

// Exposure returns the fraction of total value held in positions
func (s Snapshot) Exposure(prices map[string]float64) float64 {
	total := s.TotalValue(prices)
	if total <= 0 {
		return 0
	}
	return (total - s.Cash) / total
}
