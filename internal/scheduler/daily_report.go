package scheduler

import (
	"github.com/rs/zerolog"

	"github.com/tmarkos/quant-trader/internal/modules/portfolio"
)

// DailyReportJob logs the end-of-day portfolio summary at market close.
// Purely observational; it never mutates state.
type DailyReportJob struct {
	ledger *portfolio.Ledger
	prices PriceSource
	log    zerolog.Logger
}

// NewDailyReportJob creates the daily report job
func NewDailyReportJob(ledger *portfolio.Ledger, prices PriceSource, log zerolog.Logger) *DailyReportJob {
	return &DailyReportJob{
		ledger: ledger,
		prices: prices,
		log:    log.With().Str("job", "daily_report").Logger(),
	}
}

// Name returns the job identifier
func (j *DailyReportJob) Name() string {
	return "daily_report"
}

// Run logs the session summary
func (j *DailyReportJob) Run() error {
	snap := j.ledger.Snapshot()

	prices := make(map[string]float64, len(snap.Positions))
	unrealized := 0.0
	for symbol, pos := range snap.Positions {
		price, err := j.prices.LastPrice(symbol)
		if err != nil {
			continue
		}
		prices[symbol] = price
		unrealized += pos.UnrealizedPnL(price)
	}

	total := snap.TotalValue(prices)
	dayChange := 0.0
	if snap.StartOfDayValue > 0 {
		dayChange = (total - snap.StartOfDayValue) / snap.StartOfDayValue * 100
	}

	j.log.Info().
		Float64("cash", snap.Cash).
		Int("positions", len(snap.Positions)).
		Float64("total_value", total).
		Float64("realized_pnl_today", snap.RealizedPnLToday).
		Float64("unrealized_pnl", unrealized).
		Float64("day_change_pct", dayChange).
		Int("consecutive_losses", snap.ConsecutiveLosses).
		Msg("End-of-day summary")

	return nil
}
