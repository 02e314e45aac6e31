package scheduler

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/tmarkos/quant-trader/internal/modules/portfolio"
	"github.com/tmarkos/quant-trader/internal/modules/risk"
)

// PriceSource provides the latest known prices for marking positions
type PriceSource interface {
	LastPrice(symbol string) (float64, error)
}

// SessionResetJob runs at session start: it records the start-of-day
// portfolio value, zeroes the daily counters and re-arms the circuit
// breaker. This is the only path that un-halts a tripped breaker.
type SessionResetJob struct {
	ledger  *portfolio.Ledger
	riskMgr *risk.Manager
	prices  PriceSource
	log     zerolog.Logger
}

// NewSessionResetJob creates the session reset job
func NewSessionResetJob(ledger *portfolio.Ledger, riskMgr *risk.Manager, prices PriceSource, log zerolog.Logger) *SessionResetJob {
	return &SessionResetJob{
		ledger:  ledger,
		riskMgr: riskMgr,
		prices:  prices,
		log:     log.With().Str("job", "session_reset").Logger(),
	}
}

// Name returns the job identifier
func (j *SessionResetJob) Name() string {
	return "session_reset"
}

// Run performs the session reset
func (j *SessionResetJob) Run() error {
	snap := j.ledger.Snapshot()

	prices := make(map[string]float64, len(snap.Positions))
	for symbol := range snap.Positions {
		if price, err := j.prices.LastPrice(symbol); err == nil {
			prices[symbol] = price
		}
	}

	startValue := snap.TotalValue(prices)
	if err := j.ledger.ResetDay(startValue); err != nil {
		return fmt.Errorf("failed to reset ledger day: %w", err)
	}

	j.riskMgr.ResetSession()

	j.log.Info().
		Float64("start_of_day_value", startValue).
		Msg("Session reset complete")

	return nil
}
