// Package metrics provides Prometheus instrumentation for the trading engine.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// CyclesTotal counts completed evaluation cycles.
	CyclesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "trader_cycles_total",
		Help: "Total number of completed evaluation cycles",
	})

	// CycleDuration tracks full-cycle duration.
	CycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "trader_cycle_duration_seconds",
		Help:    "Evaluation cycle duration in seconds",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	})

	// SignalsTotal counts fused signals by decision.
	SignalsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trader_signals_total",
		Help: "Total fused signals by decision",
	}, []string{"decision"})

	// StrategyFailuresTotal counts strategy evaluations excluded from fusion.
	StrategyFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trader_strategy_failures_total",
		Help: "Strategy evaluations that failed or timed out",
	}, []string{"strategy"})

	// RiskDenialsTotal counts risk manager denials by check.
	RiskDenialsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trader_risk_denials_total",
		Help: "Trades denied by the risk manager",
	}, []string{"check"})

	// OrdersTotal counts dispatched orders by side and outcome.
	OrdersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trader_orders_total",
		Help: "Orders dispatched to the broker",
	}, []string{"side", "status"})

	// StopTriggersTotal counts stop-loss and take-profit closes.
	StopTriggersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trader_stop_triggers_total",
		Help: "Positions closed by stop conditions",
	}, []string{"kind"})

	// CircuitBreakerState is 1 when the daily circuit breaker is HALTED.
	CircuitBreakerState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "trader_circuit_breaker_halted",
		Help: "Daily circuit breaker state (1 = halted)",
	})

	// PortfolioCash tracks current ledger cash.
	PortfolioCash = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "trader_portfolio_cash",
		Help: "Current portfolio cash",
	})

	// OpenPositions tracks the number of open positions.
	OpenPositions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "trader_open_positions",
		Help: "Number of open positions",
	})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
