package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/tmarkos/quant-trader/internal/modules/strategy"
)

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "healthy",
		"service": "quant-trader",
	})
}

// handlePortfolio returns the current ledger snapshot with positions
// marked at the latest known prices.
func (s *Server) handlePortfolio(w http.ResponseWriter, r *http.Request) {
	snap := s.ledger.Snapshot()

	prices := make(map[string]float64, len(snap.Positions))
	for symbol := range snap.Positions {
		if price, err := s.prices.LastPrice(symbol); err == nil {
			prices[symbol] = price
		}
	}

	positions := make([]map[string]interface{}, 0, len(snap.Positions))
	for symbol, pos := range snap.Positions {
		price, ok := prices[symbol]
		if !ok {
			price = pos.CostBasis
		}
		positions = append(positions, map[string]interface{}{
			"symbol":            symbol,
			"shares":            pos.Shares,
			"cost_basis":        pos.CostBasis,
			"current_price":     price,
			"market_value":      pos.MarketValue(price),
			"unrealized_pnl":    pos.UnrealizedPnL(price),
			"stop_loss_price":   pos.StopLossPrice,
			"take_profit_price": pos.TakeProfitPrice,
			"entry_at":          pos.EntryAt,
		})
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"cash":               snap.Cash,
		"total_value":        snap.TotalValue(prices),
		"exposure":           snap.Exposure(prices),
		"realized_pnl_today": snap.RealizedPnLToday,
		"consecutive_losses": snap.ConsecutiveLosses,
		"start_of_day_value": snap.StartOfDayValue,
		"positions":          positions,
	})
}

// handleTransactions returns recent trade history
func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 && parsed <= 1000 {
			limit = parsed
		}
	}

	txs, err := s.ledger.Transactions(limit)
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to load transactions")
		s.writeError(w, http.StatusInternalServerError, "failed to load transactions")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"transactions": txs,
		"count":        len(txs),
	})
}

// handleRiskStatus returns limits and circuit breaker state
func (s *Server) handleRiskStatus(w http.ResponseWriter, r *http.Request) {
	halted, reason := s.riskMgr.Halted()

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"halted":      halted,
		"halt_reason": reason,
		"limits":      s.riskMgr.Limits(),
	})
}

// handleStrategies returns the active config and all available configs
func (s *Server) handleStrategies(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"active":  s.activeCfg,
		"configs": s.configs.List(),
		"symbols": s.symbols,
	})
}

// handleCreateConfig stores a new strategy config. It takes effect on the
// next restart; the running session keeps its config.
func (s *Server) handleCreateConfig(w http.ResponseWriter, r *http.Request) {
	var cfg strategy.Config
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if err := s.configs.Create(cfg); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.writeJSON(w, http.StatusCreated, cfg)
}

// handleDeleteConfig removes a user-defined strategy config
func (s *Server) handleDeleteConfig(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := s.configs.Delete(name); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]string{"deleted": name})
}

// writeJSON writes a JSON response
func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeError writes an error response
func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{
		"error": message,
	})
}
