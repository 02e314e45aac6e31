package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/tmarkos/quant-trader/internal/metrics"
	"github.com/tmarkos/quant-trader/internal/modules/portfolio"
	"github.com/tmarkos/quant-trader/internal/modules/risk"
	"github.com/tmarkos/quant-trader/internal/modules/strategy"
)

// PriceSource provides latest known prices for marking positions
type PriceSource interface {
	LastPrice(symbol string) (float64, error)
}

// Config holds server dependencies
type Config struct {
	Port      int
	DevMode   bool
	Log       zerolog.Logger
	Ledger    *portfolio.Ledger
	RiskMgr   *risk.Manager
	Configs   *strategy.ConfigStore
	ActiveCfg strategy.Config
	Prices    PriceSource
	Symbols   []string
}

// Server is the read-only HTTP surface over the trading engine
type Server struct {
	router    *chi.Mux
	server    *http.Server
	log       zerolog.Logger
	ledger    *portfolio.Ledger
	riskMgr   *risk.Manager
	configs   *strategy.ConfigStore
	activeCfg strategy.Config
	prices    PriceSource
	symbols   []string
}

// New creates the HTTP server
func New(cfg Config) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		log:       cfg.Log.With().Str("component", "server").Logger(),
		ledger:    cfg.Ledger,
		riskMgr:   cfg.RiskMgr,
		configs:   cfg.Configs,
		activeCfg: cfg.ActiveCfg,
		prices:    cfg.Prices,
		symbols:   cfg.Symbols,
	}

	s.setupMiddleware(cfg.DevMode)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

func (s *Server) setupMiddleware(devMode bool) {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(middleware.Timeout(60 * time.Second))

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if !devMode {
		s.router.Use(middleware.Compress(5))
	}
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)
	s.router.Handle("/metrics", metrics.Handler())

	s.router.Route("/api", func(r chi.Router) {
		r.Route("/portfolio", func(r chi.Router) {
			r.Get("/", s.handlePortfolio)
			r.Get("/transactions", s.handleTransactions)
		})

		r.Route("/risk", func(r chi.Router) {
			r.Get("/status", s.handleRiskStatus)
		})

		r.Route("/strategies", func(r chi.Router) {
			r.Get("/", s.handleStrategies)
			r.Post("/configs", s.handleCreateConfig)
			r.Delete("/configs/{name}", s.handleDeleteConfig)
		})
	})
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}
