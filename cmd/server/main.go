package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tmarkos/quant-trader/internal/clients/broker"
	"github.com/tmarkos/quant-trader/internal/clients/marketdata"
	"github.com/tmarkos/quant-trader/internal/config"
	"github.com/tmarkos/quant-trader/internal/database"
	"github.com/tmarkos/quant-trader/internal/modules/execution"
	"github.com/tmarkos/quant-trader/internal/modules/fusion"
	"github.com/tmarkos/quant-trader/internal/modules/portfolio"
	"github.com/tmarkos/quant-trader/internal/modules/risk"
	"github.com/tmarkos/quant-trader/internal/modules/strategy"
	"github.com/tmarkos/quant-trader/internal/scheduler"
	"github.com/tmarkos/quant-trader/internal/server"
	"github.com/tmarkos/quant-trader/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		// Logger is not up yet
		panic(err)
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})
	logger.SetGlobalLogger(log)

	log.Info().Msg("Starting Quant Trader")

	db, err := database.New(cfg.DatabasePath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("Failed to run migrations")
	}

	// Strategy registry and the active named config
	registry := strategy.NewRegistry(log)
	configStore, err := strategy.NewConfigStore(cfg.StrategyConfigPath, registry, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load strategy configs")
	}
	activeCfg, err := configStore.Get(cfg.StrategyConfig)
	if err != nil {
		log.Fatal().Err(err).Msg("Unknown strategy config")
	}

	// Risk limits and manager
	limits, err := risk.LoadLimits(cfg.RiskLimitsPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load risk limits")
	}
	riskMgr := risk.NewManager(limits, risk.NewPercentSizer(limits.MaxPositionPct), log)

	// Ledger
	store := portfolio.NewStore(db)
	ledger, err := portfolio.NewLedger(store, cfg.InitialCash, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to restore ledger")
	}

	engine := fusion.NewEngine(cfg.BuyThreshold, cfg.SellThreshold, log)
	market := marketdata.NewClient(log)

	// The coordinator is created before the broker so the paper broker
	// can use its price map for fills.
	coordinator := execution.NewCoordinator(execution.Options{
		Symbols:        cfg.Symbols,
		LookbackDays:   cfg.LookbackDays,
		CycleInterval:  cfg.CycleInterval,
		AdapterTimeout: cfg.AdapterTimeout,
		OrderTimeout:   cfg.OrderTimeout,
	}, market, registry, activeCfg, engine, riskMgr, ledger, nil, log)

	var brk broker.Broker
	if cfg.BrokerMode == "remote" {
		brk = broker.NewServiceClient(cfg.BrokerServiceURL, log)
	} else {
		brk = broker.NewPaperBroker(coordinator.LastPrice, 1.0, 0.0005, log)
	}
	coordinator.SetBroker(brk)

	// Session reset job re-arms the breaker at market open
	sched := scheduler.New(log)
	resetJob := scheduler.NewSessionResetJob(ledger, riskMgr, coordinator, log)
	if err := sched.AddJob(cfg.SessionResetCron, resetJob); err != nil {
		log.Fatal().Err(err).Msg("Failed to register session reset job")
	}
	reportJob := scheduler.NewDailyReportJob(ledger, coordinator, log)
	if err := sched.AddJob(cfg.SessionCloseCron, reportJob); err != nil {
		log.Fatal().Err(err).Msg("Failed to register daily report job")
	}
	sched.Start()
	defer sched.Stop()

	srv := server.New(server.Config{
		Port:      cfg.Port,
		DevMode:   cfg.DevMode,
		Log:       log,
		Ledger:    ledger,
		RiskMgr:   riskMgr,
		Configs:   configStore,
		ActiveCfg: activeCfg,
		Prices:    coordinator,
		Symbols:   cfg.Symbols,
	})

	go func() {
		if err := srv.Start(); err != nil {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Trading loop
	loopCtx, loopCancel := context.WithCancel(context.Background())
	loopDone := make(chan error, 1)
	go func() {
		loopDone <- coordinator.Run(loopCtx)
	}()

	log.Info().Int("port", cfg.Port).Msg("Quant Trader started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	loopExited := false
	select {
	case <-quit:
		log.Info().Msg("Shutting down...")
	case err := <-loopDone:
		loopExited = true
		if err != nil {
			log.Error().Err(err).Msg("Trading loop failed")
		}
	}

	loopCancel()
	if !loopExited {
		select {
		case <-loopDone:
		case <-time.After(cfg.OrderTimeout + 5*time.Second):
			log.Warn().Msg("Trading loop did not stop in time")
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Stopped")
}
