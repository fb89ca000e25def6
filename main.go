package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"fxgate/internal/api"
	"fxgate/internal/audit"
	"fxgate/internal/events"
	"fxgate/internal/executor"
	"fxgate/internal/risk"
	"fxgate/pkg/broker/oanda"
	"fxgate/pkg/config"
	"fxgate/pkg/instruments"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[main] failed to load config: %v", err)
	}
	if cfg.OandaAccountID == "" || cfg.OandaAPIKey == "" {
		log.Fatal("[main] OANDA_ACCOUNT_ID and OANDA_API_KEY are required")
	}
	log.Printf("[main] starting on port %s (environment=%s)", cfg.Port, cfg.OandaEnvironment)

	// Instrument directory, optionally overlaid with per-instrument gates.
	dir := instruments.NewDirectory()
	if cfg.InstrumentsPath != "" {
		if err := dir.LoadOverlay(cfg.InstrumentsPath); err != nil {
			log.Fatalf("[main] failed to load instruments overlay: %v", err)
		}
		log.Printf("[main] instruments overlay loaded from %s", cfg.InstrumentsPath)
	} else {
		// No overlay means no gate config to consult, so open everything.
		dir.EnableAll()
		log.Print("[main] no instruments overlay configured, all instruments enabled")
	}

	limits := risk.Limits{
		RiskPerTrade:        cfg.RiskPerTrade,
		MaxOpenPositions:    cfg.MaxOpenPositions,
		MaxTotalRisk:        cfg.MaxTotalRisk,
		DailyLossLimit:      cfg.DailyLossLimit,
		WeeklyLossLimit:     cfg.WeeklyLossLimit,
		AutoDisableOnBreach: cfg.AutoDisableOnBreach,
	}

	// Risk ledger, backed by sqlite when a path is configured so loss
	// budgets survive restarts.
	var ledger *risk.Ledger
	if cfg.LedgerDBPath != "" {
		store, err := risk.OpenStore(cfg.LedgerDBPath)
		if err != nil {
			log.Fatalf("[main] failed to open ledger store: %v", err)
		}
		defer store.Close()
		ledger, err = risk.NewLedger(limits, dir, store)
		if err != nil {
			log.Fatalf("[main] failed to restore ledger: %v", err)
		}
		log.Printf("[main] risk ledger persisted at %s", cfg.LedgerDBPath)
	} else {
		ledger = risk.NewInMemory(limits, dir)
		log.Print("[main] risk ledger is in-memory only")
	}

	broker := oanda.NewClient(cfg.OandaAccountID, cfg.OandaAPIKey, cfg.OandaEnvironment)

	bus := events.NewBus()
	auditLog := audit.NewLog(cfg.MaxExecutionHistory)
	exec := executor.New(broker, ledger, dir, bus, auditLog, cfg.DefaultStopPips, cfg.DefaultTargetPips)

	server := api.NewServer(exec, bus, auditLog, dir, api.Options{
		WebhookSecret:      cfg.WebhookSecret,
		AllowedIPs:         cfg.WebhookAllowedIPs,
		DashboardPassword:  cfg.DashboardPassword,
		JWTSecret:          cfg.JWTSecret,
		RateLimitPerSecond: cfg.APIRateLimit,
		RateLimitBurst:     cfg.APIRateBurst,
	})
	go func() {
		if err := server.Start(":" + cfg.Port); err != nil {
			log.Fatalf("[main] API server error: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	log.Print("[main] shutting down")
}
