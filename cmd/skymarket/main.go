package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"skymarket/internal/config"
	"skymarket/internal/database"
	"skymarket/internal/ledger"
	"skymarket/internal/logger"
	"skymarket/internal/market"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func main() {
	// Load application configuration
	cfg, err := config.LoadConfig("./configs")
	if err != nil {
		// We can't use the logger here because it's not initialized yet.
		panic(fmt.Sprintf("could not load config: %v", err))
	}

	// Initialize logger
	log, err := logger.NewLogger(cfg.Logger.Level, cfg.Logger.Format)
	if err != nil {
		panic(err)
	}
	defer log.Sync()
	log.Info("Configuration loaded")

	// Initialize database
	db, err := database.NewDatabase(cfg.Database.DSN)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	log.Info("Database connection successful and schema migrated.")

	// Initialize the ledger gateway. Dry run keeps all balances in-process.
	var lg ledger.Ledger
	if cfg.Ledger.DryRun {
		log.Warn("Dry run enabled. Using an in-memory ledger; no real balances will move.")
		lg = ledger.NewMemoryLedger(decimal.NewFromInt(10000))
	} else {
		lg = ledger.NewRestClient(&cfg.Ledger, log)
	}

	// Build the market core
	catalog := market.NewCatalog(log, db, cfg.Market.CatalogPath,
		time.Duration(cfg.Market.FlushInterval)*time.Second)

	policy, err := market.NewSpreadPolicy(&cfg.Market)
	if err != nil {
		log.Fatal("Invalid pricing configuration", zap.Error(err))
	}

	engine := market.NewEngine(log, &cfg, catalog, policy, lg, db)

	// A corrupt catalog must stop the process: running with partial market
	// data is worse than not running.
	if err := engine.Init(); err != nil {
		log.Fatal("Failed to load catalog", zap.Error(err))
	}
	log.Info("Catalog loaded, market engine ready.")

	rotator, err := market.NewRotator(log, &cfg.Market, catalog, engine)
	if err != nil {
		log.Fatal("Invalid rotation configuration", zap.Error(err))
	}

	// Setup context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		sigchan := make(chan os.Signal, 1)
		signal.Notify(sigchan, syscall.SIGINT, syscall.SIGTERM)
		<-sigchan
		log.Info("Shutdown signal received, gracefully shutting down...")
		cancel()
	}()

	apiServer := market.NewAPIServer(engine, rotator, log, cfg.Server.Port)
	apiServer.Start()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		catalog.Run(ctx)
	}()

	if rotator != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rotator.Run(ctx)
		}()
	}

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := apiServer.Stop(shutdownCtx); err != nil {
		log.Error("API server shutdown failed", zap.Error(err))
	}

	// The flush loop performs the final flush on its way out.
	wg.Wait()

	log.Info("Market has been shut down.")
}
