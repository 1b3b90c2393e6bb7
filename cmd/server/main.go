package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/yniverz/bybit-tax-exporter/internal/api"
	"github.com/yniverz/bybit-tax-exporter/internal/config"
	"github.com/yniverz/bybit-tax-exporter/internal/db"
	"github.com/yniverz/bybit-tax-exporter/internal/external"
	"github.com/yniverz/bybit-tax-exporter/internal/notifications"
	"github.com/yniverz/bybit-tax-exporter/internal/report"
	"github.com/yniverz/bybit-tax-exporter/internal/repository"
	"github.com/yniverz/bybit-tax-exporter/internal/scheduler"
	"github.com/yniverz/bybit-tax-exporter/internal/tax"
)

const banner = `
╔══════════════════════════════════════╗
║       Bybit Tax Exporter v0.3        ║
║                                      ║
╚══════════════════════════════════════╝
`

func main() {
	fmt.Print(banner)

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load error: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	cfg.Print()

	// Database
	fmt.Printf("\n[DB] Connecting to %s:%d/%s ...\n", cfg.DBHost, cfg.DBPort, cfg.DBName)
	pool, err := db.Connect(cfg.DSN())
	if err != nil {
		fmt.Fprintf(os.Stderr, "[DB] Connection failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		pool.Close()
		fmt.Println("[DB] Connection pool closed")
	}()

	if err := db.Migrate(context.Background(), pool); err != nil {
		fmt.Fprintf(os.Stderr, "[DB] Migration failed: %v\n", err)
		os.Exit(1)
	}

	// Repos
	accountRepo := repository.NewAccountRepo(pool)
	eventRepo := repository.NewEventRepo(pool)
	priceRepo := repository.NewPriceRepo(pool)

	// Notifications
	notify := notifications.NewSender(cfg.WebhookURL, cfg.AppName)

	// Report service
	reports := report.NewService(accountRepo, eventRepo, priceRepo, report.Options{
		ExactTolerance: cfg.PriceExactTolerance(),
		Window:         cfg.PriceWindow(),
		FeePolicy:      tax.FeePolicy(cfg.FeePolicy),
	})

	// Graceful shutdown context
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 1. Exchange sync scheduler
	var sync *scheduler.SyncScheduler
	if cfg.SyncEnabled {
		sync = scheduler.NewSyncScheduler(accountRepo, eventRepo, priceRepo, notify,
			func(apiKey, apiSecret string) scheduler.ExchangeClient {
				return external.NewBybitClient(cfg.BybitBaseURL, apiKey, apiSecret)
			},
			scheduler.SyncSchedulerConfig{
				Interval: cfg.SyncInterval(),
				Lookback: time.Duration(cfg.SyncLookbackDays) * 24 * time.Hour,
			})
		sync.Start()
	} else {
		fmt.Println("[SYNC] Skipped - disabled by configuration")
	}

	// 2. API server
	srv := api.NewServer(pool, reports, sync, cfg.Port, cfg.APIKey, cfg.CORSAllowOrigin)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fmt.Fprintf(os.Stderr, "[API] Server error: %v\n", err)
			os.Exit(1)
		}
	}()

	fmt.Println("\nAll services started successfully")

	// Wait for shutdown signal
	<-ctx.Done()
	fmt.Println("\nShutting down gracefully...")

	if sync != nil {
		sync.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		fmt.Fprintf(os.Stderr, "[API] Shutdown error: %v\n", err)
	}
	fmt.Println("[API] Server closed")
	fmt.Println("Shutdown complete")
}
