package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/oceanroute/chartfetch/internal/adapter/filesystem"
	"github.com/oceanroute/chartfetch/internal/adapter/httptransport"
	"github.com/oceanroute/chartfetch/internal/adapter/sqlite"
	"github.com/oceanroute/chartfetch/internal/config"
	"github.com/oceanroute/chartfetch/internal/fetcher"
	"github.com/oceanroute/chartfetch/internal/integrity"
	"github.com/oceanroute/chartfetch/internal/logger"
	"github.com/oceanroute/chartfetch/internal/maintenance"
	"github.com/oceanroute/chartfetch/internal/metrics"
	"github.com/oceanroute/chartfetch/internal/server"
)

const version = "0.3.0"

func main() {
	// Parse command line flags
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	zapLogger, err := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer zapLogger.Sync()

	zapLogger.Info("starting chartfetch",
		zap.String("version", version),
		zap.String("config", *configPath),
	)

	// Initialize filesystem manager
	fsManager, err := filesystem.NewManager(cfg.Charts.RootDir)
	if err != nil {
		zapLogger.Fatal("failed to create filesystem manager", zap.Error(err))
	}

	// Open database
	dbPath := cfg.Database.Path
	if dbPath == "" {
		dbPath = filepath.Join(cfg.Charts.RootDir, "chartfetch.db")
	}

	store, err := sqlite.Open(dbPath)
	if err != nil {
		zapLogger.Fatal("failed to open database", zap.Error(err), zap.String("path", dbPath))
	}
	defer store.Close()

	// Create transport client
	transport := httptransport.NewClient(httptransport.Config{
		ConnectTimeout:    cfg.Transport.GetConnectTimeout(),
		ReceiveTimeout:    cfg.Transport.GetReceiveTimeout(),
		SendTimeout:       cfg.Transport.GetSendTimeout(),
		RequestsPerSecond: cfg.Transport.RequestsPerSecond,
		Burst:             cfg.Transport.Burst,
	})

	// Create and initialize integrity registry
	registry := integrity.NewRegistry(store, zapLogger)
	if err := registry.Initialize(); err != nil {
		zapLogger.Fatal("failed to initialize integrity registry", zap.Error(err))
	}

	// Create metrics collector
	collector := metrics.NewCollector()

	// Create fetcher
	fetchCfg := &fetcher.Config{
		MaxAttempts:         cfg.Download.MaxAttempts,
		RetryBackoff:        cfg.Download.GetRetryBackoff(),
		RetryMaxBackoff:     cfg.Download.GetRetryMaxBackoff(),
		MaxDiskUsagePercent: float64(cfg.Download.MaxDiskUsagePercent),
		MinFreeBytes:        cfg.Download.GetMinFreeBytes(),
		ProgressInterval:    cfg.Download.GetProgressInterval(),
	}
	fetchService := fetcher.New(fetchCfg, transport, fsManager, registry, collector, zapLogger)

	// Create HTTP server
	serverCfg := &server.Config{
		BindAddr:      cfg.HTTP.BindAddr,
		AdminUsername: cfg.HTTP.AdminUsername,
		AdminPassword: cfg.HTTP.AdminPassword,
		ReadTimeout:   cfg.HTTP.GetReadTimeout(),
		WriteTimeout:  cfg.HTTP.GetWriteTimeout(),
		IdleTimeout:   cfg.HTTP.GetIdleTimeout(),
	}
	httpServer := server.New(serverCfg, fetchService, registry, collector, store, zapLogger)

	// Create maintenance service
	maintCfg := &maintenance.Config{
		StalePartialMaxAge: cfg.Download.GetStalePartialMaxAge(),
	}
	maintService := maintenance.New(maintCfg, fsManager, zapLogger)

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Start HTTP server
	go func() {
		if err := httpServer.Start(); err != nil {
			zapLogger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	// Start maintenance service
	go func() {
		if err := maintService.Start(ctx); err != nil {
			zapLogger.Error("maintenance service failed", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	zapLogger.Info("application started successfully",
		zap.String("http_addr", cfg.HTTP.BindAddr),
		zap.String("chart_dir", cfg.Charts.RootDir),
	)
	<-sigChan

	zapLogger.Info("shutdown signal received, stopping services...")

	// Stop background loops
	cancel()

	// Create shutdown context with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// Stop HTTP server
	if err := httpServer.Stop(shutdownCtx); err != nil {
		zapLogger.Error("failed to stop HTTP server gracefully", zap.Error(err))
	}

	zapLogger.Info("application stopped successfully")
}
