package server

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/oceanroute/chartfetch/internal/fetcher"
	"github.com/oceanroute/chartfetch/internal/integrity"
	"github.com/oceanroute/chartfetch/internal/metrics"
)

// Pinger checks durable store connectivity for health reporting.
type Pinger interface {
	Ping() error
}

// Config contains HTTP server configuration
type Config struct {
	BindAddr      string
	AdminUsername string
	AdminPassword string
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
	IdleTimeout   time.Duration
}

// DefaultConfig returns default server configuration
func DefaultConfig() *Config {
	return &Config{
		BindAddr:     "0.0.0.0:8080",
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// Server exposes the download API, telemetry, and admin operations.
type Server struct {
	config       *Config
	store        Pinger
	logger       *zap.Logger
	server       *http.Server
	chartHandler *ChartHandler
}

// New creates a new HTTP server
func New(
	cfg *Config,
	f *fetcher.Fetcher,
	registry *integrity.Registry,
	collector *metrics.Collector,
	store Pinger,
	logger *zap.Logger,
) *Server {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	s := &Server{
		config: cfg,
		store:  store,
		logger: logger,
	}

	s.chartHandler = NewChartHandler(f, collector, logger)

	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("GET /health", s.handleHealth)

	// Download API
	mux.HandleFunc("POST /api/charts/{id}/download", s.chartHandler.HandleDownload)
	mux.HandleFunc("POST /api/charts/{id}/resume", s.chartHandler.HandleResume)
	mux.HandleFunc("GET /api/charts/{id}/progress", s.chartHandler.HandleProgress)
	mux.HandleFunc("DELETE /api/charts/{id}", s.chartHandler.HandleCancel)

	// Telemetry
	mux.HandleFunc("GET /api/stats", s.chartHandler.HandleStats)
	mux.Handle("GET /metrics", collector.Handler())

	// Admin operations
	adminAuth := BasicAuthMiddleware(cfg.AdminUsername, cfg.AdminPassword, logger)
	mux.HandleFunc("POST /admin/integrity/clear", adminAuth(func(w http.ResponseWriter, r *http.Request) {
		if err := registry.Clear(); err != nil {
			logger.Error("failed to clear integrity registry", zap.Error(err))
			http.Error(w, "Failed to clear integrity registry", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	mux.HandleFunc("POST /admin/metrics/reset", adminAuth(func(w http.ResponseWriter, r *http.Request) {
		collector.Reset()
		w.WriteHeader(http.StatusNoContent)
	}))

	s.server = &http.Server{
		Addr:         cfg.BindAddr,
		Handler:      LoggingMiddleware(logger)(mux),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return s
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", zap.String("addr", s.server.Addr))
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("stopping HTTP server")
	return s.server.Shutdown(ctx)
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(); err != nil {
		s.logger.Error("health check failed", zap.Error(err))
		http.Error(w, "Database connection failed", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"healthy","time":"` + time.Now().Format(time.RFC3339) + `"}`))
}
