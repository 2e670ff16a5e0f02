// Package maintenance runs periodic housekeeping over local chart
// storage: partial files whose transfer never resumed are swept once
// they pass the configured age.
package maintenance

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/oceanroute/chartfetch/internal/port"
)

// Config contains maintenance service configuration
type Config struct {
	// SweepInterval is how often the partial-file sweep runs
	SweepInterval time.Duration

	// StalePartialMaxAge is when an untouched partial file is considered
	// abandoned
	StalePartialMaxAge time.Duration
}

// DefaultConfig returns default maintenance configuration
func DefaultConfig() *Config {
	return &Config{
		SweepInterval:      time.Hour,
		StalePartialMaxAge: 7 * 24 * time.Hour,
	}
}

// Service handles periodic maintenance tasks
type Service struct {
	config *Config
	fs     port.FileSystem
	logger *zap.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates a new maintenance Service
func New(cfg *Config, fs port.FileSystem, logger *zap.Logger) *Service {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.SweepInterval == 0 {
		cfg.SweepInterval = time.Hour
	}
	if cfg.StalePartialMaxAge == 0 {
		cfg.StalePartialMaxAge = 7 * 24 * time.Hour
	}

	return &Service{
		config: cfg,
		fs:     fs,
		logger: logger,
	}
}

// Start runs the maintenance loop until ctx is canceled or Stop is called.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("maintenance service already running")
	}
	s.running = true
	ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	s.logger.Info("maintenance service started",
		zap.Duration("sweep_interval", s.config.SweepInterval),
		zap.Duration("stale_partial_max_age", s.config.StalePartialMaxAge))

	s.wg.Add(1)
	go s.sweepLoop(ctx)

	<-ctx.Done()
	s.wg.Wait()
	s.logger.Info("maintenance service stopped")
	return nil
}

// Stop stops the maintenance service
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
	s.running = false
}

// sweepLoop runs the partial-file sweep on the configured interval
func (s *Service) sweepLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweepStalePartials()
		}
	}
}

// sweepStalePartials removes abandoned partial files from chart storage
func (s *Service) sweepStalePartials() {
	removed, err := s.fs.CleanStalePartials(s.config.StalePartialMaxAge)
	if err != nil {
		s.logger.Error("failed to clean stale partial files", zap.Error(err))
	} else if removed > 0 {
		s.logger.Info("cleaned stale partial files", zap.Int("count", removed))
	}
}
