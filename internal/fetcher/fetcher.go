// Package fetcher implements resumable, retried, integrity-checked chart
// downloads. One transfer may be active per chart id at a time; transfers
// for different charts proceed independently.
package fetcher

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/oceanroute/chartfetch/internal/domain"
	"github.com/oceanroute/chartfetch/internal/integrity"
	"github.com/oceanroute/chartfetch/internal/metrics"
	"github.com/oceanroute/chartfetch/internal/port"
)

// Config contains download orchestration settings
type Config struct {
	// MaxAttempts bounds the retry loop for transient failures.
	MaxAttempts int

	// RetryBackoff is the initial backoff; doubled per attempt and
	// jittered to avoid synchronized retry storms.
	RetryBackoff time.Duration

	// RetryMaxBackoff caps the nominal backoff.
	RetryMaxBackoff time.Duration

	// MaxDiskUsagePercent rejects a transfer at preflight when the
	// projected download would push disk usage past it.
	MaxDiskUsagePercent float64

	// MinFreeBytes rejects a transfer at preflight when fewer bytes than
	// this would remain free after the download.
	MinFreeBytes int64

	// ProgressInterval is how often in-flight progress is logged.
	ProgressInterval time.Duration
}

// DefaultConfig returns default orchestration settings
func DefaultConfig() *Config {
	return &Config{
		MaxAttempts:         5,
		RetryBackoff:        time.Second,
		RetryMaxBackoff:     30 * time.Second,
		MaxDiskUsagePercent: 90,
		MinFreeBytes:        512 * 1024 * 1024,
		ProgressInterval:    10 * time.Second,
	}
}

// Options tunes a single download call.
type Options struct {
	// OnProgress receives (bytesReceivedSoFar, totalBytes) as the
	// transfer advances. May be nil.
	OnProgress port.ProgressFunc
}

// transfer is the in-flight bookkeeping for one chart id.
type transfer struct {
	cancel  context.CancelFunc
	discard bool
}

// Fetcher orchestrates chart downloads over a Transport, consulting the
// integrity registry on completion and reporting every attempt to the
// metrics collector.
type Fetcher struct {
	config    *Config
	transport port.Transport
	fs        port.FileSystem
	registry  *integrity.Registry
	collector *metrics.Collector
	logger    *zap.Logger

	mu        sync.Mutex
	transfers map[string]*transfer
	resume    map[string]*domain.ResumeData
}

// New creates a Fetcher
func New(
	cfg *Config,
	transport port.Transport,
	fs port.FileSystem,
	registry *integrity.Registry,
	collector *metrics.Collector,
	logger *zap.Logger,
) *Fetcher {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.RetryBackoff == 0 {
		cfg.RetryBackoff = time.Second
	}
	if cfg.RetryMaxBackoff == 0 {
		cfg.RetryMaxBackoff = 30 * time.Second
	}
	if cfg.MaxDiskUsagePercent == 0 {
		cfg.MaxDiskUsagePercent = 90
	}
	if cfg.ProgressInterval == 0 {
		cfg.ProgressInterval = 10 * time.Second
	}

	return &Fetcher{
		config:    cfg,
		transport: transport,
		fs:        fs,
		registry:  registry,
		collector: collector,
		logger:    logger,
		transfers: make(map[string]*transfer),
		resume:    make(map[string]*domain.ResumeData),
	}
}

// GetResumeData returns a snapshot of the tracked resume state for a
// chart, or false if no transfer is tracked.
func (f *Fetcher) GetResumeData(chartID string) (domain.ResumeData, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	rd, ok := f.resume[chartID]
	if !ok {
		return domain.ResumeData{}, false
	}
	return *rd, true
}

// Cancel aborts the in-flight transfer for a chart, if any. The partial
// file is preserved so a later resume can continue, unless discard is
// set, in which case the partial file and resume state are removed.
// A chart with no transfer, no resume state, and no partial file on
// disk yields ErrNotFound.
func (f *Fetcher) Cancel(chartID string, discard bool) error {
	f.mu.Lock()
	tr, active := f.transfers[chartID]
	if active {
		tr.discard = discard
		tr.cancel()
		f.mu.Unlock()
		return nil
	}
	_, tracked := f.resume[chartID]
	delete(f.resume, chartID)
	f.mu.Unlock()

	if !tracked {
		// Orphaned partial files (say, from before a restart) are still
		// cancellable state; anything else is not found.
		if _, _, err := f.fs.PartialInfo(chartID); err != nil {
			return domain.ErrNotFound
		}
	}
	if discard {
		return f.fs.DeletePartial(chartID)
	}
	return nil
}

// acquire registers a transfer for chartID, enforcing one active transfer
// per chart. Returns a derived context, the tracked resume state, and a
// release func.
func (f *Fetcher) acquire(ctx context.Context, chartID string) (context.Context, *domain.ResumeData, func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, busy := f.transfers[chartID]; busy {
		return nil, nil, nil, domain.ErrTransferInProgress
	}

	ctx, cancel := context.WithCancel(ctx)
	tr := &transfer{cancel: cancel}
	f.transfers[chartID] = tr

	rd, ok := f.resume[chartID]
	if !ok {
		rd = &domain.ResumeData{
			ChartID:         chartID,
			PartialFilePath: f.fs.PartialPath(chartID),
		}
		f.resume[chartID] = rd
	}

	release := func() {
		cancel()
		f.mu.Lock()
		discard := tr.discard
		delete(f.transfers, chartID)
		f.mu.Unlock()

		if discard {
			f.clearResume(chartID)
			f.fs.DeletePartial(chartID)
		}
	}
	return ctx, rd, release, nil
}

// clearResume drops the tracked resume state for a chart.
func (f *Fetcher) clearResume(chartID string) {
	f.mu.Lock()
	delete(f.resume, chartID)
	f.mu.Unlock()
}

// progressSink builds the ProgressFunc used for a transfer: it mirrors
// the byte count into the tracked resume state, keeps the callback
// monotone across restarted attempts via a high-water mark, and logs
// progress at the configured interval.
func (f *Fetcher) progressSink(rd *domain.ResumeData, cb port.ProgressFunc) port.ProgressFunc {
	var highWater int64
	var lastLog time.Time

	return func(received, total int64) {
		f.mu.Lock()
		rd.DownloadedBytes = received
		if total > 0 {
			rd.TotalBytes = total
		}
		rd.UpdatedAt = time.Now()
		if received > highWater {
			highWater = received
		}
		reported := highWater
		f.mu.Unlock()

		if cb != nil {
			cb(reported, total)
		}

		if time.Since(lastLog) >= f.config.ProgressInterval {
			lastLog = time.Now()
			f.logger.Debug("download progress",
				zap.String("chart_id", rd.ChartID),
				zap.Int64("received", received),
				zap.Int64("total", total))
		}
	}
}

// backoff waits for an exponentially increasing duration with jitter in
// [0.5, 1.5) of the nominal value. Interruptible by ctx.
func (f *Fetcher) backoff(ctx context.Context, attempt int) error {
	nominal := f.config.RetryBackoff * time.Duration(1<<uint(attempt-1))
	if nominal > f.config.RetryMaxBackoff {
		nominal = f.config.RetryMaxBackoff
	}

	jittered := time.Duration(float64(nominal) * (0.5 + rand.Float64()))

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(jittered):
		return nil
	}
}

// checkDiskSpace rejects a projected download that would exhaust storage.
// Fatal when it fails; never retried.
func (f *Fetcher) checkDiskSpace(chartID string, projectedBytes int64) error {
	if projectedBytes <= 0 {
		return nil
	}

	usage, err := f.fs.DiskUsage()
	if err != nil {
		return err
	}

	free := int64(usage.Free)
	if free-projectedBytes < f.config.MinFreeBytes {
		return &domain.DiskSpaceError{
			ChartID:       chartID,
			RequiredBytes: projectedBytes,
			FreeBytes:     free,
		}
	}

	projectedPct := float64(usage.Used+uint64(projectedBytes)) / float64(usage.Total) * 100
	if projectedPct >= f.config.MaxDiskUsagePercent {
		return &domain.DiskSpaceError{
			ChartID:       chartID,
			RequiredBytes: projectedBytes,
			FreeBytes:     free,
		}
	}

	return nil
}
