package fetcher

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/oceanroute/chartfetch/internal/adapter/httptransport"
	"github.com/oceanroute/chartfetch/internal/domain"
	"github.com/oceanroute/chartfetch/internal/integrity"
	"github.com/oceanroute/chartfetch/internal/port"
)

// DownloadChart downloads a chart from url to local storage, retrying
// transient failures with jittered exponential backoff. Disk-space
// rejections at preflight are fatal and never retried. On success the
// final artifact is hashed and checked against the integrity registry.
func (f *Fetcher) DownloadChart(ctx context.Context, chartID, url string, opts Options) (*domain.DownloadResult, error) {
	ctx, rd, release, err := f.acquire(ctx, chartID)
	if err != nil {
		return nil, err
	}
	defer release()

	f.collector.Start(chartID)

	res, err := f.downloadWithRetry(ctx, chartID, url, rd, opts)
	if err != nil {
		f.collector.CompleteFailure(chartID, domain.FailureCategory(err))
		return nil, err
	}

	f.collector.CompleteSuccess(chartID)
	return res, nil
}

// downloadWithRetry drives the full-download path through the bounded
// retry loop. The caller must already hold the per-chart transfer slot.
func (f *Fetcher) downloadWithRetry(ctx context.Context, chartID, url string, rd *domain.ResumeData, opts Options) (*domain.DownloadResult, error) {
	sink := f.progressSink(rd, opts.OnProgress)

	var lastErr error
	for attempt := 1; attempt <= f.config.MaxAttempts; attempt++ {
		f.mu.Lock()
		rd.Attempts = attempt
		f.mu.Unlock()

		res, err := f.attemptFull(ctx, chartID, url, rd, sink)
		if err == nil {
			return res, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !domain.IsRetryable(err) {
			return nil, err
		}

		f.logger.Warn("download attempt failed",
			zap.String("chart_id", chartID),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", f.config.MaxAttempts),
			zap.Error(err))

		if attempt < f.config.MaxAttempts {
			f.collector.IncrementRetry(chartID)
			if err := f.backoff(ctx, attempt); err != nil {
				return nil, err
			}
		}
	}

	return nil, fmt.Errorf("download failed after %d attempts: %w", f.config.MaxAttempts, lastErr)
}

// attemptFull is one preflighted full-download attempt: HEAD for sizing,
// disk-space gate, stream the body to the partial file, finalize.
func (f *Fetcher) attemptFull(ctx context.Context, chartID, url string, rd *domain.ResumeData, sink port.ProgressFunc) (*domain.DownloadResult, error) {
	head, err := f.transport.Head(ctx, url)
	if err != nil {
		return nil, err
	}
	if head.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("preflight HEAD returned status %d", head.StatusCode)
	}

	if head.ContentLength > 0 {
		f.mu.Lock()
		rd.TotalBytes = head.ContentLength
		f.mu.Unlock()
	}

	// Fail fast before any body bytes are requested.
	if err := f.checkDiskSpace(chartID, rd.TotalBytes); err != nil {
		return nil, err
	}

	resp, err := f.transport.Get(ctx, url, "")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GET returned status %d", resp.StatusCode)
	}

	total := rd.TotalBytes
	if total <= 0 && resp.ContentLength > 0 {
		total = resp.ContentLength
	}

	reader := httptransport.NewProgressReader(resp.Body, total, sink)
	written, err := f.fs.CreatePartial(chartID, reader)

	// The partial file is the source of truth for the byte count.
	f.syncResumeFromDisk(chartID, rd)

	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &domain.NetworkError{Op: "GET", URL: url, Err: err}
	}

	if total > 0 && written < total {
		return nil, &domain.NetworkError{Op: "GET", URL: url,
			Err: fmt.Errorf("%w: got %d of %d bytes", io.ErrUnexpectedEOF, written, total)}
	}

	return f.finalize(chartID, rd, false, 0)
}

// syncResumeFromDisk refreshes the tracked byte count from the partial
// file, keeping the resume invariant intact after any stream outcome.
func (f *Fetcher) syncResumeFromDisk(chartID string, rd *domain.ResumeData) {
	size, _, err := f.fs.PartialInfo(chartID)
	if err != nil {
		return
	}
	f.mu.Lock()
	rd.DownloadedBytes = size
	f.mu.Unlock()
}

// finalize promotes the partial file to its final path, hashes it, and
// consults the integrity registry: first load captures the hash, later
// loads compare against it. Resume state is cleared on success.
func (f *Fetcher) finalize(chartID string, rd *domain.ResumeData, resumed bool, resumedFrom int64) (*domain.DownloadResult, error) {
	path, err := f.fs.Promote(chartID)
	if err != nil {
		return nil, fmt.Errorf("failed to finalize chart %s: %w", chartID, err)
	}

	hash, err := integrity.HashFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to hash chart %s: %w", chartID, err)
	}

	var mismatch *domain.IntegrityMismatch
	if _, exists := f.registry.Get(chartID); !exists {
		if err := f.registry.CaptureFirstLoad(chartID, hash); err != nil {
			f.logger.Warn("failed to capture first-load hash",
				zap.String("chart_id", chartID), zap.Error(err))
		}
	} else {
		mismatch = f.registry.Compare(chartID, hash)
		if mismatch != nil {
			f.logger.Warn("chart integrity mismatch",
				zap.String("chart_id", chartID),
				zap.String("expected", mismatch.Expected),
				zap.String("actual", mismatch.Actual))
		}
	}

	f.mu.Lock()
	result := &domain.DownloadResult{
		ChartID:      chartID,
		Path:         path,
		BytesWritten: rd.DownloadedBytes,
		SHA256:       hash,
		Resumed:      resumed,
		ResumedFrom:  resumedFrom,
		Attempts:     rd.Attempts,
		Mismatch:     mismatch,
	}
	f.mu.Unlock()

	f.clearResume(chartID)

	f.logger.Info("chart downloaded",
		zap.String("chart_id", chartID),
		zap.String("path", path),
		zap.Int64("bytes", result.BytesWritten),
		zap.Bool("resumed", resumed))

	return result, nil
}
