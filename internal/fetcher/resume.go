package fetcher

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/oceanroute/chartfetch/internal/adapter/httptransport"
	"github.com/oceanroute/chartfetch/internal/domain"
	"github.com/oceanroute/chartfetch/internal/port"
)

// ResumeDownload continues an interrupted transfer from its partial file.
// A range probe decides the strategy: servers honoring byte ranges get an
// append from the current partial length; anything else forces a restart
// from byte 0 with the partial file discarded.
func (f *Fetcher) ResumeDownload(ctx context.Context, chartID, url string, opts Options) (*domain.DownloadResult, error) {
	ctx, rd, release, err := f.acquire(ctx, chartID)
	if err != nil {
		return nil, err
	}
	defer release()

	size, _, err := f.fs.PartialInfo(chartID)
	if err != nil {
		f.clearResume(chartID)
		return nil, fmt.Errorf("%w: chart %s", domain.ErrNoPartialFile, chartID)
	}

	f.mu.Lock()
	rd.DownloadedBytes = size
	f.mu.Unlock()

	f.collector.Start(chartID)

	res, err := f.resumeWithRetry(ctx, chartID, url, rd, opts)
	if err != nil {
		f.collector.CompleteFailure(chartID, domain.FailureCategory(err))
		return nil, err
	}

	f.collector.CompleteSuccess(chartID)
	return res, nil
}

// resumeWithRetry drives the probe-and-append path through the bounded
// retry loop, falling back to the full-download path when the server
// does not honor ranges.
func (f *Fetcher) resumeWithRetry(ctx context.Context, chartID, url string, rd *domain.ResumeData, opts Options) (*domain.DownloadResult, error) {
	sink := f.progressSink(rd, opts.OnProgress)

	var lastErr error
	for attempt := 1; attempt <= f.config.MaxAttempts; attempt++ {
		f.mu.Lock()
		rd.Attempts = attempt
		f.mu.Unlock()

		res, restart, err := f.attemptResume(ctx, chartID, url, rd, sink)
		if err == nil && !restart {
			return res, nil
		}

		if restart {
			// Range not supported: discard the partial and start over.
			f.logger.Info("server does not support ranges, restarting from byte 0",
				zap.String("chart_id", chartID))
			if err := f.fs.DeletePartial(chartID); err != nil {
				return nil, err
			}
			f.mu.Lock()
			rd.SupportsRange = domain.RangeUnsupported
			rd.DownloadedBytes = 0
			f.mu.Unlock()
			return f.downloadWithRetry(ctx, chartID, url, rd, opts)
		}

		lastErr = err
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !domain.IsRetryable(err) {
			return nil, err
		}

		f.logger.Warn("resume attempt failed",
			zap.String("chart_id", chartID),
			zap.Int("attempt", attempt),
			zap.Error(err))

		if attempt < f.config.MaxAttempts {
			f.collector.IncrementRetry(chartID)
			if err := f.backoff(ctx, attempt); err != nil {
				return nil, err
			}
		}
	}

	return nil, fmt.Errorf("resume failed after %d attempts: %w", f.config.MaxAttempts, lastErr)
}

// attemptResume is one probe-and-append attempt. restart=true means the
// server rejected byte ranges and the caller must fall back to a full
// download.
func (f *Fetcher) attemptResume(ctx context.Context, chartID, url string, rd *domain.ResumeData, sink port.ProgressFunc) (res *domain.DownloadResult, restart bool, err error) {
	supported, total, err := f.probeRange(ctx, url)
	if err != nil {
		return nil, false, err
	}
	if !supported {
		return nil, true, nil
	}

	f.mu.Lock()
	rd.SupportsRange = domain.RangeSupported
	if total > 0 {
		rd.TotalBytes = total
	}
	f.mu.Unlock()

	// Only the delta still needs to fit on disk.
	size, _, err := f.fs.PartialInfo(chartID)
	if err != nil {
		return nil, false, fmt.Errorf("%w: chart %s", domain.ErrNoPartialFile, chartID)
	}
	if total > size {
		if err := f.checkDiskSpace(chartID, total-size); err != nil {
			return nil, false, err
		}
	}

	if total > 0 && size >= total {
		// Every byte is already on disk; just finalize.
		res, err := f.finalize(chartID, rd, true, size)
		return res, false, err
	}

	resumedFrom := size
	appended, err := f.appendFrom(ctx, chartID, url, size, total, sink)
	f.syncResumeFromDisk(chartID, rd)
	if err != nil {
		return nil, false, err
	}

	accumulated := size + appended
	if total > 0 && accumulated != total {
		// Totals disagree after a clean append. One bounded re-probe is
		// permitted in case the remote artifact changed size; a confirmed
		// disagreement is fatal.
		supported, reprobedTotal, probeErr := f.probeRange(ctx, url)
		if probeErr == nil && supported && reprobedTotal == accumulated {
			f.mu.Lock()
			rd.TotalBytes = reprobedTotal
			f.mu.Unlock()
		} else {
			return nil, false, &domain.SizeMismatchError{
				ChartID:  chartID,
				Expected: total,
				Actual:   accumulated,
			}
		}
	}

	res, err = f.finalize(chartID, rd, true, resumedFrom)
	return res, false, err
}

// probeRange issues a GET for the first byte only. A 206 with a
// Content-Range header confirms range support and reveals the total size.
func (f *Fetcher) probeRange(ctx context.Context, url string) (supported bool, total int64, err error) {
	resp, err := f.transport.Get(ctx, url, "bytes=0-0")
	if err != nil {
		return false, 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusPartialContent || resp.ContentRange == "" {
		return false, 0, nil
	}

	_, _, total, err = httptransport.ParseContentRange(resp.ContentRange)
	if err != nil {
		return false, 0, fmt.Errorf("range probe: %w", err)
	}
	return true, total, nil
}

// appendFrom streams [offset, end) and appends it to the partial file
// without truncating prior bytes.
func (f *Fetcher) appendFrom(ctx context.Context, chartID, url string, offset, total int64, sink port.ProgressFunc) (int64, error) {
	resp, err := f.transport.Get(ctx, url, fmt.Sprintf("bytes=%d-", offset))
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusPartialContent {
		return 0, fmt.Errorf("ranged GET returned status %d", resp.StatusCode)
	}

	reader := httptransport.NewProgressReaderAt(resp.Body, offset, total, sink)
	appended, err := f.fs.AppendPartial(chartID, reader)
	if err != nil {
		if ctx.Err() != nil {
			return appended, ctx.Err()
		}
		return appended, &domain.NetworkError{Op: "GET", URL: url, Err: err}
	}
	return appended, nil
}
