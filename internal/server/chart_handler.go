package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/oceanroute/chartfetch/internal/domain"
	"github.com/oceanroute/chartfetch/internal/fetcher"
	"github.com/oceanroute/chartfetch/internal/metrics"
)

// ChartHandler serves the download API
type ChartHandler struct {
	fetcher   *fetcher.Fetcher
	collector *metrics.Collector
	logger    *zap.Logger
}

// NewChartHandler creates a new ChartHandler
func NewChartHandler(f *fetcher.Fetcher, collector *metrics.Collector, logger *zap.Logger) *ChartHandler {
	return &ChartHandler{
		fetcher:   f,
		collector: collector,
		logger:    logger,
	}
}

type downloadRequest struct {
	URL string `json:"url"`
}

type downloadResponse struct {
	TransferID string `json:"transfer_id"`
	ChartID    string `json:"chart_id"`
}

// HandleDownload starts an asynchronous download for a chart
func (h *ChartHandler) HandleDownload(w http.ResponseWriter, r *http.Request) {
	h.startTransfer(w, r, h.fetcher.DownloadChart)
}

// HandleResume resumes an interrupted download from its partial file
func (h *ChartHandler) HandleResume(w http.ResponseWriter, r *http.Request) {
	h.startTransfer(w, r, func(ctx context.Context, chartID, url string, opts fetcher.Options) (*domain.DownloadResult, error) {
		return h.fetcher.ResumeDownload(ctx, chartID, url, opts)
	})
}

type transferFunc func(ctx context.Context, chartID, url string, opts fetcher.Options) (*domain.DownloadResult, error)

func (h *ChartHandler) startTransfer(w http.ResponseWriter, r *http.Request, run transferFunc) {
	chartID := r.PathValue("id")

	var req downloadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.URL == "" {
		http.Error(w, "Request body must be JSON with a url field", http.StatusBadRequest)
		return
	}

	transferID := uuid.NewString()

	go func() {
		// The transfer outlives the request; cancellation goes through
		// Fetcher.Cancel, not the request context.
		result, err := run(context.Background(), chartID, req.URL, fetcher.Options{})
		if err != nil {
			h.logger.Error("transfer failed",
				zap.String("transfer_id", transferID),
				zap.String("chart_id", chartID),
				zap.Error(err))
			return
		}
		h.logger.Info("transfer complete",
			zap.String("transfer_id", transferID),
			zap.String("chart_id", chartID),
			zap.String("sha256", result.SHA256),
			zap.Bool("mismatch", result.Mismatch != nil))
	}()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(downloadResponse{
		TransferID: transferID,
		ChartID:    chartID,
	})
}

type progressResponse struct {
	ChartID         string  `json:"chart_id"`
	DownloadedBytes int64   `json:"downloaded_bytes"`
	TotalBytes      int64   `json:"total_bytes"`
	Fraction        float64 `json:"fraction"`
	SupportsRange   string  `json:"supports_range"`
	Attempts        int     `json:"attempts"`
}

// HandleProgress reports the tracked resume state for a chart
func (h *ChartHandler) HandleProgress(w http.ResponseWriter, r *http.Request) {
	chartID := r.PathValue("id")

	rd, ok := h.fetcher.GetResumeData(chartID)
	if !ok {
		http.Error(w, "No transfer tracked for chart", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(progressResponse{
		ChartID:         rd.ChartID,
		DownloadedBytes: rd.DownloadedBytes,
		TotalBytes:      rd.TotalBytes,
		Fraction:        rd.Fraction(),
		SupportsRange:   rd.SupportsRange.String(),
		Attempts:        rd.Attempts,
	})
}

// HandleCancel aborts an in-flight transfer. The partial file survives
// unless ?discard=1 is given.
func (h *ChartHandler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	chartID := r.PathValue("id")
	discard := r.URL.Query().Get("discard") == "1"

	if err := h.fetcher.Cancel(chartID, discard); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			http.Error(w, "No transfer for chart", http.StatusNotFound)
			return
		}
		h.logger.Error("cancel failed", zap.String("chart_id", chartID), zap.Error(err))
		http.Error(w, "Cancel failed", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// HandleStats serves the aggregate download snapshot
func (h *ChartHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.collector.Snapshot())
}
