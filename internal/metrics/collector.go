// Package metrics accounts for download attempts: per-chart timing, retry
// tallies, and success/failure counts by category. Aggregate statistics
// are recomputed on demand from the event ledger, and the same events
// feed a Prometheus registry for scraping.
package metrics

import (
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// event is one closed timing record. Closed events are never mutated.
type event struct {
	chartID  string
	duration time.Duration
	success  bool
	category string
}

// Snapshot is a read-only aggregate projection over all closed events.
type Snapshot struct {
	SuccessCount           int            `json:"success_count"`
	FailureCount           int            `json:"failure_count"`
	FailureByCategory      map[string]int `json:"failure_by_category"`
	AverageDurationSeconds float64        `json:"average_duration_seconds"`
	MedianDurationSeconds  float64        `json:"median_duration_seconds"`
	RetryCount             int            `json:"retry_count"`
}

// Collector owns the download event ledger. All methods are safe for
// concurrent use by transfers finishing around the same time.
type Collector struct {
	mu      sync.Mutex
	open    map[string]time.Time
	closed  []event
	retries map[string]int

	registry     *prometheus.Registry
	downloadsVec *prometheus.CounterVec
	durationHist prometheus.Histogram
	retriesTotal prometheus.Counter
	activeGauge  prometheus.Gauge
}

// NewCollector creates an empty Collector with its Prometheus registry.
func NewCollector() *Collector {
	registry := prometheus.NewRegistry()

	c := &Collector{
		open:    make(map[string]time.Time),
		retries: make(map[string]int),

		registry: registry,
		downloadsVec: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chartfetch",
			Name:      "downloads_total",
			Help:      "Terminal download outcomes by status and failure category.",
		}, []string{"status", "category"}),
		durationHist: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "chartfetch",
			Name:      "download_duration_seconds",
			Help:      "Wall-clock duration of terminal download attempts.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 14),
		}),
		retriesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chartfetch",
			Name:      "download_retries_total",
			Help:      "Retry attempts across all charts.",
		}),
		activeGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "chartfetch",
			Name:      "downloads_active",
			Help:      "Transfers with an open timing record.",
		}),
	}

	registry.MustRegister(c.downloadsVec, c.durationHist, c.retriesTotal, c.activeGauge)
	return c
}

// Start opens a timing record for chartID, overwriting any stale
// unfinished record for the same id.
func (c *Collector) Start(chartID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, stale := c.open[chartID]; !stale {
		c.activeGauge.Inc()
	}
	c.open[chartID] = time.Now()
}

// CompleteSuccess closes the record for chartID as a success.
func (c *Collector) CompleteSuccess(chartID string) {
	c.complete(chartID, true, "")
}

// CompleteFailure closes the record for chartID as a failure in the given
// category. The category key is created on first use.
func (c *Collector) CompleteFailure(chartID, category string) {
	c.complete(chartID, false, category)
}

func (c *Collector) complete(chartID string, success bool, category string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	start, ok := c.open[chartID]
	if !ok {
		return
	}
	delete(c.open, chartID)
	c.activeGauge.Dec()

	elapsed := time.Since(start)
	c.closed = append(c.closed, event{
		chartID:  chartID,
		duration: elapsed,
		success:  success,
		category: category,
	})

	c.durationHist.Observe(elapsed.Seconds())
	if success {
		c.downloadsVec.WithLabelValues("success", "").Inc()
	} else {
		c.downloadsVec.WithLabelValues("failure", category).Inc()
	}
}

// IncrementRetry increments the retry tally for chartID.
func (c *Collector) IncrementRetry(chartID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.retries[chartID]++
	c.retriesTotal.Inc()
}

// Snapshot computes the aggregate over all closed records. An empty
// collector returns all-zero values.
func (c *Collector) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := Snapshot{
		FailureByCategory: make(map[string]int),
	}

	durations := make([]float64, 0, len(c.closed))
	for _, ev := range c.closed {
		durations = append(durations, ev.duration.Seconds())
		if ev.success {
			snap.SuccessCount++
		} else {
			snap.FailureCount++
			snap.FailureByCategory[ev.category]++
		}
	}

	for _, tally := range c.retries {
		snap.RetryCount += tally
	}

	if len(durations) == 0 {
		return snap
	}

	var sum float64
	for _, d := range durations {
		sum += d
	}
	snap.AverageDurationSeconds = sum / float64(len(durations))

	sort.Float64s(durations)
	mid := len(durations) / 2
	if len(durations)%2 == 1 {
		snap.MedianDurationSeconds = durations[mid]
	} else {
		snap.MedianDurationSeconds = (durations[mid-1] + durations[mid]) / 2
	}

	return snap
}

// Reset clears the ledger and retry tallies. Open records are kept so
// in-flight transfers can still close cleanly.
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = nil
	c.retries = make(map[string]int)
}

// Handler returns an http.Handler serving the Prometheus registry.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
