// Package integrity tracks the trusted content hash of every downloaded
// chart. The first successfully observed hash for a chart becomes its
// expectation; later downloads are compared against it to detect silent
// upstream changes or local corruption.
package integrity

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/oceanroute/chartfetch/internal/domain"
	"github.com/oceanroute/chartfetch/internal/port"
)

// KeyPrefix namespaces registry entries in the durable store.
const KeyPrefix = "chart_integrity_"

// Registry holds the expected hash for each chart, backed by a durable
// key-value store. It is the single writer of its key namespace.
type Registry struct {
	mu      sync.RWMutex
	records map[string]domain.IntegrityRecord
	store   port.KeyValueStore
	logger  *zap.Logger
}

// NewRegistry creates a Registry persisting through store.
func NewRegistry(store port.KeyValueStore, logger *zap.Logger) *Registry {
	return &Registry{
		records: make(map[string]domain.IntegrityRecord),
		store:   store,
		logger:  logger,
	}
}

// Initialize loads every persisted entry into memory. Entries with empty
// or unreadable values are skipped; corrupted persistence must not
// prevent startup.
func (r *Registry) Initialize() error {
	keys, err := r.store.KeysWithPrefix(KeyPrefix)
	if err != nil {
		return fmt.Errorf("failed to list integrity keys: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	loaded := 0
	for _, key := range keys {
		value, ok, err := r.store.Get(key)
		if err != nil || !ok || value == "" {
			if err != nil {
				r.logger.Warn("skipping unreadable integrity entry",
					zap.String("key", key), zap.Error(err))
			}
			continue
		}
		chartID := strings.TrimPrefix(key, KeyPrefix)
		r.records[chartID] = domain.IntegrityRecord{
			ChartID:        chartID,
			ExpectedSHA256: value,
		}
		loaded++
	}

	r.logger.Info("integrity registry initialized", zap.Int("records", loaded))
	return nil
}

// Seed bulk-loads records into memory without persisting them. Used for
// bootstrapping and tests.
func (r *Registry) Seed(hashes map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for chartID, hash := range hashes {
		r.records[chartID] = domain.IntegrityRecord{
			ChartID:        chartID,
			ExpectedSHA256: hash,
			CapturedAt:     time.Now(),
		}
	}
}

// CaptureFirstLoad records hash as the expectation for chartID only when
// no record exists yet. An established expectation is never overwritten.
func (r *Registry) CaptureFirstLoad(chartID, hash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.records[chartID]; exists {
		return nil
	}

	if err := r.store.Set(KeyPrefix+chartID, hash); err != nil {
		return fmt.Errorf("failed to persist integrity record: %w", err)
	}

	r.records[chartID] = domain.IntegrityRecord{
		ChartID:        chartID,
		ExpectedSHA256: hash,
		CapturedAt:     time.Now(),
	}

	r.logger.Info("captured first-load hash",
		zap.String("chart_id", chartID), zap.String("sha256", hash))
	return nil
}

// Upsert creates or replaces the record for chartID and writes through to
// the durable store unconditionally.
func (r *Registry) Upsert(chartID, hash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.store.Set(KeyPrefix+chartID, hash); err != nil {
		return fmt.Errorf("failed to persist integrity record: %w", err)
	}

	r.records[chartID] = domain.IntegrityRecord{
		ChartID:        chartID,
		ExpectedSHA256: hash,
		CapturedAt:     time.Now(),
	}
	return nil
}

// Get returns the record for chartID, if one exists.
func (r *Registry) Get(chartID string) (domain.IntegrityRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.records[chartID]
	return rec, ok
}

// Compare checks actual against the recorded expectation for chartID.
// Absence of a record yields nil: there is nothing to compare yet and the
// caller is expected to capture the first load. Hashes are compared
// case-insensitively; a mismatch preserves the original casing of both.
func (r *Registry) Compare(chartID, actual string) *domain.IntegrityMismatch {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.records[chartID]
	if !ok {
		return nil
	}
	if strings.EqualFold(rec.ExpectedSHA256, actual) {
		return nil
	}
	return &domain.IntegrityMismatch{
		ChartID:  chartID,
		Expected: rec.ExpectedSHA256,
		Actual:   actual,
	}
}

// Clear empties in-memory state and deletes every persisted entry in the
// registry's key namespace.
func (r *Registry) Clear() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	keys, err := r.store.KeysWithPrefix(KeyPrefix)
	if err != nil {
		return fmt.Errorf("failed to list integrity keys: %w", err)
	}
	for _, key := range keys {
		if err := r.store.Remove(key); err != nil {
			return fmt.Errorf("failed to remove %s: %w", key, err)
		}
	}

	r.records = make(map[string]domain.IntegrityRecord)
	return nil
}

// Len returns the number of in-memory records.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records)
}
