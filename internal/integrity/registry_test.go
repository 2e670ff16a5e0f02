package integrity

import (
	"errors"
	"testing"

	"go.uber.org/zap"
)

// mockStore implements port.KeyValueStore for testing
type mockStore struct {
	data    map[string]string
	failGet map[string]bool
	setErr  error
}

func newMockStore() *mockStore {
	return &mockStore{
		data:    make(map[string]string),
		failGet: make(map[string]bool),
	}
}

func (m *mockStore) Get(key string) (string, bool, error) {
	if m.failGet[key] {
		return "", false, errors.New("read failed")
	}
	value, ok := m.data[key]
	return value, ok, nil
}

func (m *mockStore) Set(key, value string) error {
	if m.setErr != nil {
		return m.setErr
	}
	m.data[key] = value
	return nil
}

func (m *mockStore) Remove(key string) error {
	delete(m.data, key)
	return nil
}

func (m *mockStore) KeysWithPrefix(prefix string) ([]string, error) {
	var keys []string
	for key := range m.data {
		if len(key) >= len(prefix) && key[:len(prefix)] == prefix {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

func TestRegistry_CaptureFirstLoad(t *testing.T) {
	store := newMockStore()
	r := NewRegistry(store, zap.NewNop())

	if err := r.CaptureFirstLoad("US5WA50M", "DEADBEEF"); err != nil {
		t.Fatalf("CaptureFirstLoad() error = %v", err)
	}

	rec, ok := r.Get("US5WA50M")
	if !ok {
		t.Fatal("expected record after first capture")
	}
	if rec.ExpectedSHA256 != "DEADBEEF" {
		t.Errorf("ExpectedSHA256 = %q, want DEADBEEF", rec.ExpectedSHA256)
	}
	if store.data[KeyPrefix+"US5WA50M"] != "DEADBEEF" {
		t.Error("hash was not persisted to the store")
	}

	// A second capture must not overwrite the established expectation.
	if err := r.CaptureFirstLoad("US5WA50M", "CAFEBABE"); err != nil {
		t.Fatalf("second CaptureFirstLoad() error = %v", err)
	}
	rec, _ = r.Get("US5WA50M")
	if rec.ExpectedSHA256 != "DEADBEEF" {
		t.Errorf("ExpectedSHA256 = %q, first-load hash was overwritten", rec.ExpectedSHA256)
	}
}

func TestRegistry_Compare(t *testing.T) {
	tests := []struct {
		name         string
		expected     string
		actual       string
		wantMismatch bool
	}{
		{
			name:         "exact match",
			expected:     "DEADBEEF",
			actual:       "DEADBEEF",
			wantMismatch: false,
		},
		{
			name:         "case-insensitive match",
			expected:     "DEADBEEF",
			actual:       "deadbeef",
			wantMismatch: false,
		},
		{
			name:         "mismatch",
			expected:     "DEADBEEF",
			actual:       "CAFEBABE",
			wantMismatch: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRegistry(newMockStore(), zap.NewNop())
			r.Seed(map[string]string{"US5WA50M": tt.expected})

			mismatch := r.Compare("US5WA50M", tt.actual)
			if (mismatch != nil) != tt.wantMismatch {
				t.Fatalf("Compare() mismatch = %v, want %v", mismatch != nil, tt.wantMismatch)
			}
			if mismatch != nil {
				if mismatch.Expected != tt.expected || mismatch.Actual != tt.actual {
					t.Errorf("mismatch preserves casing: got (%q, %q), want (%q, %q)",
						mismatch.Expected, mismatch.Actual, tt.expected, tt.actual)
				}
			}
		})
	}
}

func TestRegistry_Compare_NoRecord(t *testing.T) {
	r := NewRegistry(newMockStore(), zap.NewNop())

	if mismatch := r.Compare("US5WA50M", "DEADBEEF"); mismatch != nil {
		t.Errorf("Compare() with no record = %+v, want nil", mismatch)
	}
}

func TestRegistry_Upsert(t *testing.T) {
	store := newMockStore()
	r := NewRegistry(store, zap.NewNop())

	if err := r.CaptureFirstLoad("US5WA50M", "DEADBEEF"); err != nil {
		t.Fatal(err)
	}
	if err := r.Upsert("US5WA50M", "CAFEBABE"); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	rec, _ := r.Get("US5WA50M")
	if rec.ExpectedSHA256 != "CAFEBABE" {
		t.Errorf("ExpectedSHA256 = %q, want CAFEBABE", rec.ExpectedSHA256)
	}
	if store.data[KeyPrefix+"US5WA50M"] != "CAFEBABE" {
		t.Error("upsert was not written through to the store")
	}
}

func TestRegistry_Initialize(t *testing.T) {
	store := newMockStore()
	store.data[KeyPrefix+"US5WA50M"] = "DEADBEEF"
	store.data[KeyPrefix+"US4AK12N"] = "CAFEBABE"
	store.data[KeyPrefix+"EMPTY"] = ""
	store.data[KeyPrefix+"BROKEN"] = "whatever"
	store.data["unrelated_key"] = "ignored"
	store.failGet[KeyPrefix+"BROKEN"] = true

	r := NewRegistry(store, zap.NewNop())
	if err := r.Initialize(); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}

	if r.Len() != 2 {
		t.Errorf("Len() = %d, want 2 (empty and unreadable entries skipped)", r.Len())
	}

	rec, ok := r.Get("US5WA50M")
	if !ok || rec.ExpectedSHA256 != "DEADBEEF" {
		t.Errorf("Get(US5WA50M) = (%+v, %v), want DEADBEEF record", rec, ok)
	}
	if _, ok := r.Get("EMPTY"); ok {
		t.Error("empty entry should not be loaded")
	}
	if _, ok := r.Get("unrelated_key"); ok {
		t.Error("keys outside the namespace should not be loaded")
	}
}

func TestRegistry_Clear(t *testing.T) {
	store := newMockStore()
	store.data["unrelated_key"] = "survives"

	r := NewRegistry(store, zap.NewNop())
	if err := r.CaptureFirstLoad("US5WA50M", "DEADBEEF"); err != nil {
		t.Fatal(err)
	}
	if err := r.CaptureFirstLoad("US4AK12N", "CAFEBABE"); err != nil {
		t.Fatal(err)
	}

	if err := r.Clear(); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}

	if r.Len() != 0 {
		t.Errorf("Len() after Clear = %d, want 0", r.Len())
	}
	for key := range store.data {
		if key != "unrelated_key" {
			t.Errorf("key %q should have been removed", key)
		}
	}
	if store.data["unrelated_key"] != "survives" {
		t.Error("Clear must only touch its own key namespace")
	}
}

func TestRegistry_CaptureFirstLoad_PersistFailure(t *testing.T) {
	store := newMockStore()
	store.setErr = errors.New("disk full")

	r := NewRegistry(store, zap.NewNop())
	if err := r.CaptureFirstLoad("US5WA50M", "DEADBEEF"); err == nil {
		t.Fatal("expected error when persistence fails")
	}
	if _, ok := r.Get("US5WA50M"); ok {
		t.Error("record should not be kept in memory when persistence fails")
	}
}
