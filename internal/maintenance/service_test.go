package maintenance

import (
	"context"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/oceanroute/chartfetch/internal/port"
)

// mockFileSystem implements port.FileSystem for testing
type mockFileSystem struct {
	sweeps  atomic.Int32
	removed int
	err     error
}

func (m *mockFileSystem) CleanStalePartials(olderThan time.Duration) (int, error) {
	m.sweeps.Add(1)
	return m.removed, m.err
}

// Stub implementations for other FileSystem methods
func (m *mockFileSystem) RootDir() string                        { return "" }
func (m *mockFileSystem) ChartPath(chartID string) string        { return "" }
func (m *mockFileSystem) PartialPath(chartID string) string      { return "" }
func (m *mockFileSystem) CreatePartial(chartID string, r io.Reader) (int64, error) { return 0, nil }
func (m *mockFileSystem) AppendPartial(chartID string, r io.Reader) (int64, error) { return 0, nil }
func (m *mockFileSystem) PartialInfo(chartID string) (int64, time.Time, error) {
	return 0, time.Time{}, nil
}
func (m *mockFileSystem) Promote(chartID string) (string, error) { return "", nil }
func (m *mockFileSystem) DeletePartial(chartID string) error     { return nil }
func (m *mockFileSystem) DeleteChart(chartID string) error       { return nil }
func (m *mockFileSystem) DiskUsage() (*port.DiskUsage, error)    { return &port.DiskUsage{}, nil }

func TestService_SweepsOnInterval(t *testing.T) {
	fs := &mockFileSystem{removed: 2}
	svc := New(&Config{
		SweepInterval:      5 * time.Millisecond,
		StalePartialMaxAge: time.Hour,
	}, fs, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Start(ctx) }()

	deadline := time.After(time.Second)
	for fs.sweeps.Load() < 2 {
		select {
		case <-deadline:
			t.Fatalf("sweeps = %d after 1s, want at least 2", fs.sweeps.Load())
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Start() returned %v after cancel, want nil", err)
	}
}

func TestService_DoubleStart(t *testing.T) {
	svc := New(nil, &mockFileSystem{}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	go svc.Start(ctx)

	// Give the first Start a moment to register as running.
	time.Sleep(10 * time.Millisecond)

	if err := svc.Start(ctx); err == nil {
		t.Error("second Start() should fail while running")
	}

	cancel()
}

func TestService_Stop(t *testing.T) {
	svc := New(&Config{SweepInterval: time.Hour}, &mockFileSystem{}, zap.NewNop())

	done := make(chan error, 1)
	go func() { done <- svc.Start(context.Background()) }()

	time.Sleep(10 * time.Millisecond)
	svc.Stop()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Start() returned %v after Stop, want nil", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Start() did not return after Stop")
	}
}
