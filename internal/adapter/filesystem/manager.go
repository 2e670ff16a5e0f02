package filesystem

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/oceanroute/chartfetch/internal/port"
)

// PartialSuffix marks an on-disk artifact that is still being transferred.
const PartialSuffix = ".partial"

// Manager handles local chart storage operations
type Manager struct {
	rootDir    string
	bufferSize int
}

// Ensure Manager implements port.FileSystem
var _ port.FileSystem = (*Manager)(nil)

// NewManager creates a new filesystem manager rooted at rootDir
func NewManager(rootDir string) (*Manager, error) {
	return NewManagerWithBufferSize(rootDir, 8*1024*1024) // 8MB default
}

// NewManagerWithBufferSize creates a new filesystem manager with custom buffer size
func NewManagerWithBufferSize(rootDir string, bufferSize int) (*Manager, error) {
	if err := os.MkdirAll(rootDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create chart root dir: %w", err)
	}

	if bufferSize <= 0 {
		bufferSize = 8 * 1024 * 1024
	}

	return &Manager{
		rootDir:    rootDir,
		bufferSize: bufferSize,
	}, nil
}

// RootDir returns the chart storage root directory
func (m *Manager) RootDir() string {
	return m.rootDir
}

// ChartPath returns the final local path for a chart id
func (m *Manager) ChartPath(chartID string) string {
	return filepath.Join(m.rootDir, chartID)
}

// PartialPath returns the partial file path for a chart id
func (m *Manager) PartialPath(chartID string) string {
	return m.ChartPath(chartID) + PartialSuffix
}

// CreatePartial creates (truncating) the partial file and streams reader into it
func (m *Manager) CreatePartial(chartID string, reader io.Reader) (int64, error) {
	partialPath := m.PartialPath(chartID)

	if err := os.MkdirAll(filepath.Dir(partialPath), 0755); err != nil {
		return 0, fmt.Errorf("failed to create parent dir: %w", err)
	}

	f, err := os.Create(partialPath)
	if err != nil {
		return 0, fmt.Errorf("failed to create partial file: %w", err)
	}

	return m.copyInto(f, reader)
}

// AppendPartial appends reader to the existing partial file without
// truncating prior bytes
func (m *Manager) AppendPartial(chartID string, reader io.Reader) (int64, error) {
	partialPath := m.PartialPath(chartID)

	f, err := os.OpenFile(partialPath, os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return 0, fmt.Errorf("failed to open partial file for append: %w", err)
	}

	return m.copyInto(f, reader)
}

// copyInto streams reader into f with a large buffer and closes f. The
// partial file keeps whatever was written even when the copy fails, so a
// later resume can continue from it.
func (m *Manager) copyInto(f *os.File, reader io.Reader) (int64, error) {
	buf := make([]byte, m.bufferSize)
	written, copyErr := io.CopyBuffer(f, reader, buf)

	if err := f.Close(); err != nil && copyErr == nil {
		return written, fmt.Errorf("failed to close partial file: %w", err)
	}
	if copyErr != nil {
		return written, fmt.Errorf("failed to write partial file: %w", copyErr)
	}
	return written, nil
}

// PartialInfo returns size and modification time of the partial file.
// Returns an error if the file does not exist.
func (m *Manager) PartialInfo(chartID string) (int64, time.Time, error) {
	info, err := os.Stat(m.PartialPath(chartID))
	if err != nil {
		return 0, time.Time{}, err
	}
	return info.Size(), info.ModTime(), nil
}

// Promote atomically renames the partial file to the final chart path
func (m *Manager) Promote(chartID string) (string, error) {
	chartPath := m.ChartPath(chartID)
	if err := os.Rename(m.PartialPath(chartID), chartPath); err != nil {
		return "", fmt.Errorf("failed to promote partial file: %w", err)
	}
	return chartPath, nil
}

// DeletePartial removes the partial file
func (m *Manager) DeletePartial(chartID string) error {
	if err := os.Remove(m.PartialPath(chartID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete partial file: %w", err)
	}
	return nil
}

// DeleteChart removes the final artifact
func (m *Manager) DeleteChart(chartID string) error {
	if err := os.Remove(m.ChartPath(chartID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete chart file: %w", err)
	}
	return nil
}

// CleanStalePartials removes partial files older than the specified duration
func (m *Manager) CleanStalePartials(olderThan time.Duration) (int, error) {
	count := 0
	threshold := time.Now().Add(-olderThan)

	err := filepath.Walk(m.rootDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && filepath.Ext(path) == PartialSuffix {
			if info.ModTime().Before(threshold) {
				if removeErr := os.Remove(path); removeErr == nil {
					count++
				}
			}
		}
		return nil
	})
	return count, err
}
