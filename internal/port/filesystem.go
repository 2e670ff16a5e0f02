package port

import (
	"io"
	"time"
)

// DiskUsage represents disk usage statistics for the chart directory.
type DiskUsage struct {
	Total   uint64  // Total disk space in bytes
	Used    uint64  // Used disk space in bytes
	Free    uint64  // Free disk space in bytes
	UsedPct float64 // Used percentage (0-100)
}

// FileSystem defines the local file operations the orchestrator needs.
// A partial file holds the bytes received so far for an incomplete
// transfer and is promoted atomically to the final path on completion.
type FileSystem interface {
	// RootDir returns the chart storage root directory.
	RootDir() string

	// ChartPath returns the final local path for a chart id.
	ChartPath(chartID string) string

	// PartialPath returns the partial file path for a chart id.
	PartialPath(chartID string) string

	// CreatePartial creates (truncating) the partial file for a chart and
	// streams reader into it. Returns bytes written.
	CreatePartial(chartID string, reader io.Reader) (int64, error)

	// AppendPartial appends reader to the existing partial file without
	// truncating prior bytes. Returns bytes appended.
	AppendPartial(chartID string, reader io.Reader) (int64, error)

	// PartialInfo returns size and modification time of the partial file.
	// Returns an error if it does not exist.
	PartialInfo(chartID string) (int64, time.Time, error)

	// Promote atomically renames the partial file to the final chart path.
	Promote(chartID string) (string, error)

	// DeletePartial removes the partial file. Missing files are not an error.
	DeletePartial(chartID string) error

	// DeleteChart removes the final artifact. Missing files are not an error.
	DeleteChart(chartID string) error

	// DiskUsage returns disk usage statistics for the storage root.
	DiskUsage() (*DiskUsage, error)

	// CleanStalePartials removes partial files older than the given age.
	// Returns the number of files deleted.
	CleanStalePartials(olderThan time.Duration) (int, error)
}
