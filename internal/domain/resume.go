package domain

import "time"

// RangeSupport reports whether a server honors byte-range requests.
// It starts unknown and is settled once by a range probe.
type RangeSupport int

const (
	RangeUnknown RangeSupport = iota
	RangeSupported
	RangeUnsupported
)

// String returns a human-readable label for logging.
func (r RangeSupport) String() string {
	switch r {
	case RangeSupported:
		return "supported"
	case RangeUnsupported:
		return "unsupported"
	default:
		return "unknown"
	}
}

// ResumeData tracks the state of an incomplete transfer for one chart.
// DownloadedBytes mirrors the byte length of the partial file on disk.
type ResumeData struct {
	ChartID         string
	DownloadedBytes int64
	TotalBytes      int64 // 0 until a HEAD succeeds
	SupportsRange   RangeSupport
	Attempts        int
	PartialFilePath string
	UpdatedAt       time.Time
}

// Fraction returns download completion in [0, 1]. Overlapping resumed
// writes can over-count, so the value is capped at 1.
func (r *ResumeData) Fraction() float64 {
	if r.TotalBytes <= 0 {
		return 0
	}
	f := float64(r.DownloadedBytes) / float64(r.TotalBytes)
	if f > 1 {
		return 1
	}
	return f
}

// Complete reports whether every expected byte has been received.
func (r *ResumeData) Complete() bool {
	return r.TotalBytes > 0 && r.DownloadedBytes >= r.TotalBytes
}
