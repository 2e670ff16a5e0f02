package domain

// DownloadResult represents the outcome of a completed chart download.
type DownloadResult struct {
	// ChartID identifies the chart that was downloaded.
	ChartID string

	// Path is the local path where the final artifact was placed.
	Path string

	// BytesWritten is the total byte length of the artifact.
	BytesWritten int64

	// SHA256 is the lowercase hex hash of the final artifact.
	SHA256 string

	// Resumed indicates whether the transfer was resumed from a partial file.
	Resumed bool

	// ResumedFrom is the byte offset the resumed transfer continued from.
	ResumedFrom int64

	// Attempts is the number of attempts the transfer consumed.
	Attempts int

	// Mismatch is set when the artifact hash disagrees with the integrity
	// registry. The caller decides whether to re-download or alert.
	Mismatch *IntegrityMismatch
}
