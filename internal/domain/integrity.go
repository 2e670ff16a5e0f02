package domain

import "time"

// IntegrityRecord is the trusted hash expectation for a chart, captured
// on first successful load and persisted across restarts.
type IntegrityRecord struct {
	ChartID        string
	ExpectedSHA256 string // hex, compared case-insensitively
	CapturedAt     time.Time
}

// IntegrityMismatch reports that a downloaded chart no longer matches its
// recorded hash. Original casing of both values is preserved.
type IntegrityMismatch struct {
	ChartID  string
	Expected string
	Actual   string
}
