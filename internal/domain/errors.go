package domain

import (
	"context"
	"errors"
	"fmt"
)

// Failure categories used for metrics accounting. Every terminal download
// failure carries exactly one of these.
const (
	CategoryNetwork      = "network"
	CategoryDiskSpace    = "disk_space"
	CategorySizeMismatch = "size_mismatch"
	CategoryCanceled     = "canceled"
	CategoryInternal     = "internal"
)

// Common domain errors
var (
	ErrNotFound           = errors.New("not found")
	ErrTransferInProgress = errors.New("transfer already in progress for this chart")
	ErrNoPartialFile      = errors.New("no partial file to resume from")
	ErrInsufficientSpace  = errors.New("insufficient disk space")
)

// NetworkError is a transient transport failure. The orchestrator retries
// these with jittered exponential backoff up to a bounded attempt count.
type NetworkError struct {
	Op  string
	URL string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error during %s %s: %v", e.Op, e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// DiskSpaceError is raised at preflight when the projected download would
// exhaust local storage. Never retried.
type DiskSpaceError struct {
	ChartID       string
	RequiredBytes int64
	FreeBytes     int64
}

func (e *DiskSpaceError) Error() string {
	return fmt.Sprintf("chart %s needs %d bytes but only %d are safely available",
		e.ChartID, e.RequiredBytes, e.FreeBytes)
}

func (e *DiskSpaceError) Unwrap() error { return ErrInsufficientSpace }

// SizeMismatchError is raised after a resume-append completes with a byte
// count that disagrees with the server-advertised total. Fatal.
type SizeMismatchError struct {
	ChartID  string
	Expected int64
	Actual   int64
}

func (e *SizeMismatchError) Error() string {
	return fmt.Sprintf("chart %s size mismatch after append: expected %d bytes, have %d",
		e.ChartID, e.Expected, e.Actual)
}

// IsRetryable reports whether the orchestrator may retry after err.
func IsRetryable(err error) bool {
	var ne *NetworkError
	return errors.As(err, &ne)
}

// FailureCategory maps a terminal error to its telemetry category.
func FailureCategory(err error) string {
	var (
		ne *NetworkError
		de *DiskSpaceError
		se *SizeMismatchError
	)
	switch {
	case errors.Is(err, context.Canceled):
		return CategoryCanceled
	case errors.As(err, &ne), errors.Is(err, context.DeadlineExceeded):
		return CategoryNetwork
	case errors.As(err, &de), errors.Is(err, ErrInsufficientSpace):
		return CategoryDiskSpace
	case errors.As(err, &se):
		return CategorySizeMismatch
	default:
		return CategoryInternal
	}
}
