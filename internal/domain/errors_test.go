package domain

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{
			name: "network error",
			err:  &NetworkError{Op: "GET", URL: "http://charts.example/US5WA50M", Err: errors.New("connection reset")},
			want: true,
		},
		{
			name: "wrapped network error",
			err:  fmt.Errorf("attempt 3: %w", &NetworkError{Op: "HEAD", URL: "http://charts.example/US5WA50M", Err: errors.New("timeout")}),
			want: true,
		},
		{
			name: "disk space error",
			err:  &DiskSpaceError{ChartID: "US5WA50M", RequiredBytes: 6 << 30, FreeBytes: 1 << 30},
			want: false,
		},
		{
			name: "size mismatch error",
			err:  &SizeMismatchError{ChartID: "US5WA50M", Expected: 200, Actual: 190},
			want: false,
		},
		{
			name: "plain error",
			err:  errors.New("something else"),
			want: false,
		},
		{
			name: "nil",
			err:  nil,
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFailureCategory(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "canceled context",
			err:  context.Canceled,
			want: CategoryCanceled,
		},
		{
			name: "wrapped canceled context",
			err:  fmt.Errorf("download aborted: %w", context.Canceled),
			want: CategoryCanceled,
		},
		{
			name: "network error",
			err:  &NetworkError{Op: "GET", URL: "http://charts.example/US5WA50M", Err: errors.New("connection reset")},
			want: CategoryNetwork,
		},
		{
			name: "deadline exceeded",
			err:  context.DeadlineExceeded,
			want: CategoryNetwork,
		},
		{
			name: "disk space error",
			err:  &DiskSpaceError{ChartID: "US5WA50M", RequiredBytes: 6 << 30, FreeBytes: 1 << 30},
			want: CategoryDiskSpace,
		},
		{
			name: "bare insufficient space sentinel",
			err:  ErrInsufficientSpace,
			want: CategoryDiskSpace,
		},
		{
			name: "size mismatch error",
			err:  &SizeMismatchError{ChartID: "US5WA50M", Expected: 200, Actual: 190},
			want: CategorySizeMismatch,
		},
		{
			name: "anything else",
			err:  errors.New("unexpected"),
			want: CategoryInternal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FailureCategory(tt.err); got != tt.want {
				t.Errorf("FailureCategory() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDiskSpaceError_Unwrap(t *testing.T) {
	err := fmt.Errorf("preflight: %w", &DiskSpaceError{ChartID: "US5WA50M", RequiredBytes: 100, FreeBytes: 10})
	if !errors.Is(err, ErrInsufficientSpace) {
		t.Error("DiskSpaceError should unwrap to ErrInsufficientSpace")
	}
}

func TestNetworkError_Error(t *testing.T) {
	err := &NetworkError{Op: "GET", URL: "http://charts.example/US5WA50M", Err: errors.New("connection reset")}
	want := "network error during GET http://charts.example/US5WA50M: connection reset"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}
