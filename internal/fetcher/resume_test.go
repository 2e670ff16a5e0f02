package fetcher

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/oceanroute/chartfetch/internal/domain"
	"github.com/oceanroute/chartfetch/internal/port"
)

// rangedTransport serves content honoring Range headers, like a chart
// server that supports resumption.
func rangedTransport(content []byte) *fakeTransport {
	total := int64(len(content))
	return &fakeTransport{
		headFn: okHead(total),
		getFn: func(url, rangeHeader string) (*port.GetResponse, error) {
			if rangeHeader == "" {
				return bodyResponse(200, "", content), nil
			}
			var start int64
			if _, err := fmt.Sscanf(rangeHeader, "bytes=%d-", &start); err != nil {
				return nil, fmt.Errorf("bad range %q: %w", rangeHeader, err)
			}
			end := total - 1
			if rangeHeader == "bytes=0-0" {
				end = 0
			}
			return bodyResponse(206,
				fmt.Sprintf("bytes %d-%d/%d", start, end, total),
				content[start:end+1]), nil
		},
	}
}

func seedPartial(t *testing.T, h *harness, chartID string, data []byte) {
	t.Helper()
	if _, err := h.fs.CreatePartial(chartID, bytes.NewReader(data)); err != nil {
		t.Fatal(err)
	}
}

func TestResumeDownload_Append(t *testing.T) {
	content := []byte(strings.Repeat("chart-data", 20)) // 200 bytes
	transport := rangedTransport(content)
	h := newHarness(t, transport)

	// 80 bytes already on disk from an interrupted transfer.
	seedPartial(t, h, "US5WA50M", content[:80])

	res, err := h.fetcher.ResumeDownload(context.Background(), "US5WA50M", "http://charts.example/US5WA50M", Options{})
	if err != nil {
		t.Fatalf("ResumeDownload() error = %v", err)
	}

	if !res.Resumed {
		t.Error("Resumed = false, want true")
	}
	if res.ResumedFrom != 80 {
		t.Errorf("ResumedFrom = %d, want 80", res.ResumedFrom)
	}
	if res.BytesWritten != 200 {
		t.Errorf("BytesWritten = %d, want 200", res.BytesWritten)
	}

	// The final artifact is byte-identical to a fresh download.
	data, err := os.ReadFile(h.fs.ChartPath("US5WA50M"))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(data, content) {
		t.Error("appended file does not match the full content")
	}

	sum := sha256.Sum256(content)
	if res.SHA256 != hex.EncodeToString(sum[:]) {
		t.Errorf("SHA256 = %q, want hash of the complete content", res.SHA256)
	}

	// The probe asked for the first byte only, then the tail from 80.
	wantCalls := []string{"bytes=0-0", "bytes=80-"}
	if len(transport.getCalls) != 2 || transport.getCalls[0] != wantCalls[0] || transport.getCalls[1] != wantCalls[1] {
		t.Errorf("getCalls = %v, want %v", transport.getCalls, wantCalls)
	}

	snap := h.collector.Snapshot()
	if snap.SuccessCount != 1 {
		t.Errorf("SuccessCount = %d, want 1", snap.SuccessCount)
	}
}

func TestResumeDownload_NoPartialFile(t *testing.T) {
	h := newHarness(t, &fakeTransport{})

	_, err := h.fetcher.ResumeDownload(context.Background(), "US5WA50M", "http://charts.example/US5WA50M", Options{})
	if !errors.Is(err, domain.ErrNoPartialFile) {
		t.Errorf("error = %v, want ErrNoPartialFile", err)
	}
}

func TestResumeDownload_RangeUnsupportedRestarts(t *testing.T) {
	content := []byte(strings.Repeat("fresh-copy", 10)) // 100 bytes
	transport := &fakeTransport{
		headFn: okHead(int64(len(content))),
		getFn: func(url, rangeHeader string) (*port.GetResponse, error) {
			// Server ignores Range entirely and always sends the full body.
			return bodyResponse(200, "", content), nil
		},
	}
	h := newHarness(t, transport)

	// The stale partial holds different bytes; it must not leak into the
	// restarted download.
	seedPartial(t, h, "US5WA50M", []byte("stale-partial-bytes"))

	res, err := h.fetcher.ResumeDownload(context.Background(), "US5WA50M", "http://charts.example/US5WA50M", Options{})
	if err != nil {
		t.Fatalf("ResumeDownload() error = %v", err)
	}

	if res.Resumed {
		t.Error("Resumed = true after a forced restart, want false")
	}
	if res.BytesWritten != 100 {
		t.Errorf("BytesWritten = %d, want 100", res.BytesWritten)
	}

	data, err := os.ReadFile(h.fs.ChartPath("US5WA50M"))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(data, content) {
		t.Error("restarted download should contain only fresh bytes")
	}
}

func TestResumeDownload_AlreadyComplete(t *testing.T) {
	content := []byte(strings.Repeat("chart-data", 20)) // 200 bytes
	transport := rangedTransport(content)
	h := newHarness(t, transport)

	// Every byte already arrived before the previous transfer died.
	seedPartial(t, h, "US5WA50M", content)

	res, err := h.fetcher.ResumeDownload(context.Background(), "US5WA50M", "http://charts.example/US5WA50M", Options{})
	if err != nil {
		t.Fatalf("ResumeDownload() error = %v", err)
	}

	if !res.Resumed {
		t.Error("Resumed = false, want true")
	}
	if res.ResumedFrom != 200 {
		t.Errorf("ResumedFrom = %d, want 200", res.ResumedFrom)
	}

	// Only the probe went out; no append was needed.
	if len(transport.getCalls) != 1 || transport.getCalls[0] != "bytes=0-0" {
		t.Errorf("getCalls = %v, want just the range probe", transport.getCalls)
	}

	if _, err := os.Stat(h.fs.ChartPath("US5WA50M")); err != nil {
		t.Error("chart should be promoted to its final path")
	}
}

func TestResumeDownload_SizeMismatch(t *testing.T) {
	total := int64(200)
	transport := &fakeTransport{
		headFn: okHead(total),
		getFn: func(url, rangeHeader string) (*port.GetResponse, error) {
			if rangeHeader == "bytes=0-0" {
				return bodyResponse(206, fmt.Sprintf("bytes 0-0/%d", total), []byte("c")), nil
			}
			// The tail comes up 20 bytes short despite a clean EOF.
			return bodyResponse(206, fmt.Sprintf("bytes 80-199/%d", total),
				bytes.Repeat([]byte("y"), 100)), nil
		},
	}
	h := newHarness(t, transport)
	seedPartial(t, h, "US5WA50M", bytes.Repeat([]byte("x"), 80))

	_, err := h.fetcher.ResumeDownload(context.Background(), "US5WA50M", "http://charts.example/US5WA50M", Options{})
	if err == nil {
		t.Fatal("expected size-mismatch failure")
	}

	var se *domain.SizeMismatchError
	if !errors.As(err, &se) {
		t.Fatalf("error = %T (%v), want *domain.SizeMismatchError", err, err)
	}
	if se.Expected != 200 || se.Actual != 180 {
		t.Errorf("mismatch = (%d, %d), want (200, 180)", se.Expected, se.Actual)
	}

	snap := h.collector.Snapshot()
	if snap.FailureByCategory[domain.CategorySizeMismatch] != 1 {
		t.Errorf("size_mismatch failures = %d, want 1",
			snap.FailureByCategory[domain.CategorySizeMismatch])
	}
	// A confirmed mismatch is fatal, never retried.
	if snap.RetryCount != 0 {
		t.Errorf("RetryCount = %d, want 0", snap.RetryCount)
	}
}

func TestResumeDownload_AcceptsShrunkTotalOnReprobe(t *testing.T) {
	// The remote artifact was replaced mid-transfer with a smaller file.
	// The first probe said 200; after the append the re-probe agrees with
	// the accumulated 180 bytes, so the transfer is accepted.
	probes := 0
	transport := &fakeTransport{
		headFn: okHead(200),
		getFn: func(url, rangeHeader string) (*port.GetResponse, error) {
			if rangeHeader == "bytes=0-0" {
				probes++
				if probes == 1 {
					return bodyResponse(206, "bytes 0-0/200", []byte("c")), nil
				}
				return bodyResponse(206, "bytes 0-0/180", []byte("c")), nil
			}
			return bodyResponse(206, "bytes 80-179/200",
				bytes.Repeat([]byte("y"), 100)), nil
		},
	}
	h := newHarness(t, transport)
	seedPartial(t, h, "US5WA50M", bytes.Repeat([]byte("x"), 80))

	res, err := h.fetcher.ResumeDownload(context.Background(), "US5WA50M", "http://charts.example/US5WA50M", Options{})
	if err != nil {
		t.Fatalf("ResumeDownload() error = %v", err)
	}
	if res.BytesWritten != 180 {
		t.Errorf("BytesWritten = %d, want 180", res.BytesWritten)
	}
	if probes != 2 {
		t.Errorf("probes = %d, want 2", probes)
	}
}
