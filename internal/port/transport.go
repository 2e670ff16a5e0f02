package port

import (
	"context"
	"io"
)

// HeadInfo is the result of a HEAD request.
type HeadInfo struct {
	StatusCode    int
	ContentLength int64 // -1 when the server did not report one
	AcceptsRanges bool
	ETag          string
}

// GetResponse is the result of a GET request. Body must be closed by the
// caller.
type GetResponse struct {
	StatusCode    int
	ContentLength int64
	ContentRange  string // raw Content-Range header, empty if absent
	Body          io.ReadCloser
}

// ProgressFunc receives (bytesReceivedSoFar, totalBytes) as a transfer
// advances. total is 0 when unknown. Calls for one transfer are delivered
// in non-decreasing byte order.
type ProgressFunc func(received, total int64)

// Transport issues the HTTP operations the download orchestrator needs.
// Implementations must honor context cancellation on every call.
type Transport interface {
	// Head fetches metadata for url without transferring the body.
	Head(ctx context.Context, url string) (*HeadInfo, error)

	// Get issues a GET for url. rangeHeader, when non-empty, is sent
	// verbatim as the Range header (e.g. "bytes=80-").
	Get(ctx context.Context, url, rangeHeader string) (*GetResponse, error)

	// DownloadFile streams the full body of url to destPath, reporting
	// progress through onProgress (which may be nil).
	DownloadFile(ctx context.Context, url, destPath string, onProgress ProgressFunc) (int64, error)
}
