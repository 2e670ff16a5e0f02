// Package httptransport implements port.Transport on net/http, tuned for
// large chart transfers over degraded long-haul links.
package httptransport

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/oceanroute/chartfetch/internal/domain"
	"github.com/oceanroute/chartfetch/internal/port"
)

// Config configures the transport client.
type Config struct {
	// ConnectTimeout bounds TCP dial time. Default: 30s.
	ConnectTimeout time.Duration

	// ReceiveTimeout bounds an entire response, headers through body.
	// Default: 10m, sized for multi-hundred-megabyte ENC cells on slow links.
	ReceiveTimeout time.Duration

	// SendTimeout bounds request write time. Default: 5m.
	SendTimeout time.Duration

	// RequestsPerSecond enables token-bucket throttling of outbound
	// requests when positive. Default: 0 (disabled).
	RequestsPerSecond int

	// Burst is the throttle burst size. Default: 1.
	Burst int

	// MaxIdleConnsPerHost sets the idle connection pool size. Default: 16.
	MaxIdleConnsPerHost int
}

// DefaultConfig returns transport defaults for degraded links.
func DefaultConfig() Config {
	return Config{
		ConnectTimeout:      30 * time.Second,
		ReceiveTimeout:      10 * time.Minute,
		SendTimeout:         5 * time.Minute,
		MaxIdleConnsPerHost: 16,
	}
}

// Client implements port.Transport.
type Client struct {
	client *http.Client
	config Config
}

// Ensure Client implements port.Transport
var _ port.Transport = (*Client)(nil)

// NewClient creates a transport client with the given configuration.
func NewClient(cfg Config) *Client {
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = 30 * time.Second
	}
	if cfg.ReceiveTimeout == 0 {
		cfg.ReceiveTimeout = 10 * time.Minute
	}
	if cfg.SendTimeout == 0 {
		cfg.SendTimeout = 5 * time.Minute
	}
	if cfg.MaxIdleConnsPerHost == 0 {
		cfg.MaxIdleConnsPerHost = 16
	}
	if cfg.Burst == 0 {
		cfg.Burst = 1
	}

	var rt http.RoundTripper = &http.Transport{
		DialContext: (&net.Dialer{
			Timeout: cfg.ConnectTimeout,
		}).DialContext,
		// Headers can be slow to arrive on degraded long-haul links;
		// budget them like a receive, not like a dial.
		ResponseHeaderTimeout: cfg.ReceiveTimeout,
		ExpectContinueTimeout: cfg.SendTimeout,
		MaxIdleConnsPerHost:   cfg.MaxIdleConnsPerHost,
		MaxIdleConns:          cfg.MaxIdleConnsPerHost * 2,
		IdleConnTimeout:       90 * time.Second,
		DisableCompression:    true, // raw bytes, ranges must line up
	}

	if cfg.RequestsPerSecond > 0 {
		rt = newThrottle(cfg.RequestsPerSecond, cfg.Burst, rt)
	}

	return &Client{
		client: &http.Client{Transport: rt},
		config: cfg,
	}
}

// Head fetches metadata for url without transferring the body. Bounded
// by the receive timeout: there is no body, but the headers ride the
// same slow link the body would.
func (c *Client) Head(ctx context.Context, url string) (*port.HeadInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, c.config.ReceiveTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &domain.NetworkError{Op: "HEAD", URL: url, Err: err}
	}
	resp.Body.Close()

	if resp.StatusCode >= 500 {
		return nil, &domain.NetworkError{Op: "HEAD", URL: url,
			Err: fmt.Errorf("server error: %s", resp.Status)}
	}

	return &port.HeadInfo{
		StatusCode:    resp.StatusCode,
		ContentLength: resp.ContentLength,
		AcceptsRanges: resp.Header.Get("Accept-Ranges") == "bytes",
		ETag:          cleanETag(resp.Header.Get("ETag")),
	}, nil
}

// Get issues a GET for url, with rangeHeader sent verbatim when non-empty.
// The response body carries the receive deadline: closing it releases the
// timer.
func (c *Client) Get(ctx context.Context, url, rangeHeader string) (*port.GetResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.config.ReceiveTimeout)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("create request: %w", err)
	}
	if rangeHeader != "" {
		req.Header.Set("Range", rangeHeader)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		cancel()
		return nil, &domain.NetworkError{Op: "GET", URL: url, Err: err}
	}

	if resp.StatusCode >= 500 {
		resp.Body.Close()
		cancel()
		return nil, &domain.NetworkError{Op: "GET", URL: url,
			Err: fmt.Errorf("server error: %s", resp.Status)}
	}

	return &port.GetResponse{
		StatusCode:    resp.StatusCode,
		ContentLength: resp.ContentLength,
		ContentRange:  resp.Header.Get("Content-Range"),
		Body:          &cancelReadCloser{rc: resp.Body, cancel: cancel},
	}, nil
}

// DownloadFile streams the full body of url to destPath.
func (c *Client) DownloadFile(ctx context.Context, url, destPath string, onProgress port.ProgressFunc) (int64, error) {
	resp, err := c.Get(ctx, url, "")
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	f, err := os.Create(destPath)
	if err != nil {
		return 0, fmt.Errorf("create %s: %w", destPath, err)
	}

	reader := NewProgressReader(resp.Body, resp.ContentLength, onProgress)
	written, copyErr := io.Copy(f, reader)

	if err := f.Close(); err != nil && copyErr == nil {
		return written, fmt.Errorf("close %s: %w", destPath, err)
	}
	if copyErr != nil {
		return written, &domain.NetworkError{Op: "GET", URL: url, Err: copyErr}
	}
	return written, nil
}

// cancelReadCloser ties a context cancel func to body lifetime.
type cancelReadCloser struct {
	rc     io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelReadCloser) Read(p []byte) (int, error) { return c.rc.Read(p) }

func (c *cancelReadCloser) Close() error {
	err := c.rc.Close()
	c.cancel()
	return err
}

// cleanETag removes quotes and the weak-validator prefix from an ETag.
func cleanETag(etag string) string {
	etag = strings.TrimPrefix(etag, "W/")
	return strings.Trim(etag, `"`)
}

// ParseContentRange parses a Content-Range header value.
// Returns start, end, total bytes. Total may be -1 if unknown.
func ParseContentRange(header string) (start, end, total int64, err error) {
	// Format: bytes start-end/total or bytes start-end/*
	header = strings.TrimPrefix(header, "bytes ")
	parts := strings.Split(header, "/")
	if len(parts) != 2 {
		return 0, 0, 0, fmt.Errorf("invalid Content-Range format: %s", header)
	}

	rangeParts := strings.Split(parts[0], "-")
	if len(rangeParts) != 2 {
		return 0, 0, 0, fmt.Errorf("invalid Content-Range format: %s", header)
	}

	start, err = strconv.ParseInt(rangeParts[0], 10, 64)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("invalid start byte: %w", err)
	}

	end, err = strconv.ParseInt(rangeParts[1], 10, 64)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("invalid end byte: %w", err)
	}

	if parts[1] == "*" {
		total = -1
	} else {
		total, err = strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			return 0, 0, 0, fmt.Errorf("invalid total bytes: %w", err)
		}
	}

	return start, end, total, nil
}
