package httptransport

import (
	"io"

	"github.com/oceanroute/chartfetch/internal/port"
)

// ProgressReader wraps a reader and reports cumulative byte counts through
// a port.ProgressFunc. Reported counts never decrease, and when the total
// is known they are capped at it, so overlapping resumed writes cannot
// push the normalized fraction past 1.0.
type ProgressReader struct {
	r          io.Reader
	total      int64
	received   int64
	onProgress port.ProgressFunc
}

// NewProgressReader creates a ProgressReader starting at zero received
// bytes. total may be 0 or negative when unknown.
func NewProgressReader(r io.Reader, total int64, onProgress port.ProgressFunc) *ProgressReader {
	return NewProgressReaderAt(r, 0, total, onProgress)
}

// NewProgressReaderAt creates a ProgressReader whose count starts at
// offset, for transfers resumed mid-file.
func NewProgressReaderAt(r io.Reader, offset, total int64, onProgress port.ProgressFunc) *ProgressReader {
	if total < 0 {
		total = 0
	}
	return &ProgressReader{
		r:          r,
		total:      total,
		received:   offset,
		onProgress: onProgress,
	}
}

func (p *ProgressReader) Read(buf []byte) (int, error) {
	n, err := p.r.Read(buf)
	if n > 0 {
		p.received += int64(n)
		if p.onProgress != nil {
			reported := p.received
			if p.total > 0 && reported > p.total {
				reported = p.total
			}
			p.onProgress(reported, p.total)
		}
	}
	return n, err
}

// Received returns the cumulative byte count, including any resume offset.
func (p *ProgressReader) Received() int64 {
	return p.received
}
