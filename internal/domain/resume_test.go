package domain

import "testing"

func TestResumeData_Fraction(t *testing.T) {
	tests := []struct {
		name       string
		downloaded int64
		total      int64
		want       float64
	}{
		{name: "unknown total", downloaded: 80, total: 0, want: 0},
		{name: "partway", downloaded: 80, total: 200, want: 0.4},
		{name: "complete", downloaded: 200, total: 200, want: 1},
		{name: "overlapping resume capped", downloaded: 220, total: 200, want: 1},
		{name: "nothing yet", downloaded: 0, total: 200, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rd := &ResumeData{DownloadedBytes: tt.downloaded, TotalBytes: tt.total}
			if got := rd.Fraction(); got != tt.want {
				t.Errorf("Fraction() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestResumeData_Complete(t *testing.T) {
	tests := []struct {
		name       string
		downloaded int64
		total      int64
		want       bool
	}{
		{name: "unknown total is never complete", downloaded: 200, total: 0, want: false},
		{name: "partway", downloaded: 80, total: 200, want: false},
		{name: "exact", downloaded: 200, total: 200, want: true},
		{name: "over", downloaded: 210, total: 200, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rd := &ResumeData{DownloadedBytes: tt.downloaded, TotalBytes: tt.total}
			if got := rd.Complete(); got != tt.want {
				t.Errorf("Complete() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRangeSupport_String(t *testing.T) {
	tests := []struct {
		rs   RangeSupport
		want string
	}{
		{RangeUnknown, "unknown"},
		{RangeSupported, "supported"},
		{RangeUnsupported, "unsupported"},
		{RangeSupport(42), "unknown"},
	}

	for _, tt := range tests {
		if got := tt.rs.String(); got != tt.want {
			t.Errorf("RangeSupport(%d).String() = %q, want %q", tt.rs, got, tt.want)
		}
	}
}
