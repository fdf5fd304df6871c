package apihttp

import "testing"

func TestParseByteRange(t *testing.T) {
	const size = 1000

	cases := []struct {
		name    string
		header  string
		start   int64
		end     int64
		wantErr bool
	}{
		{"simple span", "bytes=100-199", 100, 199, false},
		{"open ended", "bytes=500-", 500, 999, false},
		{"from zero", "bytes=0-0", 0, 0, false},
		{"end clamped to size", "bytes=900-5000", 900, 999, false},
		{"whitespace tolerated", " bytes=10-20 ", 10, 20, false},
		{"start at EOF", "bytes=1000-", 0, 0, true},
		{"start beyond EOF", "bytes=2000-2100", 0, 0, true},
		{"end before start", "bytes=200-100", 0, 0, true},
		{"negative start", "bytes=-100-", 0, 0, true},
		{"suffix form rejected", "bytes=-500", 0, 0, true},
		{"missing unit", "100-200", 0, 0, true},
		{"wrong unit", "items=0-10", 0, 0, true},
		{"multiple ranges", "bytes=0-10,20-30", 0, 0, true},
		{"empty spec", "bytes=", 0, 0, true},
		{"garbage", "bytes=abc-def", 0, 0, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			start, end, err := parseByteRange(tc.header, size)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("parseByteRange(%q) expected error, got %d-%d", tc.header, start, end)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseByteRange(%q) unexpected error: %v", tc.header, err)
			}
			if start != tc.start || end != tc.end {
				t.Fatalf("parseByteRange(%q) = %d-%d, want %d-%d", tc.header, start, end, tc.start, tc.end)
			}
		})
	}
}

func TestParseByteRangeZeroSize(t *testing.T) {
	if _, _, err := parseByteRange("bytes=0-", 0); err == nil {
		t.Fatal("expected error for zero-length file")
	}
}

func TestFallbackContentType(t *testing.T) {
	cases := map[string]string{
		".mp4":  "video/mp4",
		".m4v":  "video/mp4",
		".MKV":  "video/x-matroska",
		".webm": "video/webm",
		".avi":  "video/x-msvideo",
		".mov":  "video/quicktime",
		".xyz":  "video/mp4",
		"":      "video/mp4",
	}
	for ext, want := range cases {
		if got := fallbackContentType(ext); got != want {
			t.Errorf("fallbackContentType(%q) = %q, want %q", ext, got, want)
		}
	}
}
