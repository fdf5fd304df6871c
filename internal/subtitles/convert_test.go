package subtitles

import (
	"strings"
	"testing"
)

func TestConvertSRTToVTT(t *testing.T) {
	srt := "1\r\n" +
		"00:00:01,000 --> 00:00:04,500\r\n" +
		"Hello there.\r\n" +
		"\r\n" +
		"2\r\n" +
		"00:00:05,250 --> 00:00:07,000\r\n" +
		"Line two,\r\n" +
		"with a comma.\r\n"

	var out strings.Builder
	if err := ConvertSRTToVTT(strings.NewReader(srt), &out); err != nil {
		t.Fatalf("convert failed: %v", err)
	}

	got := out.String()
	if !strings.HasPrefix(got, "WEBVTT\n\n") {
		t.Fatalf("missing WEBVTT header, got %q", got)
	}
	if strings.Contains(got, "00:00:01,000") {
		t.Fatal("timecode comma not converted to period")
	}
	if !strings.Contains(got, "00:00:01.000 --> 00:00:04.500") {
		t.Fatalf("converted timecode missing, got %q", got)
	}
	// Cue counter lines are dropped, cue text is kept verbatim.
	for _, line := range strings.Split(got, "\n") {
		if line == "1" || line == "2" {
			t.Fatalf("cue index line survived conversion: %q", got)
		}
	}
	if !strings.Contains(got, "with a comma.") {
		t.Fatal("cue text comma must not be rewritten")
	}
}

func TestConvertSRTToVTTEmptyInput(t *testing.T) {
	var out strings.Builder
	if err := ConvertSRTToVTT(strings.NewReader(""), &out); err != nil {
		t.Fatalf("convert failed: %v", err)
	}
	if out.String() != "WEBVTT\n\n" {
		t.Fatalf("expected bare header, got %q", out.String())
	}
}

func TestDetectLanguage(t *testing.T) {
	cases := []struct {
		name string
		want string
	}{
		{"Movie.en.srt", "en"},
		{"Movie.pt-BR.srt", "pt"},
		{"Movie.EN.srt", "en"},
		{"Movie.srt", ""},
		{"Show.S01E01.1080p.srt", ""},
		{"noextension", ""},
	}
	for _, tc := range cases {
		if got := DetectLanguage(tc.name); got != tc.want {
			t.Errorf("DetectLanguage(%q) = %q, want %q", tc.name, got, tc.want)
		}
	}
}
