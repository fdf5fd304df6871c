package domain

import "testing"

func TestFileRefClassification(t *testing.T) {
	cases := []struct {
		path     string
		video    bool
		subtitle bool
	}{
		{"Show/episode.mkv", true, false},
		{"Show/episode.MP4", true, false},
		{"movie.webm", true, false},
		{"Show/episode.en.srt", false, true},
		{"Show/episode.ASS", false, true},
		{"sample.txt", false, false},
		{"archive.r01", false, false},
		{"noextension", false, false},
	}
	for _, tc := range cases {
		f := FileRef{Path: tc.path}
		if got := f.IsVideo(); got != tc.video {
			t.Errorf("IsVideo(%q) = %v, want %v", tc.path, got, tc.video)
		}
		if got := f.IsSubtitle(); got != tc.subtitle {
			t.Errorf("IsSubtitle(%q) = %v, want %v", tc.path, got, tc.subtitle)
		}
	}
}

func TestFileRefNameAndExt(t *testing.T) {
	f := FileRef{Path: "Show Name/Season 1/Episode.S01E02.MKV"}
	if f.Name() != "Episode.S01E02.MKV" {
		t.Errorf("Name() = %q", f.Name())
	}
	if f.Ext() != "mkv" {
		t.Errorf("Ext() = %q", f.Ext())
	}
}

func TestHumanSize(t *testing.T) {
	cases := []struct {
		length int64
		want   string
	}{
		{512, "512 B"},
		{2048, "2.0 KB"},
		{5 << 20, "5.0 MB"},
		{1468006400, "1.4 GB"},
	}
	for _, tc := range cases {
		f := FileRef{Length: tc.length}
		if got := f.HumanSize(); got != tc.want {
			t.Errorf("HumanSize(%d) = %q, want %q", tc.length, got, tc.want)
		}
	}
}

func TestSelectedFileSetPrimary(t *testing.T) {
	set := SelectedFileSet{Video: []FileRef{{Index: 3, Path: "a.mkv"}, {Index: 5, Path: "b.mkv"}}}
	if got := set.Primary(); got.Index != 3 {
		t.Errorf("Primary().Index = %d, want 3", got.Index)
	}
	if got := (SelectedFileSet{}).Primary(); got.Path != "" || got.Length != 0 {
		t.Errorf("empty set Primary() = %+v, want zero value", got)
	}
}

func TestPhaseTransitions(t *testing.T) {
	allowed := []struct{ from, to Phase }{
		{PhaseOpening, PhaseSelecting},
		{PhaseSelecting, PhaseStreaming},
		{PhaseStreaming, PhaseComplete},
		{PhaseComplete, PhaseIdlePending},
		{PhaseIdlePending, PhaseComplete},
		{PhaseStreaming, PhaseTerminated},
		{PhaseIdlePending, PhaseTerminated},
	}
	for _, tc := range allowed {
		if !CanTransition(tc.from, tc.to) {
			t.Errorf("CanTransition(%s, %s) = false, want true", tc.from, tc.to)
		}
	}

	rejected := []struct{ from, to Phase }{
		{PhaseOpening, PhaseStreaming},
		{PhaseComplete, PhaseStreaming},
		{PhaseTerminated, PhaseStreaming},
		{PhaseTerminated, PhaseTerminated},
		{PhaseStreaming, PhaseOpening},
	}
	for _, tc := range rejected {
		if CanTransition(tc.from, tc.to) {
			t.Errorf("CanTransition(%s, %s) = true, want false", tc.from, tc.to)
		}
	}
}
