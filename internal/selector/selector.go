package selector

import (
	"context"
	"log/slog"
	"sort"

	"magnetcast/internal/domain"
	"magnetcast/internal/metrics"
)

// Candidate is one entry in the indexed list handed to the arbiter.
type Candidate struct {
	Index int    `json:"index"`
	Name  string `json:"name"`
	Size  string `json:"size"`
}

// Arbiter resolves ambiguous file sets against a free-text query. It returns
// the candidate indexes that match the query's intent, or an empty slice when
// nothing matches.
type Arbiter interface {
	PickFiles(ctx context.Context, candidates []Candidate, query string) ([]int, error)
}

// Selector picks the playable file(s) from a torrent's file list. Selection
// never fails: every error path degrades to a deterministic fallback.
type Selector struct {
	Arbiter Arbiter
	Logger  *slog.Logger
}

func New(arbiter Arbiter, logger *slog.Logger) *Selector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Selector{Arbiter: arbiter, Logger: logger}
}

func (s *Selector) Select(ctx context.Context, files []domain.FileRef, query string) domain.SelectedFileSet {
	var videos, subs []domain.FileRef
	for _, f := range files {
		switch {
		case f.IsVideo():
			videos = append(videos, f)
		case f.IsSubtitle():
			subs = append(subs, f)
		}
	}

	// Fast path: a single video file needs no arbitration.
	if len(videos) == 1 {
		return domain.SelectedFileSet{Video: videos, Subtitles: subs}
	}

	// A torrent with no recognizable video file may simply be mislabeled;
	// the largest file across everything is the best guess.
	if len(videos) == 0 {
		if largest, ok := largestFile(files); ok {
			return domain.SelectedFileSet{Video: []domain.FileRef{largest}}
		}
		return domain.SelectedFileSet{}
	}

	if s.Arbiter == nil {
		return s.fallback(videos, subs, "no arbiter configured")
	}

	candidates := make([]Candidate, 0, len(videos)+len(subs))
	pool := append(append([]domain.FileRef(nil), videos...), subs...)
	for i, f := range pool {
		candidates = append(candidates, Candidate{Index: i, Name: f.Name(), Size: f.HumanSize()})
	}

	metrics.SelectorArbiterCalls.Inc()
	indexes, err := s.Arbiter.PickFiles(ctx, candidates, query)
	if err != nil {
		return s.fallback(videos, subs, err.Error())
	}

	var pickedVideos, pickedSubs []domain.FileRef
	for _, idx := range indexes {
		if idx < 0 || idx >= len(pool) {
			continue
		}
		f := pool[idx]
		if f.IsVideo() {
			pickedVideos = append(pickedVideos, f)
		} else {
			pickedSubs = append(pickedSubs, f)
		}
	}

	// A response with no usable video selection must not leave the user
	// with nothing playable.
	if len(pickedVideos) == 0 {
		return s.fallback(videos, subs, "arbiter returned no video selection")
	}

	return domain.SelectedFileSet{Video: pickedVideos, Subtitles: pickedSubs}
}

// fallback returns the largest video file plus all discovered subtitles.
func (s *Selector) fallback(videos, subs []domain.FileRef, reason string) domain.SelectedFileSet {
	metrics.SelectorFallbacks.Inc()
	s.Logger.Warn("file selection fell back to largest video file", slog.String("reason", reason))
	largest, _ := largestFile(videos)
	return domain.SelectedFileSet{Video: []domain.FileRef{largest}, Subtitles: subs}
}

func largestFile(files []domain.FileRef) (domain.FileRef, bool) {
	if len(files) == 0 {
		return domain.FileRef{}, false
	}
	sorted := append([]domain.FileRef(nil), files...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Length > sorted[j].Length })
	return sorted[0], true
}
