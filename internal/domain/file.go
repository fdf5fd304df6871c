package domain

import (
	"fmt"
	"path"
	"strings"
)

type FileRef struct {
	Index          int    `json:"index"`
	Path           string `json:"path"`
	Length         int64  `json:"length"`
	BytesCompleted int64  `json:"bytesCompleted"`
}

// Name returns the base name of the file inside the torrent.
func (f FileRef) Name() string {
	return path.Base(f.Path)
}

// Ext returns the lower-cased file extension without the leading dot.
func (f FileRef) Ext() string {
	return strings.TrimPrefix(strings.ToLower(path.Ext(f.Path)), ".")
}

// HumanSize renders the file length the way it is presented to the
// selection arbiter, e.g. "1.4 GB".
func (f FileRef) HumanSize() string {
	const unit = 1024
	size := f.Length
	if size < unit {
		return fmt.Sprintf("%d B", size)
	}
	div, exp := int64(unit), 0
	for n := size / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(size)/float64(div), "KMGTPE"[exp])
}

var videoExtensions = map[string]struct{}{
	"mp4": {}, "mkv": {}, "avi": {}, "webm": {}, "mov": {}, "m4v": {},
}

var subtitleExtensions = map[string]struct{}{
	"srt": {}, "sub": {}, "ass": {}, "ssa": {}, "vtt": {},
}

// IsVideo reports whether the file carries a recognized video extension.
// Matching is case-insensitive; files with no recognized extension belong
// to neither set.
func (f FileRef) IsVideo() bool {
	_, ok := videoExtensions[f.Ext()]
	return ok
}

// IsSubtitle reports whether the file carries a recognized subtitle extension.
func (f FileRef) IsSubtitle() bool {
	_, ok := subtitleExtensions[f.Ext()]
	return ok
}

// SelectedFileSet is the outcome of file selection for a torrent.
// Video is never empty when the torrent contains at least one recognizable
// video file; the largest-file fallback guarantees it.
type SelectedFileSet struct {
	Video     []FileRef `json:"video"`
	Subtitles []FileRef `json:"subtitles,omitempty"`
}

// Primary returns the file served by the media endpoint. Streaming uses
// exactly one playable file even when the selector returned several.
func (s SelectedFileSet) Primary() FileRef {
	if len(s.Video) == 0 {
		return FileRef{}
	}
	return s.Video[0]
}
