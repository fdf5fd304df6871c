package ports

import "context"

// SubtitleResult reports the outcome of a subtitle fetch. Failure never
// affects the stream; it is logged and dropped.
type SubtitleResult struct {
	Success bool
	Paths   []string
	Err     error
}

// SubtitleFetcher locates subtitles for the selected media file and writes
// them into destFolder so the media server's directory scan picks them up.
type SubtitleFetcher interface {
	Fetch(ctx context.Context, query, fileName, destFolder string) SubtitleResult
}
