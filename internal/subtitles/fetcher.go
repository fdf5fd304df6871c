package subtitles

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"magnetcast/internal/domain/ports"
	"magnetcast/internal/metrics"
)

// SearchResult is one entry returned by the external subtitle index.
type SearchResult struct {
	Name        string `json:"name"`
	Language    string `json:"language"`
	DownloadURL string `json:"downloadUrl"`
}

// Arbiter picks the best-matching subtitle from an ambiguous result list.
// A nil arbiter or any arbiter error falls back to the first result.
type Arbiter interface {
	PickSubtitle(ctx context.Context, results []SearchResult, query, fileName string) (int, error)
}

type Config struct {
	IndexURL string
	APIKey   string
	Language string
	Timeout  time.Duration
}

// Fetcher searches an external subtitle index, downloads the chosen
// subtitles into the session's media folder and normalizes their names so
// the media server's directory scan picks them up.
type Fetcher struct {
	cfg     Config
	httpc   *http.Client
	arbiter Arbiter
	logger  *slog.Logger
}

func NewFetcher(cfg Config, arbiter Arbiter, logger *slog.Logger) *Fetcher {
	if cfg.Language == "" {
		cfg.Language = "en"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{
		cfg:     cfg,
		httpc:   &http.Client{Timeout: cfg.Timeout},
		arbiter: arbiter,
		logger:  logger,
	}
}

// Fetch runs the full search → disambiguate → download → normalize pipeline.
// It never fails the stream: every error is reported in the result and logged
// by the caller.
func (f *Fetcher) Fetch(ctx context.Context, query, fileName, destFolder string) ports.SubtitleResult {
	if f.cfg.IndexURL == "" {
		return ports.SubtitleResult{Success: false, Err: errors.New("subtitle index not configured")}
	}

	results, err := f.search(ctx, query)
	if err != nil {
		metrics.SubtitleFetches.WithLabelValues("search_error").Inc()
		return ports.SubtitleResult{Success: false, Err: fmt.Errorf("subtitle search: %w", err)}
	}
	if len(results) == 0 {
		metrics.SubtitleFetches.WithLabelValues("no_results").Inc()
		return ports.SubtitleResult{Success: false, Err: errors.New("no subtitles found")}
	}

	pick := 0
	if len(results) > 1 && f.arbiter != nil {
		if idx, err := f.arbiter.PickSubtitle(ctx, results, query, fileName); err == nil && idx >= 0 && idx < len(results) {
			pick = idx
		} else if err != nil {
			f.logger.Debug("subtitle arbiter failed, using first result", slog.String("error", err.Error()))
		}
	}

	path, err := f.download(ctx, results[pick], fileName, destFolder)
	if err != nil {
		metrics.SubtitleFetches.WithLabelValues("download_error").Inc()
		return ports.SubtitleResult{Success: false, Err: fmt.Errorf("subtitle download: %w", err)}
	}

	metrics.SubtitleFetches.WithLabelValues("ok").Inc()
	return ports.SubtitleResult{Success: true, Paths: []string{path}}
}

func (f *Fetcher) search(ctx context.Context, query string) ([]SearchResult, error) {
	endpoint := strings.TrimSuffix(f.cfg.IndexURL, "/") + "/search"
	values := url.Values{}
	values.Set("query", query)
	values.Set("language", f.cfg.Language)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+values.Encode(), nil)
	if err != nil {
		return nil, err
	}
	if f.cfg.APIKey != "" {
		req.Header.Set("Api-Key", f.cfg.APIKey)
	}

	resp, err := f.httpc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("subtitle index returned %d", resp.StatusCode)
	}

	var results []SearchResult
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4<<20)).Decode(&results); err != nil {
		return nil, err
	}
	return results, nil
}

// download writes the subtitle next to the media file, named
// "<media base>.<language>.srt" so players associate it automatically.
func (f *Fetcher) download(ctx context.Context, result SearchResult, mediaFileName, destFolder string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, result.DownloadURL, nil)
	if err != nil {
		return "", err
	}
	if f.cfg.APIKey != "" {
		req.Header.Set("Api-Key", f.cfg.APIKey)
	}

	resp, err := f.httpc.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("subtitle download returned %d", resp.StatusCode)
	}

	lang := result.Language
	if lang == "" {
		lang = f.cfg.Language
	}
	base := strings.TrimSuffix(mediaFileName, filepath.Ext(mediaFileName))
	target := filepath.Join(destFolder, fmt.Sprintf("%s.%s.srt", base, lang))

	if err := os.MkdirAll(destFolder, 0o755); err != nil {
		return "", err
	}
	out, err := os.Create(target)
	if err != nil {
		return "", err
	}
	defer out.Close()

	if _, err := io.Copy(out, io.LimitReader(resp.Body, 8<<20)); err != nil {
		os.Remove(target)
		return "", err
	}
	return target, nil
}
