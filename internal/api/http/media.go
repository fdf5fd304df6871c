package apihttp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"syscall"

	"magnetcast/internal/domain"
	"magnetcast/internal/domain/ports"
	"magnetcast/internal/subtitles"
)

// streamReadahead is how far ahead of the playback position the swarm is
// asked to buffer per request reader.
const streamReadahead = 4 << 20

// MediaBackend is the active stream session as seen by the media server.
// Connection accounting calls are strictly paired per request.
type MediaBackend interface {
	FileName() string
	FileLength() int64
	MediaFolder() string
	NewReader() (ports.StreamReader, error)
	ConnOpened()
	ConnClosed()
	// TriggerSubtitles starts the async subtitle fetch. The media server
	// guarantees at most one call per session.
	TriggerSubtitles()
}

// MediaServer serves the player page, the ranged video endpoint and the
// subtitle index for one stream session. It binds its own listener so the
// session can be reached on a port separate from the control API.
type MediaServer struct {
	backend  MediaBackend
	logger   *slog.Logger
	srv      *http.Server
	listener net.Listener
	subOnce  sync.Once
}

func NewMediaServer(backend MediaBackend, logger *slog.Logger) *MediaServer {
	if logger == nil {
		logger = slog.Default()
	}
	s := &MediaServer{backend: backend, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/video", s.handleVideo)
	mux.HandleFunc("/subtitles", s.handleSubtitleIndex)
	mux.HandleFunc("/subtitles/", s.handleSubtitleFile)

	handler := recoveryMiddleware(logger, loggingMiddleware(logger, corsMiddleware(s.trackConnections(mux))))
	s.srv = &http.Server{Handler: handler}
	return s
}

// Start binds addr and begins serving in the background.
func (s *MediaServer) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("media server listen: %w", err)
	}
	s.listener = ln
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("media server stopped", slog.String("error", err.Error()))
		}
	}()
	s.logger.Info("media server listening", slog.String("addr", ln.Addr().String()))
	return nil
}

// Addr returns the bound listen address, empty before Start.
func (s *MediaServer) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Close stops the listener immediately. In-flight responses are allowed to
// error out rather than being drained; players reconnect on their own.
func (s *MediaServer) Close() error {
	err := s.srv.Close()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// trackConnections pairs one increment and one decrement around every
// request, covering error and abort paths through the deferred call.
func (s *MediaServer) trackConnections(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.backend.ConnOpened()
		defer s.backend.ConnClosed()
		next.ServeHTTP(w, r)
	})
}

func (s *MediaServer) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	s.subOnce.Do(func() {
		go s.backend.TriggerSubtitles()
	})
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, playerHTML)
}

func (s *MediaServer) handleVideo(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "use GET")
		return
	}

	size := s.backend.FileLength()
	if size <= 0 {
		writeError(w, http.StatusInternalServerError, "internal_error", "file length unknown")
		return
	}

	start, end := int64(0), size-1
	status := http.StatusOK
	if rangeHeader := r.Header.Get("Range"); rangeHeader != "" {
		if rs, re, err := parseByteRange(rangeHeader, size); err == nil {
			start, end = rs, re
			status = http.StatusPartialContent
		}
		// An unparsable or unsatisfiable Range falls through to the
		// whole-file response.
	}
	length := end - start + 1

	reader, err := s.backend.NewReader()
	if err != nil {
		s.logger.Error("open stream reader failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "internal_error", "stream unavailable")
		return
	}
	defer reader.Close()
	reader.SetContext(r.Context())
	reader.SetReadahead(streamReadahead)

	if _, err := reader.Seek(start, io.SeekStart); err != nil {
		s.logger.Error("stream seek failed", slog.Int64("offset", start), slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "internal_error", "stream unavailable")
		return
	}

	w.Header().Set("Accept-Ranges", "bytes")
	w.Header().Set("Content-Type", fallbackContentType(filepath.Ext(s.backend.FileName())))
	w.Header().Set("Content-Length", strconv.FormatInt(length, 10))
	// Some players want Content-Range even on a full-file 200.
	w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, size))
	w.WriteHeader(status)

	if r.Method == http.MethodHead {
		return
	}

	if _, err := io.CopyN(w, reader, length); err != nil {
		if isClientDisconnect(err) {
			s.logger.Debug("client disconnected mid stream",
				slog.Int64("start", start), slog.Int64("end", end))
			return
		}
		s.logger.Error("stream copy failed",
			slog.Int64("start", start), slog.Int64("end", end),
			slog.String("error", err.Error()))
	}
}

type subtitleEntry struct {
	FileName string `json:"fileName"`
	URL      string `json:"url"`
	Language string `json:"language"`
	Label    string `json:"label"`
}

// handleSubtitleIndex rescans the media folder on every call. The fetch is
// asynchronous, so subtitles may land after the page has already loaded.
func (s *MediaServer) handleSubtitleIndex(w http.ResponseWriter, r *http.Request) {
	folder := s.backend.MediaFolder()
	out := []subtitleEntry{}
	entries, err := os.ReadDir(folder)
	if err != nil {
		writeJSON(w, http.StatusOK, out)
		return
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ref := domain.FileRef{Path: entry.Name()}
		if !ref.IsSubtitle() {
			continue
		}
		lang := subtitles.DetectLanguage(entry.Name())
		out = append(out, subtitleEntry{
			FileName: entry.Name(),
			URL:      "/subtitles/" + entry.Name(),
			Language: lang,
			Label:    languageLabel(lang),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FileName < out[j].FileName })
	writeJSON(w, http.StatusOK, out)
}

// handleSubtitleFile serves one subtitle, converting SRT to WebVTT on the fly.
func (s *MediaServer) handleSubtitleFile(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(r.URL.Path, "/subtitles/")
	if name == "" || strings.ContainsAny(name, "/\\") || strings.Contains(name, "..") {
		http.NotFound(w, r)
		return
	}

	path := filepath.Join(s.backend.MediaFolder(), name)
	file, err := os.Open(path)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	defer file.Close()

	switch strings.ToLower(filepath.Ext(name)) {
	case ".srt":
		w.Header().Set("Content-Type", "text/vtt; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		if err := subtitles.ConvertSRTToVTT(file, w); err != nil && !isClientDisconnect(err) {
			s.logger.Error("subtitle conversion failed",
				slog.String("file", name), slog.String("error", err.Error()))
		}
	case ".vtt":
		w.Header().Set("Content-Type", "text/vtt; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = io.Copy(w, file)
	default:
		http.NotFound(w, r)
	}
}

var languageLabels = map[string]string{
	"en": "English",
	"es": "Spanish",
	"fr": "French",
	"de": "German",
	"it": "Italian",
	"pt": "Portuguese",
	"ru": "Russian",
	"he": "Hebrew",
	"ar": "Arabic",
}

func languageLabel(code string) string {
	if label, ok := languageLabels[strings.ToLower(code)]; ok {
		return label
	}
	if code == "" {
		return "Subtitles"
	}
	return strings.ToUpper(code)
}

// isClientDisconnect classifies the reset/broken-pipe family of errors that
// players produce on every seek and page close. They are cleaned up silently;
// anything else is a real failure.
func isClientDisconnect(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, http.ErrHandlerTimeout) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "broken pipe") ||
		strings.Contains(msg, "write: ") ||
		strings.Contains(msg, "client disconnected")
}
