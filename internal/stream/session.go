package stream

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	apihttp "magnetcast/internal/api/http"
	"magnetcast/internal/domain"
	"magnetcast/internal/domain/ports"
	"magnetcast/internal/metrics"
	"magnetcast/internal/power"
)

// Session is one active torrent stream: a swarm handle, its media server and
// the lifecycle state that decides when the whole thing is torn down.
// The supervisor guarantees at most one Session exists at a time.
type Session struct {
	id           domain.SessionID
	name         string
	magnet       string
	query        string
	swarm        ports.Session
	file         domain.FileRef
	singleFile   bool
	downloadRoot string
	mediaFolder  string

	registry  ports.Registry
	history   ports.HistoryStore
	fetcher   ports.SubtitleFetcher
	inhibitor power.Inhibitor
	logger    *slog.Logger

	media *apihttp.MediaServer

	pollInterval time.Duration
	idleInterval time.Duration
	graceWindow  time.Duration

	cancel context.CancelFunc
	done   chan struct{}
	closed sync.Once

	onTerminated func(*Session, string)

	mu        sync.Mutex
	phase     domain.Phase
	conns     int
	complete  bool
	idleSince time.Time
	stats     domain.SwarmStats
}

// ID returns the stable session identifier.
func (s *Session) ID() domain.SessionID { return s.id }

// Done is closed once teardown has fully finished.
func (s *Session) Done() <-chan struct{} { return s.done }

func (s *Session) FileName() string    { return s.file.Name() }
func (s *Session) FileLength() int64   { return s.file.Length }
func (s *Session) MediaFolder() string { return s.mediaFolder }

func (s *Session) NewReader() (ports.StreamReader, error) {
	return s.swarm.NewReader(s.file)
}

// ConnOpened clears any pending idle shutdown. A reconnect during
// idle-pending restarts the grace window from zero on the next drop to zero.
func (s *Session) ConnOpened() {
	s.mu.Lock()
	s.conns++
	s.idleSince = time.Time{}
	if s.phase == domain.PhaseIdlePending {
		s.setPhaseLocked(domain.PhaseComplete)
	}
	s.mu.Unlock()
	metrics.StreamConnections.Inc()
	s.publish()
}

// ConnClosed is called exactly once per ConnOpened, on every exit path.
func (s *Session) ConnClosed() {
	s.mu.Lock()
	if s.conns > 0 {
		s.conns--
	}
	if s.conns == 0 && s.complete {
		s.idleSince = time.Now()
		if s.phase == domain.PhaseComplete {
			s.setPhaseLocked(domain.PhaseIdlePending)
		}
	}
	s.mu.Unlock()
	metrics.StreamConnections.Dec()
	s.publish()
}

// TriggerSubtitles runs the subtitle fetch once, off the request path.
// Failure never affects the stream.
func (s *Session) TriggerSubtitles() {
	if s.fetcher == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	result := s.fetcher.Fetch(ctx, s.query, s.file.Name(), s.mediaFolder)
	if !result.Success {
		s.logger.Warn("subtitle fetch failed", slog.String("error", errString(result.Err)))
		return
	}
	s.logger.Info("subtitles fetched", slog.Int("count", len(result.Paths)))
}

// run drives the progress poll until the selected file is fully on disk,
// then switches to the idle check that arms the shutdown grace window.
func (s *Session) run(ctx context.Context) {
	poll := time.NewTicker(s.pollInterval)
	defer poll.Stop()

	for !s.isComplete() {
		select {
		case <-ctx.Done():
			return
		case <-poll.C:
			s.pollOnce()
		}
	}
	poll.Stop()

	idle := time.NewTicker(s.idleInterval)
	defer idle.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-idle.C:
			if s.idleElapsed() {
				s.logger.Info("idle grace window elapsed, terminating stream",
					slog.String("session", string(s.id)))
				s.Terminate("idle", false)
				return
			}
		}
	}
}

func (s *Session) pollOnce() {
	stats := s.swarm.Stats()
	fileDone := s.swarm.FileDone(s.file)

	s.mu.Lock()
	s.stats = stats
	if fileDone && !s.complete {
		s.complete = true
		s.stats.Progress = 1
		s.setPhaseLocked(domain.PhaseComplete)
		if s.conns == 0 {
			s.idleSince = time.Now()
			s.setPhaseLocked(domain.PhaseIdlePending)
		}
		s.logger.Info("download complete", slog.String("file", s.file.Name()))
	}
	s.mu.Unlock()

	metrics.DownloadSpeedBytes.Set(float64(stats.DownloadSpeed))
	metrics.UploadSpeedBytes.Set(float64(stats.UploadSpeed))
	metrics.PeersConnected.Set(float64(stats.Peers))
	s.publish()
}

func (s *Session) isComplete() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.complete
}

func (s *Session) idleElapsed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.complete && s.conns == 0 && !s.idleSince.IsZero() &&
		time.Since(s.idleSince) >= s.graceWindow
}

func (s *Session) setPhaseLocked(to domain.Phase) {
	if !domain.CanTransition(s.phase, to) {
		s.logger.Warn("phase transition rejected",
			slog.String("from", string(s.phase)), slog.String("to", string(to)))
		return
	}
	s.phase = to
}

func (s *Session) setPhase(to domain.Phase) {
	s.mu.Lock()
	s.setPhaseLocked(to)
	s.mu.Unlock()
}

func (s *Session) snapshot() domain.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.Snapshot{
		ID:            s.id,
		Name:          s.name,
		Query:         s.query,
		Phase:         s.phase,
		FileName:      s.file.Name(),
		FileLength:    s.file.Length,
		Progress:      s.stats.Progress,
		DownloadSpeed: s.stats.DownloadSpeed,
		UploadSpeed:   s.stats.UploadSpeed,
		Peers:         s.stats.Peers,
		Connections:   s.conns,
		Complete:      s.complete,
		UpdatedAt:     time.Now(),
	}
}

func (s *Session) publish() {
	s.registry.Update(s.id, s.snapshot())
}

// Terminate runs the full teardown exactly once, in a fixed order: timers,
// media server, swarm handle, sleep inhibitor, then bookkeeping. Each step
// is isolated so one failure does not skip the rest. Calling Terminate again
// only waits for the first run to finish.
func (s *Session) Terminate(reason string, deleteFiles bool) {
	s.closed.Do(func() {
		s.logger.Info("tearing down stream session",
			slog.String("session", string(s.id)), slog.String("reason", reason))

		s.cancel()

		if s.media != nil {
			if err := s.media.Close(); err != nil {
				s.logger.Warn("media server close failed", slog.String("error", err.Error()))
			}
		}

		if err := s.swarm.Drop(); err != nil {
			s.logger.Warn("swarm drop failed", slog.String("error", err.Error()))
		}

		if err := s.inhibitor.Stop(); err != nil {
			s.logger.Warn("sleep inhibitor stop failed", slog.String("error", err.Error()))
		}

		s.registry.Unregister(s.id)

		if s.history != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := s.history.Finish(ctx, s.id, reason); err != nil {
				s.logger.Warn("history finish failed", slog.String("error", err.Error()))
			}
			cancel()
		}

		if deleteFiles {
			s.removeMediaFiles()
		}

		s.mu.Lock()
		s.setPhaseLocked(domain.PhaseTerminated)
		s.mu.Unlock()

		metrics.SessionsTerminated.WithLabelValues(reason).Inc()
		if s.onTerminated != nil {
			s.onTerminated(s, reason)
		}
		close(s.done)
	})
	<-s.done
}

// removeMediaFiles reclaims disk space after an explicit termination. A
// bare-file torrent has no enclosing folder, so the whole download root is
// cleared instead of a subfolder.
func (s *Session) removeMediaFiles() {
	target := s.mediaFolder
	if s.singleFile {
		target = s.downloadRoot
	}
	clean := filepath.Clean(target)
	root := filepath.Clean(s.downloadRoot)
	if clean == "" || clean == "/" || clean == "." || !strings.HasPrefix(clean, root) {
		s.logger.Warn("refusing to delete media path outside download root",
			slog.String("path", target))
		return
	}
	if err := os.RemoveAll(clean); err != nil {
		s.logger.Warn("media folder removal failed",
			slog.String("path", clean), slog.String("error", err.Error()))
		return
	}
	s.logger.Info("media folder removed", slog.String("path", clean))
}

func errString(err error) string {
	if err == nil {
		return "unknown"
	}
	return err.Error()
}
