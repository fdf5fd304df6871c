package stream

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"path/filepath"
	"sync"
	"time"

	apihttp "magnetcast/internal/api/http"
	"magnetcast/internal/domain"
	"magnetcast/internal/domain/ports"
	"magnetcast/internal/metrics"
	"magnetcast/internal/power"
)

const (
	defaultGraceWindow  = 5 * time.Minute
	defaultPollInterval = 5 * time.Second
	defaultIdleInterval = time.Minute
)

type Config struct {
	// StreamAddr is where the per-session media server binds, e.g. ":8888".
	StreamAddr string
	// PublicHost is the host advertised in player URLs. Defaults to localhost.
	PublicHost   string
	DownloadRoot string
	GraceWindow  time.Duration
	PollInterval time.Duration
	IdleInterval time.Duration
}

func (c *Config) applyDefaults() {
	if c.GraceWindow <= 0 {
		c.GraceWindow = defaultGraceWindow
	}
	if c.PollInterval <= 0 {
		c.PollInterval = defaultPollInterval
	}
	if c.IdleInterval <= 0 {
		c.IdleInterval = defaultIdleInterval
	}
	if c.PublicHost == "" {
		c.PublicHost = "localhost"
	}
}

// Supervisor owns at most one stream session. Starting a new stream always
// finishes tearing down the previous one before joining the new swarm.
type Supervisor struct {
	engine    ports.Engine
	selector  ports.Selector
	registry  ports.Registry
	history   ports.HistoryStore
	fetcher   ports.SubtitleFetcher
	inhibitor power.Inhibitor
	cfg       Config
	logger    *slog.Logger

	// startMu serializes Start/Terminate/Shutdown so replacement ordering
	// holds; mu guards the current pointer for cheap reads.
	startMu sync.Mutex
	mu      sync.Mutex
	current *Session
}

func NewSupervisor(
	engine ports.Engine,
	selector ports.Selector,
	reg ports.Registry,
	history ports.HistoryStore,
	fetcher ports.SubtitleFetcher,
	inhibitor power.Inhibitor,
	cfg Config,
	logger *slog.Logger,
) *Supervisor {
	cfg.applyDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	if inhibitor == nil {
		inhibitor = power.New(logger)
	}
	return &Supervisor{
		engine:    engine,
		selector:  selector,
		registry:  reg,
		history:   history,
		fetcher:   fetcher,
		inhibitor: inhibitor,
		cfg:       cfg,
		logger:    logger,
	}
}

// Start opens the swarm, runs file selection, brings up the media server and
// hands the session to its background loop. Any active session is fully torn
// down first, last writer wins.
func (sv *Supervisor) Start(ctx context.Context, magnet, query string) (domain.Snapshot, string, error) {
	sv.startMu.Lock()
	defer sv.startMu.Unlock()

	if prev := sv.active(); prev != nil {
		sv.logger.Info("replacing active stream", slog.String("session", string(prev.ID())))
		prev.Terminate("replaced", true)
	}

	swarm, err := sv.engine.Open(ctx, magnet)
	if err != nil {
		return domain.Snapshot{}, "", fmt.Errorf("join swarm: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	sess := &Session{
		id:           swarm.ID(),
		name:         swarm.Name(),
		magnet:       magnet,
		query:        query,
		swarm:        swarm,
		singleFile:   swarm.SingleFile(),
		downloadRoot: sv.cfg.DownloadRoot,
		registry:     sv.registry,
		history:      sv.history,
		fetcher:      sv.fetcher,
		inhibitor:    sv.inhibitor,
		logger:       sv.logger,
		pollInterval: sv.cfg.PollInterval,
		idleInterval: sv.cfg.IdleInterval,
		graceWindow:  sv.cfg.GraceWindow,
		cancel:       cancel,
		done:         make(chan struct{}),
		phase:        domain.PhaseOpening,
		onTerminated: sv.sessionTerminated,
	}
	sv.registry.Register(sess.snapshot())

	sess.setPhase(domain.PhaseSelecting)
	selected := sv.selector.Select(ctx, swarm.Files(), query)
	primary := selected.Primary()
	if primary.Length <= 0 {
		sess.Terminate("no_playable_file", false)
		return domain.Snapshot{}, "", fmt.Errorf("torrent %q has no playable file", swarm.Name())
	}
	sess.file = primary
	sess.mediaFolder = filepath.Dir(filepath.Join(sv.cfg.DownloadRoot, filepath.FromSlash(primary.Path)))

	swarm.Select(primary)
	for _, sub := range selected.Subtitles {
		swarm.Select(sub)
	}
	sv.logger.Info("file selected",
		slog.String("session", string(sess.id)),
		slog.String("file", primary.Name()),
		slog.Int64("length", primary.Length),
		slog.Int("subtitles", len(selected.Subtitles)))

	media := apihttp.NewMediaServer(sess, sv.logger)
	if err := media.Start(sv.cfg.StreamAddr); err != nil {
		sess.Terminate("startup_failed", false)
		return domain.Snapshot{}, "", err
	}
	sess.media = media

	if err := sv.inhibitor.Start(); err != nil {
		sv.logger.Warn("sleep inhibitor start failed", slog.String("error", err.Error()))
	}

	if sv.history != nil {
		rec := domain.StreamRecord{
			ID:         sess.id,
			Query:      query,
			Magnet:     magnet,
			Name:       sess.name,
			FilePath:   primary.Path,
			FileLength: primary.Length,
			StartedAt:  time.Now(),
		}
		if err := sv.history.Create(ctx, rec); err != nil {
			sv.logger.Warn("history create failed", slog.String("error", err.Error()))
		}
	}

	sess.setPhase(domain.PhaseStreaming)
	sess.publish()

	sv.mu.Lock()
	sv.current = sess
	sv.mu.Unlock()

	go sess.run(runCtx)

	metrics.SessionsStarted.Inc()
	metrics.ActiveStream.Set(1)

	return sess.snapshot(), sv.playerURL(media.Addr()), nil
}

// Terminate tears down the session with the given id. Files are deleted on
// user-initiated termination, kept on process shutdown.
func (sv *Supervisor) Terminate(id domain.SessionID, reason string) error {
	sv.startMu.Lock()
	defer sv.startMu.Unlock()

	cur := sv.active()
	if cur == nil || cur.ID() != id {
		return domain.ErrNotFound
	}
	cur.Terminate(reason, reason == "user")
	return nil
}

// Shutdown tears down any active session without deleting its files, then
// closes the swarm engine.
func (sv *Supervisor) Shutdown() {
	sv.startMu.Lock()
	defer sv.startMu.Unlock()

	if cur := sv.active(); cur != nil {
		cur.Terminate("shutdown", false)
	}
	if err := sv.engine.Close(); err != nil {
		sv.logger.Warn("engine close failed", slog.String("error", err.Error()))
	}
}

// Current returns the active session snapshot, if any.
func (sv *Supervisor) Current() (domain.Snapshot, bool) {
	cur := sv.active()
	if cur == nil {
		return domain.Snapshot{}, false
	}
	return cur.snapshot(), true
}

func (sv *Supervisor) active() *Session {
	sv.mu.Lock()
	defer sv.mu.Unlock()
	return sv.current
}

func (sv *Supervisor) sessionTerminated(sess *Session, reason string) {
	sv.mu.Lock()
	if sv.current == sess {
		sv.current = nil
	}
	sv.mu.Unlock()
	metrics.ActiveStream.Set(0)
	sv.logger.Info("stream session terminated",
		slog.String("session", string(sess.ID())), slog.String("reason", reason))
}

func (sv *Supervisor) playerURL(addr string) string {
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "http://" + addr + "/"
	}
	return fmt.Sprintf("http://%s/", net.JoinHostPort(sv.cfg.PublicHost, port))
}
