package stream

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"magnetcast/internal/domain"
	"magnetcast/internal/domain/ports"
)

type memReader struct {
	*bytes.Reader
}

func (m *memReader) Close() error               { return nil }
func (m *memReader) SetContext(context.Context) {}
func (m *memReader) SetReadahead(int64)         {}

type fakeSwarm struct {
	id         domain.SessionID
	name       string
	files      []domain.FileRef
	singleFile bool

	mu       sync.Mutex
	selected []int
	dropped  int
	fileDone bool
}

func (s *fakeSwarm) ID() domain.SessionID    { return s.id }
func (s *fakeSwarm) Name() string            { return s.name }
func (s *fakeSwarm) Files() []domain.FileRef { return s.files }
func (s *fakeSwarm) SingleFile() bool        { return s.singleFile }

func (s *fakeSwarm) Select(file domain.FileRef) {
	s.mu.Lock()
	s.selected = append(s.selected, file.Index)
	s.mu.Unlock()
}

func (s *fakeSwarm) Stats() domain.SwarmStats {
	return domain.SwarmStats{Progress: 0.5, Peers: 3}
}

func (s *fakeSwarm) FileDone(domain.FileRef) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fileDone
}

func (s *fakeSwarm) setFileDone(done bool) {
	s.mu.Lock()
	s.fileDone = done
	s.mu.Unlock()
}

func (s *fakeSwarm) NewReader(domain.FileRef) (ports.StreamReader, error) {
	return &memReader{bytes.NewReader(make([]byte, 64))}, nil
}

func (s *fakeSwarm) Drop() error {
	s.mu.Lock()
	s.dropped++
	s.mu.Unlock()
	return nil
}

func (s *fakeSwarm) dropCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

type fakeEngine struct {
	mu     sync.Mutex
	queue  []*fakeSwarm
	opened int
	closed int
}

func (e *fakeEngine) Open(_ context.Context, _ string) (ports.Session, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.opened >= len(e.queue) {
		return nil, errors.New("no more swarms queued")
	}
	swarm := e.queue[e.opened]
	e.opened++
	return swarm, nil
}

func (e *fakeEngine) Close() error {
	e.mu.Lock()
	e.closed++
	e.mu.Unlock()
	return nil
}

type fakeSelector struct{}

func (fakeSelector) Select(_ context.Context, files []domain.FileRef, _ string) domain.SelectedFileSet {
	var videos, subs []domain.FileRef
	for _, f := range files {
		switch {
		case f.IsVideo():
			videos = append(videos, f)
		case f.IsSubtitle():
			subs = append(subs, f)
		}
	}
	return domain.SelectedFileSet{Video: videos, Subtitles: subs}
}

type fakeRegistry struct {
	mu          sync.Mutex
	snaps       map[domain.SessionID]domain.Snapshot
	registers   int
	unregisters int
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{snaps: make(map[domain.SessionID]domain.Snapshot)}
}

func (r *fakeRegistry) Register(snap domain.Snapshot) {
	r.mu.Lock()
	r.snaps[snap.ID] = snap
	r.registers++
	r.mu.Unlock()
}

func (r *fakeRegistry) Update(id domain.SessionID, snap domain.Snapshot) {
	r.mu.Lock()
	if _, ok := r.snaps[id]; ok {
		r.snaps[id] = snap
	}
	r.mu.Unlock()
}

func (r *fakeRegistry) Unregister(id domain.SessionID) {
	r.mu.Lock()
	delete(r.snaps, id)
	r.unregisters++
	r.mu.Unlock()
}

func (r *fakeRegistry) counts() (registered, registers, unregisters int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.snaps), r.registers, r.unregisters
}

type fakeInhibitor struct {
	mu     sync.Mutex
	starts int
	stops  int
}

func (i *fakeInhibitor) Start() error {
	i.mu.Lock()
	i.starts++
	i.mu.Unlock()
	return nil
}

func (i *fakeInhibitor) Stop() error {
	i.mu.Lock()
	i.stops++
	i.mu.Unlock()
	return nil
}

func (i *fakeInhibitor) counts() (starts, stops int) {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.starts, i.stops
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func episodeSwarm(id, name string) *fakeSwarm {
	return &fakeSwarm{
		id:   domain.SessionID(id),
		name: name,
		files: []domain.FileRef{
			{Index: 0, Path: name + "/episode.mkv", Length: 1 << 20},
			{Index: 1, Path: name + "/episode.srt", Length: 1 << 10},
		},
	}
}

func newTestSupervisor(engine *fakeEngine, reg *fakeRegistry, inhibitor *fakeInhibitor, cfg Config) *Supervisor {
	if cfg.StreamAddr == "" {
		cfg.StreamAddr = "127.0.0.1:0"
	}
	if cfg.PublicHost == "" {
		cfg.PublicHost = "127.0.0.1"
	}
	return NewSupervisor(engine, fakeSelector{}, reg, nil, nil, inhibitor, cfg, quietLogger())
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestStartServesPlayerAndTerminates(t *testing.T) {
	swarm := episodeSwarm("abc", "Show")
	engine := &fakeEngine{queue: []*fakeSwarm{swarm}}
	reg := newFakeRegistry()
	inhibitor := &fakeInhibitor{}
	sv := newTestSupervisor(engine, reg, inhibitor, Config{DownloadRoot: t.TempDir()})

	snap, playerURL, err := sv.Start(context.Background(), "magnet:?xt=urn:btih:abc", "Show")
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if snap.Phase != domain.PhaseStreaming {
		t.Fatalf("expected streaming phase, got %s", snap.Phase)
	}
	if snap.FileName != "episode.mkv" {
		t.Fatalf("unexpected file: %s", snap.FileName)
	}

	resp, err := http.Get(playerURL)
	if err != nil {
		t.Fatalf("player page unreachable: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 from player page, got %d", resp.StatusCode)
	}

	if err := sv.Terminate(snap.ID, "user"); err != nil {
		t.Fatalf("terminate failed: %v", err)
	}
	if _, ok := sv.Current(); ok {
		t.Fatal("session still active after terminate")
	}
	if swarm.dropCount() != 1 {
		t.Fatalf("expected 1 swarm drop, got %d", swarm.dropCount())
	}
	if _, stops := inhibitor.counts(); stops != 1 {
		t.Fatalf("expected sleep inhibitor stopped once, got %d", stops)
	}
	if registered, _, unregisters := reg.counts(); registered != 0 || unregisters != 1 {
		t.Fatalf("registry not cleaned up: %d registered, %d unregisters", registered, unregisters)
	}
}

func TestStartReplacesActiveSession(t *testing.T) {
	first := episodeSwarm("first", "ShowA")
	second := episodeSwarm("second", "ShowB")
	engine := &fakeEngine{queue: []*fakeSwarm{first, second}}
	reg := newFakeRegistry()
	sv := newTestSupervisor(engine, reg, &fakeInhibitor{}, Config{DownloadRoot: t.TempDir()})

	_, firstURL, err := sv.Start(context.Background(), "magnet:?xt=urn:btih:a", "ShowA")
	if err != nil {
		t.Fatalf("first start failed: %v", err)
	}
	snapB, _, err := sv.Start(context.Background(), "magnet:?xt=urn:btih:b", "ShowB")
	if err != nil {
		t.Fatalf("second start failed: %v", err)
	}

	if first.dropCount() != 1 {
		t.Fatalf("previous swarm not dropped, drops = %d", first.dropCount())
	}
	if second.dropCount() != 0 {
		t.Fatal("new swarm must stay alive")
	}
	cur, ok := sv.Current()
	if !ok || cur.ID != snapB.ID {
		t.Fatalf("expected second session active, got %+v ok=%v", cur, ok)
	}
	if registered, _, _ := reg.counts(); registered != 1 {
		t.Fatalf("expected exactly one registered session, got %d", registered)
	}

	// The previous media listener must be gone.
	client := &http.Client{Timeout: 500 * time.Millisecond}
	if resp, err := client.Get(firstURL); err == nil {
		resp.Body.Close()
		t.Fatal("previous media server still listening")
	}

	sv.Shutdown()
}

func TestIdleShutdownAfterGraceWindow(t *testing.T) {
	swarm := episodeSwarm("abc", "Show")
	swarm.setFileDone(true)
	engine := &fakeEngine{queue: []*fakeSwarm{swarm}}
	reg := newFakeRegistry()
	inhibitor := &fakeInhibitor{}
	sv := newTestSupervisor(engine, reg, inhibitor, Config{
		DownloadRoot: t.TempDir(),
		PollInterval: 10 * time.Millisecond,
		IdleInterval: 10 * time.Millisecond,
		GraceWindow:  80 * time.Millisecond,
	})

	if _, _, err := sv.Start(context.Background(), "magnet:?xt=urn:btih:abc", "Show"); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	waitFor(t, 2*time.Second, func() bool {
		_, ok := sv.Current()
		return !ok
	}, "session did not terminate after idle grace window")

	if swarm.dropCount() != 1 {
		t.Fatalf("expected swarm dropped once, got %d", swarm.dropCount())
	}
	if _, stops := inhibitor.counts(); stops != 1 {
		t.Fatalf("expected inhibitor stopped once, got %d", stops)
	}
}

func TestConnectionResetsIdleGraceWindow(t *testing.T) {
	swarm := episodeSwarm("abc", "Show")
	swarm.setFileDone(true)
	engine := &fakeEngine{queue: []*fakeSwarm{swarm}}
	sv := newTestSupervisor(engine, newFakeRegistry(), &fakeInhibitor{}, Config{
		DownloadRoot: t.TempDir(),
		PollInterval: 10 * time.Millisecond,
		IdleInterval: 20 * time.Millisecond,
		GraceWindow:  300 * time.Millisecond,
	})

	_, playerURL, err := sv.Start(context.Background(), "magnet:?xt=urn:btih:abc", "Show")
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}

	// A request two-thirds into the grace window restarts it from zero.
	time.Sleep(200 * time.Millisecond)
	resp, err := http.Get(playerURL)
	if err != nil {
		t.Fatalf("player request failed: %v", err)
	}
	resp.Body.Close()

	// Past the original deadline the session must still be alive.
	time.Sleep(150 * time.Millisecond)
	if _, ok := sv.Current(); !ok {
		t.Fatal("session terminated at the original deadline despite reconnect")
	}

	waitFor(t, 2*time.Second, func() bool {
		_, ok := sv.Current()
		return !ok
	}, "session did not terminate after the restarted grace window")
}

func TestUserTerminationDeletesMediaFolder(t *testing.T) {
	root := t.TempDir()
	mediaDir := filepath.Join(root, "Show")
	if err := os.MkdirAll(mediaDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(mediaDir, "episode.mkv"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	swarm := episodeSwarm("abc", "Show")
	engine := &fakeEngine{queue: []*fakeSwarm{swarm}}
	sv := newTestSupervisor(engine, newFakeRegistry(), &fakeInhibitor{}, Config{DownloadRoot: root})

	snap, _, err := sv.Start(context.Background(), "magnet:?xt=urn:btih:abc", "Show")
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if err := sv.Terminate(snap.ID, "user"); err != nil {
		t.Fatalf("terminate failed: %v", err)
	}

	if _, err := os.Stat(mediaDir); !os.IsNotExist(err) {
		t.Fatalf("media folder still present after user termination: %v", err)
	}
	if _, err := os.Stat(root); err != nil {
		t.Fatalf("download root must survive a folder-scoped deletion: %v", err)
	}
}

func TestShutdownKeepsFiles(t *testing.T) {
	root := t.TempDir()
	mediaDir := filepath.Join(root, "Show")
	if err := os.MkdirAll(mediaDir, 0o755); err != nil {
		t.Fatal(err)
	}

	swarm := episodeSwarm("abc", "Show")
	engine := &fakeEngine{queue: []*fakeSwarm{swarm}}
	sv := newTestSupervisor(engine, newFakeRegistry(), &fakeInhibitor{}, Config{DownloadRoot: root})

	if _, _, err := sv.Start(context.Background(), "magnet:?xt=urn:btih:abc", "Show"); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	sv.Shutdown()

	if _, err := os.Stat(mediaDir); err != nil {
		t.Fatalf("media folder deleted on shutdown: %v", err)
	}
	engine.mu.Lock()
	closed := engine.closed
	engine.mu.Unlock()
	if closed != 1 {
		t.Fatalf("expected engine closed once, got %d", closed)
	}
}

func TestTerminateUnknownSession(t *testing.T) {
	engine := &fakeEngine{}
	sv := newTestSupervisor(engine, newFakeRegistry(), &fakeInhibitor{}, Config{DownloadRoot: t.TempDir()})

	if err := sv.Terminate("ghost", "user"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSessionTeardownIsIdempotent(t *testing.T) {
	swarm := episodeSwarm("abc", "Show")
	engine := &fakeEngine{queue: []*fakeSwarm{swarm}}
	reg := newFakeRegistry()
	inhibitor := &fakeInhibitor{}
	sv := newTestSupervisor(engine, reg, inhibitor, Config{DownloadRoot: t.TempDir()})

	if _, _, err := sv.Start(context.Background(), "magnet:?xt=urn:btih:abc", "Show"); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	sess := sv.active()

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sess.Terminate("user", false)
		}()
	}
	wg.Wait()
	sess.Terminate("user", false)

	if swarm.dropCount() != 1 {
		t.Fatalf("swarm dropped %d times", swarm.dropCount())
	}
	if _, _, unregisters := reg.counts(); unregisters != 1 {
		t.Fatalf("registry unregistered %d times", unregisters)
	}
	if _, stops := inhibitor.counts(); stops != 1 {
		t.Fatalf("inhibitor stopped %d times", stops)
	}
}
