package anacrolix

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/anacrolix/torrent"

	"magnetcast/internal/domain"
	"magnetcast/internal/domain/ports"
)

// addMagnetTimeout caps the time we wait for the anacrolix client to accept
// a magnet link. AddMagnet can block on an internal client mutex when the
// client is busy.
const addMagnetTimeout = 10 * time.Second

type Config struct {
	DataDir string
	// MetadataTimeout bounds the wait for torrent metadata after the magnet
	// is accepted. Zero-peer magnets would otherwise hang forever.
	MetadataTimeout time.Duration
}

type Engine struct {
	client          *torrent.Client
	metadataTimeout time.Duration

	speedMu sync.Mutex
	speeds  map[domain.SessionID]speedSample
}

func New(cfg Config) (*Engine, error) {
	clientConfig := torrent.NewDefaultClientConfig()
	if cfg.DataDir != "" {
		clientConfig.DataDir = cfg.DataDir
	}

	client, err := torrent.NewClient(clientConfig)
	if err != nil {
		return nil, err
	}
	return NewWithClient(client, cfg.MetadataTimeout), nil
}

func NewWithClient(client *torrent.Client, metadataTimeout time.Duration) *Engine {
	if metadataTimeout <= 0 {
		metadataTimeout = 2 * time.Minute
	}
	return &Engine{
		client:          client,
		metadataTimeout: metadataTimeout,
		speeds:          make(map[domain.SessionID]speedSample),
	}
}

// Open joins the swarm for a magnet link and blocks until metadata resolves.
// The returned session has every file's pieces deselected so that selection
// can run before any bandwidth is spent on unwanted files.
func (e *Engine) Open(ctx context.Context, magnet string) (ports.Session, error) {
	if e.client == nil {
		return nil, errors.New("torrent client not configured")
	}

	// Run AddMagnet with a timeout so we never block the caller indefinitely
	// if the anacrolix client is busy.
	type addResult struct {
		t   *torrent.Torrent
		err error
	}
	ch := make(chan addResult, 1)
	go func() {
		t, err := e.client.AddMagnet(magnet)
		ch <- addResult{t, err}
	}()

	var t *torrent.Torrent
	select {
	case res := <-ch:
		if res.err != nil {
			return nil, res.err
		}
		t = res.t
	case <-time.After(addMagnetTimeout):
		// The goroutine may still complete AddMagnet after we return.
		// Drop the orphaned torrent when it does.
		go func() {
			if res := <-ch; res.t != nil {
				res.t.Drop()
			}
		}()
		return nil, errors.New("torrent client busy, try again later")
	case <-ctx.Done():
		go func() {
			if res := <-ch; res.t != nil {
				res.t.Drop()
			}
		}()
		return nil, ctx.Err()
	}

	select {
	case <-t.GotInfo():
	case <-time.After(e.metadataTimeout):
		t.Drop()
		return nil, errors.New("timed out waiting for torrent metadata")
	case <-ctx.Done():
		t.Drop()
		return nil, ctx.Err()
	}

	// Deselect everything before handing the session out.
	for _, f := range t.Files() {
		f.SetPriority(torrent.PiecePriorityNone)
	}

	return &Session{engine: e, torrent: t, id: domain.SessionID(t.InfoHash().HexString())}, nil
}

func (e *Engine) Close() error {
	if e.client == nil {
		return nil
	}
	errList := e.client.Close()
	if len(errList) > 0 {
		return errList[0]
	}
	return nil
}

type speedSample struct {
	at           time.Time
	bytesRead    int64
	bytesWritten int64
}

func (e *Engine) sampleSpeed(id domain.SessionID, stats torrent.TorrentStats, now time.Time) (int64, int64) {
	currentRead := stats.BytesReadUsefulData.Int64()
	currentWritten := stats.BytesWrittenData.Int64()

	e.speedMu.Lock()
	defer e.speedMu.Unlock()

	prev, ok := e.speeds[id]
	e.speeds[id] = speedSample{
		at:           now,
		bytesRead:    currentRead,
		bytesWritten: currentWritten,
	}

	if !ok || prev.at.IsZero() {
		return 0, 0
	}

	dt := now.Sub(prev.at).Seconds()
	if dt <= 0 {
		return 0, 0
	}

	deltaRead := currentRead - prev.bytesRead
	deltaWritten := currentWritten - prev.bytesWritten
	if deltaRead < 0 {
		deltaRead = 0
	}
	if deltaWritten < 0 {
		deltaWritten = 0
	}

	download := int64(float64(deltaRead) / dt)
	upload := int64(float64(deltaWritten) / dt)
	return download, upload
}

func (e *Engine) forgetSpeed(id domain.SessionID) {
	e.speedMu.Lock()
	delete(e.speeds, id)
	e.speedMu.Unlock()
}

func mapFiles(t *torrent.Torrent) []domain.FileRef {
	if !torrentInfoReady(t) {
		return nil
	}
	files := t.Files()
	mapped := make([]domain.FileRef, 0, len(files))
	for i, f := range files {
		mapped = append(mapped, domain.FileRef{
			Index:          i,
			Path:           f.Path(),
			Length:         f.Length(),
			BytesCompleted: f.BytesCompleted(),
		})
	}
	return mapped
}

func torrentInfoReady(t *torrent.Torrent) bool {
	if t == nil {
		return false
	}
	select {
	case <-t.GotInfo():
		return true
	default:
		return false
	}
}
