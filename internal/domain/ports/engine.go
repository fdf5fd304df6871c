package ports

import (
	"context"

	"magnetcast/internal/domain"
)

// Engine joins and leaves torrent swarms. Implementations must open sessions
// with all pieces deselected so file selection can run before any bandwidth
// is spent.
type Engine interface {
	Open(ctx context.Context, magnet string) (Session, error)
	Close() error
}

// Session wraps one torrent in the swarm. At most one session exists at a
// time; the supervisor enforces that, not the engine.
type Session interface {
	ID() domain.SessionID
	Name() string
	Files() []domain.FileRef
	// SingleFile reports whether the torrent's root entity is a bare file
	// with no enclosing folder.
	SingleFile() bool
	// Select marks only the given file's pieces for download, with the start
	// of the file prioritized for fast playback startup.
	Select(file domain.FileRef)
	Stats() domain.SwarmStats
	// FileDone reports whether the file's on-disk bytes equal its declared length.
	FileDone(file domain.FileRef) bool
	NewReader(file domain.FileRef) (StreamReader, error)
	Drop() error
}
