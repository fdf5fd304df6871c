package domain

import (
	"errors"
	"time"
)

type SessionID string

// Phase is the lifecycle state of a stream session. It is owned by the
// supervisor; the swarm engine and the media server only observe it.
type Phase string

const (
	PhaseOpening     Phase = "opening"      // Joining the swarm, metadata not yet resolved.
	PhaseSelecting   Phase = "selecting"    // Metadata resolved, file selection in progress.
	PhaseStreaming   Phase = "streaming"    // Media server up, download in progress.
	PhaseComplete    Phase = "complete"     // Selected file fully on disk, clients connected.
	PhaseIdlePending Phase = "idle-pending" // Complete with zero connections, grace timer running.
	PhaseTerminated  Phase = "terminated"   // Torn down; terminal.
)

var ErrInvalidTransition = errors.New("invalid phase transition")

var validTransitions = map[Phase][]Phase{
	PhaseOpening:     {PhaseSelecting, PhaseTerminated},
	PhaseSelecting:   {PhaseStreaming, PhaseTerminated},
	PhaseStreaming:   {PhaseComplete, PhaseTerminated},
	PhaseComplete:    {PhaseIdlePending, PhaseTerminated},
	PhaseIdlePending: {PhaseComplete, PhaseTerminated},
	PhaseTerminated:  {},
}

// CanTransition reports whether a phase change is allowed. A reconnect while
// idle-pending moves back to complete; everything else moves forward only.
func CanTransition(from, to Phase) bool {
	for _, t := range validTransitions[from] {
		if t == to {
			return true
		}
	}
	return false
}

// SwarmStats is a point-in-time reading from the swarm layer.
type SwarmStats struct {
	Progress      float64 `json:"progress"`
	DownloadSpeed int64   `json:"downloadSpeed"`
	UploadSpeed   int64   `json:"uploadSpeed"`
	Peers         int     `json:"peers"`
}

// Snapshot is the view of a stream session handed to the process registry so
// a host UI can display and terminate it.
type Snapshot struct {
	ID            SessionID `json:"id"`
	Name          string    `json:"name"`
	Query         string    `json:"query,omitempty"`
	Phase         Phase     `json:"phase"`
	FileName      string    `json:"fileName,omitempty"`
	FileLength    int64     `json:"fileLength,omitempty"`
	Progress      float64   `json:"progress"`
	DownloadSpeed int64     `json:"downloadSpeed"`
	UploadSpeed   int64     `json:"uploadSpeed"`
	Peers         int       `json:"peers"`
	Connections   int       `json:"connections"`
	Complete      bool      `json:"complete"`
	UpdatedAt     time.Time `json:"updatedAt"`
}
