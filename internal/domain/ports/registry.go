package ports

import "magnetcast/internal/domain"

// Registry is the host process's record of active background operations.
// The supervisor feeds it snapshots; the registry calls back into the
// supervisor when a user terminates a stream from the UI.
type Registry interface {
	Register(snap domain.Snapshot)
	Update(id domain.SessionID, snap domain.Snapshot)
	Unregister(id domain.SessionID)
}
