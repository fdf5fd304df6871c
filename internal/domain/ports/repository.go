package ports

import (
	"context"

	"magnetcast/internal/domain"
)

// HistoryStore persists stream session records. A nil store disables history.
type HistoryStore interface {
	Create(ctx context.Context, rec domain.StreamRecord) error
	Finish(ctx context.Context, id domain.SessionID, reason string) error
	ListRecent(ctx context.Context, limit int) ([]domain.StreamRecord, error)
}
