package ports

import (
	"context"

	"magnetcast/internal/domain"
)

// Selector decides which files inside a torrent match a free-text query.
// Implementations never fail a stream request: on any error they fall back
// to a deterministic choice.
type Selector interface {
	Select(ctx context.Context, files []domain.FileRef, query string) domain.SelectedFileSet
}
