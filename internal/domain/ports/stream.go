package ports

import (
	"context"
	"io"
)

// StreamReader is an independently seekable reader over one file in the
// swarm. Reads block until the underlying pieces arrive.
type StreamReader interface {
	io.ReadSeekCloser
	SetContext(context.Context)
	SetReadahead(int64)
}
