// Package power keeps the host machine awake while a stream session is
// active. The inhibitor holds a platform wake lock from session start until
// teardown; Stop is safe to call more than once.
package power

import (
	"log/slog"
	"sync"
)

type Inhibitor interface {
	// Start acquires the wake lock. Failure is logged by the caller and does
	// not fail the stream.
	Start() error
	// Stop releases the wake lock. Calling Stop without a prior Start, or
	// twice, is a no-op.
	Stop() error
}

// New returns the inhibitor for the current platform, or a no-op one when
// the platform has no supported wake-lock tool.
func New(logger *slog.Logger) Inhibitor {
	if logger == nil {
		logger = slog.Default()
	}
	return newPlatformInhibitor(logger)
}

type noopInhibitor struct{}

func (noopInhibitor) Start() error { return nil }
func (noopInhibitor) Stop() error  { return nil }

// processInhibitor runs a helper process that holds the wake lock for as
// long as it lives.
type processInhibitor struct {
	mu     sync.Mutex
	logger *slog.Logger
	stop   func() error
	start  func() (func() error, error)
}

func (p *processInhibitor) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stop != nil {
		return nil
	}
	stop, err := p.start()
	if err != nil {
		return err
	}
	p.stop = stop
	return nil
}

func (p *processInhibitor) Stop() error {
	p.mu.Lock()
	stop := p.stop
	p.stop = nil
	p.mu.Unlock()
	if stop == nil {
		return nil
	}
	return stop()
}
