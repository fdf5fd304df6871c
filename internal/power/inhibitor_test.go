package power

import (
	"errors"
	"io"
	"log/slog"
	"testing"
)

func TestProcessInhibitorStartIsIdempotent(t *testing.T) {
	starts, stops := 0, 0
	p := &processInhibitor{
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		start: func() (func() error, error) {
			starts++
			return func() error { stops++; return nil }, nil
		},
	}

	if err := p.Start(); err != nil {
		t.Fatalf("first start failed: %v", err)
	}
	if err := p.Start(); err != nil {
		t.Fatalf("second start failed: %v", err)
	}
	if starts != 1 {
		t.Fatalf("helper process spawned %d times", starts)
	}

	if err := p.Stop(); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if err := p.Stop(); err != nil {
		t.Fatalf("second stop must be a no-op, got %v", err)
	}
	if stops != 1 {
		t.Fatalf("helper process stopped %d times", stops)
	}
}

func TestProcessInhibitorStopWithoutStart(t *testing.T) {
	p := &processInhibitor{
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		start:  func() (func() error, error) { return nil, errors.New("unused") },
	}
	if err := p.Stop(); err != nil {
		t.Fatalf("stop without start must be a no-op, got %v", err)
	}
}

func TestProcessInhibitorStartFailureLeavesNothingHeld(t *testing.T) {
	wantErr := errors.New("tool missing")
	p := &processInhibitor{
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		start:  func() (func() error, error) { return nil, wantErr },
	}
	if err := p.Start(); !errors.Is(err, wantErr) {
		t.Fatalf("expected start error, got %v", err)
	}
	if err := p.Stop(); err != nil {
		t.Fatalf("stop after failed start must be a no-op, got %v", err)
	}
}

func TestNewNeverReturnsNil(t *testing.T) {
	inh := New(nil)
	if inh == nil {
		t.Fatal("New returned nil inhibitor")
	}
}
