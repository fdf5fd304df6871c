package domain

import (
	"errors"
	"time"
)

// StreamRecord is the persisted history entry for a stream session.
type StreamRecord struct {
	ID         SessionID `json:"id"`
	Query      string    `json:"query"`
	Magnet     string    `json:"magnet"`
	Name       string    `json:"name"`
	FilePath   string    `json:"filePath"`
	FileLength int64     `json:"fileLength"`
	StartedAt  time.Time `json:"startedAt"`
	EndedAt    time.Time `json:"endedAt,omitempty"`
	EndReason  string    `json:"endReason,omitempty"`
}

// Validate checks domain invariants for StreamRecord.
func (r StreamRecord) Validate() error {
	if r.ID == "" {
		return errors.New("session id is required")
	}
	if r.Magnet == "" {
		return errors.New("magnet is required")
	}
	if r.FileLength < 0 {
		return errors.New("fileLength must not be negative")
	}
	return nil
}
