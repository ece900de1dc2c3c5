package domain

import (
	"context"
	"time"
)

// SourceMessage is one raw message from the external message source. Only
// the fields the reconciler needs are surfaced; the payload stays opaque.
type SourceMessage struct {
	ID               string    `json:"id"`
	Timestamp        time.Time `json:"timestamp"`
	Payload          string    `json:"payload"`
	WorkingDirectory string    `json:"working_directory,omitempty"`
}

// MessageSource enumerates the raw messages belonging to a session in
// chronological order. Read-only.
type MessageSource interface {
	MessagesForSession(ctx context.Context, sessionID string) ([]SourceMessage, error)
}
