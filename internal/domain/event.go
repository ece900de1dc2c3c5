package domain

import "time"

// EventType classifies live-channel envelopes.
type EventType string

const (
	EventSessionUpdated   EventType = "session-updated"
	EventActivityAppended EventType = "activity-appended"
	EventError            EventType = "error"
)

// Event is the envelope delivered to live subscribers. Seq increases
// monotonically per session so a viewer can discard duplicates and stale
// replays; events without a session share a single global counter.
type Event struct {
	Type      EventType `json:"type"`
	SessionID string    `json:"session_id,omitempty"`
	Seq       uint64    `json:"seq"`
	Data      any       `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

// Notifier receives the snapshot produced by every store mutation.
// Publish is called before the per-session lock is released so events
// enter the bus in commit order. Implementations must therefore return
// quickly: fan-out happens asynchronously, and viewer backpressure never
// reaches the publisher.
type Notifier interface {
	Publish(evt Event)
}

// NopNotifier discards events. Used where no live channel is attached,
// such as the migration CLI.
type NopNotifier struct{}

func (NopNotifier) Publish(Event) {}
