package domain

import "time"

// ActivityType classifies activity feed entries.
type ActivityType string

const (
	ActivityMessageSent    ActivityType = "message_sent"
	ActivitySessionCreated ActivityType = "session_created"
	ActivitySessionUpdated ActivityType = "session_updated"
	ActivityError          ActivityType = "error"
)

// Valid reports whether the activity type is known.
func (t ActivityType) Valid() bool {
	switch t {
	case ActivityMessageSent, ActivitySessionCreated, ActivitySessionUpdated, ActivityError:
		return true
	}
	return false
}

// ActivityEntry is one timestamped event in a session's activity feed.
// Entries are append-only; they reference their session but are not owned
// by it. Ordering by timestamp is authoritative, with insertion order as
// the tiebreak.
type ActivityEntry struct {
	ID        string       `json:"id"`
	SessionID string       `json:"session_id"`
	Type      ActivityType `json:"type"`
	Detail    string       `json:"detail"`
	Timestamp time.Time    `json:"timestamp"`
}
