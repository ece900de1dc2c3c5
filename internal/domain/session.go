// Package domain defines the core entities of the session manager:
// sessions, activity entries, token usage, and the derived metric shapes.
package domain

import "time"

// SessionStatus represents the lifecycle state of a session.
type SessionStatus string

const (
	StatusWorking  SessionStatus = "working"
	StatusIdle     SessionStatus = "idle"
	StatusComplete SessionStatus = "complete"
	StatusError    SessionStatus = "error"
)

// statusTransitions lists the allowed next states per status. Error is
// terminal here; leaving it requires an explicit restart, not a plain
// status update.
var statusTransitions = map[SessionStatus][]SessionStatus{
	StatusWorking:  {StatusIdle, StatusComplete, StatusError},
	StatusIdle:     {StatusWorking},
	StatusComplete: {},
	StatusError:    {},
}

// Valid reports whether the status is one of the known lifecycle states.
func (s SessionStatus) Valid() bool {
	_, ok := statusTransitions[s]
	return ok
}

// CanTransition reports whether a plain update may move a session from s
// to next. Self-transitions are allowed so repeated updates are no-ops.
func (s SessionStatus) CanTransition(next SessionStatus) bool {
	if s == next {
		return true
	}
	for _, allowed := range statusTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Restartable reports whether an explicit restart may return the session
// to working.
func (s SessionStatus) Restartable() bool {
	return s == StatusError || s == StatusIdle
}

// Session is the authoritative record of one coding-assistant conversation.
// It is owned by the session store, mutated only through its operations,
// and never deleted, only status-transitioned.
type Session struct {
	ID           string        `json:"id"`
	ProjectName  string        `json:"project_name"`
	ProjectPath  string        `json:"project_path"`
	Model        string        `json:"model"`
	Status       SessionStatus `json:"status"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
	TokenUsage   TokenUsage    `json:"token_usage"`
	DurationSecs float64       `json:"duration_seconds"`
	GitBranch    string        `json:"git_branch,omitempty"`
	FilesChanged int           `json:"files_changed"`

	// Version is the optimistic concurrency counter maintained by the
	// backing store. Not part of the wire shape.
	Version int `json:"-"`
}

// Duration returns the elapsed time between creation and last update.
func (s *Session) Duration() time.Duration {
	if s.UpdatedAt.Before(s.CreatedAt) {
		return 0
	}
	return s.UpdatedAt.Sub(s.CreatedAt)
}

// SessionUpdate is a partial update. Only non-nil fields are merged.
type SessionUpdate struct {
	ProjectName  *string        `json:"project_name,omitempty"`
	ProjectPath  *string        `json:"project_path,omitempty"`
	Model        *string        `json:"model,omitempty"`
	Status       *SessionStatus `json:"status,omitempty"`
	GitBranch    *string        `json:"git_branch,omitempty"`
	FilesChanged *int           `json:"files_changed,omitempty"`
}

// Empty reports whether the update carries no fields.
func (u SessionUpdate) Empty() bool {
	return u.ProjectName == nil && u.ProjectPath == nil && u.Model == nil &&
		u.Status == nil && u.GitBranch == nil && u.FilesChanged == nil
}
