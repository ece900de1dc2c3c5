// Package logging provides structured JSON logging for session manager components.
package logging

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"
)

// Level represents log severity
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// levelRank orders severities for threshold checks
var levelRank = map[Level]int{
	LevelDebug: 0,
	LevelInfo:  1,
	LevelWarn:  2,
	LevelError: 3,
}

var (
	minLevel     Level
	minLevelOnce sync.Once
)

// threshold returns the minimum emitted level from CSM_LOG_LEVEL (default info).
func threshold() Level {
	minLevelOnce.Do(func() {
		minLevel = Level(os.Getenv("CSM_LOG_LEVEL"))
		if _, ok := levelRank[minLevel]; !ok {
			minLevel = LevelInfo
		}
	})
	return minLevel
}

// ResetLevel re-reads the log level from the environment (for testing).
func ResetLevel() {
	minLevelOnce = sync.Once{}
	minLevel = ""
}

func enabled(level Level) bool {
	return levelRank[level] >= levelRank[threshold()]
}

// Event represents a structured log event
type Event struct {
	Timestamp string                 `json:"ts"`
	Level     Level                  `json:"level"`
	Component string                 `json:"component"`
	Event     string                 `json:"event"`
	Session   string                 `json:"session,omitempty"`
	Project   string                 `json:"project,omitempty"`
	Duration  int64                  `json:"duration_ms,omitempty"`
	Error     string                 `json:"error,omitempty"`
	Extra     map[string]interface{} `json:"extra,omitempty"`
}

// Logger provides structured logging
type Logger struct {
	component string
	project   string
	session   string
}

// New creates a new logger for a component
func New(component string) *Logger {
	return &Logger{component: component}
}

// WithProject sets the project context
func (l *Logger) WithProject(project string) *Logger {
	return &Logger{
		component: l.component,
		project:   project,
		session:   l.session,
	}
}

// WithSession sets the session context
func (l *Logger) WithSession(session string) *Logger {
	return &Logger{
		component: l.component,
		project:   l.project,
		session:   session,
	}
}

// log emits a structured log event
func (l *Logger) log(level Level, event string, extra map[string]interface{}, err error) {
	if !enabled(level) {
		return
	}

	e := Event{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Level:     level,
		Component: l.component,
		Event:     event,
		Session:   l.session,
		Project:   l.project,
		Extra:     extra,
	}

	if err != nil {
		e.Error = err.Error()
	}

	emit(e)
}

func emit(e Event) {
	data, _ := json.Marshal(e)
	fmt.Fprintln(os.Stderr, string(data))
}

// Debug logs a debug event
func (l *Logger) Debug(event string, extra map[string]interface{}) {
	l.log(LevelDebug, event, extra, nil)
}

// Info logs an info event
func (l *Logger) Info(event string, extra map[string]interface{}) {
	l.log(LevelInfo, event, extra, nil)
}

// Warn logs a warning event
func (l *Logger) Warn(event string, extra map[string]interface{}, err error) {
	l.log(LevelWarn, event, extra, err)
}

// Error logs an error event
func (l *Logger) Error(event string, extra map[string]interface{}, err error) {
	l.log(LevelError, event, extra, err)
}

// TimedEvent logs an event with duration
func (l *Logger) TimedEvent(event string, start time.Time, extra map[string]interface{}) {
	if !enabled(LevelInfo) {
		return
	}

	e := Event{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Level:     LevelInfo,
		Component: l.component,
		Event:     event,
		Session:   l.session,
		Project:   l.project,
		Duration:  time.Since(start).Milliseconds(),
		Extra:     extra,
	}

	emit(e)
}

// IngestEvent logs a transcript ingest pass for a session
func IngestEvent(sessionID, file string, messages int, duration time.Duration, err error) {
	level := LevelInfo
	if err != nil {
		level = LevelError
	}
	if !enabled(level) {
		return
	}

	e := Event{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Level:     level,
		Component: "ingest",
		Event:     "scan",
		Session:   sessionID,
		Duration:  duration.Milliseconds(),
		Extra: map[string]interface{}{
			"file":     file,
			"messages": messages,
		},
	}

	if err != nil {
		e.Error = err.Error()
	}

	emit(e)
}

// ReconcileEvent logs a reconciler phase result for a session
func ReconcileEvent(event, sessionID, path string, err error) {
	level := LevelInfo
	if err != nil {
		level = LevelError
	}
	if !enabled(level) {
		return
	}

	e := Event{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Level:     level,
		Component: "reconciler",
		Event:     event,
		Session:   sessionID,
		Extra: map[string]interface{}{
			"path": path,
		},
	}

	if err != nil {
		e.Error = err.Error()
	}

	emit(e)
}

// DropEvent logs a live-update subscriber disconnected for slow consumption
func DropEvent(subscriberID, sessionID string, queued int) {
	if !enabled(LevelWarn) {
		return
	}

	e := Event{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Level:     LevelWarn,
		Component: "broadcast",
		Event:     "subscriber_dropped",
		Session:   sessionID,
		Extra: map[string]interface{}{
			"subscriber": subscriberID,
			"queued":     queued,
		},
	}

	emit(e)
}
