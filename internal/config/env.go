// Package config provides centralized configuration: environment variables
// for deployment knobs and paths, an optional YAML file for tunables.
package config

import (
	"os"
	"path/filepath"
	"sync"
)

// CSMEnv holds all session manager environment variables.
type CSMEnv struct {
	// HTTPAddr is the query/live-channel listen address (CSM_HTTP_ADDR)
	HTTPAddr string

	// DBPath overrides the sqlite database location (CSM_DB_PATH)
	DBPath string

	// ClaudeDir overrides the Claude Code projects directory holding the
	// JSONL transcripts (CSM_CLAUDE_DIR)
	ClaudeDir string

	// ConfigFile overrides the YAML config location (CSM_CONFIG)
	ConfigFile string

	// LogLevel sets the minimum log level (CSM_LOG_LEVEL)
	LogLevel string
}

var (
	env     *CSMEnv
	envOnce sync.Once
)

// Env returns the singleton environment configuration.
// Thread-safe, loads once on first call.
func Env() *CSMEnv {
	envOnce.Do(func() {
		env = &CSMEnv{
			HTTPAddr:   getEnvDefault("CSM_HTTP_ADDR", ":8081"),
			DBPath:     os.Getenv("CSM_DB_PATH"),
			ClaudeDir:  os.Getenv("CSM_CLAUDE_DIR"),
			ConfigFile: os.Getenv("CSM_CONFIG"),
			LogLevel:   getEnvDefault("CSM_LOG_LEVEL", "info"),
		}
	})
	return env
}

// ResetEnv resets the cached environment and paths (for testing).
func ResetEnv() {
	envOnce = sync.Once{}
	env = nil
	pathsOnce = sync.Once{}
	paths = nil
}

func getEnvDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// Paths holds the standard session manager directory paths.
type Paths struct {
	// Home is the session manager home directory (~/.claude-session-manager)
	Home string

	// DB is the sqlite database path (~/.claude-session-manager/sessions.db)
	DB string

	// Alerts is the operational alert directory (~/.claude-session-manager/alerts)
	Alerts string

	// ClaudeProjects is the Claude Code projects directory (~/.claude/projects)
	ClaudeProjects string
}

var (
	paths     *Paths
	pathsOnce sync.Once
)

// GetPaths returns the singleton paths configuration. Environment
// overrides win over the home-derived defaults.
func GetPaths() *Paths {
	pathsOnce.Do(func() {
		home, err := os.UserHomeDir()
		if err != nil {
			home = "."
		}
		csmHome := filepath.Join(home, ".claude-session-manager")

		paths = &Paths{
			Home:           csmHome,
			DB:             filepath.Join(csmHome, "sessions.db"),
			Alerts:         filepath.Join(csmHome, "alerts"),
			ClaudeProjects: filepath.Join(home, ".claude", "projects"),
		}
		if e := Env(); e.DBPath != "" {
			paths.DB = e.DBPath
		}
		if e := Env(); e.ClaudeDir != "" {
			paths.ClaudeProjects = e.ClaudeDir
		}
	})
	return paths
}

// EnsureDir creates a directory if it doesn't exist.
func EnsureDir(path string) error {
	return os.MkdirAll(path, 0755)
}
