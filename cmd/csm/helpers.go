package main

import (
	"fmt"
	"os"

	"github.com/ksred/claude-session-manager/internal/config"
	"github.com/ksred/claude-session-manager/internal/storage"
)

// fatalError prints the error to stderr and exits.
func fatalError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

// fatalErrorf prints a formatted error to stderr and exits.
func fatalErrorf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}

// openStorage opens the sqlite store, defaulting to the standard path.
func openStorage(dbPath string) *storage.Storage {
	if dbPath == "" {
		dbPath = config.GetPaths().DB
	}
	st, err := storage.New(dbPath)
	if err != nil {
		fatalErrorf("open database: %v", err)
	}
	return st
}

// loadConfig loads the YAML config and installs it globally.
func loadConfig() *config.Config {
	cfg, err := config.LoadFromDefaultPath()
	if err != nil {
		fatalErrorf("load config: %v", err)
	}
	config.SetGlobal(cfg)
	return cfg
}

// claudeRoot resolves the transcript directory, preferring the flag.
func claudeRoot(flag string) string {
	if flag != "" {
		return flag
	}
	return config.GetPaths().ClaudeProjects
}
