package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEnv(t *testing.T) {
	// Reset env for clean test
	ResetEnv()

	os.Setenv("CSM_HTTP_ADDR", ":9999")
	os.Setenv("CSM_DB_PATH", "/tmp/test.db")
	os.Setenv("CSM_LOG_LEVEL", "debug")
	defer func() {
		os.Unsetenv("CSM_HTTP_ADDR")
		os.Unsetenv("CSM_DB_PATH")
		os.Unsetenv("CSM_LOG_LEVEL")
		ResetEnv()
	}()

	env := Env()

	assert.Equal(t, ":9999", env.HTTPAddr)
	assert.Equal(t, "/tmp/test.db", env.DBPath)
	assert.Equal(t, "debug", env.LogLevel)
}

func TestEnvDefaults(t *testing.T) {
	ResetEnv()

	os.Unsetenv("CSM_HTTP_ADDR")
	os.Unsetenv("CSM_LOG_LEVEL")
	defer ResetEnv()

	env := Env()

	assert.Equal(t, ":8081", env.HTTPAddr)
	assert.Equal(t, "info", env.LogLevel)
}

func TestEnvSingleton(t *testing.T) {
	ResetEnv()
	defer ResetEnv()

	env1 := Env()
	env2 := Env()

	// Should return same instance
	assert.Same(t, env1, env2)
}

func TestResetEnv(t *testing.T) {
	os.Setenv("CSM_LOG_LEVEL", "warn")
	ResetEnv()
	env1 := Env()
	assert.Equal(t, "warn", env1.LogLevel)

	os.Setenv("CSM_LOG_LEVEL", "error")
	ResetEnv()

	env2 := Env()
	assert.Equal(t, "error", env2.LogLevel)

	// Cleanup
	os.Unsetenv("CSM_LOG_LEVEL")
	ResetEnv()
}

func TestGetEnvDefault(t *testing.T) {
	tests := []struct {
		name     string
		key      string
		envVal   string
		fallback string
		want     string
	}{
		{"env set", "TEST_KEY", "value", "default", "value"},
		{"env empty", "TEST_KEY", "", "default", "default"},
		{"env not set", "TEST_KEY_NOTSET", "", "fallback", "fallback"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envVal != "" {
				os.Setenv(tt.key, tt.envVal)
				defer os.Unsetenv(tt.key)
			}
			got := getEnvDefault(tt.key, tt.fallback)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGetPaths(t *testing.T) {
	ResetEnv()
	os.Unsetenv("CSM_DB_PATH")
	os.Unsetenv("CSM_CLAUDE_DIR")
	defer ResetEnv()

	paths := GetPaths()

	assert.NotEmpty(t, paths.Home)
	assert.Contains(t, paths.Home, ".claude-session-manager")
	assert.Equal(t, filepath.Join(paths.Home, "sessions.db"), paths.DB)
	assert.Contains(t, paths.ClaudeProjects, filepath.Join(".claude", "projects"))
}

func TestGetPathsOverrides(t *testing.T) {
	ResetEnv()
	os.Setenv("CSM_DB_PATH", "/data/override.db")
	os.Setenv("CSM_CLAUDE_DIR", "/data/claude")
	defer func() {
		os.Unsetenv("CSM_DB_PATH")
		os.Unsetenv("CSM_CLAUDE_DIR")
		ResetEnv()
	}()

	paths := GetPaths()

	assert.Equal(t, "/data/override.db", paths.DB)
	assert.Equal(t, "/data/claude", paths.ClaudeProjects)
}

func TestEnsureDir(t *testing.T) {
	tempDir := filepath.Join(os.TempDir(), "csm-test-ensure")
	defer os.RemoveAll(tempDir)

	os.RemoveAll(tempDir)

	err := EnsureDir(tempDir)
	assert.NoError(t, err)

	info, err := os.Stat(tempDir)
	assert.NoError(t, err)
	assert.True(t, info.IsDir())

	// Running again should be idempotent
	err = EnsureDir(tempDir)
	assert.NoError(t, err)
}
