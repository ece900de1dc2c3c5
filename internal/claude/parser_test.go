package claude

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTranscript(t *testing.T, dir, sessionID string, lines ...string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0755))
	path := filepath.Join(dir, sessionID+".jsonl")
	content := strings.Join(lines, "\n") + "\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func appendTranscript(t *testing.T, path string, lines ...string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	require.NoError(t, err)
	defer f.Close()
	_, err = f.WriteString(strings.Join(lines, "\n") + "\n")
	require.NoError(t, err)
}

const (
	summaryLine = `{"type":"summary","summary":"Fix auth bug"}`
	userLine    = `{"type":"user","timestamp":"2026-08-25T10:00:00Z","uuid":"u1","sessionId":"sess-1","cwd":"/Users/dev/api","gitBranch":"main","message":{"role":"user","content":[{"type":"text","text":"hi"}]}}`
	asstLine    = `{"type":"assistant","timestamp":"2026-08-25T10:00:05Z","uuid":"a1","sessionId":"sess-1","cwd":"/Users/dev/api","gitBranch":"main","message":{"role":"assistant","model":"claude-opus-4","content":[],"usage":{"input_tokens":100,"output_tokens":25,"cache_creation_input_tokens":10,"cache_read_input_tokens":5}}}`
)

func TestParseFile(t *testing.T) {
	path := writeTranscript(t, t.TempDir(), "sess-1",
		summaryLine,
		userLine,
		"this is not json",
		asstLine,
		asstLine, // duplicate uuid, must be dropped
	)

	messages, meta, err := ParseFile(path)
	require.NoError(t, err)

	require.Len(t, messages, 2)
	assert.Equal(t, "u1", messages[0].UUID)
	assert.Equal(t, "user", messages[0].Role)
	assert.False(t, messages[0].HasUsage)
	assert.Equal(t, time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC), messages[0].Timestamp)

	assert.Equal(t, "a1", messages[1].UUID)
	assert.Equal(t, "assistant", messages[1].Role)
	assert.Equal(t, "claude-opus-4", messages[1].Model)
	assert.True(t, messages[1].HasUsage)
	assert.Equal(t, 100, messages[1].Usage.Input)
	assert.Equal(t, 25, messages[1].Usage.Output)
	assert.Equal(t, 10, messages[1].Usage.CacheCreation)
	assert.Equal(t, 5, messages[1].Usage.CacheRead)

	assert.Equal(t, "sess-1", meta.SessionID)
	assert.Equal(t, "/Users/dev/api", meta.CWD)
	assert.Equal(t, "main", meta.GitBranch)
	assert.Equal(t, "claude-opus-4", meta.Model)
	assert.Equal(t, 1, meta.BadLines)
}

func TestParseFileFirstWorkingDirectoryWins(t *testing.T) {
	later := strings.ReplaceAll(asstLine, "/Users/dev/api", "/somewhere/else")
	path := writeTranscript(t, t.TempDir(), "sess-1", userLine, later)

	_, meta, err := ParseFile(path)
	require.NoError(t, err)
	assert.Equal(t, "/Users/dev/api", meta.CWD)
}

func TestParseFileFrom(t *testing.T) {
	path := writeTranscript(t, t.TempDir(), "sess-1", userLine)

	messages, _, offset, err := ParseFileFrom(path, 0)
	require.NoError(t, err)
	require.Len(t, messages, 1)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, info.Size(), offset)

	// Nothing new yet.
	messages, _, next, err := ParseFileFrom(path, offset)
	require.NoError(t, err)
	assert.Empty(t, messages)
	assert.Equal(t, offset, next)

	appendTranscript(t, path, asstLine)
	messages, meta, next, err := ParseFileFrom(path, offset)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, "a1", messages[0].UUID)
	assert.Greater(t, next, offset)
	assert.Equal(t, "/Users/dev/api", meta.CWD)
}

func TestParseFileFromPartialLine(t *testing.T) {
	path := writeTranscript(t, t.TempDir(), "sess-1", userLine)

	// Simulate a write in progress: half a record, no newline yet.
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	require.NoError(t, err)
	_, err = f.WriteString(asstLine[:40])
	require.NoError(t, err)
	require.NoError(t, f.Close())

	messages, _, offset, err := ParseFileFrom(path, 0)
	require.NoError(t, err)
	require.Len(t, messages, 1)

	// The fragment stays unconsumed until its newline lands.
	appendTranscript(t, path, asstLine[40:])
	messages, _, _, err = ParseFileFrom(path, offset)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, "a1", messages[0].UUID)
	assert.True(t, messages[0].HasUsage)
}

func TestParseFileMissing(t *testing.T) {
	_, _, err := ParseFile(filepath.Join(t.TempDir(), "absent.jsonl"))
	assert.Error(t, err)
}

func TestDecodeProjectDir(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"-Users-dev-api", "/Users/dev/api"},
		{"-home-user-web", "/home/user/web"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, DecodeProjectDir(tt.in))
	}
}

func TestProjectNameFromPath(t *testing.T) {
	assert.Equal(t, "api", ProjectNameFromPath("/Users/dev/api"))
	assert.Equal(t, "unknown", ProjectNameFromPath("/"))
	assert.Equal(t, "unknown", ProjectNameFromPath(""))
}

func TestSessionIDFromPath(t *testing.T) {
	assert.Equal(t, "sess-1", SessionIDFromPath("/root/proj/sess-1.jsonl"))
}

func TestDiscoverTranscripts(t *testing.T) {
	root := t.TempDir()
	writeTranscript(t, filepath.Join(root, "-Users-dev-api"), "sess-1", userLine)
	writeTranscript(t, filepath.Join(root, "-Users-dev-web"), "sess-2", userLine)
	require.NoError(t, os.WriteFile(filepath.Join(root, "notes.txt"), []byte("x"), 0644))

	paths, err := DiscoverTranscripts(root)
	require.NoError(t, err)
	assert.Len(t, paths, 2)
	for _, p := range paths {
		assert.True(t, strings.HasSuffix(p, ".jsonl"))
	}
}

func TestFindTranscript(t *testing.T) {
	root := t.TempDir()
	want := writeTranscript(t, filepath.Join(root, "-Users-dev-api"), "sess-1", userLine)

	got, err := FindTranscript(root, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, want, got)

	_, err = FindTranscript(root, "sess-9")
	assert.ErrorIs(t, err, ErrNoTranscript)
}
