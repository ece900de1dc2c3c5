package claude

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// ErrNoTranscript is returned when no transcript file exists for a
// session id.
var ErrNoTranscript = errors.New("no transcript found")

// DecodeProjectDir converts an encoded project directory name back to a
// path: "-Users-dev-api" becomes "/Users/dev/api". The encoding is lossy
// for paths containing hyphens, so the decoded value is only a fallback
// until a message reveals the real working directory.
func DecodeProjectDir(name string) string {
	if name == "" {
		return ""
	}
	return strings.ReplaceAll(name, "-", "/")
}

// ProjectNameFromPath derives a display name from a project path.
func ProjectNameFromPath(path string) string {
	base := filepath.Base(path)
	if base == "." || base == "/" || base == "" {
		return "unknown"
	}
	return base
}

// SessionIDFromPath extracts the session id from a transcript filename.
func SessionIDFromPath(path string) string {
	return strings.TrimSuffix(filepath.Base(path), ".jsonl")
}

// DiscoverTranscripts returns every transcript file under the projects
// root.
func DiscoverTranscripts(root string) ([]string, error) {
	var matches []string

	fsys := os.DirFS(root)
	err := doublestar.GlobWalk(fsys, "**/*.jsonl", func(path string, d fs.DirEntry) error {
		if !d.IsDir() {
			matches = append(matches, filepath.Join(root, path))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("glob transcripts: %w", err)
	}

	return matches, nil
}

var errFound = errors.New("found")

// FindTranscript locates the transcript file for one session id.
func FindTranscript(root, sessionID string) (string, error) {
	var found string

	fsys := os.DirFS(root)
	pattern := "**/" + sessionID + ".jsonl"
	err := doublestar.GlobWalk(fsys, pattern, func(path string, d fs.DirEntry) error {
		if !d.IsDir() {
			found = filepath.Join(root, path)
			return errFound
		}
		return nil
	})
	if err != nil && !errors.Is(err, errFound) {
		return "", fmt.Errorf("glob transcript: %w", err)
	}
	if found == "" {
		return "", fmt.Errorf("%w for session %s", ErrNoTranscript, sessionID)
	}

	return found, nil
}
