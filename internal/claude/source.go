package claude

import (
	"bufio"
	"context"
	"encoding/json"
	"os"

	"github.com/ksred/claude-session-manager/internal/domain"
)

// Source exposes transcripts as the reconciler's read-only message
// source.
type Source struct {
	root string
}

var _ domain.MessageSource = (*Source)(nil)

// NewSource creates a Source over the Claude projects directory.
func NewSource(root string) *Source {
	return &Source{root: root}
}

// MessagesForSession returns the session's raw messages in file order,
// which is chronological for append-only transcripts. Returns
// ErrNoTranscript when the session has no file.
func (s *Source) MessagesForSession(ctx context.Context, sessionID string) ([]domain.SourceMessage, error) {
	path, err := FindTranscript(s.root, sessionID)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var out []domain.SourceMessage
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var rec record
		if err := json.Unmarshal(line, &rec); err != nil {
			continue
		}
		out = append(out, domain.SourceMessage{
			ID:               rec.UUID,
			Timestamp:        parseTimestamp(rec.Timestamp),
			Payload:          string(line),
			WorkingDirectory: rec.CWD,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return out, nil
}
