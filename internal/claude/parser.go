// Package claude reads Claude Code's on-disk JSONL transcripts under
// ~/.claude/projects. It is the external message source for the session
// manager: the ingest watcher tails the files live, and the reconciler
// replays them to recover real project paths.
package claude

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"os"
	"time"

	"github.com/ksred/claude-session-manager/internal/domain"
)

// maxLineSize bounds a single transcript line. Tool results can carry
// large payloads.
const maxLineSize = 2 * 1024 * 1024

// record mirrors one line of a transcript file.
type record struct {
	Type      string   `json:"type"`
	Timestamp string   `json:"timestamp"`
	UUID      string   `json:"uuid"`
	SessionID string   `json:"sessionId"`
	GitBranch string   `json:"gitBranch"`
	CWD       string   `json:"cwd"`
	Message   *message `json:"message,omitempty"`
}

type message struct {
	Role  string        `json:"role"`
	Model string        `json:"model,omitempty"`
	Usage *messageUsage `json:"usage,omitempty"`
}

type messageUsage struct {
	InputTokens              int `json:"input_tokens"`
	OutputTokens             int `json:"output_tokens"`
	CacheCreationInputTokens int `json:"cache_creation_input_tokens"`
	CacheReadInputTokens     int `json:"cache_read_input_tokens"`
}

// Message is one parsed transcript message, reduced to the fields the
// session manager tracks.
type Message struct {
	UUID      string
	SessionID string
	Role      string
	Model     string
	Timestamp time.Time
	Usage     domain.TokenUsage
	HasUsage  bool
}

// Meta is per-file session metadata. The first value found wins; later
// messages never overwrite it, matching the rule that the earliest
// recorded working directory is authoritative.
type Meta struct {
	SessionID string
	CWD       string
	GitBranch string
	Model     string

	// BadLines counts lines that failed to parse and were skipped.
	BadLines int
}

type parseState struct {
	messages []Message
	meta     Meta
	seen     map[string]bool
	offset   int64
}

func (ps *parseState) processLine(line []byte) {
	ps.offset += int64(len(line)) + 1
	if len(line) == 0 {
		return
	}

	var rec record
	if err := json.Unmarshal(line, &rec); err != nil {
		ps.meta.BadLines++
		return
	}

	ps.captureMeta(&rec)

	if rec.Message == nil {
		return
	}
	if rec.UUID != "" {
		if ps.seen[rec.UUID] {
			return
		}
		ps.seen[rec.UUID] = true
	}

	msg := Message{
		UUID:      rec.UUID,
		SessionID: rec.SessionID,
		Role:      rec.Message.Role,
		Model:     rec.Message.Model,
		Timestamp: parseTimestamp(rec.Timestamp),
	}
	if u := rec.Message.Usage; u != nil {
		msg.Usage = domain.TokenUsage{
			Input:         u.InputTokens,
			Output:        u.OutputTokens,
			CacheCreation: u.CacheCreationInputTokens,
			CacheRead:     u.CacheReadInputTokens,
		}
		msg.HasUsage = !msg.Usage.IsZero()
	}
	ps.messages = append(ps.messages, msg)
}

func (ps *parseState) captureMeta(rec *record) {
	if ps.meta.SessionID == "" && rec.SessionID != "" {
		ps.meta.SessionID = rec.SessionID
	}
	if ps.meta.CWD == "" && rec.CWD != "" {
		ps.meta.CWD = rec.CWD
	}
	if ps.meta.GitBranch == "" && rec.GitBranch != "" {
		ps.meta.GitBranch = rec.GitBranch
	}
	if ps.meta.Model == "" && rec.Message != nil && rec.Message.Model != "" {
		ps.meta.Model = rec.Message.Model
	}
}

func parseTimestamp(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}

// ParseFile reads a whole transcript.
func ParseFile(path string) ([]Message, Meta, error) {
	messages, meta, _, err := ParseFileFrom(path, 0)
	return messages, meta, err
}

// ParseFileFrom reads a transcript starting at a byte offset, returning
// the messages found, the file metadata, and the offset where parsing
// stopped. Unparsable lines are skipped and counted, never fatal.
func ParseFileFrom(path string, offset int64) ([]Message, Meta, int64, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, Meta{}, offset, err
	}
	defer file.Close()

	if offset > 0 {
		if _, err := file.Seek(offset, 0); err != nil {
			return nil, Meta{}, offset, err
		}
	}

	ps := &parseState{seen: make(map[string]bool), offset: offset}

	reader := bufio.NewReaderSize(file, 64*1024)
	for {
		line, err := reader.ReadBytes('\n')
		if errors.Is(err, io.EOF) {
			// A trailing fragment without a newline is a write in
			// progress. Leave it unconsumed; the next pass rereads the
			// whole line.
			break
		}
		if err != nil {
			return ps.messages, ps.meta, ps.offset, err
		}
		ps.processLine(bytes.TrimSuffix(line, []byte("\n")))
	}

	return ps.messages, ps.meta, ps.offset, nil
}
