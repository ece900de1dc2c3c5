package claude

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/ksred/claude-session-manager/internal/domain"
	"github.com/ksred/claude-session-manager/internal/logging"
	"github.com/ksred/claude-session-manager/internal/metrics"
	"github.com/ksred/claude-session-manager/internal/session"
)

// Ingester tails transcripts and feeds the session manager: sessions are
// created on first sight, usage and activity recorded per message. Ingest
// positions persist in the offset store so a restart never double-counts.
type Ingester struct {
	mgr     *session.Manager
	offsets domain.OffsetStore
	root    string
	log     *logging.Logger
}

// NewIngester creates an Ingester over the Claude projects directory.
func NewIngester(mgr *session.Manager, offsets domain.OffsetStore, root string) *Ingester {
	return &Ingester{
		mgr:     mgr,
		offsets: offsets,
		root:    root,
		log:     logging.New("ingest"),
	}
}

// Run ingests existing transcripts, then tails the projects tree until
// the context ends. Per-file failures are logged and never stop the loop.
func (in *Ingester) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(in.root); err != nil {
		in.log.Warn("watch_root", map[string]interface{}{"dir": in.root}, err)
	}

	in.scanAll(ctx, watcher)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			in.handleEvent(ctx, watcher, event)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			in.log.Warn("watcher_error", nil, err)
		}
	}
}

// scanAll discovers and ingests every transcript under the root, adding
// each project directory to the watch set.
func (in *Ingester) scanAll(ctx context.Context, watcher *fsnotify.Watcher) {
	paths, err := DiscoverTranscripts(in.root)
	if err != nil {
		in.log.Warn("discover", map[string]interface{}{"dir": in.root}, err)
		return
	}

	for _, path := range paths {
		if ctx.Err() != nil {
			return
		}
		if watcher != nil {
			_ = watcher.Add(filepath.Dir(path))
		}
		if err := in.ingestFile(ctx, path); err != nil {
			in.log.Error("ingest_file", map[string]interface{}{"file": path}, err)
		}
	}
}

func (in *Ingester) handleEvent(ctx context.Context, watcher *fsnotify.Watcher, event fsnotify.Event) {
	// New project directories appear after the root watch was set up.
	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			_ = watcher.Add(event.Name)
			return
		}
	}

	if !strings.HasSuffix(event.Name, ".jsonl") {
		return
	}
	if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
		return
	}

	if err := in.ingestFile(ctx, event.Name); err != nil {
		in.log.Error("ingest_file", map[string]interface{}{"file": event.Name}, err)
	}
}

// ingestFile parses a transcript from its stored offset and applies the
// new messages.
func (in *Ingester) ingestFile(ctx context.Context, path string) error {
	start := time.Now()
	sessionID := SessionIDFromPath(path)

	offset, err := in.offsets.Offset(ctx, path)
	if err != nil {
		return err
	}
	if info, statErr := os.Stat(path); statErr == nil && info.Size() < offset {
		// Shorter than last time means the file was replaced. Start over.
		in.log.Warn("transcript_truncated", map[string]interface{}{"file": path}, nil)
		offset = 0
	}

	messages, meta, newOffset, err := ParseFileFrom(path, offset)
	if err != nil {
		in.recordParseFailure(ctx, sessionID, err)
		metrics.Global().RecordIngest(false, time.Since(start).Milliseconds())
		logging.IngestEvent(sessionID, path, 0, time.Since(start), err)
		return err
	}
	if meta.BadLines > 0 {
		in.log.Warn("bad_lines", map[string]interface{}{"file": path, "count": meta.BadLines}, nil)
	}
	if newOffset == offset {
		return nil
	}

	if err := in.apply(ctx, sessionID, path, messages, meta); err != nil {
		metrics.Global().RecordIngest(false, time.Since(start).Milliseconds())
		logging.IngestEvent(sessionID, path, len(messages), time.Since(start), err)
		return err
	}

	if err := in.offsets.SetOffset(ctx, path, newOffset); err != nil {
		return err
	}
	metrics.Global().RecordIngest(true, time.Since(start).Milliseconds())
	logging.IngestEvent(sessionID, path, len(messages), time.Since(start), nil)
	return nil
}

func (in *Ingester) apply(ctx context.Context, sessionID, path string, messages []Message, meta Meta) error {
	if len(messages) == 0 {
		return nil
	}

	projectPath := meta.CWD
	if projectPath == "" {
		projectPath = DecodeProjectDir(filepath.Base(filepath.Dir(path)))
	}
	projectName := ProjectNameFromPath(projectPath)

	sess, _, err := in.mgr.EnsureSession(ctx, sessionID, projectName, projectPath, meta.Model)
	if err != nil {
		return err
	}

	in.refreshMetadata(ctx, sess, meta)

	for _, msg := range messages {
		at := msg.Timestamp
		if at.IsZero() {
			at = time.Now().UTC()
		}
		if msg.HasUsage {
			if _, err := in.mgr.RecordUsageAt(ctx, sessionID, msg.Usage, 1, at); err != nil {
				return err
			}
		}
		if _, err := in.mgr.AppendActivity(ctx, sessionID, domain.ActivityMessageSent, messageDetail(msg)); err != nil {
			return err
		}
	}
	return nil
}

// refreshMetadata keeps branch and model current and wakes idle sessions
// when new messages arrive. Errored sessions stay errored until an
// explicit restart.
func (in *Ingester) refreshMetadata(ctx context.Context, sess *domain.Session, meta Meta) {
	var upd domain.SessionUpdate
	if meta.GitBranch != "" && meta.GitBranch != sess.GitBranch {
		branch := meta.GitBranch
		upd.GitBranch = &branch
	}
	if sess.Model == "" && meta.Model != "" {
		model := meta.Model
		upd.Model = &model
	}
	if sess.Status == domain.StatusIdle {
		working := domain.StatusWorking
		upd.Status = &working
	}
	if upd.Empty() {
		return
	}

	if _, err := in.mgr.Update(ctx, sess.ID, upd); err != nil {
		in.log.Warn("metadata_refresh_failed", map[string]interface{}{"session": sess.ID}, err)
	}
}

func (in *Ingester) recordParseFailure(ctx context.Context, sessionID string, parseErr error) {
	if _, err := in.mgr.Get(ctx, sessionID); err != nil {
		return
	}
	_, _ = in.mgr.AppendActivity(ctx, sessionID, domain.ActivityError,
		"transcript parse failed: "+parseErr.Error())
}

func messageDetail(msg Message) string {
	role := msg.Role
	if role == "" {
		role = "unknown"
	}
	if msg.Model != "" {
		return role + " message (" + msg.Model + ")"
	}
	return role + " message"
}
