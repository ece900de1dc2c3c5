// Package reconcile repairs stored project paths from transcript
// evidence. Early releases persisted placeholder paths (the encoded
// project directory, or "/") for sessions created before their first
// message arrived; the reconciler walks each session's messages, takes
// the earliest recorded working directory as authoritative, and corrects
// the session row without disturbing its listing position.
package reconcile

import (
	"context"
	"errors"
	"time"

	"github.com/ksred/claude-session-manager/internal/alerts"
	"github.com/ksred/claude-session-manager/internal/domain"
	"github.com/ksred/claude-session-manager/internal/logging"
	"github.com/ksred/claude-session-manager/internal/metrics"
	"github.com/ksred/claude-session-manager/internal/session"
	"github.com/ksred/claude-session-manager/internal/store"
)

// Reconciler proposes and applies project-path corrections. Proposing is
// a pure read; only Apply writes, and every write goes through the
// session manager so locks and broadcast apply as for any other change.
type Reconciler struct {
	sessions domain.SessionStore
	source   domain.MessageSource
	mgr      *session.Manager
	log      *logging.Logger
}

// New creates a Reconciler.
func New(sessions domain.SessionStore, source domain.MessageSource, mgr *session.Manager) *Reconciler {
	return &Reconciler{
		sessions: sessions,
		source:   source,
		mgr:      mgr,
		log:      logging.New("reconciler"),
	}
}

// DryRun scans every session and returns the proposed corrections with a
// report of the scan. Nothing is written; callers preview the records
// and pass them to Apply once confirmed.
func (r *Reconciler) DryRun(ctx context.Context) ([]domain.MigrationRecord, domain.MigrationReport, error) {
	var (
		records []domain.MigrationRecord
		report  domain.MigrationReport
	)

	sessions, err := r.sessions.ListSessions(ctx, store.Filter{OrderBy: "created_at"})
	if err != nil {
		return nil, report, err
	}

	for _, sess := range sessions {
		if err := ctx.Err(); err != nil {
			return records, report, err
		}
		report.Scanned++

		ev, found, err := r.evidenceFor(ctx, sess.ID)
		if err != nil {
			return records, report, err
		}
		if !found || ev.path == sess.ProjectPath {
			report.Skipped++
			continue
		}

		records = append(records, domain.MigrationRecord{
			SessionID:    sess.ID,
			OldPath:      sess.ProjectPath,
			ProposedPath: ev.path,
			EvidenceID:   ev.messageID,
			EvidenceTime: ev.at,
		})
		report.Changed++
		logging.ReconcileEvent("propose", sess.ID, ev.path, nil)
	}

	return records, report, nil
}

// Apply commits the proposed corrections. Each session is corrected
// independently: a failure is recorded in the report and the run moves
// on. Cancellation stops further work but leaves finished corrections
// intact; the error reports whether the run was cut short.
func (r *Reconciler) Apply(ctx context.Context, records []domain.MigrationRecord) (domain.MigrationReport, error) {
	report := domain.MigrationReport{Scanned: len(records)}

	for i := range records {
		rec := &records[i]
		if err := ctx.Err(); err != nil {
			report.Skipped += len(records) - i
			return report, err
		}
		if rec.ProposedPath == "" || rec.ProposedPath == rec.OldPath {
			report.Skipped++
			continue
		}

		if _, err := r.mgr.SetProjectPath(ctx, rec.SessionID, rec.ProposedPath); err != nil {
			report.Failed++
			if report.Failures == nil {
				report.Failures = make(map[string]string)
			}
			report.Failures[rec.SessionID] = err.Error()
			metrics.Global().RecordReconcileApply(false)
			logging.ReconcileEvent("apply", rec.SessionID, rec.ProposedPath, err)
			alerts.Error("reconciler", "Path Correction Failed",
				"could not correct project path for session "+rec.SessionID,
				map[string]interface{}{"session_id": rec.SessionID, "path": rec.ProposedPath})
			continue
		}

		rec.Applied = true
		report.Changed++
		metrics.Global().RecordReconcileApply(true)
		logging.ReconcileEvent("apply", rec.SessionID, rec.ProposedPath, nil)
	}

	return report, nil
}

type evidence struct {
	path      string
	messageID string
	at        time.Time
}

// evidenceFor returns the earliest working directory recorded in a
// session's messages. Sessions without a transcript or without any
// recorded directory yield found=false rather than an error; only
// cancellation aborts the scan.
func (r *Reconciler) evidenceFor(ctx context.Context, sessionID string) (evidence, bool, error) {
	messages, err := r.source.MessagesForSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return evidence{}, false, err
		}
		r.log.Debug("no_evidence", map[string]interface{}{"session": sessionID})
		return evidence{}, false, nil
	}

	for _, msg := range messages {
		if msg.WorkingDirectory != "" {
			return evidence{path: msg.WorkingDirectory, messageID: msg.ID, at: msg.Timestamp}, true, nil
		}
	}
	return evidence{}, false, nil
}
