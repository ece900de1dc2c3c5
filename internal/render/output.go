package render

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/ksred/claude-session-manager/internal/domain"
)

// Renderer builds terminal output for sessions, summaries, and
// reconciler runs. Pretty mode adds color and separators; plain mode
// emits one parseable line per item.
type Renderer struct {
	pretty bool
}

// New creates a new renderer.
func New(pretty bool) *Renderer {
	return &Renderer{pretty: pretty}
}

// Sessions formats a list of sessions, one line per session.
func (r *Renderer) Sessions(sessions []*domain.Session) string {
	if len(sessions) == 0 {
		return "No sessions found"
	}

	var sb strings.Builder

	if r.pretty {
		sb.WriteString(color.CyanString("Sessions (%d)\n", len(sessions)))
		sb.WriteString(strings.Repeat("─", 60) + "\n")
	}

	for _, s := range sessions {
		r.formatSession(&sb, s)
	}

	return sb.String()
}

func (r *Renderer) formatSession(sb *strings.Builder, s *domain.Session) {
	tokens := domain.FormatTokens(s.TokenUsage.Total())
	cost := domain.FormatCost(s.TokenUsage.Cost)
	dur := FormatDuration(s.Duration())

	if r.pretty {
		fmt.Fprintf(sb, "%s %s  %-18s %-24s %6s  %7s  %s\n",
			statusMark(s.Status), ShortID(s.ID), Truncate(s.ProjectName, 18),
			Truncate(s.Model, 24), tokens, cost, dur)
		if s.GitBranch != "" {
			fmt.Fprintf(sb, "    └─ %s", s.GitBranch)
			if s.FilesChanged > 0 {
				fmt.Fprintf(sb, "  %d files", s.FilesChanged)
			}
			sb.WriteString("\n")
		}
	} else {
		fmt.Fprintf(sb, "[%s] %s project=%s model=%s tokens=%d cost=%.4f duration=%s\n",
			s.Status, s.ID, s.ProjectName, s.Model,
			s.TokenUsage.Total(), s.TokenUsage.Cost, dur)
	}
}

// Summary formats the cross-session metrics rollup.
func (r *Renderer) Summary(sum domain.MetricsSummary) string {
	var sb strings.Builder

	if r.pretty {
		sb.WriteString(color.CyanString("Session Manager\n"))
		sb.WriteString(strings.Repeat("─", 40) + "\n")
		fmt.Fprintf(&sb, "  Sessions: %d (%s active)\n",
			sum.TotalSessions, activeCount(sum.ActiveSessions))
		fmt.Fprintf(&sb, "  Tokens:   %s\n", domain.FormatTokens(sum.TotalTokens))
		fmt.Fprintf(&sb, "  Cost:     %s\n", domain.FormatCost(sum.TotalCost))

		if len(sum.ByModel) > 0 {
			sb.WriteString("\nBY MODEL:\n")
			for _, m := range sum.ByModel {
				fmt.Fprintf(&sb, "  %-28s %d sessions  %6s  %s\n",
					Truncate(m.Model, 28), m.Sessions,
					domain.FormatTokens(m.Usage.Total()), domain.FormatCost(m.Usage.Cost))
			}
		}
		if len(sum.ByProject) > 0 {
			sb.WriteString("\nBY PROJECT:\n")
			for _, p := range sum.ByProject {
				fmt.Fprintf(&sb, "  %-28s %d sessions  %6s  %s\n",
					Truncate(p.Project, 28), p.Sessions,
					domain.FormatTokens(p.Usage.Total()), domain.FormatCost(p.Usage.Cost))
			}
		}
	} else {
		fmt.Fprintf(&sb, "sessions=%d active=%d tokens=%d cost=%.4f\n",
			sum.TotalSessions, sum.ActiveSessions, sum.TotalTokens, sum.TotalCost)
	}

	return sb.String()
}

// MigrationRecords formats the corrections a reconciler dry run proposed.
func (r *Renderer) MigrationRecords(records []domain.MigrationRecord) string {
	if len(records) == 0 {
		return "No path corrections needed"
	}

	var sb strings.Builder

	if r.pretty {
		sb.WriteString(color.CyanString("Proposed path corrections (%d)\n", len(records)))
		sb.WriteString(strings.Repeat("─", 60) + "\n")
	}

	for _, rec := range records {
		r.formatRecord(&sb, rec)
	}

	return sb.String()
}

func (r *Renderer) formatRecord(sb *strings.Builder, rec domain.MigrationRecord) {
	if r.pretty {
		fmt.Fprintf(sb, "%s  %s → %s\n",
			ShortID(rec.SessionID),
			color.HiBlackString(rec.OldPath),
			color.GreenString(rec.ProposedPath))
		fmt.Fprintf(sb, "    └─ evidence %s @ %s\n",
			ShortID(rec.EvidenceID), rec.EvidenceTime.Format("2006-01-02 15:04:05"))
	} else {
		fmt.Fprintf(sb, "%s old=%s new=%s evidence=%s\n",
			rec.SessionID, rec.OldPath, rec.ProposedPath, rec.EvidenceID)
	}
}

// MigrationReport formats the outcome of a reconciler run.
func (r *Renderer) MigrationReport(rep domain.MigrationReport) string {
	var sb strings.Builder

	if r.pretty {
		sb.WriteString(color.CyanString("Reconcile complete\n"))
		sb.WriteString(strings.Repeat("─", 40) + "\n")
		fmt.Fprintf(&sb, "  Scanned: %d\n", rep.Scanned)
		fmt.Fprintf(&sb, "  Changed: %d\n", rep.Changed)
		fmt.Fprintf(&sb, "  Skipped: %d\n", rep.Skipped)
		if rep.Failed > 0 {
			fmt.Fprintf(&sb, "  Failed:  %s\n", color.RedString("%d", rep.Failed))
		} else {
			fmt.Fprintf(&sb, "  Failed:  %d\n", rep.Failed)
		}

		if len(rep.Failures) > 0 {
			sb.WriteString("\nFAILURES:\n")
			for _, id := range sortedKeys(rep.Failures) {
				fmt.Fprintf(&sb, "  %s %s: %s\n",
					color.RedString("✗"), ShortID(id), rep.Failures[id])
			}
		}
	} else {
		fmt.Fprintf(&sb, "scanned=%d changed=%d skipped=%d failed=%d\n",
			rep.Scanned, rep.Changed, rep.Skipped, rep.Failed)
		for _, id := range sortedKeys(rep.Failures) {
			fmt.Fprintf(&sb, "failure %s: %s\n", id, rep.Failures[id])
		}
	}

	return sb.String()
}

func statusMark(s domain.SessionStatus) string {
	icon := StatusIcon(string(s))
	switch s {
	case domain.StatusWorking:
		return color.GreenString(icon)
	case domain.StatusIdle:
		return color.YellowString(icon)
	case domain.StatusComplete:
		return color.HiBlackString(icon)
	case domain.StatusError:
		return color.RedString(icon)
	}
	return icon
}

func activeCount(n int) string {
	if n > 0 {
		return color.GreenString("%d", n)
	}
	return fmt.Sprintf("%d", n)
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ShortID returns the leading eight characters of an identifier, enough
// to tell sessions apart in terminal output.
func ShortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// FormatDuration formats a duration in human-readable form.
func FormatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
}
