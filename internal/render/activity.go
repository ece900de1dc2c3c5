package render

import (
	"github.com/ksred/claude-session-manager/internal/domain"
)

// Activity renders the activity feed.
type Activity struct {
	*Writer
}

// NewActivity creates an Activity renderer writing to stdout.
func NewActivity() *Activity {
	return &Activity{Writer: Stdout()}
}

// Feed renders a list of activity entries, newest first.
func (a *Activity) Feed(entries []*domain.ActivityEntry) {
	if len(entries) == 0 {
		a.Empty("No activity found")
		return
	}

	a.Header("ACTIVITY (%d entries)", len(entries))

	for _, e := range entries {
		icon := activityIcon(e.Type)
		a.Println("%s [%s] %s %s", icon,
			e.Timestamp.Format("2006-01-02 15:04:05"), ShortID(e.SessionID), e.Type)
		if e.Detail != "" {
			a.Nested("%s", Truncate(e.Detail, 70))
		}
	}
}

// Errors renders only the error entries, with full detail.
func (a *Activity) Errors(entries []*domain.ActivityEntry) {
	errs := make([]*domain.ActivityEntry, 0, len(entries))
	for _, e := range entries {
		if e.Type == domain.ActivityError {
			errs = append(errs, e)
		}
	}
	if len(errs) == 0 {
		a.Empty("No errors found")
		return
	}

	a.Header("RECENT ERRORS (%d)", len(errs))

	for _, e := range errs {
		a.Println("✗ [%s] %s", e.Timestamp.Format("2006-01-02 15:04:05"), ShortID(e.SessionID))
		if e.Detail != "" {
			a.Item("%s", e.Detail)
		}
		a.Line()
	}
}

func activityIcon(t domain.ActivityType) string {
	switch t {
	case domain.ActivitySessionCreated:
		return "+"
	case domain.ActivitySessionUpdated:
		return "~"
	case domain.ActivityError:
		return "✗"
	default:
		return "•"
	}
}
