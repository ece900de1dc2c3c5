package session

import (
	"context"
	"time"

	"github.com/ksred/claude-session-manager/internal/config"
	"github.com/ksred/claude-session-manager/internal/domain"
	"github.com/ksred/claude-session-manager/internal/metrics"
	"github.com/ksred/claude-session-manager/internal/store"
)

// maxTimelineHours caps timeline queries at one year.
const maxTimelineHours = 24 * 365

// RecordUsage folds a token delta into the session's running totals and
// broadcasts the updated snapshot. The store applies the delta
// atomically, so concurrent recorders never lose increments.
func (m *Manager) RecordUsage(ctx context.Context, sessionID string, delta domain.TokenUsage, messages int) (*domain.Session, error) {
	return m.RecordUsageAt(ctx, sessionID, delta, messages, time.Now().UTC())
}

// RecordUsageAt is RecordUsage with an explicit event timestamp, used by
// transcript ingest to keep timelines aligned with message times.
func (m *Manager) RecordUsageAt(ctx context.Context, sessionID string, delta domain.TokenUsage, messages int, at time.Time) (*domain.Session, error) {
	if delta.Negative() {
		return nil, store.NewValidationError("token_usage", "counts must not be negative")
	}

	unlock := m.lockSession(sessionID)
	defer unlock()

	sess, err := m.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if delta.IsZero() {
		return sess, nil
	}

	if delta.Cost == 0 {
		delta.Cost = config.Global().PricingTable().Cost(sess.Model, delta)
	}
	if messages <= 0 {
		messages = 1
	}

	sess, err = m.store.AddUsage(ctx, sessionID, delta, messages, at)
	metrics.Global().RecordUsage(err == nil)
	if err != nil {
		return nil, err
	}

	m.publishSession(sess)
	return sess, nil
}

// Summary aggregates metrics across sessions. When hours is positive,
// only sessions updated inside the trailing window count; zero means
// all time. Pure read, safe to call repeatedly.
func (m *Manager) Summary(ctx context.Context, hours int) (*domain.MetricsSummary, error) {
	now := time.Now().UTC()

	sessions, err := m.store.ListSessions(ctx, store.Filter{OrderBy: "updated_at", OrderDesc: true})
	if err != nil {
		return nil, err
	}

	if hours > 0 {
		cutoff := now.Add(-time.Duration(hours) * time.Hour)
		filtered := make([]*domain.Session, 0, len(sessions))
		for _, sess := range sessions {
			if !sess.UpdatedAt.Before(cutoff) {
				filtered = append(filtered, sess)
			}
		}
		sessions = filtered
	}

	summary := domain.Summarize(sessions, now)
	return &summary, nil
}

// Timeline buckets token usage over the trailing window, one point per
// granularity step, zero-filled so the series is dense. An empty
// sessionID aggregates across all sessions.
func (m *Manager) Timeline(ctx context.Context, sessionID string, hours int, granularity string) ([]domain.TokenTimelinePoint, error) {
	gran, err := domain.ParseGranularity(granularity)
	if err != nil {
		return nil, store.NewValidationError("granularity", err.Error())
	}
	if hours <= 0 {
		hours = 24
	}
	if hours > maxTimelineHours {
		return nil, store.NewValidationError("hours", "window exceeds one year")
	}

	if sessionID != "" {
		if _, err := m.store.GetSession(ctx, sessionID); err != nil {
			return nil, err
		}
	}

	now := time.Now().UTC()
	events, err := m.store.UsageEvents(ctx, sessionID, now.Add(-time.Duration(hours)*time.Hour), now)
	if err != nil {
		return nil, err
	}
	return domain.BuildTimeline(events, now, hours, gran), nil
}
