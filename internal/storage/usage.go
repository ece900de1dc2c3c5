package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/ksred/claude-session-manager/internal/domain"
	"github.com/ksred/claude-session-manager/internal/store"
)

// Usage operations

// AddUsage folds a usage delta into the session aggregate and records the
// event, all in one transaction. The additive UPDATE happens inside the
// database, so concurrent deltas for the same session cannot lose counts.
func (s *Storage) AddUsage(ctx context.Context, sessionID string, delta domain.TokenUsage, messages int, at time.Time) (*domain.Session, error) {
	if at.IsZero() {
		at = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin usage tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE sessions SET
			input_tokens = input_tokens + ?,
			output_tokens = output_tokens + ?,
			cache_creation = cache_creation + ?,
			cache_read = cache_read + ?,
			cost = cost + ?,
			updated_at = ?,
			version = version + 1
		WHERE id = ?
	`, delta.Input, delta.Output, delta.CacheCreation, delta.CacheRead, delta.Cost,
		at, sessionID)
	if err != nil {
		return nil, fmt.Errorf("accumulate usage: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("accumulate usage: %w", err)
	}
	if affected == 0 {
		return nil, store.NewNotFoundError("session", sessionID)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO usage_events (id, session_id, timestamp, input_tokens, output_tokens,
			cache_creation, cache_read, cost, messages)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, ulid.Make().String(), sessionID, at,
		delta.Input, delta.Output, delta.CacheCreation, delta.CacheRead, delta.Cost,
		messages)
	if err != nil {
		return nil, fmt.Errorf("record usage event: %w", err)
	}

	row := tx.QueryRowContext(ctx, `SELECT `+sessionCols+` FROM sessions WHERE id = ?`, sessionID)
	sess, err := scanSession(row)
	if err != nil {
		return nil, fmt.Errorf("read usage post-image: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit usage tx: %w", err)
	}
	return sess, nil
}

// UsageEvents returns usage events in [from, to], oldest first. A zero
// bound is open; an empty sessionID selects every session.
func (s *Storage) UsageEvents(ctx context.Context, sessionID string, from, to time.Time) ([]*domain.UsageEvent, error) {
	query := `SELECT id, session_id, timestamp, input_tokens, output_tokens,
		cache_creation, cache_read, cost, messages FROM usage_events WHERE 1=1`
	args := make([]any, 0, 3)

	if sessionID != "" {
		query += ` AND session_id = ?`
		args = append(args, sessionID)
	}
	if !from.IsZero() {
		query += ` AND timestamp >= ?`
		args = append(args, from)
	}
	if !to.IsZero() {
		query += ` AND timestamp <= ?`
		args = append(args, to)
	}
	query += ` ORDER BY timestamp ASC, id ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list usage events: %w", err)
	}
	defer rows.Close()

	events := make([]*domain.UsageEvent, 0)
	for rows.Next() {
		var ev domain.UsageEvent
		if err := rows.Scan(&ev.ID, &ev.SessionID, &ev.Timestamp,
			&ev.Usage.Input, &ev.Usage.Output,
			&ev.Usage.CacheCreation, &ev.Usage.CacheRead, &ev.Usage.Cost,
			&ev.Messages); err != nil {
			return nil, fmt.Errorf("scan usage event: %w", err)
		}
		events = append(events, &ev)
	}
	return events, rows.Err()
}
