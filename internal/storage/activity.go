package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"

	"github.com/ksred/claude-session-manager/internal/domain"
	"github.com/ksred/claude-session-manager/internal/store"
)

// Activity operations

func (s *Storage) AppendActivity(ctx context.Context, entry *domain.ActivityEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO activity (id, session_id, type, detail, timestamp)
		VALUES (?, ?, ?, ?, ?)
	`, entry.ID, entry.SessionID, entry.Type, entry.Detail, entry.Timestamp)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintForeignKey {
			return store.NewNotFoundError("session", entry.SessionID)
		}
		return fmt.Errorf("append activity: %w", err)
	}
	return nil
}

func (s *Storage) ListActivity(ctx context.Context, filter store.Filter) ([]*domain.ActivityEntry, error) {
	where, args, err := whereClause(filter, activityFilterColumns)
	if err != nil {
		return nil, err
	}

	query := `SELECT id, session_id, type, detail, timestamp FROM activity` + where +
		orderClause(filter, activityOrderColumns, "timestamp", "id") +
		limitClause(filter)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list activity: %w", err)
	}
	defer rows.Close()

	entries := make([]*domain.ActivityEntry, 0)
	for rows.Next() {
		var entry domain.ActivityEntry
		if err := rows.Scan(&entry.ID, &entry.SessionID, &entry.Type, &entry.Detail, &entry.Timestamp); err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		entries = append(entries, &entry)
	}
	return entries, rows.Err()
}

func (s *Storage) CountActivity(ctx context.Context, filter store.Filter) (int, error) {
	where, args, err := whereClause(filter, activityFilterColumns)
	if err != nil {
		return 0, err
	}

	var count int
	err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM activity`+where, args...).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count activity: %w", err)
	}
	return count, nil
}
