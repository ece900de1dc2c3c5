package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"

	"github.com/ksred/claude-session-manager/internal/domain"
	"github.com/ksred/claude-session-manager/internal/store"
)

const sessionCols = `id, project_name, project_path, model, status, created_at, updated_at,
	input_tokens, output_tokens, cache_creation, cache_read, cost, git_branch, files_changed, version`

// Session operations

func (s *Storage) CreateSession(ctx context.Context, sess *domain.Session) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, project_name, project_path, model, status, created_at, updated_at,
			input_tokens, output_tokens, cache_creation, cache_read, cost, git_branch, files_changed, version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, sess.ID, sess.ProjectName, sess.ProjectPath, sess.Model, sess.Status,
		sess.CreatedAt, sess.UpdatedAt,
		sess.TokenUsage.Input, sess.TokenUsage.Output,
		sess.TokenUsage.CacheCreation, sess.TokenUsage.CacheRead, sess.TokenUsage.Cost,
		nullIfEmpty(sess.GitBranch), sess.FilesChanged, 1)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey {
			return fmt.Errorf("create session %s: %w", sess.ID, store.ErrAlreadyExists)
		}
		return fmt.Errorf("create session: %w", err)
	}

	sess.Version = 1
	return nil
}

func (s *Storage) GetSession(ctx context.Context, id string) (*domain.Session, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionCols+` FROM sessions WHERE id = ?`, id)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.NewNotFoundError("session", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return sess, nil
}

func (s *Storage) ListSessions(ctx context.Context, filter store.Filter) ([]*domain.Session, error) {
	where, args, err := whereClause(filter, sessionFilterColumns)
	if err != nil {
		return nil, err
	}

	query := `SELECT ` + sessionCols + ` FROM sessions` + where +
		orderClause(filter, sessionOrderColumns, "updated_at", "id") +
		limitClause(filter)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	sessions := make([]*domain.Session, 0)
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

func (s *Storage) CountSessions(ctx context.Context, filter store.Filter) (int, error) {
	where, args, err := whereClause(filter, sessionFilterColumns)
	if err != nil {
		return 0, err
	}

	var count int
	err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions`+where, args...).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count sessions: %w", err)
	}
	return count, nil
}

// UpdateSession writes the full session row, guarded by the version the
// caller read. When the guard misses the row was either modified in
// between (conflict) or never existed (not found).
func (s *Storage) UpdateSession(ctx context.Context, sess *domain.Session) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET project_name = ?, project_path = ?, model = ?, status = ?,
			updated_at = ?, input_tokens = ?, output_tokens = ?, cache_creation = ?,
			cache_read = ?, cost = ?, git_branch = ?, files_changed = ?, version = version + 1
		WHERE id = ? AND version = ?
	`, sess.ProjectName, sess.ProjectPath, sess.Model, sess.Status,
		sess.UpdatedAt,
		sess.TokenUsage.Input, sess.TokenUsage.Output,
		sess.TokenUsage.CacheCreation, sess.TokenUsage.CacheRead, sess.TokenUsage.Cost,
		nullIfEmpty(sess.GitBranch), sess.FilesChanged,
		sess.ID, sess.Version)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	if affected == 0 {
		if _, err := s.GetSession(ctx, sess.ID); err != nil {
			return err
		}
		return store.NewConflictError("session", sess.ID)
	}

	sess.Version++
	return nil
}

// SetSessionPath corrects project_path in place without touching
// updated_at, so a historical repair does not reorder session listings.
func (s *Storage) SetSessionPath(ctx context.Context, id, path string) (*domain.Session, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET project_path = ?, version = version + 1 WHERE id = ?
	`, path, id)
	if err != nil {
		return nil, fmt.Errorf("set session path: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("set session path: %w", err)
	}
	if affected == 0 {
		return nil, store.NewNotFoundError("session", id)
	}

	return s.GetSession(ctx, id)
}

// scanSession reads one session row. Works for both QueryRow and rows.Next
// scans.
func scanSession(sc interface{ Scan(...any) error }) (*domain.Session, error) {
	var sess domain.Session
	var gitBranch sql.NullString

	err := sc.Scan(&sess.ID, &sess.ProjectName, &sess.ProjectPath, &sess.Model, &sess.Status,
		&sess.CreatedAt, &sess.UpdatedAt,
		&sess.TokenUsage.Input, &sess.TokenUsage.Output,
		&sess.TokenUsage.CacheCreation, &sess.TokenUsage.CacheRead, &sess.TokenUsage.Cost,
		&gitBranch, &sess.FilesChanged, &sess.Version)
	if err != nil {
		return nil, err
	}

	if gitBranch.Valid {
		sess.GitBranch = gitBranch.String
	}
	sess.DurationSecs = sess.Duration().Seconds()
	return &sess, nil
}

// nullIfEmpty converts empty strings to NULL for nullable columns.
func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
