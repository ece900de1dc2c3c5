package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Offset returns the stored ingest position for a transcript file, zero
// when the file has never been ingested.
func (s *Storage) Offset(ctx context.Context, file string) (int64, error) {
	var offset int64
	err := s.db.QueryRowContext(ctx,
		`SELECT byte_offset FROM ingest_offsets WHERE file = ?`, file).Scan(&offset)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get offset for %s: %w", file, err)
	}
	return offset, nil
}

// SetOffset records the ingest position for a transcript file.
func (s *Storage) SetOffset(ctx context.Context, file string, offset int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ingest_offsets (file, byte_offset, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(file) DO UPDATE SET
			byte_offset = excluded.byte_offset,
			updated_at = excluded.updated_at`,
		file, offset, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("set offset for %s: %w", file, err)
	}
	return nil
}
