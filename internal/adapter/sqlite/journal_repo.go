package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vertextoedge/dlhelper/internal/domain"
)

// Save upserts the resume snapshot for url and destDir
func (s *Store) Save(ctx context.Context, url, destDir string, state domain.ResumeState) error {
	query := `
		INSERT INTO resume_states (url, dest_dir, file_path, file_name, downloaded, total, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(url, dest_dir) DO UPDATE SET
			file_path = excluded.file_path,
			file_name = excluded.file_name,
			downloaded = excluded.downloaded,
			total = excluded.total,
			updated_at = excluded.updated_at
	`

	_, err := s.db.ExecContext(ctx, query,
		url, destDir, state.FilePath, state.FileName, state.Downloaded, state.Total,
		time.Now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to save resume state: %w", err)
	}
	return nil
}

// Get retrieves the snapshot for url and destDir
func (s *Store) Get(ctx context.Context, url, destDir string) (*domain.ResumeState, error) {
	query := `
		SELECT file_path, file_name, downloaded, total
		FROM resume_states
		WHERE url = ? AND dest_dir = ?
	`

	state := &domain.ResumeState{}
	err := s.db.QueryRowContext(ctx, query, url, destDir).Scan(
		&state.FilePath, &state.FileName, &state.Downloaded, &state.Total,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get resume state: %w", err)
	}

	return state, nil
}

// Delete removes the snapshot for url and destDir
func (s *Store) Delete(ctx context.Context, url, destDir string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM resume_states WHERE url = ? AND dest_dir = ?", url, destDir)
	if err != nil {
		return fmt.Errorf("failed to delete resume state: %w", err)
	}
	return nil
}

// List returns every snapshot, most recently updated first
func (s *Store) List(ctx context.Context) ([]domain.JournalEntry, error) {
	query := `
		SELECT url, dest_dir, file_path, file_name, downloaded, total, updated_at
		FROM resume_states
		ORDER BY updated_at DESC, url ASC
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list resume states: %w", err)
	}
	defer rows.Close()

	var entries []domain.JournalEntry
	for rows.Next() {
		var e domain.JournalEntry
		var updatedAt int64
		if err := rows.Scan(
			&e.URL, &e.DestDir, &e.State.FilePath, &e.State.FileName,
			&e.State.Downloaded, &e.State.Total, &updatedAt,
		); err != nil {
			return nil, err
		}
		e.UpdatedAt = time.UnixMilli(updatedAt)
		entries = append(entries, e)
	}

	return entries, rows.Err()
}
