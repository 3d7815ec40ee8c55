package port

import (
	"context"

	"github.com/vertextoedge/dlhelper/internal/domain"
)

// ResumeJournal persists resume snapshots between runs
type ResumeJournal interface {
	// Save upserts the snapshot for url and destDir
	Save(ctx context.Context, url, destDir string, state domain.ResumeState) error

	// Get returns domain.ErrNotFound when nothing is recorded
	Get(ctx context.Context, url, destDir string) (*domain.ResumeState, error)

	// Delete removes the snapshot; a missing entry is not an error
	Delete(ctx context.Context, url, destDir string) error

	// List returns all snapshots, most recently updated first
	List(ctx context.Context) ([]domain.JournalEntry, error)

	Close() error
}
