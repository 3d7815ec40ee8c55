// Package maintenance keeps the resume journal consistent with the files on disk.
package maintenance

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/vertextoedge/dlhelper/internal/domain"
	"github.com/vertextoedge/dlhelper/internal/port"
)

// Config contains maintenance service configuration
type Config struct {
	// MaxAge is how long an interrupted download stays resumable
	MaxAge time.Duration

	// RemovePartial deletes the partial file of an expired entry
	RemovePartial bool
}

// DefaultConfig returns default maintenance configuration
func DefaultConfig() *Config {
	return &Config{
		MaxAge: 30 * 24 * time.Hour,
	}
}

// Report summarizes one pruning pass
type Report struct {
	Checked  int
	Missing  int
	Expired  int
	Shrunk   int
	Removed  int
	Failures int
}

// Pruned returns the number of journal entries dropped
func (r Report) Pruned() int {
	return r.Missing + r.Expired + r.Shrunk
}

// Service prunes resume journal entries that can no longer be resumed
type Service struct {
	config  *Config
	journal port.ResumeJournal
	fs      port.FileSystem
	logger  *zap.Logger
	now     func() time.Time
}

// New creates a new maintenance Service
func New(cfg *Config, journal port.ResumeJournal, fs port.FileSystem, logger *zap.Logger) *Service {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.MaxAge == 0 {
		cfg.MaxAge = DefaultConfig().MaxAge
	}

	return &Service{
		config:  cfg,
		journal: journal,
		fs:      fs,
		logger:  logger,
		now:     time.Now,
	}
}

// Prune drops entries whose file is gone, whose file is smaller than the
// recorded offset, or that were not touched for longer than MaxAge
func (s *Service) Prune(ctx context.Context) (Report, error) {
	var report Report

	entries, err := s.journal.List(ctx)
	if err != nil {
		return report, fmt.Errorf("failed to list journal: %w", err)
	}

	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Checked++

		reason := s.staleReason(e)
		if reason == "" {
			continue
		}

		if err := s.journal.Delete(ctx, e.URL, e.DestDir); err != nil {
			report.Failures++
			s.logger.Error("failed to delete journal entry", zap.String("url", e.URL), zap.Error(err))
			continue
		}

		switch reason {
		case "missing":
			report.Missing++
		case "shrunk":
			report.Shrunk++
		case "expired":
			report.Expired++
			if s.config.RemovePartial && s.fs.Exists(e.State.FilePath) {
				if err := s.fs.Remove(e.State.FilePath); err != nil {
					report.Failures++
					s.logger.Warn("failed to remove partial file", zap.String("path", e.State.FilePath), zap.Error(err))
				} else {
					report.Removed++
				}
			}
		}
		s.logger.Info("pruned journal entry",
			zap.String("url", e.URL),
			zap.String("path", e.State.FilePath),
			zap.String("reason", reason))
	}

	return report, nil
}

func (s *Service) staleReason(e domain.JournalEntry) string {
	if e.State.FilePath == "" || !s.fs.Exists(e.State.FilePath) {
		return "missing"
	}
	if size, err := s.fs.Size(e.State.FilePath); err != nil || size < e.State.Downloaded {
		return "shrunk"
	}
	if s.now().Sub(e.UpdatedAt) > s.config.MaxAge {
		return "expired"
	}
	return ""
}
