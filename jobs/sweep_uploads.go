package jobs

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/hibiken/asynq"
)

// UploadSweeper removes uploaded workbooks left behind by jobs that never reached
// the worker, such as submissions whose enqueue failed.
type UploadSweeper struct {
	dir    string
	maxAge time.Duration
	logger *slog.Logger
	now    func() time.Time
}

// NewUploadSweeper constructs the sweeper for dir. Files older than maxAge are removed.
func NewUploadSweeper(dir string, maxAge time.Duration, logger *slog.Logger, now func() time.Time) *UploadSweeper {
	if now == nil {
		now = time.Now
	}
	return &UploadSweeper{dir: dir, maxAge: maxAge, logger: logger, now: now}
}

// Handle fulfils the asynq.HandlerFunc contract.
func (s *UploadSweeper) Handle(ctx context.Context, _ *asynq.Task) error {
	removed, err := s.Sweep(ctx)
	if err != nil {
		return err
	}
	if s.logger != nil && removed > 0 {
		s.logger.Info("stale uploads removed", slog.String("dir", s.dir), slog.Int("files", removed))
	}
	return nil
}

// Sweep deletes regular files in the upload directory older than maxAge.
func (s *UploadSweeper) Sweep(ctx context.Context) (int, error) {
	if s == nil || s.dir == "" || s.maxAge <= 0 {
		return 0, nil
	}
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, err
	}
	cutoff := s.now().Add(-s.maxAge)
	removed := 0
	for _, entry := range entries {
		if ctx.Err() != nil {
			return removed, ctx.Err()
		}
		if !entry.Type().IsRegular() {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, entry.Name())); err != nil && !errors.Is(err, fs.ErrNotExist) {
			if s.logger != nil {
				s.logger.Warn("remove stale upload", slog.String("file", entry.Name()), slog.Any("error", err))
			}
			continue
		}
		removed++
	}
	return removed, nil
}
