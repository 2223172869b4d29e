package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// JobHistoryStore defines the purge operation needed by the cleaner.
type JobHistoryStore interface {
	// PurgeOlderThan deletes job_history rows started before the cutoff and
	// returns the number of rows removed.
	//
	// SQL: DELETE FROM job_history WHERE started_at < $1
	PurgeOlderThan(ctx context.Context, cutoff time.Time) (int, error)
}

// HistoryCleaner bounds job_history growth by deleting rows older than the
// configured retention window.
type HistoryCleaner struct {
	store     JobHistoryStore
	retention time.Duration
	logger    *slog.Logger
}

func NewHistoryCleaner(store JobHistoryStore, retention time.Duration, logger *slog.Logger) *HistoryCleaner {
	if logger == nil {
		logger = slog.Default()
	}
	return &HistoryCleaner{
		store:     store,
		retention: retention,
		logger:    logger,
	}
}

// CleanupJobHistory deletes history rows older than now minus the retention
// window and returns the number of rows removed.
func (c *HistoryCleaner) CleanupJobHistory(ctx context.Context, now time.Time) (int, error) {
	cutoff := now.UTC().Add(-c.retention)

	removed, err := c.store.PurgeOlderThan(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purging job history before %s: %w", cutoff.Format(time.RFC3339), err)
	}

	c.logger.InfoContext(ctx, "job history cleanup complete",
		"cutoff", cutoff.Format(time.RFC3339),
		"removed", removed,
	)
	return removed, nil
}
