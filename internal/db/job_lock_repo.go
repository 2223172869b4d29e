package db

import (
	"context"
	"time"

	"tickler/internal/types"
)

// JobLockRepository implements distributed locking over the job_locks table.
// A single upsert acquires the lock atomically, so at most one worker owns a
// given run key at a time.
type JobLockRepository struct {
	db DBTX
}

func NewJobLockRepository(db DBTX) *JobLockRepository {
	return &JobLockRepository{db: db}
}

// Acquire tries to take the lock identified by lockID (the run key, e.g.
// "process-scheduled-notifications-2026-02-06-03") for workerID.
//
// The upsert inserts a fresh row, or steals an existing row whose expires_at
// has passed. A live lock held by another worker leaves the WHERE clause
// unsatisfied and zero rows affected, which reports as not acquired.
//
// Timestamps are computed in Go rather than with SQL interval arithmetic;
// Go duration strings like "15m0s" are not valid PostgreSQL intervals.
func (r *JobLockRepository) Acquire(ctx context.Context, lockID string, workerID string, ttl time.Duration) (bool, error) {
	now := time.Now().UTC()
	expiresAt := now.Add(ttl)

	tag, err := r.db.Exec(ctx,
		`INSERT INTO job_locks (id, worker_id, locked_at, expires_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (id) DO UPDATE
		   SET worker_id = EXCLUDED.worker_id,
		       locked_at = EXCLUDED.locked_at,
		       expires_at = EXCLUDED.expires_at
		   WHERE job_locks.expires_at < $3`,
		lockID,
		workerID,
		now,
		expiresAt,
	)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to acquire job lock", err)
	}

	return tag.RowsAffected() > 0, nil
}
