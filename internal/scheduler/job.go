package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"tickler/internal/types"
)

// JobTypeProcessNotifications is the job_history type and the run-key prefix
// for the hourly notification run.
const JobTypeProcessNotifications = "process-scheduled-notifications"

// RunKey returns the idempotency key for a notification run, derived from the
// UTC hour of the reference time. Two invocations inside the same hour compute
// the same key and therefore contend for the same lock row.
func RunKey(now time.Time) string {
	return fmt.Sprintf("%s-%s", JobTypeProcessNotifications, now.UTC().Truncate(time.Hour).Format("2006-01-02-15"))
}

// JobLocker defines the lock acquisition needed by the runner.
// Using an interface allows clean testing without database dependencies.
type JobLocker interface {
	// Acquire attempts to take the lock identified by lockID. It returns
	// (false, nil) when another worker already holds an unexpired lock.
	//
	// SQL: INSERT INTO job_locks (id, locked_by, locked_at, expires_at)
	//      VALUES ($1, $2, $3, $4)
	//      ON CONFLICT (id) DO UPDATE ...
	//      WHERE job_locks.expires_at < $3
	Acquire(ctx context.Context, lockID, workerID string, ttl time.Duration) (bool, error)
}

// JobHistorian defines the history bookkeeping needed by the runner.
type JobHistorian interface {
	Start(ctx context.Context, jobType string) (int64, error)
	Finish(ctx context.Context, jobID int64, status types.JobStatus, itemsCount int, jobErr error) error
}

// NotificationProcessor is the part of NotificationScheduler the runner uses.
type NotificationProcessor interface {
	ProcessPendingNotifications(ctx context.Context, now time.Time) (BatchSummary, error)
	PendingNotificationCount(ctx context.Context, now time.Time) (int, error)
}

// HistoryCleanup is the part of HistoryCleaner the runner uses.
type HistoryCleanup interface {
	CleanupJobHistory(ctx context.Context, now time.Time) (int, error)
}

// JobRunner multiplexes scheduled-run payloads onto the task services. It
// owns the hourly lock, the job_history record, the run timeout, and the
// in-process retry loop; the task services themselves stay retry-unaware.
type JobRunner struct {
	Processor NotificationProcessor
	Cleaner   HistoryCleanup
	Locks     JobLocker
	History   JobHistorian
	WorkerID  string
	Logger    *slog.Logger

	LockTTL     time.Duration
	RunTimeout  time.Duration
	MaxAttempts int
	RetryDelay  time.Duration
}

// Run executes the task named in the payload and returns a human-readable
// result string. The error is non-nil only when the task itself failed after
// all attempts; a held lock is a skip, not a failure.
func (r *JobRunner) Run(ctx context.Context, payload RunPayload) (string, error) {
	now := time.Now().UTC()
	if payload.ReferenceTime != nil {
		now = payload.ReferenceTime.UTC()
	}

	switch payload.Task {
	case TaskProcessNotifications, TaskCleanupJobHistory:
	case TaskCountPending:
		// Read-only, so it bypasses the lock and history entirely.
		return r.runCountPending(ctx, now)
	default:
		return "", types.NewAppError(types.ErrCodeValidationInvalidTask,
			fmt.Sprintf("unknown task %q", payload.Task), nil)
	}

	lockID := r.lockID(payload.Task, now)

	acquired, err := r.Locks.Acquire(ctx, lockID, r.WorkerID, r.LockTTL)
	if err != nil {
		return "", fmt.Errorf("acquiring lock %s: %w", lockID, err)
	}
	if !acquired {
		r.Logger.InfoContext(ctx, "run skipped, lock held by another worker", "lock_id", lockID)
		return fmt.Sprintf("skipped: lock %s held by another worker", lockID), nil
	}

	runCtx, cancel := context.WithTimeout(ctx, r.RunTimeout)
	defer cancel()

	// History is best-effort: a failure to record must not block the run.
	jobID, err := r.History.Start(runCtx, string(payload.Task))
	if err != nil {
		r.Logger.ErrorContext(ctx, "failed to record job start", "task", payload.Task, "error", err)
		jobID = 0
	}

	items, runErr := r.runWithRetries(runCtx, payload.Task, now)

	if jobID != 0 {
		status := types.JobStatusSuccess
		if runErr != nil {
			status = types.JobStatusFailed
		}
		if err := r.History.Finish(runCtx, jobID, status, items, runErr); err != nil {
			r.Logger.ErrorContext(ctx, "failed to record job finish", "task", payload.Task, "job_id", jobID, "error", err)
		}
	}

	if runErr != nil {
		return "", fmt.Errorf("task %s failed: %w", payload.Task, runErr)
	}

	r.Logger.InfoContext(ctx, "run complete", "task", payload.Task, "lock_id", lockID, "items", items)
	return fmt.Sprintf("task %s complete: %d items processed", payload.Task, items), nil
}

// lockID derives the hourly lock row ID for a task. The notification task
// keeps its dedicated run-key format; other tasks use the task name directly.
func (r *JobRunner) lockID(task TaskType, now time.Time) string {
	if task == TaskProcessNotifications {
		return RunKey(now)
	}
	return fmt.Sprintf("%s-%s", task, now.UTC().Truncate(time.Hour).Format("2006-01-02-15"))
}

// runWithRetries dispatches the task, retrying in-process on failure with a
// linear backoff. The run timeout on ctx bounds the whole loop.
func (r *JobRunner) runWithRetries(ctx context.Context, task TaskType, now time.Time) (int, error) {
	attempts := r.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		items, err := r.dispatch(ctx, task, now)
		if err == nil {
			return items, nil
		}
		lastErr = err

		r.Logger.ErrorContext(ctx, "task attempt failed",
			"task", task,
			"attempt", attempt,
			"max_attempts", attempts,
			"error", err,
		)

		if attempt == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return 0, fmt.Errorf("attempt %d: %w (run timed out: %w)", attempt, lastErr, ctx.Err())
		case <-time.After(r.RetryDelay * time.Duration(attempt)):
		}
	}

	return 0, fmt.Errorf("after %d attempts: %w", attempts, lastErr)
}

func (r *JobRunner) dispatch(ctx context.Context, task TaskType, now time.Time) (int, error) {
	switch task {
	case TaskProcessNotifications:
		summary, err := r.Processor.ProcessPendingNotifications(ctx, now)
		if err != nil {
			return 0, err
		}
		return summary.Processed, nil
	case TaskCleanupJobHistory:
		return r.Cleaner.CleanupJobHistory(ctx, now)
	default:
		return 0, fmt.Errorf("no dispatcher for task %q", task)
	}
}

func (r *JobRunner) runCountPending(ctx context.Context, now time.Time) (string, error) {
	count, err := r.Processor.PendingNotificationCount(ctx, now)
	if err != nil {
		return "", fmt.Errorf("task %s failed: %w", TaskCountPending, err)
	}
	r.Logger.InfoContext(ctx, "pending count complete", "reference_time", now.Format(time.RFC3339), "pending", count)
	return fmt.Sprintf("task %s complete: %d subscriptions pending", TaskCountPending, count), nil
}
