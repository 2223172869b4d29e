package scheduler

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"tickler/internal/types"
)

// --- Mocks ---

type lockCall struct {
	LockID   string
	WorkerID string
	TTL      time.Duration
}

// mockLocker records lock attempts and returns a configured result.
type mockLocker struct {
	calls    []lockCall
	acquired bool
	err      error
}

func (m *mockLocker) Acquire(_ context.Context, lockID, workerID string, ttl time.Duration) (bool, error) {
	m.calls = append(m.calls, lockCall{LockID: lockID, WorkerID: workerID, TTL: ttl})
	if m.err != nil {
		return false, m.err
	}
	return m.acquired, nil
}

type finishCall struct {
	JobID  int64
	Status types.JobStatus
	Items  int
	Err    error
}

// mockHistorian records start/finish bookkeeping.
type mockHistorian struct {
	startErr    error
	finishErr   error
	startCalls  []string
	finishCalls []finishCall
}

func (m *mockHistorian) Start(_ context.Context, jobType string) (int64, error) {
	m.startCalls = append(m.startCalls, jobType)
	if m.startErr != nil {
		return 0, m.startErr
	}
	return 42, nil
}

func (m *mockHistorian) Finish(_ context.Context, jobID int64, status types.JobStatus, itemsCount int, jobErr error) error {
	m.finishCalls = append(m.finishCalls, finishCall{JobID: jobID, Status: status, Items: itemsCount, Err: jobErr})
	return m.finishErr
}

// mockProcessor fails the first failUntil calls, then succeeds.
type mockProcessor struct {
	summary   BatchSummary
	count     int
	failUntil int
	calls     int
	countErr  error
}

func (m *mockProcessor) ProcessPendingNotifications(_ context.Context, _ time.Time) (BatchSummary, error) {
	m.calls++
	if m.calls <= m.failUntil {
		return BatchSummary{}, errors.New("transient failure")
	}
	return m.summary, nil
}

func (m *mockProcessor) PendingNotificationCount(_ context.Context, _ time.Time) (int, error) {
	if m.countErr != nil {
		return 0, m.countErr
	}
	return m.count, nil
}

type mockCleaner struct {
	removed int
	err     error
	calls   int
}

func (m *mockCleaner) CleanupJobHistory(_ context.Context, _ time.Time) (int, error) {
	m.calls++
	if m.err != nil {
		return 0, m.err
	}
	return m.removed, nil
}

func newTestRunner(locks *mockLocker, history *mockHistorian, proc *mockProcessor, cleaner *mockCleaner) *JobRunner {
	return &JobRunner{
		Processor:   proc,
		Cleaner:     cleaner,
		Locks:       locks,
		History:     history,
		WorkerID:    "worker-test",
		Logger:      testLogger(),
		LockTTL:     15 * time.Minute,
		RunTimeout:  300 * time.Second,
		MaxAttempts: 3,
		RetryDelay:  time.Millisecond,
	}
}

func refTime(t time.Time) *time.Time { return &t }

// --- RunKey Tests ---

func TestRunKey_HourGranularity(t *testing.T) {
	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	key := RunKey(base)
	want := "process-scheduled-notifications-2026-03-14-09"
	if key != want {
		t.Errorf("got %q, want %q", key, want)
	}

	// Any minute inside the hour maps to the same key.
	if got := RunKey(base.Add(59 * time.Minute)); got != key {
		t.Errorf("key at :59 = %q, want %q", got, key)
	}
	// The next hour gets a new key.
	if got := RunKey(base.Add(time.Hour)); got == key {
		t.Errorf("key at next hour should differ, both %q", got)
	}
}

func TestRunKey_NormalizesToUTC(t *testing.T) {
	nyc := time.FixedZone("EST", -5*3600)
	local := time.Date(2026, 3, 14, 9, 30, 0, 0, nyc)

	if got, want := RunKey(local), "process-scheduled-notifications-2026-03-14-14"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

// --- Run Tests ---

func TestRun_ProcessNotificationsSuccess(t *testing.T) {
	now := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	locks := &mockLocker{acquired: true}
	history := &mockHistorian{}
	proc := &mockProcessor{summary: BatchSummary{Processed: 5, Sent: 4, Skipped: 1}}

	runner := newTestRunner(locks, history, proc, &mockCleaner{})

	result, err := runner.Run(context.Background(), RunPayload{
		Task:          TaskProcessNotifications,
		ReferenceTime: refTime(now),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(result, "5 items processed") {
		t.Errorf("result = %q, want items count", result)
	}

	if len(locks.calls) != 1 {
		t.Fatalf("lock calls = %d, want 1", len(locks.calls))
	}
	if locks.calls[0].LockID != RunKey(now) {
		t.Errorf("lock ID = %q, want %q", locks.calls[0].LockID, RunKey(now))
	}
	if locks.calls[0].TTL != 15*time.Minute {
		t.Errorf("lock TTL = %v, want 15m", locks.calls[0].TTL)
	}

	if len(history.finishCalls) != 1 {
		t.Fatalf("finish calls = %d, want 1", len(history.finishCalls))
	}
	fc := history.finishCalls[0]
	if fc.Status != types.JobStatusSuccess || fc.Items != 5 || fc.Err != nil {
		t.Errorf("finish call = %+v, want success with 5 items", fc)
	}
}

func TestRun_HeldLockSkipsWithoutError(t *testing.T) {
	locks := &mockLocker{acquired: false}
	history := &mockHistorian{}
	proc := &mockProcessor{}

	runner := newTestRunner(locks, history, proc, &mockCleaner{})

	result, err := runner.Run(context.Background(), RunPayload{Task: TaskProcessNotifications})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(result, "skipped") {
		t.Errorf("result = %q, want skip message", result)
	}
	if proc.calls != 0 {
		t.Errorf("processor calls = %d, want 0", proc.calls)
	}
	if len(history.startCalls) != 0 {
		t.Errorf("history starts = %d, want 0", len(history.startCalls))
	}
}

func TestRun_LockErrorIsFatal(t *testing.T) {
	locks := &mockLocker{err: errors.New("db down")}
	runner := newTestRunner(locks, &mockHistorian{}, &mockProcessor{}, &mockCleaner{})

	_, err := runner.Run(context.Background(), RunPayload{Task: TaskProcessNotifications})
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

func TestRun_RetriesTransientFailure(t *testing.T) {
	locks := &mockLocker{acquired: true}
	history := &mockHistorian{}
	proc := &mockProcessor{failUntil: 2, summary: BatchSummary{Processed: 3, Sent: 3}}

	runner := newTestRunner(locks, history, proc, &mockCleaner{})

	result, err := runner.Run(context.Background(), RunPayload{Task: TaskProcessNotifications})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if proc.calls != 3 {
		t.Errorf("processor calls = %d, want 3", proc.calls)
	}
	if !strings.Contains(result, "3 items processed") {
		t.Errorf("result = %q, want items count", result)
	}
	if history.finishCalls[0].Status != types.JobStatusSuccess {
		t.Errorf("finish status = %q, want success", history.finishCalls[0].Status)
	}
}

func TestRun_ExhaustedAttemptsRecordFailure(t *testing.T) {
	locks := &mockLocker{acquired: true}
	history := &mockHistorian{}
	proc := &mockProcessor{failUntil: 10}

	runner := newTestRunner(locks, history, proc, &mockCleaner{})

	_, err := runner.Run(context.Background(), RunPayload{Task: TaskProcessNotifications})
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if proc.calls != 3 {
		t.Errorf("processor calls = %d, want 3", proc.calls)
	}
	if len(history.finishCalls) != 1 {
		t.Fatalf("finish calls = %d, want 1", len(history.finishCalls))
	}
	fc := history.finishCalls[0]
	if fc.Status != types.JobStatusFailed || fc.Err == nil {
		t.Errorf("finish call = %+v, want failed with error", fc)
	}
}

func TestRun_HistoryStartFailureIsNonFatal(t *testing.T) {
	locks := &mockLocker{acquired: true}
	history := &mockHistorian{startErr: errors.New("insert failed")}
	proc := &mockProcessor{summary: BatchSummary{Processed: 1, Sent: 1}}

	runner := newTestRunner(locks, history, proc, &mockCleaner{})

	_, err := runner.Run(context.Background(), RunPayload{Task: TaskProcessNotifications})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if proc.calls != 1 {
		t.Errorf("processor calls = %d, want 1", proc.calls)
	}
	// No job ID means no finish call.
	if len(history.finishCalls) != 0 {
		t.Errorf("finish calls = %d, want 0", len(history.finishCalls))
	}
}

func TestRun_CleanupTask(t *testing.T) {
	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	locks := &mockLocker{acquired: true}
	cleaner := &mockCleaner{removed: 120}

	runner := newTestRunner(locks, &mockHistorian{}, &mockProcessor{}, cleaner)

	result, err := runner.Run(context.Background(), RunPayload{
		Task:          TaskCleanupJobHistory,
		ReferenceTime: refTime(now),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cleaner.calls != 1 {
		t.Errorf("cleaner calls = %d, want 1", cleaner.calls)
	}
	if !strings.Contains(result, "120 items processed") {
		t.Errorf("result = %q, want items count", result)
	}
	if want := "cleanup_job_history-2026-03-14-09"; locks.calls[0].LockID != want {
		t.Errorf("lock ID = %q, want %q", locks.calls[0].LockID, want)
	}
}

func TestRun_CountPendingBypassesLock(t *testing.T) {
	locks := &mockLocker{}
	history := &mockHistorian{}
	proc := &mockProcessor{count: 7}

	runner := newTestRunner(locks, history, proc, &mockCleaner{})

	result, err := runner.Run(context.Background(), RunPayload{Task: TaskCountPending})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(result, "7 subscriptions pending") {
		t.Errorf("result = %q, want pending count", result)
	}
	if len(locks.calls) != 0 {
		t.Errorf("lock calls = %d, want 0", len(locks.calls))
	}
	if len(history.startCalls) != 0 {
		t.Errorf("history starts = %d, want 0", len(history.startCalls))
	}
}

func TestRun_UnknownTask(t *testing.T) {
	runner := newTestRunner(&mockLocker{}, &mockHistorian{}, &mockProcessor{}, &mockCleaner{})

	_, err := runner.Run(context.Background(), RunPayload{Task: TaskType("defragment_moon")})
	if err == nil {
		t.Fatal("expected error, got nil")
	}

	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected AppError, got %T", err)
	}
	if appErr.Code != types.ErrCodeValidationInvalidTask {
		t.Errorf("code = %q, want %q", appErr.Code, types.ErrCodeValidationInvalidTask)
	}
}
