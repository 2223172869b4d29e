// Package scheduler implements the scheduled-run services for Tickler.
//
// This file defines the shared types for the run multiplexer. These types are
// used by both the internal service routing logic and the cmd/notifier Lambda
// handler.
//
// The RunPayload is the JSON structure sent by EventBridge rules (and the ops
// manual-trigger endpoint) to the NotifierFunction. The TaskType constant
// determines which service method handles the request.
package scheduler

import "time"

// TaskType identifies which scheduled service should handle an invocation.
// Each constant maps to a specific service method in the run multiplexer.
type TaskType string

const (
	// TaskProcessNotifications evaluates every enabled subscription and
	// dispatches the due ones. Invoked hourly.
	TaskProcessNotifications TaskType = "process_notifications"
	// TaskCountPending is the dry-run variant: evaluates without dispatching.
	TaskCountPending TaskType = "count_pending"
	// TaskCleanupJobHistory purges old job_history rows. Invoked daily.
	TaskCleanupJobHistory TaskType = "cleanup_job_history"
)

// RunPayload is the JSON payload sent by EventBridge to the notifier Lambda
// function. It identifies the task to execute and optionally overrides the
// reference time for manual invocation or backfilling.
//
//	{
//	  "task": "process_notifications",
//	  "reference_time": "2026-02-06T03:00:00Z"  // optional
//	}
type RunPayload struct {
	Task TaskType `json:"task"`
	// ReferenceTime allows manual invocation to specify a different "now" for
	// deterministic execution and backfilling. If nil, time.Now().UTC() is used.
	ReferenceTime *time.Time `json:"reference_time,omitempty"`
}

// PollInterval and DefaultLookback form one coupled pair: the lookback must
// cover at least one full poll interval, or occurrences landing between runs
// are silently missed. Change them together.
const (
	// PollInterval is the cadence EventBridge invokes the notifier at.
	PollInterval = time.Hour
	// DefaultLookback is the due-check window passed to the schedule evaluator.
	DefaultLookback = time.Hour
)

// Outcome tags the per-subscription result of one scheduler pass.
type Outcome string

const (
	OutcomeSent    Outcome = "sent"
	OutcomeFailed  Outcome = "failed"
	OutcomeSkipped Outcome = "skipped"
)

// Result records what happened to a single subscription during a run.
// Reason is empty for sent results.
type Result struct {
	SubscriptionID string
	UserRef        string
	Outcome        Outcome
	Reason         string
}

// BatchSummary aggregates the per-subscription results of one scheduler pass.
// Processed always equals Sent + Failed + Skipped.
type BatchSummary struct {
	Processed int
	Sent      int
	Failed    int
	Skipped   int
}

// add folds one result into the summary.
func (s *BatchSummary) add(r Result) {
	s.Processed++
	switch r.Outcome {
	case OutcomeSent:
		s.Sent++
	case OutcomeFailed:
		s.Failed++
	case OutcomeSkipped:
		s.Skipped++
	}
}
