// Package handlers contains the HTTP handler implementations for the Tickler
// ops API. It covers:
//   - Manual job triggering (POST /v1/jobs/notifications/run)
//   - Pending notification count (GET /v1/jobs/notifications/pending)
package handlers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"tickler/internal/core"
	"tickler/internal/scheduler"
	"tickler/internal/types"
)

// triggerReason tags queue messages produced by the manual-trigger endpoint,
// distinguishing them from EventBridge-originated runs in logs and traces.
const triggerReason = "ops_api"

// RunPublisher enqueues a run payload onto the jobs queue for the notifier
// Lambda. Defined locally to keep the handler decoupled from the queue
// package's concrete publisher.
type RunPublisher interface {
	PublishRun(ctx context.Context, payload scheduler.RunPayload, reason string) error
}

// PendingCounter reports how many subscriptions would receive a notification
// if a scheduler pass ran at the given reference time, without dispatching.
type PendingCounter interface {
	PendingNotificationCount(ctx context.Context, now time.Time) (int, error)
}

// JobsHandler maps HTTP requests to the job trigger and dry-run services.
type JobsHandler struct {
	publisher RunPublisher
	counter   PendingCounter
	validator *core.Validator
	clock     types.Clock
	logger    *slog.Logger
}

// NewJobsHandler creates a new JobsHandler with the provided dependencies.
func NewJobsHandler(
	publisher RunPublisher,
	counter PendingCounter,
	validator *core.Validator,
	clock types.Clock,
	logger *slog.Logger,
) *JobsHandler {
	if clock == nil {
		clock = types.RealClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &JobsHandler{
		publisher: publisher,
		counter:   counter,
		validator: validator,
		clock:     clock,
		logger:    logger,
	}
}

// RegisterRoutes mounts the job endpoints onto the mux.
// All routes assume the ops token middleware is already applied.
func (h *JobsHandler) RegisterRoutes(r chi.Router) {
	r.Post("/jobs/notifications/run", h.HandleTriggerRun)
	r.Get("/jobs/notifications/pending", h.HandleCountPending)
}

// triggerRunRequest is the body of POST /v1/jobs/notifications/run.
// Both fields are optional: an empty body enqueues a notification run at the
// current time.
type triggerRunRequest struct {
	Task          string `json:"task,omitempty" validate:"omitempty,oneof=process_notifications cleanup_job_history"`
	ReferenceTime string `json:"reference_time,omitempty" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
}

// triggerRunResponse confirms that a run payload was enqueued. The run itself
// executes asynchronously in the notifier Lambda.
type triggerRunResponse struct {
	Enqueued    bool      `json:"enqueued"`
	Task        string    `json:"task"`
	RequestedAt time.Time `json:"requested_at"`
}

// HandleTriggerRun handles POST /v1/jobs/notifications/run.
//
// It enqueues a RunPayload onto the jobs queue and returns 202 Accepted.
// The endpoint does not wait for the run to execute; the notifier Lambda's
// hourly lock still applies, so a manual trigger racing the scheduled run
// results in exactly one execution.
func (h *JobsHandler) HandleTriggerRun(w http.ResponseWriter, r *http.Request) {
	var req triggerRunRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		// An empty body is a valid default-task trigger.
		if !errors.Is(err, io.EOF) {
			core.Error(w, r, err)
			return
		}
	}

	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	payload := scheduler.RunPayload{Task: scheduler.TaskProcessNotifications}
	if req.Task != "" {
		payload.Task = scheduler.TaskType(req.Task)
	}
	if req.ReferenceTime != "" {
		// Format already validated; parse cannot fail here.
		ts, err := time.Parse(time.RFC3339, req.ReferenceTime)
		if err != nil {
			core.Error(w, r, types.NewAppError(
				types.ErrCodeValidationFailed,
				"reference_time must be a valid RFC3339 timestamp",
				err,
			))
			return
		}
		ts = ts.UTC()
		payload.ReferenceTime = &ts
	}

	if err := h.publisher.PublishRun(r.Context(), payload, triggerReason); err != nil {
		h.logger.ErrorContext(r.Context(), "failed to enqueue manual run",
			slog.String("task", string(payload.Task)),
			slog.Any("error", err),
		)
		core.Error(w, r, types.NewAppError(
			types.ErrCodeUpstreamQueue,
			"failed to enqueue job run",
			err,
		))
		return
	}

	requestedAt := h.clock.Now().UTC()
	h.logger.InfoContext(r.Context(), "manual run enqueued",
		slog.String("task", string(payload.Task)),
	)

	core.JSON(w, r, http.StatusAccepted, core.APIResponse{
		Data: triggerRunResponse{
			Enqueued:    true,
			Task:        string(payload.Task),
			RequestedAt: requestedAt,
		},
	})
}

// pendingResponse is the body of GET /v1/jobs/notifications/pending.
type pendingResponse struct {
	Pending     int       `json:"pending"`
	EvaluatedAt time.Time `json:"evaluated_at"`
}

// HandleCountPending handles GET /v1/jobs/notifications/pending.
//
// It runs the dry-run evaluation synchronously: every enabled subscription is
// checked for dueness at the current time, but nothing is dispatched. The
// count equals the number of notifications a real run at evaluated_at would
// send.
func (h *JobsHandler) HandleCountPending(w http.ResponseWriter, r *http.Request) {
	now := h.clock.Now().UTC()

	count, err := h.counter.PendingNotificationCount(r.Context(), now)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{
		Data: pendingResponse{
			Pending:     count,
			EvaluatedAt: now,
		},
	})
}
