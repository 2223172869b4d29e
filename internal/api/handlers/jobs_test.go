package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"tickler/internal/core"
	"tickler/internal/scheduler"
)

// --- Mocks ---

type publishCall struct {
	payload scheduler.RunPayload
	reason  string
}

type mockRunPublisher struct {
	calls []publishCall
	err   error
}

func (m *mockRunPublisher) PublishRun(ctx context.Context, payload scheduler.RunPayload, reason string) error {
	m.calls = append(m.calls, publishCall{payload: payload, reason: reason})
	return m.err
}

type mockPendingCounter struct {
	count int
	err   error
	at    []time.Time
}

func (m *mockPendingCounter) PendingNotificationCount(ctx context.Context, now time.Time) (int, error) {
	m.at = append(m.at, now)
	return m.count, m.err
}

type fixedClock struct {
	now time.Time
}

func (c fixedClock) Now() time.Time { return c.now }

var testNow = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

func newTestHandler(pub *mockRunPublisher, counter *mockPendingCounter) *JobsHandler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewJobsHandler(pub, counter, core.NewValidator(logger), fixedClock{now: testNow}, logger)
}

// --- HandleTriggerRun Tests ---

func TestTriggerRun_EmptyBodyDefaultsToNotificationTask(t *testing.T) {
	pub := &mockRunPublisher{}
	h := newTestHandler(pub, &mockPendingCounter{})

	req := httptest.NewRequest(http.MethodPost, "/jobs/notifications/run", nil)
	rec := httptest.NewRecorder()

	h.HandleTriggerRun(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected status 202, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(pub.calls) != 1 {
		t.Fatalf("expected 1 publish call, got %d", len(pub.calls))
	}
	call := pub.calls[0]
	if call.payload.Task != scheduler.TaskProcessNotifications {
		t.Errorf("expected default task, got %q", call.payload.Task)
	}
	if call.payload.ReferenceTime != nil {
		t.Errorf("expected nil reference time, got %v", call.payload.ReferenceTime)
	}
	if call.reason != "ops_api" {
		t.Errorf("expected reason ops_api, got %q", call.reason)
	}

	var resp struct {
		Data triggerRunResponse `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if !resp.Data.Enqueued {
		t.Error("expected enqueued true")
	}
	if resp.Data.Task != "process_notifications" {
		t.Errorf("unexpected task in response: %q", resp.Data.Task)
	}
	if !resp.Data.RequestedAt.Equal(testNow) {
		t.Errorf("expected requested_at %v, got %v", testNow, resp.Data.RequestedAt)
	}
}

func TestTriggerRun_ExplicitTaskAndReferenceTime(t *testing.T) {
	pub := &mockRunPublisher{}
	h := newTestHandler(pub, &mockPendingCounter{})

	body := `{"task":"cleanup_job_history","reference_time":"2026-03-01T00:00:00Z"}`
	req := httptest.NewRequest(http.MethodPost, "/jobs/notifications/run", strings.NewReader(body))
	rec := httptest.NewRecorder()

	h.HandleTriggerRun(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected status 202, got %d: %s", rec.Code, rec.Body.String())
	}
	call := pub.calls[0]
	if call.payload.Task != scheduler.TaskCleanupJobHistory {
		t.Errorf("expected cleanup task, got %q", call.payload.Task)
	}
	want := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	if call.payload.ReferenceTime == nil || !call.payload.ReferenceTime.Equal(want) {
		t.Errorf("expected reference time %v, got %v", want, call.payload.ReferenceTime)
	}
}

func TestTriggerRun_UnknownTaskRejected(t *testing.T) {
	pub := &mockRunPublisher{}
	h := newTestHandler(pub, &mockPendingCounter{})

	req := httptest.NewRequest(http.MethodPost, "/jobs/notifications/run",
		strings.NewReader(`{"task":"drop_tables"}`))
	rec := httptest.NewRecorder()

	h.HandleTriggerRun(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rec.Code)
	}
	if len(pub.calls) != 0 {
		t.Errorf("expected no publish calls, got %d", len(pub.calls))
	}
}

func TestTriggerRun_MalformedReferenceTimeRejected(t *testing.T) {
	pub := &mockRunPublisher{}
	h := newTestHandler(pub, &mockPendingCounter{})

	req := httptest.NewRequest(http.MethodPost, "/jobs/notifications/run",
		strings.NewReader(`{"reference_time":"yesterday"}`))
	rec := httptest.NewRecorder()

	h.HandleTriggerRun(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rec.Code)
	}
}

func TestTriggerRun_UnknownFieldRejected(t *testing.T) {
	pub := &mockRunPublisher{}
	h := newTestHandler(pub, &mockPendingCounter{})

	req := httptest.NewRequest(http.MethodPost, "/jobs/notifications/run",
		strings.NewReader(`{"force":true}`))
	rec := httptest.NewRecorder()

	h.HandleTriggerRun(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rec.Code)
	}
}

func TestTriggerRun_QueueFailureReturns502(t *testing.T) {
	pub := &mockRunPublisher{err: errors.New("sqs unavailable")}
	h := newTestHandler(pub, &mockPendingCounter{})

	req := httptest.NewRequest(http.MethodPost, "/jobs/notifications/run", nil)
	rec := httptest.NewRecorder()

	h.HandleTriggerRun(rec, req)

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected status 502, got %d", rec.Code)
	}

	var resp core.APIErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if resp.Error.Code != "upstream_queue_unavailable" {
		t.Errorf("unexpected error code: %q", resp.Error.Code)
	}
}

// --- HandleCountPending Tests ---

func TestCountPending_ReturnsCountAndEvaluationTime(t *testing.T) {
	counter := &mockPendingCounter{count: 12}
	h := newTestHandler(&mockRunPublisher{}, counter)

	req := httptest.NewRequest(http.MethodGet, "/jobs/notifications/pending", nil)
	rec := httptest.NewRecorder()

	h.HandleCountPending(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	var resp struct {
		Data pendingResponse `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if resp.Data.Pending != 12 {
		t.Errorf("expected pending 12, got %d", resp.Data.Pending)
	}
	if !resp.Data.EvaluatedAt.Equal(testNow) {
		t.Errorf("expected evaluated_at %v, got %v", testNow, resp.Data.EvaluatedAt)
	}
	if len(counter.at) != 1 || !counter.at[0].Equal(testNow) {
		t.Errorf("expected counter evaluated at clock time, got %v", counter.at)
	}
}

func TestCountPending_CounterErrorReturns500(t *testing.T) {
	counter := &mockPendingCounter{err: errors.New("db down")}
	h := newTestHandler(&mockRunPublisher{}, counter)

	req := httptest.NewRequest(http.MethodGet, "/jobs/notifications/pending", nil)
	rec := httptest.NewRecorder()

	h.HandleCountPending(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected status 500, got %d", rec.Code)
	}
}
