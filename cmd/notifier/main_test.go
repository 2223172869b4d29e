package main

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-lambda-go/events"

	"tickler/internal/scheduler"
)

// countingProcessor satisfies scheduler.NotificationProcessor for tests that
// only exercise the pending count task.
type countingProcessor struct {
	count int
}

func (p *countingProcessor) ProcessPendingNotifications(_ context.Context, _ time.Time) (scheduler.BatchSummary, error) {
	return scheduler.BatchSummary{}, nil
}

func (p *countingProcessor) PendingNotificationCount(_ context.Context, _ time.Time) (int, error) {
	return p.count, nil
}

func TestDecodeRunEvent_DirectPayload(t *testing.T) {
	raw := []byte(`{"task":"process_notifications","reference_time":"2026-02-06T03:00:00Z"}`)

	payloads, err := decodeRunEvent(raw)
	if err != nil {
		t.Fatalf("decodeRunEvent: %v", err)
	}
	if len(payloads) != 1 {
		t.Fatalf("payloads = %d, want 1", len(payloads))
	}
	if payloads[0].Task != scheduler.TaskProcessNotifications {
		t.Errorf("task = %q, want process_notifications", payloads[0].Task)
	}
	if payloads[0].ReferenceTime == nil {
		t.Error("reference time was dropped")
	}
}

func TestDecodeRunEvent_SQSEnvelope(t *testing.T) {
	body, _ := json.Marshal(scheduler.RunPayload{Task: scheduler.TaskProcessNotifications})
	envelope, _ := json.Marshal(events.SQSEvent{
		Records: []events.SQSMessage{{MessageId: "m1", Body: string(body)}},
	})

	payloads, err := decodeRunEvent(envelope)
	if err != nil {
		t.Fatalf("decodeRunEvent: %v", err)
	}
	if len(payloads) != 1 {
		t.Fatalf("payloads = %d, want 1", len(payloads))
	}
	if payloads[0].Task != scheduler.TaskProcessNotifications {
		t.Errorf("task decoded from SQS delivery = %q, want process_notifications", payloads[0].Task)
	}
}

func TestDecodeRunEvent_MultiRecordEnvelope(t *testing.T) {
	envelope, _ := json.Marshal(events.SQSEvent{
		Records: []events.SQSMessage{
			{MessageId: "m1", Body: `{"task":"count_pending"}`},
			{MessageId: "m2", Body: `{"task":"cleanup_job_history"}`},
		},
	})

	payloads, err := decodeRunEvent(envelope)
	if err != nil {
		t.Fatalf("decodeRunEvent: %v", err)
	}
	if len(payloads) != 2 {
		t.Fatalf("payloads = %d, want 2", len(payloads))
	}
	if payloads[0].Task != scheduler.TaskCountPending || payloads[1].Task != scheduler.TaskCleanupJobHistory {
		t.Errorf("tasks = %q, %q", payloads[0].Task, payloads[1].Task)
	}
}

func TestDecodeRunEvent_BadRecordBody(t *testing.T) {
	envelope, _ := json.Marshal(events.SQSEvent{
		Records: []events.SQSMessage{{MessageId: "m1", Body: "not json"}},
	})

	if _, err := decodeRunEvent(envelope); err == nil {
		t.Fatal("expected error for unparseable record body")
	} else if !strings.Contains(err.Error(), "m1") {
		t.Errorf("error = %v, want the record's message ID", err)
	}
}

func TestDecodeRunEvent_Garbage(t *testing.T) {
	if _, err := decodeRunEvent([]byte("not json at all")); err == nil {
		t.Fatal("expected error for non-JSON event")
	}
}

func TestRunHandler_ExecutesSQSDeliveredTask(t *testing.T) {
	runner := &scheduler.JobRunner{
		Processor: &countingProcessor{count: 7},
		WorkerID:  "test-worker",
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	handler := &runHandler{runner: runner, logger: runner.Logger}

	envelope, _ := json.Marshal(events.SQSEvent{
		Records: []events.SQSMessage{{MessageId: "m1", Body: `{"task":"count_pending"}`}},
	})

	result, err := handler.Handle(context.Background(), envelope)
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if !strings.Contains(result, "7 subscriptions pending") {
		t.Errorf("result = %q, want pending count", result)
	}
}
