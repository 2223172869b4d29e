package email

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/aws/aws-lambda-go/events"

	"tickler/internal/types"
)

// --- Mocks ---

type mockRecipientSource struct {
	recipients map[string]types.Recipient
	err        error
}

func (m *mockRecipientSource) Lookup(_ context.Context, userRef string) (types.Recipient, error) {
	if m.err != nil {
		return types.Recipient{}, m.err
	}
	rec, ok := m.recipients[userRef]
	if !ok {
		return types.Recipient{}, types.NewAppError(
			types.ErrCodeNotFoundSubscription,
			fmt.Sprintf("no contact record for user %q", userRef),
			nil,
		)
	}
	return rec, nil
}

type mockProvider struct {
	sent []types.SendInput
	err  error
}

func (m *mockProvider) Send(_ context.Context, input types.SendInput) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	m.sent = append(m.sent, input)
	return fmt.Sprintf("provider-msg-%d", len(m.sent)), nil
}

type deliveryMetric struct {
	Kind   types.NotificationKind
	Result MetricResult
}

// mockMetrics records delivery outcomes without CloudWatch.
type mockMetrics struct {
	deliveries []deliveryMetric
	latencies  int
	queueLags  int
}

func (m *mockMetrics) RecordDelivery(_ context.Context, kind types.NotificationKind, result MetricResult) {
	m.deliveries = append(m.deliveries, deliveryMetric{Kind: kind, Result: result})
}

func (m *mockMetrics) RecordLatency(_ context.Context, _ types.NotificationKind, _ time.Duration) {
	m.latencies++
}

func (m *mockMetrics) RecordQueueLag(_ context.Context, _ time.Duration) {
	m.queueLags++
}

// --- Helpers ---

func newTestWorker(t *testing.T, recipients *mockRecipientSource, provider *mockProvider, metrics *mockMetrics) *Worker {
	t.Helper()
	return NewWorker(WorkerConfig{
		Recipients: recipients,
		Renderer:   newTestRenderer(t),
		Provider:   provider,
		Metrics:    metrics,
		Logger:     &mockLogger{},
	})
}

func sqsRecord(t *testing.T, id string, msg types.ReminderMessage) events.SQSMessage {
	t.Helper()
	body, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal message: %v", err)
	}
	return events.SQSMessage{
		MessageId: id,
		Body:      string(body),
	}
}

func knownRecipients() *mockRecipientSource {
	return &mockRecipientSource{recipients: map[string]types.Recipient{
		"user-1": {UserRef: "user-1", Email: "one@example.com", DisplayName: "One"},
		"user-2": {UserRef: "user-2", Email: "two@example.com", DisplayName: "Two"},
	}}
}

// --- Handle Tests ---

func TestWorkerHandle_DeliversBatch(t *testing.T) {
	provider := &mockProvider{}
	metrics := &mockMetrics{}
	worker := newTestWorker(t, knownRecipients(), provider, metrics)

	event := events.SQSEvent{Records: []events.SQSMessage{
		sqsRecord(t, "r1", testMessage(types.KindTaskReminder)),
		sqsRecord(t, "r2", func() types.ReminderMessage {
			m := testMessage(types.KindWeeklyDigest)
			m.UserRef = "user-2"
			return m
		}()),
	}}

	resp, err := worker.Handle(context.Background(), event)
	if err != nil {
		t.Fatalf("Handle() error: %v", err)
	}
	if len(resp.BatchItemFailures) != 0 {
		t.Errorf("expected no batch failures, got %+v", resp.BatchItemFailures)
	}

	if len(provider.sent) != 2 {
		t.Fatalf("expected 2 sends, got %d", len(provider.sent))
	}
	if provider.sent[0].To != "one@example.com" {
		t.Errorf("first send to = %q", provider.sent[0].To)
	}
	if provider.sent[1].To != "two@example.com" {
		t.Errorf("second send to = %q", provider.sent[1].To)
	}

	if len(metrics.deliveries) != 2 {
		t.Fatalf("expected 2 delivery metrics, got %d", len(metrics.deliveries))
	}
	for _, d := range metrics.deliveries {
		if d.Result != MetricSuccess {
			t.Errorf("delivery result = %q, want success", d.Result)
		}
	}
	if metrics.latencies != 2 {
		t.Errorf("latency metrics = %d, want 2", metrics.latencies)
	}
}

func TestWorkerHandle_MalformedBodyIsAcked(t *testing.T) {
	provider := &mockProvider{}
	metrics := &mockMetrics{}
	worker := newTestWorker(t, knownRecipients(), provider, metrics)

	event := events.SQSEvent{Records: []events.SQSMessage{
		{MessageId: "bad", Body: "{not json"},
	}}

	resp, err := worker.Handle(context.Background(), event)
	if err != nil {
		t.Fatalf("Handle() error: %v", err)
	}
	// Parse failures never resolve on retry so the message is ACKed.
	if len(resp.BatchItemFailures) != 0 {
		t.Errorf("expected no batch failures, got %+v", resp.BatchItemFailures)
	}
	if len(provider.sent) != 0 {
		t.Errorf("expected no sends, got %d", len(provider.sent))
	}
}

func TestWorkerHandle_MissingRecipientIsSkipped(t *testing.T) {
	provider := &mockProvider{}
	metrics := &mockMetrics{}
	worker := newTestWorker(t, knownRecipients(), provider, metrics)

	msg := testMessage(types.KindTaskReminder)
	msg.UserRef = "ghost"

	resp, err := worker.Handle(context.Background(), events.SQSEvent{
		Records: []events.SQSMessage{sqsRecord(t, "r1", msg)},
	})
	if err != nil {
		t.Fatalf("Handle() error: %v", err)
	}
	if len(resp.BatchItemFailures) != 0 {
		t.Errorf("expected no batch failures, got %+v", resp.BatchItemFailures)
	}
	if len(metrics.deliveries) != 1 || metrics.deliveries[0].Result != MetricSkipped {
		t.Errorf("deliveries = %+v, want one skipped", metrics.deliveries)
	}
}

func TestWorkerHandle_RecipientDBErrorIsRetried(t *testing.T) {
	recipients := &mockRecipientSource{
		err: types.NewAppError(types.ErrCodeInternalDB, "connection refused", nil),
	}
	provider := &mockProvider{}
	worker := newTestWorker(t, recipients, provider, &mockMetrics{})

	resp, err := worker.Handle(context.Background(), events.SQSEvent{
		Records: []events.SQSMessage{sqsRecord(t, "r1", testMessage(types.KindTaskReminder))},
	})
	if err != nil {
		t.Fatalf("Handle() error: %v", err)
	}
	if len(resp.BatchItemFailures) != 1 || resp.BatchItemFailures[0].ItemIdentifier != "r1" {
		t.Errorf("expected r1 in batch failures, got %+v", resp.BatchItemFailures)
	}
}

func TestWorkerHandle_BlockedAddressIsNotRetried(t *testing.T) {
	provider := &mockProvider{
		err: types.NewAppError(types.ErrCodeEmailBlocked, "address suppressed", nil),
	}
	metrics := &mockMetrics{}
	worker := newTestWorker(t, knownRecipients(), provider, metrics)

	resp, err := worker.Handle(context.Background(), events.SQSEvent{
		Records: []events.SQSMessage{sqsRecord(t, "r1", testMessage(types.KindTaskReminder))},
	})
	if err != nil {
		t.Fatalf("Handle() error: %v", err)
	}
	if len(resp.BatchItemFailures) != 0 {
		t.Errorf("expected no batch failures for blocked address, got %+v", resp.BatchItemFailures)
	}
	if len(metrics.deliveries) != 1 || metrics.deliveries[0].Result != MetricFailed {
		t.Errorf("deliveries = %+v, want one failed", metrics.deliveries)
	}
}

func TestWorkerHandle_ProviderOutageIsRetried(t *testing.T) {
	provider := &mockProvider{
		err: types.NewAppError(types.ErrCodeUpstreamEmailProvider, "upstream returned 503 after retries", nil),
	}
	metrics := &mockMetrics{}
	worker := newTestWorker(t, knownRecipients(), provider, metrics)

	resp, err := worker.Handle(context.Background(), events.SQSEvent{
		Records: []events.SQSMessage{sqsRecord(t, "r1", testMessage(types.KindTaskReminder))},
	})
	if err != nil {
		t.Fatalf("Handle() error: %v", err)
	}
	if len(resp.BatchItemFailures) != 1 {
		t.Errorf("expected 1 batch failure, got %+v", resp.BatchItemFailures)
	}
	if len(metrics.deliveries) != 1 || metrics.deliveries[0].Result != MetricFailed {
		t.Errorf("deliveries = %+v, want one failed", metrics.deliveries)
	}
}

func TestWorkerHandle_FailureIsolatedPerRecord(t *testing.T) {
	// First record has no contact; second succeeds.
	provider := &mockProvider{}
	metrics := &mockMetrics{}
	worker := newTestWorker(t, knownRecipients(), provider, metrics)

	ghost := testMessage(types.KindTaskReminder)
	ghost.UserRef = "ghost"

	resp, err := worker.Handle(context.Background(), events.SQSEvent{
		Records: []events.SQSMessage{
			sqsRecord(t, "r1", ghost),
			sqsRecord(t, "r2", testMessage(types.KindTaskReminder)),
		},
	})
	if err != nil {
		t.Fatalf("Handle() error: %v", err)
	}
	if len(resp.BatchItemFailures) != 0 {
		t.Errorf("expected no batch failures, got %+v", resp.BatchItemFailures)
	}
	if len(provider.sent) != 1 {
		t.Errorf("expected 1 send, got %d", len(provider.sent))
	}
}

func TestWorkerHandle_RecordsQueueLag(t *testing.T) {
	provider := &mockProvider{}
	metrics := &mockMetrics{}
	worker := newTestWorker(t, knownRecipients(), provider, metrics)

	record := sqsRecord(t, "r1", testMessage(types.KindTaskReminder))
	record.Attributes = map[string]string{
		"SentTimestamp": fmt.Sprintf("%d", time.Now().Add(-5*time.Second).UnixMilli()),
	}

	if _, err := worker.Handle(context.Background(), events.SQSEvent{
		Records: []events.SQSMessage{record},
	}); err != nil {
		t.Fatalf("Handle() error: %v", err)
	}
	if metrics.queueLags != 1 {
		t.Errorf("queue lag metrics = %d, want 1", metrics.queueLags)
	}
}

func TestIsPermanentDeliveryError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"blocked", types.NewAppError(types.ErrCodeEmailBlocked, "", nil), true},
		{"not found", types.NewAppError(types.ErrCodeNotFoundSubscription, "", nil), true},
		{"invalid kind", types.NewAppError(types.ErrCodeValidationInvalidKind, "", nil), true},
		{"rate limited", types.NewAppError(types.ErrCodeUpstreamRateLimited, "", nil), false},
		{"provider down", types.NewAppError(types.ErrCodeUpstreamEmailProvider, "", nil), false},
		{"db error", types.NewAppError(types.ErrCodeInternalDB, "", nil), false},
		{"plain error", errors.New("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isPermanentDeliveryError(tt.err); got != tt.want {
				t.Errorf("isPermanentDeliveryError() = %v, want %v", got, tt.want)
			}
		})
	}
}
