package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"tickler/internal/notify"
	"tickler/internal/types"
)

// --- Mocks ---

// mockSubscriptionSource returns a fixed subscription list or an error.
type mockSubscriptionSource struct {
	subs []types.Subscription
	err  error
}

func (m *mockSubscriptionSource) ListEnabled(_ context.Context) ([]types.Subscription, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.subs, nil
}

// mockSender records the user refs it was asked to send to.
type mockSender struct {
	sent []string
	err  error
}

func (m *mockSender) Send(_ context.Context, userRef string) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, userRef)
	return nil
}

// mockSenderRegistry maps kinds to senders without the registration layer.
type mockSenderRegistry struct {
	senders map[types.NotificationKind]notify.Sender
}

func (m *mockSenderRegistry) Lookup(kind types.NotificationKind) (notify.Sender, bool) {
	s, ok := m.senders[kind]
	return s, ok
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sub(id, userRef string, kind types.NotificationKind, sched string) types.Subscription {
	return types.Subscription{
		ID:       id,
		UserRef:  userRef,
		Kind:     kind,
		Schedule: sched,
		Enabled:  true,
	}
}

// --- ProcessPendingNotifications Tests ---

func TestProcessPendingNotifications_DispatchesDueSubscriptions(t *testing.T) {
	// 2026-01-05 is a Monday. "0 8 * * 1" fires at 08:00 Monday, inside the
	// one-hour lookback at 08:30.
	now := time.Date(2026, 1, 5, 8, 30, 0, 0, time.UTC)

	source := &mockSubscriptionSource{subs: []types.Subscription{
		sub("sub-1", "user-1", types.KindTaskReminder, "0 8 * * 1"),
		sub("sub-2", "user-2", types.KindWeeklyDigest, "0 8 * * 1"),
		sub("sub-3", "user-3", types.KindTaskReminder, "0 20 * * 5"),
	}}
	reminders := &mockSender{}
	digests := &mockSender{}
	registry := &mockSenderRegistry{senders: map[types.NotificationKind]notify.Sender{
		types.KindTaskReminder: reminders,
		types.KindWeeklyDigest: digests,
	}}

	svc := NewNotificationScheduler(source, registry, testLogger())

	summary, err := svc.ProcessPendingNotifications(context.Background(), now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if summary.Processed != 3 {
		t.Errorf("processed = %d, want 3", summary.Processed)
	}
	if summary.Sent != 2 {
		t.Errorf("sent = %d, want 2", summary.Sent)
	}
	if summary.Skipped != 1 {
		t.Errorf("skipped = %d, want 1", summary.Skipped)
	}
	if summary.Failed != 0 {
		t.Errorf("failed = %d, want 0", summary.Failed)
	}

	if len(reminders.sent) != 1 || reminders.sent[0] != "user-1" {
		t.Errorf("reminder sends = %v, want [user-1]", reminders.sent)
	}
	if len(digests.sent) != 1 || digests.sent[0] != "user-2" {
		t.Errorf("digest sends = %v, want [user-2]", digests.sent)
	}
}

func TestProcessPendingNotifications_InvalidScheduleIsIsolated(t *testing.T) {
	now := time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC)

	source := &mockSubscriptionSource{subs: []types.Subscription{
		sub("sub-bad", "user-bad", types.KindTaskReminder, "not a cron expr"),
		sub("sub-ok", "user-ok", types.KindTaskReminder, "0 8 * * 1"),
	}}
	reminders := &mockSender{}
	registry := &mockSenderRegistry{senders: map[types.NotificationKind]notify.Sender{
		types.KindTaskReminder: reminders,
	}}

	svc := NewNotificationScheduler(source, registry, testLogger())

	summary, err := svc.ProcessPendingNotifications(context.Background(), now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if summary.Failed != 1 {
		t.Errorf("failed = %d, want 1", summary.Failed)
	}
	if summary.Sent != 1 {
		t.Errorf("sent = %d, want 1", summary.Sent)
	}
	if len(reminders.sent) != 1 || reminders.sent[0] != "user-ok" {
		t.Errorf("sends = %v, want [user-ok]", reminders.sent)
	}
}

func TestProcessPendingNotifications_UnknownKindIsSkippedNotFailed(t *testing.T) {
	now := time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC)

	source := &mockSubscriptionSource{subs: []types.Subscription{
		sub("sub-1", "user-1", types.NotificationKind("carrier_pigeon"), "0 8 * * 1"),
	}}
	registry := &mockSenderRegistry{senders: map[types.NotificationKind]notify.Sender{}}

	svc := NewNotificationScheduler(source, registry, testLogger())

	summary, err := svc.ProcessPendingNotifications(context.Background(), now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// An unregistered kind is a configuration gap, not a delivery failure.
	if summary.Skipped != 1 {
		t.Errorf("skipped = %d, want 1", summary.Skipped)
	}
	if summary.Failed != 0 {
		t.Errorf("failed = %d, want 0", summary.Failed)
	}
	if summary.Sent != 0 {
		t.Errorf("sent = %d, want 0", summary.Sent)
	}

	result := svc.dispatchOne(context.Background(), &source.subs[0], now)
	if result.Outcome != OutcomeSkipped {
		t.Errorf("outcome = %v, want skipped", result.Outcome)
	}
	if !strings.Contains(result.Reason, "carrier_pigeon") {
		t.Errorf("reason = %q, want the unregistered kind", result.Reason)
	}
}

func TestProcessPendingNotifications_SenderFailureIsIsolated(t *testing.T) {
	now := time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC)

	source := &mockSubscriptionSource{subs: []types.Subscription{
		sub("sub-1", "user-1", types.KindTaskReminder, "0 8 * * 1"),
		sub("sub-2", "user-2", types.KindWeeklyDigest, "0 8 * * 1"),
	}}
	reminders := &mockSender{err: errors.New("queue unavailable")}
	digests := &mockSender{}
	registry := &mockSenderRegistry{senders: map[types.NotificationKind]notify.Sender{
		types.KindTaskReminder: reminders,
		types.KindWeeklyDigest: digests,
	}}

	svc := NewNotificationScheduler(source, registry, testLogger())

	summary, err := svc.ProcessPendingNotifications(context.Background(), now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if summary.Failed != 1 {
		t.Errorf("failed = %d, want 1", summary.Failed)
	}
	if summary.Sent != 1 {
		t.Errorf("sent = %d, want 1", summary.Sent)
	}
	if len(digests.sent) != 1 || digests.sent[0] != "user-2" {
		t.Errorf("digest sends = %v, want [user-2]", digests.sent)
	}
}

func TestProcessPendingNotifications_ListErrorIsFatal(t *testing.T) {
	source := &mockSubscriptionSource{err: errors.New("connection refused")}
	registry := &mockSenderRegistry{senders: map[types.NotificationKind]notify.Sender{}}

	svc := NewNotificationScheduler(source, registry, testLogger())

	_, err := svc.ProcessPendingNotifications(context.Background(), time.Now().UTC())
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

func TestProcessPendingNotifications_EmptyList(t *testing.T) {
	source := &mockSubscriptionSource{}
	registry := &mockSenderRegistry{senders: map[types.NotificationKind]notify.Sender{}}

	svc := NewNotificationScheduler(source, registry, testLogger())

	summary, err := svc.ProcessPendingNotifications(context.Background(), time.Now().UTC())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.Processed != 0 || summary.Sent != 0 || summary.Failed != 0 || summary.Skipped != 0 {
		t.Errorf("summary = %+v, want all zero", summary)
	}
}

// --- PendingNotificationCount Tests ---

func TestPendingNotificationCount_MatchesDispatchCount(t *testing.T) {
	now := time.Date(2026, 1, 5, 8, 30, 0, 0, time.UTC)

	subs := []types.Subscription{
		sub("sub-1", "user-1", types.KindTaskReminder, "0 8 * * 1"),
		sub("sub-2", "user-2", types.KindWeeklyDigest, "0 8 * * 1"),
		sub("sub-3", "user-3", types.KindTaskReminder, "0 20 * * 5"),
		sub("sub-4", "user-4", types.NotificationKind("carrier_pigeon"), "0 8 * * 1"),
		sub("sub-5", "user-5", types.KindTaskReminder, "bogus"),
	}
	reminders := &mockSender{}
	digests := &mockSender{}
	registry := &mockSenderRegistry{senders: map[types.NotificationKind]notify.Sender{
		types.KindTaskReminder: reminders,
		types.KindWeeklyDigest: digests,
	}}

	svc := NewNotificationScheduler(&mockSubscriptionSource{subs: subs}, registry, testLogger())

	count, err := svc.PendingNotificationCount(context.Background(), now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(reminders.sent) != 0 || len(digests.sent) != 0 {
		t.Fatalf("dry run must not dispatch, got %d reminder and %d digest sends",
			len(reminders.sent), len(digests.sent))
	}

	summary, err := svc.ProcessPendingNotifications(context.Background(), now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != summary.Sent {
		t.Errorf("pending count = %d, dispatch sent = %d, want equal", count, summary.Sent)
	}
	if count != 2 {
		t.Errorf("pending count = %d, want 2", count)
	}
}

func TestPendingNotificationCount_ListError(t *testing.T) {
	source := &mockSubscriptionSource{err: errors.New("connection refused")}
	registry := &mockSenderRegistry{senders: map[types.NotificationKind]notify.Sender{}}

	svc := NewNotificationScheduler(source, registry, testLogger())

	_, err := svc.PendingNotificationCount(context.Background(), time.Now().UTC())
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}
