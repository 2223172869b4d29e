package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"tickler/internal/types"
)

// ReminderPublisher abstracts the queue publication performed by senders.
// Production code uses queue.ReminderPublisher.
type ReminderPublisher interface {
	PublishReminder(ctx context.Context, msg types.ReminderMessage) error
}

// QueueSender implements Sender by enqueueing a ReminderMessage for delivery
// by the email worker. Senders never talk to the email provider directly;
// delivery retries and provider outages are the worker's problem.
type QueueSender struct {
	kind      types.NotificationKind
	publisher ReminderPublisher
	logger    *slog.Logger
}

// NewQueueSender creates a QueueSender for the given kind.
func NewQueueSender(kind types.NotificationKind, publisher ReminderPublisher, logger *slog.Logger) *QueueSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &QueueSender{
		kind:      kind,
		publisher: publisher,
		logger:    logger,
	}
}

// Send enqueues one reminder for the user.
func (s *QueueSender) Send(ctx context.Context, userRef string) error {
	msg := types.ReminderMessage{
		MessageID:   uuid.New().String(),
		UserRef:     userRef,
		Kind:        s.kind,
		RequestedAt: time.Now().UTC(),
		TraceID:     uuid.New().String(),
	}

	if err := s.publisher.PublishReminder(ctx, msg); err != nil {
		return types.NewAppError(types.ErrCodeUpstreamQueue, "failed to enqueue reminder", err)
	}

	s.logger.InfoContext(ctx, "reminder enqueued",
		"message_id", msg.MessageID,
		"kind", string(s.kind),
		"user_ref", userRef,
	)
	return nil
}

// NewDefaultRegistry returns a Registry with a QueueSender registered for
// every known notification kind.
func NewDefaultRegistry(publisher ReminderPublisher, logger *slog.Logger) *Registry {
	registry := NewRegistry()
	for _, kind := range types.KnownKinds {
		registry.Register(kind, NewQueueSender(kind, publisher, logger))
	}
	return registry
}
