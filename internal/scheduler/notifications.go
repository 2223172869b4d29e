// This file implements the notification scheduler service: one pass over the
// enabled subscriptions, a due-check per subscription against the reference
// time, and dispatch of the due ones through the sender registry.
//
// The scheduler is invoked hourly by the notifier multiplexer. It holds no
// state between calls; the reference time is always passed in explicitly so
// runs are deterministic and backfillable.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"tickler/internal/notify"
	"tickler/internal/schedule"
	"tickler/internal/types"
)

// SubscriptionSource defines the database operations needed by the scheduler.
// Using an interface allows clean testing without database dependencies.
type SubscriptionSource interface {
	// ListEnabled returns subscriptions where enabled = TRUE and the schedule
	// is non-empty.
	//
	// SQL: SELECT id, user_ref, kind, schedule, enabled, created_at, updated_at
	//      FROM subscriptions
	//      WHERE enabled = TRUE AND schedule <> ''
	ListEnabled(ctx context.Context) ([]types.Subscription, error)
}

// SenderRegistry resolves a notification kind to its sender.
// Production code uses *notify.Registry.
type SenderRegistry interface {
	Lookup(kind types.NotificationKind) (notify.Sender, bool)
}

// NotificationScheduler evaluates subscriptions and dispatches the due ones.
type NotificationScheduler struct {
	source   SubscriptionSource
	senders  SenderRegistry
	lookback time.Duration
	logger   *slog.Logger
}

// NewNotificationScheduler creates a scheduler with the default lookback
// window. The lookback pairs with the hourly poll interval; see the constants
// in types.go.
func NewNotificationScheduler(source SubscriptionSource, senders SenderRegistry, logger *slog.Logger) *NotificationScheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &NotificationScheduler{
		source:   source,
		senders:  senders,
		lookback: DefaultLookback,
		logger:   logger,
	}
}

// ProcessPendingNotifications loads the enabled subscriptions, evaluates each
// against now, and dispatches the due ones through the sender registry.
//
// Per-subscription problems never stop the iteration: invalid schedules and
// sender failures count as failed, an unregistered kind is warned about and
// skipped. Only a failure to list subscriptions returns an error.
func (s *NotificationScheduler) ProcessPendingNotifications(ctx context.Context, now time.Time) (BatchSummary, error) {
	var summary BatchSummary

	subs, err := s.source.ListEnabled(ctx)
	if err != nil {
		return summary, fmt.Errorf("listing enabled subscriptions: %w", err)
	}

	for i := range subs {
		result := s.dispatchOne(ctx, &subs[i], now)
		summary.add(result)

		if result.Outcome == OutcomeFailed {
			s.logger.ErrorContext(ctx, "subscription dispatch failed",
				"subscription_id", result.SubscriptionID,
				"user_ref", result.UserRef,
				"reason", result.Reason,
			)
		}
	}

	s.logger.InfoContext(ctx, "notification batch complete",
		"reference_time", now.Format(time.RFC3339),
		"processed", summary.Processed,
		"sent", summary.Sent,
		"failed", summary.Failed,
		"skipped", summary.Skipped,
	)

	return summary, nil
}

// PendingNotificationCount performs the same load and due-check as
// ProcessPendingNotifications but dispatches nothing. It returns the number
// of subscriptions that a real run at now would attempt to send.
func (s *NotificationScheduler) PendingNotificationCount(ctx context.Context, now time.Time) (int, error) {
	subs, err := s.source.ListEnabled(ctx)
	if err != nil {
		return 0, fmt.Errorf("listing enabled subscriptions: %w", err)
	}

	pending := 0
	for i := range subs {
		sub := &subs[i]

		due, err := schedule.IsDue(sub.Schedule, now, s.lookback)
		if err != nil {
			s.logger.WarnContext(ctx, "skipping subscription with invalid schedule",
				"subscription_id", sub.ID,
				"schedule", sub.Schedule,
				"error", err,
			)
			continue
		}
		if !due {
			continue
		}
		// A real run only attempts kinds with a registered sender.
		if _, ok := s.senders.Lookup(sub.Kind); !ok {
			continue
		}
		pending++
	}

	return pending, nil
}

// dispatchOne evaluates and, if due, dispatches a single subscription.
func (s *NotificationScheduler) dispatchOne(ctx context.Context, sub *types.Subscription, now time.Time) Result {
	result := Result{
		SubscriptionID: sub.ID,
		UserRef:        sub.UserRef,
	}

	due, err := schedule.IsDue(sub.Schedule, now, s.lookback)
	if err != nil {
		result.Outcome = OutcomeFailed
		result.Reason = err.Error()
		return result
	}
	if !due {
		result.Outcome = OutcomeSkipped
		result.Reason = "not due"
		return result
	}

	// A kind with no registered sender is a configuration gap, not a delivery
	// failure: warn and skip so failure counts stay meaningful.
	sender, ok := s.senders.Lookup(sub.Kind)
	if !ok {
		s.logger.WarnContext(ctx, "skipping subscription with unregistered kind",
			"subscription_id", sub.ID,
			"user_ref", sub.UserRef,
			"kind", sub.Kind,
		)
		result.Outcome = OutcomeSkipped
		result.Reason = fmt.Sprintf("unknown notification kind %q", sub.Kind)
		return result
	}

	if err := sender.Send(ctx, sub.UserRef); err != nil {
		result.Outcome = OutcomeFailed
		result.Reason = err.Error()
		return result
	}

	result.Outcome = OutcomeSent
	return result
}
