package types

import "time"

// ReminderMessage represents the SQS payload sent from the scheduler to the
// delivery workers. One message is published per due subscription; the worker
// renders and delivers the notification for the referenced user. JSON tags
// use snake_case to match the settings service's message contracts.
type ReminderMessage struct {
	// Core Identity
	MessageID string `json:"message_id"`
	UserRef   string `json:"user_ref"`

	// Routing
	Kind NotificationKind `json:"kind"`

	// RequestedAt is the publish instant, carried so workers can measure
	// queue lag between enqueue and processing start.
	RequestedAt time.Time `json:"requested_at"`

	// Retry State: Carries retry count across the SQS publish-subscribe cycle.
	// Incremented by workers on transient failures before re-publishing.
	RetryCount int `json:"retry_count"`

	// Observability
	TraceID string `json:"trace_id"`
}
