package email

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-lambda-go/events"

	"tickler/internal/external"
	"tickler/internal/types"
)

// RecipientSource resolves a reminder's user_ref to a contact record.
// Production code uses *db.RecipientRepository.
type RecipientSource interface {
	Lookup(ctx context.Context, userRef string) (types.Recipient, error)
}

// MessageRenderer turns a reminder message into deliverable email content.
// Production code uses *Renderer.
type MessageRenderer interface {
	Render(msg types.ReminderMessage, rec types.Recipient) (types.SendInput, error)
}

// Worker processes reminder messages from the reminders queue. Each Lambda
// invocation receives a batch of SQS records; records that fail with a
// retryable error are reported as partial batch failures so SQS redelivers
// only those.
type Worker struct {
	recipients RecipientSource
	renderer   MessageRenderer
	provider   external.EmailProvider
	metrics    DeliveryMetrics
	logger     types.Logger
}

// WorkerConfig holds the dependencies for constructing a Worker.
type WorkerConfig struct {
	Recipients RecipientSource
	Renderer   MessageRenderer
	Provider   external.EmailProvider
	Metrics    DeliveryMetrics
	Logger     types.Logger
}

// NewWorker creates a Worker from its dependencies.
func NewWorker(cfg WorkerConfig) *Worker {
	return &Worker{
		recipients: cfg.Recipients,
		renderer:   cfg.Renderer,
		provider:   cfg.Provider,
		metrics:    cfg.Metrics,
		logger:     cfg.Logger,
	}
}

// Handle processes an SQS event containing one or more reminder messages.
// Each message is processed independently; a failure on one never blocks the
// rest of the batch.
func (w *Worker) Handle(ctx context.Context, sqsEvent events.SQSEvent) (events.SQSEventResponse, error) {
	response := events.SQSEventResponse{}

	for _, record := range sqsEvent.Records {
		if err := w.processRecord(ctx, record); err != nil {
			w.logger.Error("failed to process SQS message",
				"message_id", record.MessageId,
				"error", err.Error(),
			)
			// Report partial failure so SQS retries only this message.
			response.BatchItemFailures = append(response.BatchItemFailures,
				events.SQSBatchItemFailure{ItemIdentifier: record.MessageId},
			)
		}
	}

	return response, nil
}

// processRecord handles a single SQS record through the delivery pipeline.
// A nil return ACKs the message; a non-nil return requeues it via the
// partial batch response.
func (w *Worker) processRecord(ctx context.Context, record events.SQSMessage) error {
	start := time.Now()

	var msg types.ReminderMessage
	if err := json.Unmarshal([]byte(record.Body), &msg); err != nil {
		w.logger.Error("failed to unmarshal reminder message",
			"message_id", record.MessageId,
			"error", err.Error(),
		)
		// Permanent parse failure - do not retry.
		return nil
	}

	logger := w.logger.With(
		"message_id", msg.MessageID,
		"user_ref", msg.UserRef,
		"kind", string(msg.Kind),
		"retry_count", msg.RetryCount,
		"trace_id", msg.TraceID,
	)

	logger.Info("processing reminder message")

	// Record queue lag for observability.
	if sentTimestamp, ok := record.Attributes["SentTimestamp"]; ok {
		if sentAt, err := parseMillisTimestamp(sentTimestamp); err == nil {
			w.metrics.RecordQueueLag(ctx, time.Since(sentAt))
		}
	}

	rec, err := w.recipients.Lookup(ctx, msg.UserRef)
	if err != nil {
		if isPermanentDeliveryError(err) {
			logger.Warn("no contact record, dropping reminder", "error", err.Error())
			w.metrics.RecordDelivery(ctx, msg.Kind, MetricSkipped)
			return nil
		}
		return fmt.Errorf("look up recipient: %w", err)
	}

	input, err := w.renderer.Render(msg, rec)
	if err != nil {
		// Render failures are deterministic; re-queuing cannot fix them.
		logger.Error("failed to render reminder email", "error", err.Error())
		w.metrics.RecordDelivery(ctx, msg.Kind, MetricFailed)
		return nil
	}

	providerMsgID, err := w.provider.Send(ctx, input)
	if err != nil {
		if isPermanentDeliveryError(err) {
			logger.Warn("delivery permanently failed", "error", err.Error())
			w.metrics.RecordDelivery(ctx, msg.Kind, MetricFailed)
			return nil
		}
		w.metrics.RecordDelivery(ctx, msg.Kind, MetricFailed)
		return fmt.Errorf("send email: %w", err)
	}

	w.metrics.RecordDelivery(ctx, msg.Kind, MetricSuccess)
	w.metrics.RecordLatency(ctx, msg.Kind, time.Since(start))

	logger.Info("reminder email delivered",
		"provider_message_id", providerMsgID,
		"to", rec.Email,
	)

	return nil
}

// isPermanentDeliveryError reports whether the error can never succeed on
// retry: a blocked address, a missing contact record, or an unknown kind.
// Everything else (rate limits, provider outages, network errors) is
// retryable through SQS redelivery.
func isPermanentDeliveryError(err error) bool {
	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		return false
	}
	switch appErr.Code {
	case types.ErrCodeEmailBlocked,
		types.ErrCodeNotFoundSubscription,
		types.ErrCodeValidationInvalidKind:
		return true
	default:
		return false
	}
}

// parseMillisTimestamp parses a millisecond-epoch string into a time.Time.
// Used for the SQS SentTimestamp attribute to calculate queue lag.
func parseMillisTimestamp(ms string) (time.Time, error) {
	var millis int64
	if _, err := fmt.Sscanf(ms, "%d", &millis); err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(millis), nil
}
