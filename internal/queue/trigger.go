// Package queue provides SQS-based message producers: reminder messages for
// the email worker and run payloads for the notifier.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqsTypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/google/uuid"

	"tickler/internal/config"
	"tickler/internal/scheduler"
	"tickler/internal/types"
)

// SQSSender abstracts the SQS SendMessage operation for testability.
// Production code uses the *sqs.Client from aws-sdk-go-v2.
type SQSSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// ReminderPublisher sends reminder messages to the queue consumed by the
// email worker. It satisfies notify.ReminderPublisher.
type ReminderPublisher struct {
	client   SQSSender
	queueURL string
	logger   *slog.Logger
}

// NewReminderPublisher creates a publisher targeting the reminders queue
// from the AWSConfig.
func NewReminderPublisher(client SQSSender, awsCfg config.AWSConfig, logger *slog.Logger) *ReminderPublisher {
	return &ReminderPublisher{
		client:   client,
		queueURL: awsCfg.ReminderQueue,
		logger:   logger,
	}
}

// PublishReminder serializes the ReminderMessage to JSON and dispatches it
// to the reminders queue.
func (p *ReminderPublisher) PublishReminder(ctx context.Context, msg types.ReminderMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("queue: failed to marshal ReminderMessage: %w", err)
	}

	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(p.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]sqsTypes.MessageAttributeValue{
			"kind": {
				DataType:    aws.String("String"),
				StringValue: aws.String(string(msg.Kind)),
			},
			"trace_id": {
				DataType:    aws.String("String"),
				StringValue: aws.String(msg.TraceID),
			},
		},
	}

	_, err = p.client.SendMessage(ctx, input)
	if err != nil {
		return fmt.Errorf("queue: failed to send ReminderMessage to %s: %w", p.queueURL, err)
	}

	p.logger.InfoContext(ctx, "reminder message sent",
		"queue_url", p.queueURL,
		"message_id", msg.MessageID,
		"trace_id", msg.TraceID,
		"kind", string(msg.Kind),
	)

	return nil
}

// JobTrigger enqueues scheduled-run payloads for the notifier. The ops API
// uses it to request out-of-band runs without touching the notifier directly.
type JobTrigger struct {
	client   SQSSender
	queueURL string
	logger   *slog.Logger
}

// NewJobTrigger creates a trigger targeting the jobs queue from the AWSConfig.
func NewJobTrigger(client SQSSender, awsCfg config.AWSConfig, logger *slog.Logger) *JobTrigger {
	return &JobTrigger{
		client:   client,
		queueURL: awsCfg.JobsQueue,
		logger:   logger,
	}
}

// PublishRun serializes the RunPayload to JSON and dispatches it to the jobs
// queue. The reason is carried as a message attribute for operator tracing.
func (t *JobTrigger) PublishRun(ctx context.Context, payload scheduler.RunPayload, reason string) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("queue: failed to marshal RunPayload: %w", err)
	}

	traceID := uuid.New().String()

	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(t.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]sqsTypes.MessageAttributeValue{
			"reason": {
				DataType:    aws.String("String"),
				StringValue: aws.String(reason),
			},
			"trace_id": {
				DataType:    aws.String("String"),
				StringValue: aws.String(traceID),
			},
		},
	}

	_, err = t.client.SendMessage(ctx, input)
	if err != nil {
		return fmt.Errorf("queue: failed to send RunPayload to %s: %w", t.queueURL, err)
	}

	t.logger.InfoContext(ctx, "run payload sent",
		"queue_url", t.queueURL,
		"task", string(payload.Task),
		"trace_id", traceID,
		"reason", reason,
	)

	return nil
}
