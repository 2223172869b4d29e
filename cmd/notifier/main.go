// Package main is the entrypoint for the Notifier Lambda function.
//
// The Notifier is the scheduled-run multiplexer. EventBridge rules invoke it
// with RunPayload JSON directly; the ops API's manual trigger publishes the
// same payload through the jobs queue, so it arrives wrapped in an SQS
// envelope. Either way the JobRunner routes execution to the matching task
// service:
//
//   - process_notifications: one pass over the enabled subscriptions,
//     dispatching the due ones onto the reminders queue. Guarded by an
//     hourly lock so concurrent invocations produce exactly one run.
//   - cleanup_job_history: purges job_history rows past the retention window.
//   - count_pending: dry-run count, no lock and no history record.
//
// All dependencies are initialized eagerly during cold start and reused
// across invocations.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"tickler/internal/config"
	"tickler/internal/db"
	"tickler/internal/notify"
	"tickler/internal/queue"
	"tickler/internal/scheduler"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	logger.Info("notifier Lambda initializing (cold start)")

	runner, pool, err := buildRunner(context.Background(), logger)
	if err != nil {
		logger.Error("failed to initialize notifier", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	logger.Info("notifier Lambda initialized", "worker_id", runner.WorkerID)

	handler := &runHandler{runner: runner, logger: logger}

	// Local mode: read a run event from stdin instead of starting the Lambda
	// runtime. Usage: echo '{"task":"count_pending"}' | go run cmd/notifier/main.go
	if os.Getenv("APP_ENV") == "local" {
		if err := runLocal(handler, logger); err != nil {
			logger.Error("local run failed", "error", err)
			os.Exit(1)
		}
		return
	}

	lambda.Start(handler.Handle)
}

// runHandler accepts both invocation shapes the notifier receives: bare
// RunPayload JSON from EventBridge rules, and SQS envelopes carrying one
// payload per record body when the ops API's manual trigger publishes to the
// jobs queue.
type runHandler struct {
	runner *scheduler.JobRunner
	logger *slog.Logger
}

// Handle decodes the event into run payloads and executes them in order. The
// first task failure aborts the batch so SQS redrives the remaining records.
func (h *runHandler) Handle(ctx context.Context, raw json.RawMessage) (string, error) {
	payloads, err := decodeRunEvent(raw)
	if err != nil {
		return "", err
	}

	results := make([]string, 0, len(payloads))
	for _, payload := range payloads {
		result, err := h.runner.Run(ctx, payload)
		if err != nil {
			return "", err
		}
		results = append(results, result)
	}
	return strings.Join(results, "; "), nil
}

// decodeRunEvent returns the RunPayloads carried by a Lambda event. An event
// with a Records array is an SQS delivery and each record body holds one
// payload; anything else is parsed as a direct RunPayload.
func decodeRunEvent(raw []byte) ([]scheduler.RunPayload, error) {
	var sqsEvent events.SQSEvent
	if err := json.Unmarshal(raw, &sqsEvent); err == nil && len(sqsEvent.Records) > 0 {
		payloads := make([]scheduler.RunPayload, 0, len(sqsEvent.Records))
		for _, record := range sqsEvent.Records {
			var payload scheduler.RunPayload
			if err := json.Unmarshal([]byte(record.Body), &payload); err != nil {
				return nil, fmt.Errorf("parsing SQS record %s as run payload: %w", record.MessageId, err)
			}
			payloads = append(payloads, payload)
		}
		return payloads, nil
	}

	var payload scheduler.RunPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("parsing event as run payload: %w", err)
	}
	return []scheduler.RunPayload{payload}, nil
}

// buildRunner wires the full dependency graph for the run multiplexer.
func buildRunner(ctx context.Context, logger *slog.Logger) (*scheduler.JobRunner, *pgxpool.Pool, error) {
	cfg, err := config.LoadConfig(config.NewSSMProvider(os.Getenv("AWS_REGION")))
	if err != nil {
		return nil, nil, fmt.Errorf("loading configuration: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.Database.URL.Unmask())
	if err != nil {
		return nil, nil, fmt.Errorf("parsing database URL: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.Database.MaxConns)
	poolCfg.MinConns = int32(cfg.Database.MinConns)
	poolCfg.MaxConnLifetime = cfg.Database.MaxConnLifetime
	poolCfg.HealthCheckPeriod = cfg.Database.HealthCheckPeriod

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("opening database pool: %w", err)
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("loading AWS SDK config: %w", err)
	}
	sqsClient := sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
		if cfg.AWS.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.AWS.EndpointURL)
		}
	})

	reminderPub := queue.NewReminderPublisher(sqsClient, cfg.AWS, logger)
	registry := notify.NewDefaultRegistry(reminderPub, logger)

	subs := db.NewSubscriptionRepository(pool)
	history := db.NewJobHistoryRepository(pool)

	runner := &scheduler.JobRunner{
		Processor:   scheduler.NewNotificationScheduler(subs, registry, logger),
		Cleaner:     scheduler.NewHistoryCleaner(history, cfg.Jobs.HistoryRetention, logger),
		Locks:       db.NewJobLockRepository(pool),
		History:     history,
		WorkerID:    uuid.New().String(),
		Logger:      logger,
		LockTTL:     cfg.Jobs.LockTTL,
		RunTimeout:  cfg.Jobs.RunTimeout,
		MaxAttempts: cfg.Jobs.MaxAttempts,
		RetryDelay:  cfg.Jobs.RetryDelay,
	}

	return runner, pool, nil
}

// runLocal executes a single run event read from stdin and prints the result.
// Both a bare RunPayload and a full SQS envelope are accepted.
func runLocal(handler *runHandler, logger *slog.Logger) error {
	logger.Info("APP_ENV=local: reading run event from stdin")

	raw, err := io.ReadAll(os.Stdin)
	if err != nil {
		return fmt.Errorf("reading stdin: %w", err)
	}
	if len(raw) == 0 {
		return fmt.Errorf("no input received on stdin")
	}

	result, err := handler.Handle(context.Background(), raw)
	if err != nil {
		return err
	}

	fmt.Fprintln(os.Stdout, result)
	return nil
}
