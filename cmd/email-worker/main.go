// Package main is the entrypoint for the Email Worker Lambda function.
//
// The Email Worker consumes reminder messages from the reminders SQS queue,
// looks up the recipient, renders the email from the embedded templates, and
// delivers it through the configured provider (SendGrid, SES, or a logging
// stub for local development). Delivery outcomes are published to CloudWatch.
//
// Each invocation receives a batch of SQS messages; failures are reported via
// partial batch responses so SQS redrives only the messages that failed.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/jackc/pgx/v5/pgxpool"

	"tickler/internal/config"
	"tickler/internal/db"
	"tickler/internal/email"
	"tickler/internal/external"
	"tickler/internal/types"
)

// slogAdapter wraps *slog.Logger to implement the types.Logger interface.
// slog.Logger satisfies Info, Error, and Warn directly, but With returns
// *slog.Logger rather than types.Logger, so an adapter is necessary.
type slogAdapter struct {
	logger *slog.Logger
}

func (a *slogAdapter) Info(msg string, args ...any)  { a.logger.Info(msg, args...) }
func (a *slogAdapter) Error(msg string, args ...any) { a.logger.Error(msg, args...) }
func (a *slogAdapter) Warn(msg string, args ...any)  { a.logger.Warn(msg, args...) }
func (a *slogAdapter) With(args ...any) types.Logger {
	return &slogAdapter{logger: a.logger.With(args...)}
}

var _ types.Logger = (*slogAdapter)(nil)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	logger.Info("email worker Lambda initializing (cold start)")

	worker, pool, err := buildWorker(context.Background(), logger)
	if err != nil {
		logger.Error("failed to initialize email worker", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	logger.Info("email worker Lambda initialized")

	// Local mode: read a JSON SQS event from stdin instead of starting the
	// Lambda runtime. This enables local testing without the AWS Lambda RIE.
	// Usage: echo '{"Records":[{"messageId":"1","body":"{...}"}]}' | go run cmd/email-worker/main.go
	if os.Getenv("APP_ENV") == "local" {
		if err := runLocal(worker, logger); err != nil {
			logger.Error("local run failed", "error", err)
			os.Exit(1)
		}
		return
	}

	lambda.Start(worker.Handle)
}

// buildWorker wires the delivery pipeline: recipient lookup, template
// rendering, the email provider, and CloudWatch metrics.
func buildWorker(ctx context.Context, logger *slog.Logger) (*email.Worker, *pgxpool.Pool, error) {
	cfg, err := config.LoadConfig(config.NewSSMProvider(os.Getenv("AWS_REGION")))
	if err != nil {
		return nil, nil, fmt.Errorf("loading configuration: %w", err)
	}

	typedLogger := &slogAdapter{logger: logger}

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

	provider, err := newEmailProvider(cfg, awsCfg, logger)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}

	renderer, err := email.NewRenderer(email.RendererConfig{
		FromAddr: cfg.Email.FromAddress,
		FromName: cfg.Email.FromName,
		Logger:   typedLogger,
	})
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("initializing renderer: %w", err)
	}

	cwClient := cloudwatch.NewFromConfig(awsCfg)
	metrics := email.NewCloudWatchDeliveryMetrics(cwClient, cfg.Observability.MetricNamespace, typedLogger)

	worker := email.NewWorker(email.WorkerConfig{
		Recipients: db.NewRecipientRepository(pool),
		Renderer:   renderer,
		Provider:   provider,
		Metrics:    metrics,
		Logger:     typedLogger,
	})

	return worker, pool, nil
}

// newEmailProvider selects the delivery provider from configuration.
func newEmailProvider(cfg *config.Config, awsCfg aws.Config, logger *slog.Logger) (external.EmailProvider, error) {
	switch cfg.Email.Provider {
	case "sendgrid":
		return external.NewSendGridClient(
			&http.Client{Timeout: 10 * time.Second},
			external.SendGridClientConfig{
				APIKey: cfg.Email.SendGridAPIKey.Unmask(),
				Logger: logger,
			},
		), nil
	case "ses":
		return external.NewSESClient(awsCfg, external.SESClientConfig{
			ConfigSetName: cfg.Email.SESConfigSet,
			Logger:        logger,
		}), nil
	case "stub":
		logger.Warn("using stub email provider, no mail will be sent")
		return external.NewStubEmailProvider(logger), nil
	default:
		return nil, fmt.Errorf("unknown email provider %q", cfg.Email.Provider)
	}
}

// runLocal executes a single SQS event read from stdin and reports the result.
func runLocal(worker *email.Worker, logger *slog.Logger) error {
	logger.Info("APP_ENV=local: reading SQS event from stdin")

	raw, err := io.ReadAll(os.Stdin)
	if err != nil {
		return fmt.Errorf("reading stdin: %w", err)
	}
	if len(raw) == 0 {
		return fmt.Errorf("no input received on stdin")
	}

	var sqsEvent events.SQSEvent
	if err := json.Unmarshal(raw, &sqsEvent); err != nil {
		return fmt.Errorf("parsing stdin as SQS event: %w", err)
	}

	response, err := worker.Handle(context.Background(), sqsEvent)
	if err != nil {
		return err
	}

	if len(response.BatchItemFailures) > 0 {
		respJSON, _ := json.MarshalIndent(response, "", "  ")
		fmt.Fprintln(os.Stderr, string(respJSON))
		return fmt.Errorf("%d of %d records failed", len(response.BatchItemFailures), len(sqsEvent.Records))
	}

	logger.Info("all records processed", "records", len(sqsEvent.Records))
	return nil
}
