// Package main is the entry point for the Tickler ops API server.
//
// The ops API exposes two authenticated endpoints: a manual job trigger that
// enqueues a run payload for the notifier Lambda, and a synchronous dry-run
// count of pending notifications. Both sit behind the X-Ops-Token shared
// secret; the health check is public.
//
// Startup: load configuration (env -> .env -> SSM), open the pgx pool, build
// the SQS client, wire the handler dependencies into the core chassis, and
// serve HTTP with graceful shutdown on SIGINT/SIGTERM.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"tickler/internal/api/handlers"
	"tickler/internal/config"
	"tickler/internal/core"
	"tickler/internal/db"
	"tickler/internal/notify"
	"tickler/internal/queue"
	"tickler/internal/scheduler"
	"tickler/internal/types"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// run encapsulates the startup lifecycle so that main() can cleanly exit on error.
func run() error {
	cfg, err := config.LoadConfig(config.NewSSMProvider(os.Getenv("AWS_REGION")))
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info("tickler ops API starting",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
		"commit", cfg.Build.Commit,
		"port", cfg.Server.Port,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := newPool(ctx, cfg)
	if err != nil {
		return fmt.Errorf("opening database pool: %w", err)
	}

	sqsClient, err := newSQSClient(ctx, cfg)
	if err != nil {
		pool.Close()
		return fmt.Errorf("creating SQS client: %w", err)
	}

	srv, err := core.NewServer(cfg, logger)
	if err != nil {
		pool.Close()
		return fmt.Errorf("creating server: %w", err)
	}
	srv.OnShutdown(func(ctx context.Context) error {
		pool.Close()
		return nil
	})

	// Handler wiring. The pending count reuses the scheduler's dry-run pass
	// over the same subscription repository the notifier Lambda uses; the
	// trigger endpoint publishes onto the jobs queue and lets the notifier's
	// hourly lock arbitrate against the scheduled run.
	subs := db.NewSubscriptionRepository(pool)
	reminderPub := queue.NewReminderPublisher(sqsClient, cfg.AWS, logger)
	registry := notify.NewDefaultRegistry(reminderPub, logger)
	notifScheduler := scheduler.NewNotificationScheduler(subs, registry, logger)
	jobTrigger := queue.NewJobTrigger(sqsClient, cfg.AWS, logger)

	jobsHandler := handlers.NewJobsHandler(jobTrigger, notifScheduler, srv.Validator, types.RealClock{}, logger)
	srv.V1RouteRegistrars = append(srv.V1RouteRegistrars, func(r chi.Router) {
		jobsHandler.RegisterRoutes(r)
	})

	srv.HealthProbes = []core.HealthProbe{
		&dbProbe{pool: pool},
		&sqsProbe{client: sqsClient, queueURL: cfg.AWS.JobsQueue},
	}

	srv.MountRoutes()

	return serve(ctx, srv, cfg, logger)
}

// serve runs the HTTP listener until the context is cancelled, then shuts
// down gracefully with a 10-second deadline.
func serve(ctx context.Context, srv *core.Server, cfg *config.Config, logger *slog.Logger) error {
	httpServer := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("HTTP server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("initiating graceful shutdown")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", "error", err)
		}
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}

	logger.Info("server stopped cleanly")
	return nil
}

// newPool opens a pgx connection pool with the tuning parameters from config.
func newPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.Database.URL.Unmask())
	if err != nil {
		return nil, fmt.Errorf("parsing database URL: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.Database.MaxConns)
	poolCfg.MinConns = int32(cfg.Database.MinConns)
	poolCfg.MaxConnLifetime = cfg.Database.MaxConnLifetime
	poolCfg.HealthCheckPeriod = cfg.Database.HealthCheckPeriod

	return pgxpool.NewWithConfig(ctx, poolCfg)
}

// newSQSClient builds the SQS client, honoring the LocalStack endpoint
// override when configured.
func newSQSClient(ctx context.Context, cfg *config.Config) (*sqs.Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		return nil, err
	}

	return sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
		if cfg.AWS.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.AWS.EndpointURL)
		}
	}), nil
}

// dbProbe checks database reachability for the health endpoint.
type dbProbe struct {
	pool *pgxpool.Pool
}

func (p *dbProbe) Name() string { return "database" }

func (p *dbProbe) Check(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// sqsProbe checks that the jobs queue is reachable and exists.
type sqsProbe struct {
	client   *sqs.Client
	queueURL string
}

func (p *sqsProbe) Name() string { return "sqs" }

func (p *sqsProbe) Check(ctx context.Context) error {
	_, err := p.client.GetQueueAttributes(ctx, &sqs.GetQueueAttributesInput{
		QueueUrl: aws.String(p.queueURL),
	})
	return err
}

// newLogger creates a structured slog.Logger configured for the given log level.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
