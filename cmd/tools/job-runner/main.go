// Command job-runner invokes scheduled notification tasks directly, without
// going through the AWS Lambda shim. It exists for local development, manual
// backfills, and operational debugging: it builds a scheduler.RunPayload and
// hands it to the same run multiplexer the Lambda uses, so locking, history,
// and retry behavior are identical to a real invocation.
//
// Usage:
//
//	go run ./cmd/tools/job-runner --task=process_notifications
//	go run ./cmd/tools/job-runner --task=cleanup_job_history --reference-time=2026-01-15T02:00:00Z
//	go run ./cmd/tools/job-runner --dry-run --task=count_pending
//	go run ./cmd/tools/job-runner --check-schedule='0 8 * * 1' --reference-time=2026-01-05T08:30:00Z
//	go run ./cmd/tools/job-runner --list
//
// Configuration comes from the same environment variables the Lambda
// functions read (a .env file is honored via godotenv). --dry-run prints the
// JSON payload without executing anything; --check-schedule evaluates a cron
// expression the way the hourly run would, without touching any dependency;
// AWS_ENDPOINT_URL pointed at LocalStack runs the dispatching tasks against a
// local SQS.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"tickler/internal/config"
	"tickler/internal/db"
	"tickler/internal/notify"
	"tickler/internal/queue"
	"tickler/internal/schedule"
	"tickler/internal/scheduler"
)

// validTasks maps every supported TaskType to a short description for
// --list. Kept in sync with the constants in internal/scheduler.
var validTasks = map[scheduler.TaskType]string{
	scheduler.TaskProcessNotifications: "Evaluate enabled subscriptions and dispatch the due ones",
	scheduler.TaskCountPending:         "Dry run: count due subscriptions without dispatching",
	scheduler.TaskCleanupJobHistory:    "Purge job_history rows past the retention window",
}

func main() {
	taskFlag := flag.String("task", "", "Task type to execute (e.g., process_notifications)")
	refTimeFlag := flag.String("reference-time", "", "Override reference time (RFC3339, e.g., 2026-01-15T02:00:00Z)")
	listFlag := flag.Bool("list", false, "List all available task types and exit")
	dryRunFlag := flag.Bool("dry-run", false, "Print the JSON payload without executing")
	checkFlag := flag.String("check-schedule", "", "Evaluate a cron expression against the reference time and exit")

	flag.Usage = func() {
		fmt.Fprint(os.Stderr,
			"Usage: job-runner [flags]\n\n"+
				"Invoke scheduled notification tasks directly, bypassing Lambda.\n\n"+
				"Flags:\n")
		flag.PrintDefaults()
		fmt.Fprint(os.Stderr, "\nUse --list to see all available task types.\n")
	}

	flag.Parse()

	if *listFlag {
		printAvailableTasks()
		return
	}

	if *checkFlag != "" {
		report, err := checkSchedule(*checkFlag, *refTimeFlag)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		fmt.Print(report)
		return
	}

	payload, err := buildPayload(*taskFlag, *refTimeFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n\n", err)
		if *taskFlag == "" {
			flag.Usage()
		} else {
			printAvailableTasks()
		}
		os.Exit(1)
	}

	if *dryRunFlag {
		printPayload(payload)
		return
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	// A missing .env is normal outside local development.
	if err := godotenv.Load(); err != nil {
		logger.Info("no .env file loaded (this is fine in production)", "error", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	result, err := executeTask(ctx, payload, logger)
	if err != nil {
		logger.Error("task execution failed",
			"task", string(payload.Task),
			"error", err,
		)
		os.Exit(1)
	}

	logger.Info("task execution succeeded",
		"task", string(payload.Task),
		"result", result,
	)
}

// buildPayload validates the flag inputs and assembles the run payload.
func buildPayload(task, refTimeRaw string) (scheduler.RunPayload, error) {
	if task == "" {
		return scheduler.RunPayload{}, fmt.Errorf("--task is required")
	}

	taskType := scheduler.TaskType(task)
	if _, ok := validTasks[taskType]; !ok {
		return scheduler.RunPayload{}, fmt.Errorf("unknown task type %q", task)
	}

	var refTime *time.Time
	if refTimeRaw != "" {
		t, err := time.Parse(time.RFC3339, refTimeRaw)
		if err != nil {
			return scheduler.RunPayload{}, fmt.Errorf("invalid --reference-time %q: %v (expected RFC3339, e.g., 2026-01-15T02:00:00Z)", refTimeRaw, err)
		}
		refTime = &t
	}

	return scheduler.RunPayload{Task: taskType, ReferenceTime: refTime}, nil
}

// checkSchedule evaluates a cron expression the way the hourly run would:
// exact match at the reference minute, and due-check over the same lookback
// window the scheduler uses. A missing reference time means now.
func checkSchedule(expr, refTimeRaw string) (string, error) {
	refTime := time.Now().UTC()
	if refTimeRaw != "" {
		t, err := time.Parse(time.RFC3339, refTimeRaw)
		if err != nil {
			return "", fmt.Errorf("invalid --reference-time %q: %v (expected RFC3339)", refTimeRaw, err)
		}
		refTime = t.UTC()
	}

	matches, err := schedule.Matches(expr, refTime)
	if err != nil {
		return "", err
	}
	due, err := schedule.IsDue(expr, refTime, scheduler.DefaultLookback)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("schedule %q at %s:\n  exact match: %v\n  due within %s lookback: %v\n",
		expr, refTime.Format(time.RFC3339), matches, scheduler.DefaultLookback, due), nil
}

// executeTask wires the database and queue dependencies and runs the payload
// through the multiplexer.
func executeTask(ctx context.Context, payload scheduler.RunPayload, logger *slog.Logger) (string, error) {
	cfg, err := config.LoadConfig(config.NewSSMProvider(os.Getenv("AWS_REGION")))
	if err != nil {
		return "", fmt.Errorf("loading configuration: %w", err)
	}

	pool, err := pgxpool.New(ctx, cfg.Database.URL.Unmask())
	if err != nil {
		return "", fmt.Errorf("creating database pool: %w", err)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		return "", fmt.Errorf("pinging database: %w", err)
	}
	logger.Info("database connection established")

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		return "", fmt.Errorf("loading AWS SDK config: %w", err)
	}
	sqsClient := sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
		if cfg.AWS.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.AWS.EndpointURL)
		}
	})

	reminderPub := queue.NewReminderPublisher(sqsClient, cfg.AWS, logger)
	registry := notify.NewDefaultRegistry(reminderPub, logger)
	history := db.NewJobHistoryRepository(pool)

	runner := &scheduler.JobRunner{
		Processor:   scheduler.NewNotificationScheduler(db.NewSubscriptionRepository(pool), registry, logger),
		Cleaner:     scheduler.NewHistoryCleaner(history, cfg.Jobs.HistoryRetention, logger),
		Locks:       db.NewJobLockRepository(pool),
		History:     history,
		WorkerID:    fmt.Sprintf("job-runner-%s", uuid.New().String()),
		Logger:      logger,
		LockTTL:     cfg.Jobs.LockTTL,
		RunTimeout:  cfg.Jobs.RunTimeout,
		MaxAttempts: cfg.Jobs.MaxAttempts,
		RetryDelay:  cfg.Jobs.RetryDelay,
	}

	return runner.Run(ctx, payload)
}

func printAvailableTasks() {
	names := make([]string, 0, len(validTasks))
	for task := range validTasks {
		names = append(names, string(task))
	}
	sort.Strings(names)

	fmt.Println("Available tasks:")
	for _, name := range names {
		fmt.Printf("  %-24s %s\n", name, validTasks[scheduler.TaskType(name)])
	}
}

// printPayload renders the payload as indented JSON, ready to paste into an
// aws lambda invoke call.
func printPayload(payload scheduler.RunPayload) {
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: marshaling payload: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(data))
}
