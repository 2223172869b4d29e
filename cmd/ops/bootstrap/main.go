// Command bootstrap walks an operator through first-time environment setup
// for Tickler: collecting third-party credentials, minting internal secrets,
// and seeding AWS SSM Parameter Store with everything the service expects to
// find at boot.
//
// Typical invocations:
//
//	go run ./cmd/ops/bootstrap --env=dev
//	go run ./cmd/ops/bootstrap --env=dev --export-env
//	go run ./cmd/ops/bootstrap --env=prod --profile=tickler-prod --region=us-east-1
//
// The flow is: parse flags, resolve AWS credentials and confirm the caller
// identity via STS, gate production behind an interactive "yes", then run the
// parameter inventory (prompt, validate, write to SSM). With --export-env the
// stored parameters are read back afterwards and rendered into a .env file
// for local development.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sts"
)

var validEnvironments = map[string]bool{
	"dev":     true,
	"staging": true,
	"prod":    true,
}

// cliOptions are the parsed command-line flags.
type cliOptions struct {
	env           string
	profile       string
	region        string
	exportEnv     bool
	exportEnvPath string
}

// BootstrapContext carries the session state established during startup
// (resolved AWS config, verified identity) into the later phases.
type BootstrapContext struct {
	Environment string
	AWSProfile  string
	AWSRegion   string

	// AccountID and CallerARN come from STS GetCallerIdentity.
	AccountID string
	CallerARN string

	AWSConfig aws.Config
	Logger    *slog.Logger
}

func parseFlags() cliOptions {
	var opts cliOptions
	flag.StringVar(&opts.env, "env", "", "Target environment (dev/staging/prod) [required]")
	flag.StringVar(&opts.profile, "profile", "", "AWS CLI profile (default: uses default credential chain)")
	flag.StringVar(&opts.region, "region", "us-east-1", "AWS region")
	flag.BoolVar(&opts.exportEnv, "export-env", false, "After bootstrap, export SSM parameters to a .env file for local development")
	flag.StringVar(&opts.exportEnvPath, "export-env-path", ".env", "Path for the exported .env file")

	flag.Usage = func() {
		fmt.Fprint(os.Stderr,
			"Tickler Bootstrap Tool\n\n"+
				"Guides the setup of external accounts and AWS SSM parameters\n"+
				"required before the first deployment.\n\n"+
				"Usage:\n"+
				"  bootstrap --env=dev [--profile=NAME] [--region=REGION] [--export-env]\n\n"+
				"Flags:\n")
		flag.PrintDefaults()
	}

	flag.Parse()
	return opts
}

func main() {
	opts := parseFlags()

	if opts.env == "" {
		fmt.Fprintf(os.Stderr, "error: --env is required\n\n")
		flag.Usage()
		os.Exit(1)
	}
	if !validEnvironments[opts.env] {
		fmt.Fprintf(os.Stderr, "error: invalid environment %q (must be dev, staging, or prod)\n", opts.env)
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, opts, logger); err != nil {
		logger.Error("bootstrap failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, opts cliOptions, logger *slog.Logger) error {
	bctx, err := initializeSession(ctx, opts, logger)
	if err != nil {
		return fmt.Errorf("initializing session: %w", err)
	}

	if bctx.Environment == "prod" && !confirmProduction(bctx) {
		fmt.Fprintln(os.Stderr, "Aborted. No changes were made.")
		return nil
	}

	printBanner(bctx)

	runner := NewBootstrapRunner(bctx)
	if err := runner.Run(ctx); err != nil {
		return err
	}

	logger.Info("bootstrap completed successfully",
		"env", bctx.Environment,
		"account", bctx.AccountID,
		"region", bctx.AWSRegion,
	)

	if !opts.exportEnv {
		return nil
	}

	logger.Info("exporting SSM parameters to .env file", "path", opts.exportEnvPath)

	exportCfg := ExportEnvConfig{
		OutputPath:           opts.exportEnvPath,
		Environment:          bctx.Environment,
		SSM:                  runner.SSM,
		Stderr:               os.Stderr,
		IncludeLocalDefaults: true,
	}
	if err := ExportEnvFile(ctx, exportCfg); err != nil {
		return fmt.Errorf("exporting .env file: %w", err)
	}

	logger.Info(".env file exported successfully", "path", opts.exportEnvPath)
	return nil
}

// initializeSession resolves the AWS SDK config and confirms the active
// identity with STS before anything is written.
func initializeSession(ctx context.Context, opts cliOptions, logger *slog.Logger) (*BootstrapContext, error) {
	var loadOpts []func(*awsconfig.LoadOptions) error
	if opts.region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(opts.region))
	}
	if opts.profile != "" {
		loadOpts = append(loadOpts, awsconfig.WithSharedConfigProfile(opts.profile))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	// GetCallerIdentity doubles as a credential check.
	stsClient := sts.NewFromConfig(cfg)

	identityCtx, identityCancel := context.WithTimeout(ctx, 10*time.Second)
	defer identityCancel()

	identity, err := stsClient.GetCallerIdentity(identityCtx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return nil, fmt.Errorf("verifying AWS identity (STS GetCallerIdentity): %w\n"+
			"  Check that your AWS credentials are configured correctly.\n"+
			"  Profile: %q, Region: %q", err, opts.profile, opts.region)
	}

	bctx := &BootstrapContext{
		Environment: opts.env,
		AWSProfile:  opts.profile,
		AWSRegion:   opts.region,
		AccountID:   aws.ToString(identity.Account),
		CallerARN:   aws.ToString(identity.Arn),
		AWSConfig:   cfg,
		Logger:      logger,
	}

	logger.Info("AWS identity verified",
		"account_id", bctx.AccountID,
		"arn", bctx.CallerARN,
		"region", bctx.AWSRegion,
	)

	return bctx, nil
}

// confirmProduction requires the operator to type "yes" before a prod run.
func confirmProduction(bctx *BootstrapContext) bool {
	rule := strings.Repeat("=", 60)
	fmt.Fprintln(os.Stderr)
	fmt.Fprintln(os.Stderr, rule)
	fmt.Fprintln(os.Stderr, "  WARNING: You are targeting the PRODUCTION environment")
	fmt.Fprintln(os.Stderr, rule)
	fmt.Fprintf(os.Stderr, "  Account: %s\n", bctx.AccountID)
	fmt.Fprintf(os.Stderr, "  Region:  %s\n", bctx.AWSRegion)
	fmt.Fprintf(os.Stderr, "  ARN:     %s\n", bctx.CallerARN)
	fmt.Fprintln(os.Stderr, rule)
	fmt.Fprintln(os.Stderr)
	fmt.Fprint(os.Stderr, "Type 'yes' to continue: ")

	scanner := bufio.NewScanner(os.Stdin)
	if !scanner.Scan() {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(scanner.Text()), "yes")
}

func printBanner(bctx *BootstrapContext) {
	rule := strings.Repeat("-", 60)
	fmt.Fprintln(os.Stderr)
	fmt.Fprintln(os.Stderr, rule)
	fmt.Fprintln(os.Stderr, "  Tickler Bootstrap")
	fmt.Fprintln(os.Stderr, rule)
	fmt.Fprintf(os.Stderr, "  Environment:  %s\n", bctx.Environment)
	fmt.Fprintf(os.Stderr, "  AWS Account:  %s\n", bctx.AccountID)
	fmt.Fprintf(os.Stderr, "  AWS Region:   %s\n", bctx.AWSRegion)
	fmt.Fprintf(os.Stderr, "  Identity:     %s\n", bctx.CallerARN)
	if bctx.AWSProfile != "" {
		fmt.Fprintf(os.Stderr, "  Profile:      %s\n", bctx.AWSProfile)
	}
	fmt.Fprintf(os.Stderr, "  SSM Prefix:   /%s/tickler/\n", bctx.Environment)
	fmt.Fprintln(os.Stderr, rule)
	fmt.Fprintln(os.Stderr)
}
