package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"
)

// ExportEnvConfig holds the inputs for ExportEnvFile.
type ExportEnvConfig struct {
	// OutputPath is where the .env file is written.
	OutputPath string

	// Environment is the bootstrap environment (dev/staging/prod), used to
	// construct SSM paths and recorded in the file header.
	Environment string

	// SSM reads parameters back from Parameter Store.
	SSM *SSMManager

	// Stderr receives progress output.
	Stderr io.Writer

	// IncludeLocalDefaults appends local-development settings (APP_ENV,
	// LocalStack endpoint) that are not stored in SSM.
	IncludeLocalDefaults bool
}

// exportBinding maps an environment variable the service reads to the SSM
// category/key it is bootstrapped under.
type exportBinding struct {
	EnvVar         string
	SSMCategoryKey string
	Secret         bool
}

// exportBindings lists the parameters exported to the .env file, matching
// the bootstrap inventory and the envconfig tags in internal/config.
var exportBindings = []exportBinding{
	{EnvVar: "DATABASE_URL", SSMCategoryKey: "database/url", Secret: true},
	{EnvVar: "SENDGRID_API_KEY", SSMCategoryKey: "email/sendgrid_api_key", Secret: true},
	{EnvVar: "EMAIL_FROM_ADDRESS", SSMCategoryKey: "email/from_address"},
	{EnvVar: "OPS_TOKEN", SSMCategoryKey: "security/ops_token", Secret: true},
	{EnvVar: "SQS_JOBS", SSMCategoryKey: "queue/jobs_url"},
	{EnvVar: "SQS_REMINDERS", SSMCategoryKey: "queue/reminders_url"},
}

// localDefaults are appended when IncludeLocalDefaults is set. They make the
// exported file directly usable with `go run` against LocalStack.
var localDefaults = map[string]string{
	"APP_ENV":          "local",
	"AWS_ENDPOINT_URL": "http://localhost:4566",
	"EMAIL_PROVIDER":   "stub",
	"LOG_LEVEL":        "debug",
}

// ExportEnvFile reads the bootstrapped parameters back from SSM and writes
// them to a .env file with 0600 permissions. Parameters missing from SSM
// (for example, skipped optional steps) are recorded as commented-out lines
// rather than failing the export.
func ExportEnvFile(ctx context.Context, cfg ExportEnvConfig) error {
	if cfg.SSM == nil {
		return fmt.Errorf("exporting .env: SSM manager is required")
	}
	if cfg.OutputPath == "" {
		return fmt.Errorf("exporting .env: output path is required")
	}

	var b strings.Builder
	b.WriteString("# Generated by the Tickler bootstrap tool. Do not commit this file.\n")
	fmt.Fprintf(&b, "# Environment: %s\n", cfg.Environment)
	fmt.Fprintf(&b, "# Exported: %s\n\n", time.Now().UTC().Format(time.RFC3339))

	var missing []string
	for _, binding := range exportBindings {
		path := cfg.SSM.SSMPath(binding.SSMCategoryKey)

		value, err := cfg.SSM.GetParameterValue(ctx, path, binding.Secret)
		if err != nil {
			missing = append(missing, binding.EnvVar)
			fmt.Fprintf(&b, "# %s: not found in SSM (%s)\n", binding.EnvVar, path)
			continue
		}

		fmt.Fprintf(&b, "%s=%s\n", binding.EnvVar, value)
	}

	if cfg.IncludeLocalDefaults {
		b.WriteString("\n# Local development defaults\n")

		keys := make([]string, 0, len(localDefaults))
		for k := range localDefaults {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		for _, k := range keys {
			fmt.Fprintf(&b, "%s=%s\n", k, localDefaults[k])
		}
	}

	// 0600: the file contains decrypted secrets.
	if err := os.WriteFile(cfg.OutputPath, []byte(b.String()), 0o600); err != nil {
		return fmt.Errorf("writing .env file %s: %w", cfg.OutputPath, err)
	}

	if cfg.Stderr != nil {
		fmt.Fprintf(cfg.Stderr, "Exported %d of %d parameters to %s\n",
			len(exportBindings)-len(missing), len(exportBindings), cfg.OutputPath)
		if len(missing) > 0 {
			fmt.Fprintf(cfg.Stderr, "Missing (commented out): %s\n", strings.Join(missing, ", "))
		}
	}

	return nil
}
