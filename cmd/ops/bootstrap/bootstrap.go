package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// ParameterType selects the SSM storage type for a parameter.
type ParameterType int

const (
	// ParamSecureString stores the value encrypted at rest.
	ParamSecureString ParameterType = iota
	// ParamString stores the value in plaintext.
	ParamString
)

// InputSource says where a step's value comes from.
type InputSource int

const (
	// SourcePrompt asks the operator interactively.
	SourcePrompt InputSource = iota
	// SourceGenerated mints the value locally (random token).
	SourceGenerated
	// SourceFixed uses a hardcoded placeholder constant.
	SourceFixed
)

// BootstrapStep is one parameter in the setup inventory.
type BootstrapStep struct {
	// HumanLabel is what the operator sees.
	HumanLabel string

	// SSMCategoryKey is the category/key tail of the SSM path, e.g.
	// "database/url" becomes "/{env}/tickler/database/url".
	SSMCategoryKey string

	ParamType ParameterType
	Source    InputSource

	// FixedValue applies when Source is SourceFixed.
	FixedValue string

	// Prompt is the instruction text for SourcePrompt steps.
	Prompt string

	// ValidateFn checks operator input; nil accepts anything.
	ValidateFn func(ctx context.Context, input string) ValidationResult

	// IsSecret masks the input while typing.
	IsSecret bool

	// Optional steps skip on empty input without asking.
	Optional bool

	// Phase groups steps under a section header.
	Phase string
}

// maxRetries bounds how often a step re-prompts after failed validation.
const maxRetries = 5

// errSkipped signals that the operator declined to provide a value; the step
// is recorded as skipped and nothing is written.
var errSkipped = errors.New("parameter skipped by operator")

// BuildInventory returns the ordered parameter list the Tickler service reads
// at startup. The validator is injected so tests can substitute mock
// HTTP/DB clients.
func BuildInventory(v *Validator) []BootstrapStep {
	return []BootstrapStep{
		{
			HumanLabel:     "Database URL",
			SSMCategoryKey: "database/url",
			ParamType:      ParamSecureString,
			Source:         SourcePrompt,
			Prompt: `1. Provision the PostgreSQL instance (or create a LocalStack-adjacent dev DB).
   2. Copy the connection string, including the password.
   3. Paste the full postgres://... string here:`,
			ValidateFn: v.ValidateDatabaseURL,
			IsSecret:   true,
			Phase:      "External Accounts",
		},
		{
			HumanLabel:     "SendGrid API Key",
			SSMCategoryKey: "email/sendgrid_api_key",
			ParamType:      ParamSecureString,
			Source:         SourcePrompt,
			Prompt: `1. Go to SendGrid > Settings > API Keys.
   2. Create a key with Mail Send permission.
   3. Paste the SG.... key here:`,
			ValidateFn: v.ValidateSendGridKey,
			IsSecret:   true,
			Phase:      "External Accounts",
		},
		{
			HumanLabel:     "Email From Address (optional)",
			SSMCategoryKey: "email/from_address",
			ParamType:      ParamString,
			Source:         SourcePrompt,
			Prompt: `Paste the verified sender address for reminder emails
   (or press Enter to use the built-in default):`,
			ValidateFn: v.ValidateEmailAddress,
			Optional:   true,
			Phase:      "External Accounts",
		},

		{
			HumanLabel:     "Ops API Token",
			SSMCategoryKey: "security/ops_token",
			ParamType:      ParamSecureString,
			Source:         SourceGenerated,
			Phase:          "Internal Secrets",
		},

		// The queue URLs only exist after the first infrastructure deploy.
		// Seeding placeholders keeps the parameter tree complete so the
		// service config loader finds every path it expects.
		{
			HumanLabel:     "Jobs Queue URL",
			SSMCategoryKey: "queue/jobs_url",
			ParamType:      ParamString,
			Source:         SourceFixed,
			FixedValue:     "pending_setup",
			Phase:          "Infrastructure Placeholders",
		},
		{
			HumanLabel:     "Reminders Queue URL",
			SSMCategoryKey: "queue/reminders_url",
			ParamType:      ParamString,
			Source:         SourceFixed,
			FixedValue:     "pending_setup",
			Phase:          "Infrastructure Placeholders",
		},
	}
}

// BootstrapRunner drives the interactive loop. It lives apart from main() so
// tests can feed it scripted stdin and a mocked SSM manager.
type BootstrapRunner struct {
	SSM       *SSMManager
	Validator *Validator
	Stdin     io.Reader
	Stderr    io.Writer

	// scanner is shared across all reads in the session. A fresh
	// bufio.Scanner per prompt would buffer ahead and swallow input meant
	// for the next prompt.
	scanner *bufio.Scanner

	// inventoryOverride lets tests run a trimmed inventory; nil means
	// BuildInventory.
	inventoryOverride []BootstrapStep
}

// NewBootstrapRunner wires a runner with real stdin/stderr and a live SSM
// manager.
func NewBootstrapRunner(bctx *BootstrapContext) *BootstrapRunner {
	return &BootstrapRunner{
		SSM:       NewSSMManager(bctx),
		Validator: NewValidator(),
		Stdin:     os.Stdin,
		Stderr:    os.Stderr,
	}
}

// stepResult records what happened to one step.
type stepResult struct {
	Label  string
	Action string // "written", "skipped", "overwritten", "generated"
	Path   string
}

// Run walks the inventory in order: probe SSM, obtain a value, validate,
// write, then print a summary of everything that happened.
func (r *BootstrapRunner) Run(ctx context.Context) error {
	inventory := r.inventoryOverride
	if inventory == nil {
		inventory = BuildInventory(r.Validator)
	}

	results := make([]stepResult, 0, len(inventory))
	currentPhase := ""

	for i, step := range inventory {
		if step.Phase != currentPhase {
			currentPhase = step.Phase
			r.printPhaseHeader(currentPhase)
		}

		fmt.Fprintf(r.Stderr, "\n[%d/%d] %s\n", i+1, len(inventory), step.HumanLabel)

		result, err := r.processStep(ctx, step)
		if err != nil {
			return fmt.Errorf("step %q failed: %w", step.HumanLabel, err)
		}
		results = append(results, result)
	}

	r.printSummary(results)
	return nil
}

// processStep runs one step end to end: existence probe, value acquisition,
// SSM write, outcome classification.
func (r *BootstrapRunner) processStep(ctx context.Context, step BootstrapStep) (stepResult, error) {
	path := r.SSM.SSMPath(step.SSMCategoryKey)
	result := stepResult{Label: step.HumanLabel, Path: path}

	exists, err := r.SSM.ParameterExists(ctx, path)
	if err != nil {
		return result, fmt.Errorf("checking existence of %s: %w", path, err)
	}

	if exists {
		fmt.Fprintf(r.Stderr, "  Parameter already exists: %s\n", path)

		choice, err := r.promptSkipOrOverwrite()
		if err != nil {
			return result, fmt.Errorf("reading skip/overwrite choice: %w", err)
		}
		if choice == "skip" {
			fmt.Fprintf(r.Stderr, "  Skipped.\n")
			result.Action = "skipped"
			return result, nil
		}
	}

	value, err := r.obtainValue(ctx, step)
	if errors.Is(err, errSkipped) {
		fmt.Fprintf(r.Stderr, "  Skipped.\n")
		result.Action = "skipped"
		return result, nil
	}
	if err != nil {
		return result, err
	}

	if step.ParamType == ParamSecureString {
		err = r.SSM.PutSecret(ctx, path, value, exists)
	} else {
		err = r.SSM.PutString(ctx, path, value)
	}
	if err != nil {
		return result, fmt.Errorf("writing SSM parameter %s: %w", path, err)
	}

	switch {
	case exists:
		result.Action = "overwritten"
	case step.Source == SourceGenerated:
		result.Action = "generated"
	default:
		result.Action = "written"
	}

	fmt.Fprintf(r.Stderr, "  Stored: %s\n", path)
	return result, nil
}

// obtainValue produces the step's value according to its source.
func (r *BootstrapRunner) obtainValue(ctx context.Context, step BootstrapStep) (string, error) {
	switch step.Source {
	case SourceGenerated:
		value, err := GenerateSecureToken()
		if err != nil {
			return "", fmt.Errorf("generating token for %s: %w", step.HumanLabel, err)
		}
		fmt.Fprintf(r.Stderr, "  Auto-generated (%d chars)\n", len(value))
		return value, nil

	case SourceFixed:
		fmt.Fprintf(r.Stderr, "  Using fixed value: %s\n", step.FixedValue)
		return step.FixedValue, nil

	default:
		return r.promptAndValidate(ctx, step)
	}
}

// promptAndValidate collects operator input for a step, validating and
// re-prompting up to maxRetries times. Secret input is never echoed.
func (r *BootstrapRunner) promptAndValidate(ctx context.Context, step BootstrapStep) (string, error) {
	fmt.Fprintf(r.Stderr, "\n  %s\n\n", step.Prompt)

	for attempt := 1; attempt <= maxRetries; attempt++ {
		var input string
		var err error
		if step.IsSecret {
			input, err = r.readSecretInput("  > ")
		} else {
			input, err = r.readInput("  > ")
		}
		if err != nil {
			return "", fmt.Errorf("reading input for %s: %w", step.HumanLabel, err)
		}

		input = strings.TrimSpace(input)
		if input == "" {
			if step.Optional {
				return "", errSkipped
			}
			choice, choiceErr := r.promptSkipOrRetry()
			if choiceErr != nil {
				return "", fmt.Errorf("reading skip/retry choice for %s: %w", step.HumanLabel, choiceErr)
			}
			if choice == "skip" {
				return "", errSkipped
			}
			attempt-- // empty input does not burn an attempt
			continue
		}

		if step.IsSecret {
			// Confirm receipt by length only.
			fmt.Fprintf(r.Stderr, "  Received %d chars.\n", len(input))
		}

		if step.ValidateFn != nil {
			vr := step.ValidateFn(ctx, input)
			if !vr.Valid {
				fmt.Fprintf(r.Stderr, "  Validation failed: %s\n", vr.Message)
				if attempt < maxRetries {
					fmt.Fprintf(r.Stderr, "  Try again (%d/%d).\n", attempt, maxRetries)
				}
				continue
			}
			fmt.Fprintf(r.Stderr, "  Validated: %s\n", vr.Message)
		}

		return input, nil
	}

	return "", fmt.Errorf("maximum retries (%d) exceeded for %s", maxRetries, step.HumanLabel)
}

func (r *BootstrapRunner) scanLine() (string, error) {
	if r.scanner == nil {
		r.scanner = bufio.NewScanner(r.Stdin)
	}
	if !r.scanner.Scan() {
		if err := r.scanner.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return r.scanner.Text(), nil
}

func (r *BootstrapRunner) readInput(prompt string) (string, error) {
	fmt.Fprint(r.Stderr, prompt)
	return r.scanLine()
}

// readSecretInput reads without terminal echo. When stdin is not a terminal
// (tests, piped input) it degrades to a plain line read.
func (r *BootstrapRunner) readSecretInput(prompt string) (string, error) {
	fmt.Fprint(r.Stderr, prompt)

	if f, ok := r.Stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		secret, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(r.Stderr)
		if err != nil {
			return "", fmt.Errorf("reading secret input: %w", err)
		}
		return string(secret), nil
	}

	return r.scanLine()
}

// promptBinaryChoice loops until the operator picks one of the two offered
// options, matching either the single-letter shortcut or the full word.
func (r *BootstrapRunner) promptBinaryChoice(question, optA, optB string) (string, error) {
	for {
		fmt.Fprint(r.Stderr, question)

		line, err := r.scanLine()
		if err != nil {
			return "", err
		}

		switch strings.TrimSpace(strings.ToLower(line)) {
		case optA[:1], optA:
			return optA, nil
		case optB[:1], optB:
			return optB, nil
		default:
			fmt.Fprintf(r.Stderr, "  Please enter '%s' to %s or '%s' to %s.\n",
				strings.ToUpper(optA[:1]), optA, strings.ToUpper(optB[:1]), optB)
		}
	}
}

func (r *BootstrapRunner) promptSkipOrOverwrite() (string, error) {
	return r.promptBinaryChoice("  [S]kip or [O]verwrite? ", "skip", "overwrite")
}

func (r *BootstrapRunner) promptSkipOrRetry() (string, error) {
	return r.promptBinaryChoice("  No input received. [S]kip this parameter or [R]etry? ", "skip", "retry")
}

func (r *BootstrapRunner) printPhaseHeader(phase string) {
	rule := strings.Repeat("=", 60)
	fmt.Fprintf(r.Stderr, "\n%s\n  Phase: %s\n%s\n", rule, phase, rule)
}

// printSummary prints a per-step outcome table followed by totals.
func (r *BootstrapRunner) printSummary(results []stepResult) {
	rule := strings.Repeat("=", 60)
	fmt.Fprintf(r.Stderr, "\n%s\n  Bootstrap Summary\n%s\n", rule, rule)

	counts := map[string]int{}
	for _, res := range results {
		counts[res.Action]++
		fmt.Fprintf(r.Stderr, "  %-12s %s\n", "["+strings.ToUpper(res.Action)+"]", res.Label)
	}

	fmt.Fprintf(r.Stderr, "%s\n", strings.Repeat("-", 60))
	fmt.Fprintf(r.Stderr, "  Total: %d parameters\n", len(results))
	fmt.Fprintf(r.Stderr, "  Written: %d | Generated: %d | Overwritten: %d | Skipped: %d\n",
		counts["written"], counts["generated"], counts["overwritten"], counts["skipped"])
	fmt.Fprintf(r.Stderr, "%s\n\n", rule)
	fmt.Fprintf(r.Stderr, "  Next step: deploy the stack, then update the queue URL\n")
	fmt.Fprintf(r.Stderr, "  placeholders with the real values from the stack outputs.\n\n")
}
