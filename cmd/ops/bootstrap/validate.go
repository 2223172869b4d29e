package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/mail"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
)

// ValidationResult is the pass/fail outcome of a check plus a message shown
// to the operator.
type ValidationResult struct {
	Valid   bool
	Message string
}

func fail(format string, args ...any) ValidationResult {
	return ValidationResult{Valid: false, Message: fmt.Sprintf(format, args...)}
}

func ok(format string, args ...any) ValidationResult {
	return ValidationResult{Valid: true, Message: fmt.Sprintf(format, args...)}
}

// HTTPClient abstracts outbound HTTP so tests can inject a fake transport.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// DatabaseConnector abstracts the database reachability probe.
type DatabaseConnector interface {
	// Connect dials the DSN and closes the connection before returning.
	Connect(ctx context.Context, dsn string) error
}

// PgxConnector probes a DSN with a real pgx connection. The connection is
// closed immediately; the goal is to prove the DSN resolves and the
// credentials work.
type PgxConnector struct{}

func (c *PgxConnector) Connect(ctx context.Context, dsn string) error {
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return err
	}
	return conn.Close(ctx)
}

// Validator holds the probing dependencies for input validation.
type Validator struct {
	httpClient HTTPClient
	dbConn     DatabaseConnector
}

// NewValidator returns a Validator backed by a real HTTP client and pgx.
func NewValidator() *Validator {
	return NewValidatorWithDeps(
		&http.Client{Timeout: 10 * time.Second},
		&PgxConnector{},
	)
}

// NewValidatorWithDeps returns a Validator with injected dependencies.
func NewValidatorWithDeps(httpClient HTTPClient, dbConn DatabaseConnector) *Validator {
	return &Validator{httpClient: httpClient, dbConn: dbConn}
}

// validateTimeout caps each active probe, covering DNS and TLS on top of the
// HTTP client's own timeout.
const validateTimeout = 15 * time.Second

// ValidateDatabaseURL checks that the string parses as a postgres URL and
// that an actual connection to it succeeds.
func (v *Validator) ValidateDatabaseURL(ctx context.Context, rawURL string) ValidationResult {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return fail("database URL must not be empty")
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fail("invalid URL format: %v", err)
	}
	if parsed.Scheme != "postgres" && parsed.Scheme != "postgresql" {
		return fail("expected postgres:// or postgresql:// scheme, got %q", parsed.Scheme)
	}

	connCtx, cancel := context.WithTimeout(ctx, validateTimeout)
	defer cancel()

	if err := v.dbConn.Connect(connCtx, rawURL); err != nil {
		return fail("connection failed: %v", err)
	}

	return ok("database connection verified (host=%s)", parsed.Hostname())
}

// ValidateSendGridKey checks the "SG." prefix and then calls the
// /v3/user/credits endpoint, the cheapest side-effect-free call that proves
// the key is live.
func (v *Validator) ValidateSendGridKey(ctx context.Context, key string) ValidationResult {
	key = strings.TrimSpace(key)
	if key == "" {
		return fail("SendGrid API key must not be empty")
	}
	if !strings.HasPrefix(key, "SG.") {
		return fail("SendGrid API key should start with 'SG.'")
	}

	probeCtx, cancel := context.WithTimeout(ctx, validateTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, "https://api.sendgrid.com/v3/user/credits", nil)
	if err != nil {
		return fail("failed to create request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+key)
	req.Header.Set("User-Agent", "Tickler-Bootstrap/1.0")

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return fail("SendGrid API probe failed: %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fail("SendGrid API returned HTTP %d: key is invalid or lacks permissions", resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return fail("SendGrid API returned HTTP %d: %s", resp.StatusCode, truncateBody(body, 200))
	case !strings.Contains(string(body), "remain"):
		return fail("SendGrid API response did not contain expected credit information")
	}

	return ok("SendGrid API key verified (credits endpoint accessible)")
}

// ValidateEmailAddress parses the sender address per RFC 5322.
func (v *Validator) ValidateEmailAddress(_ context.Context, addr string) ValidationResult {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return fail("email address must not be empty")
	}

	parsed, err := mail.ParseAddress(addr)
	if err != nil {
		return fail("invalid email address: %v", err)
	}
	return ok("email address validated (%s)", parsed.Address)
}

// ValidateRegex matches the input against a pattern, for values that cannot
// be probed actively.
func (v *Validator) ValidateRegex(_ context.Context, input, pattern, fieldName string) ValidationResult {
	input = strings.TrimSpace(input)
	if input == "" {
		return fail("%s must not be empty", fieldName)
	}

	re, err := regexp.Compile(pattern)
	if err != nil {
		return fail("invalid regex pattern %q: %v", pattern, err)
	}
	if !re.MatchString(input) {
		return fail("%s does not match expected format (pattern: %s)", fieldName, pattern)
	}
	return ok("%s format validated", fieldName)
}

// truncateBody clips an API response body for inclusion in an error message.
func truncateBody(body []byte, n int) string {
	if len(body) <= n {
		return string(body)
	}
	return string(body[:n]) + "..."
}
