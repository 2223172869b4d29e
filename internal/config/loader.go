// loader.go implements configuration loading for the Tickler service.
//
// Resolution order is OS environment > .env file > SSM Parameter Store.
// Secrets never appear in plain env vars in deployed environments; instead a
// pointer variable with the _SSM_PARAM suffix names the parameter to fetch
// (DATABASE_URL_SSM_PARAM=/prod/tickler/database/url resolves into
// DATABASE_URL). APP_ENV=local skips SSM entirely.
package config

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// ConfigError carries a ConfigErrorType alongside the underlying failure so
// startup logs can distinguish a missing env var from an SSM outage.
type ConfigError struct {
	Type    ConfigErrorType
	Message string
	Err     error
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// ssmParamSuffix marks env vars that point at an SSM parameter rather than
// carrying a value themselves.
const ssmParamSuffix = "_SSM_PARAM"

// localEnv is the APP_ENV value that bypasses SSM resolution.
const localEnv = "local"

// loaderDeps injects the process-environment operations so tests can run the
// loader against a map instead of mutating real env vars.
type loaderDeps struct {
	lookupEnv func(key string) (string, bool)
	setEnv    func(key, value string) error
	environ   func() []string
}

func defaultDeps() loaderDeps {
	return loaderDeps{
		lookupEnv: os.LookupEnv,
		setEnv:    os.Setenv,
		environ:   os.Environ,
	}
}

// LoadConfig builds and validates the full Config. The sequence is: pin the
// process to UTC, load .env if present, resolve _SSM_PARAM pointers through
// the provider (skipped when APP_ENV=local), process envconfig tags, attach
// build metadata, and validate. Any failure returns a typed *ConfigError and
// the process should exit.
//
// The provider may be nil for local development; non-local environments with
// unresolved _SSM_PARAM pointers require one.
func LoadConfig(provider SecretProvider) (*Config, error) {
	return loadConfigWithDeps(provider, defaultDeps())
}

func loadConfigWithDeps(provider SecretProvider, deps loaderDeps) (*Config, error) {
	// All schedule evaluation assumes UTC; pinning time.Local removes an
	// entire class of host-timezone bugs.
	time.Local = time.UTC

	// godotenv never overrides variables that are already set, which is what
	// gives the OS environment priority over .env.
	_ = godotenv.Load()

	appEnv, _ := deps.lookupEnv("APP_ENV")
	if appEnv != localEnv {
		if err := resolveSSMParams(provider, deps); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, &ConfigError{
			Type:    ErrParsing,
			Message: "failed to process environment configuration",
			Err:     err,
		}
	}

	cfg.Build = NewBuildInfo()

	if err := validator.New().Struct(cfg); err != nil {
		return nil, &ConfigError{
			Type:    ErrValidation,
			Message: "configuration validation failed",
			Err:     err,
		}
	}

	return &cfg, nil
}

// ResolveSecrets runs only the SSM resolution step, for entry points that
// read individual env vars with os.Getenv instead of building a full Config.
// Call it before the first os.Getenv that depends on a resolved secret.
// A no-op when APP_ENV=local or when no _SSM_PARAM pointers exist.
func ResolveSecrets(provider SecretProvider) error {
	if appEnv, _ := os.LookupEnv("APP_ENV"); appEnv == localEnv {
		return nil
	}
	return resolveSSMParams(provider, defaultDeps())
}

// ssmBinding pairs a pointer variable's target (DATABASE_URL) with the SSM
// path it names (/prod/tickler/database/url).
type ssmBinding struct {
	target string
	path   string
}

// collectSSMBindings scans the environment for _SSM_PARAM pointers whose
// target variable is not already set. An already-set target wins outright,
// preserving the OS env > .env > SSM priority chain.
func collectSSMBindings(deps loaderDeps) []ssmBinding {
	var bindings []ssmBinding
	for _, entry := range deps.environ() {
		eq := strings.IndexByte(entry, '=')
		if eq < 0 {
			continue
		}
		key := entry[:eq]
		if !strings.HasSuffix(key, ssmParamSuffix) {
			continue
		}

		target := strings.TrimSuffix(key, ssmParamSuffix)
		if _, exists := deps.lookupEnv(target); exists {
			continue
		}

		path := entry[eq+1:]
		if path == "" {
			continue
		}
		bindings = append(bindings, ssmBinding{target: target, path: path})
	}
	return bindings
}

// resolveSSMParams fetches every outstanding _SSM_PARAM pointer in one batch
// call and injects the plaintext values into the environment for envconfig
// to pick up. Every binding must resolve; a parameter missing from SSM is a
// startup failure, reported by target variable name so the fix is obvious.
func resolveSSMParams(provider SecretProvider, deps loaderDeps) error {
	bindings := collectSSMBindings(deps)
	if len(bindings) == 0 {
		return nil
	}

	targets := make([]string, 0, len(bindings))
	paths := make([]string, 0, len(bindings))
	pathToTarget := make(map[string]string, len(bindings))
	for _, b := range bindings {
		targets = append(targets, b.target)
		paths = append(paths, b.path)
		pathToTarget[b.path] = b.target
	}

	if provider == nil {
		return &ConfigError{
			Type:    ErrSSMResolution,
			Message: fmt.Sprintf("SecretProvider is required for non-local environments (need to resolve: %s)", strings.Join(targets, ", ")),
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	resolved, err := provider.GetParametersBatch(ctx, paths)
	if err != nil {
		return &ConfigError{
			Type:    ErrSSMResolution,
			Message: fmt.Sprintf("failed to resolve %d SSM parameters", len(paths)),
			Err:     err,
		}
	}

	for path, value := range resolved {
		target, ok := pathToTarget[path]
		if !ok {
			continue
		}
		if err := deps.setEnv(target, value); err != nil {
			return &ConfigError{
				Type:    ErrSSMResolution,
				Message: fmt.Sprintf("failed to set resolved value for %s", target),
				Err:     err,
			}
		}
	}

	var missing []string
	for _, b := range bindings {
		if _, ok := resolved[b.path]; !ok {
			missing = append(missing, b.target)
		}
	}
	if len(missing) > 0 {
		return &ConfigError{
			Type:    ErrSSMResolution,
			Message: fmt.Sprintf("SSM parameters not found for: %s", strings.Join(missing, ", ")),
		}
	}

	return nil
}
