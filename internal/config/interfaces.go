package config

import "context"

// SecretProvider resolves secret references found in the environment to their
// plaintext values. Production uses the SSM Parameter Store implementation;
// tests and local development inject env-backed or fake providers.
type SecretProvider interface {
	// GetParametersBatch resolves the given parameter paths and returns a map
	// of path -> plaintext for every path that resolved. Implementations own
	// batching and retry; a Lambda cold start may request every secret the
	// service has in one call.
	GetParametersBatch(ctx context.Context, keys []string) (map[string]string, error)
}
