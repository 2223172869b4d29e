package config

import (
	"context"
	"os"
)

// EnvVarProvider resolves secret references directly from OS environment
// variables. It backs local development, where .env supplies the values SSM
// would hold in a deployed environment.
type EnvVarProvider struct{}

// NewEnvVarProvider creates a new EnvVarProvider.
func NewEnvVarProvider() *EnvVarProvider {
	return &EnvVarProvider{}
}

// GetParametersBatch looks each key up with os.LookupEnv. Keys absent from
// the environment are omitted from the result rather than erroring; the
// loader's required-field validation reports what is actually missing.
// The context is unused: env lookups cannot block.
func (p *EnvVarProvider) GetParametersBatch(_ context.Context, keys []string) (map[string]string, error) {
	resolved := make(map[string]string, len(keys))
	for _, key := range keys {
		if val, ok := os.LookupEnv(key); ok {
			resolved[key] = val
		}
	}
	return resolved, nil
}
