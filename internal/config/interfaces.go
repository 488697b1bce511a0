package config

import "context"

// SecretProvider abstracts the retrieval of secrets so that AWS SSM Parameter
// Store (deployed) and plain environment variables (local) are interchangeable.
type SecretProvider interface {
	// GetParametersBatch resolves the given parameter paths. Returns a map of
	// key -> plaintext value for all successfully resolved parameters.
	GetParametersBatch(ctx context.Context, keys []string) (map[string]string, error)
}
