package types

import "log/slog"

// redactedPlaceholder replaces secret values anywhere they would otherwise be
// rendered: fmt verbs, JSON marshaling, slog attributes.
const redactedPlaceholder = "***REDACTED***"

var redactedJSON = []byte(`"` + redactedPlaceholder + `"`)

// SecretString holds a sensitive configuration value (database URL, API key,
// ops token) and redacts itself on every output path. Only an explicit
// Unmask() call yields the plaintext, so a secret reaching a log line or a
// serialized config dump is a deliberate act, never an accident.
type SecretString string

// String satisfies fmt.Stringer with the redacted placeholder.
func (s SecretString) String() string {
	return redactedPlaceholder
}

// MarshalJSON emits the redacted placeholder as a JSON string.
func (s SecretString) MarshalJSON() ([]byte, error) {
	return redactedJSON, nil
}

// LogValue satisfies slog.LogValuer so secrets passed directly as slog
// attribute values are redacted without relying on the Stringer path.
func (s SecretString) LogValue() slog.Value {
	return slog.StringValue(redactedPlaceholder)
}

// IsSet reports whether a value is present, without exposing it. Callers use
// this for required-secret checks where comparing against "" would read as if
// the plaintext were being handled.
func (s SecretString) IsSet() bool {
	return s != ""
}

// Unmask returns the plaintext. Callers should pass the result straight into
// the consuming client (Authorization header, pgx connection string) rather
// than holding it in an intermediate variable.
func (s SecretString) Unmask() string {
	return string(s)
}
