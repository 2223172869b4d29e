package types

import "time"

// Validator is implemented by entities that can check their own invariants.
type Validator interface {
	Validate() error
}

// Clock abstracts the current time so schedule evaluation is testable.
type Clock interface {
	Now() time.Time
}

// RealClock reads the system clock, pinned to UTC.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now().UTC() }

// Logger is the structured logging surface components depend on instead of a
// concrete *slog.Logger.
type Logger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
	With(args ...any) Logger
}
