// Package schedule implements due-checking for the 5-field cron expressions
// carried on notification subscriptions. Evaluation is pure: callers pass the
// reference time explicitly, so the same inputs always produce the same answer
// and the package is safe for concurrent use.
package schedule

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// InvalidScheduleError reports a subscription schedule that could not be
// parsed as a standard 5-field cron expression. The scheduler treats it as a
// per-subscription failure, never as a batch-fatal error.
type InvalidScheduleError struct {
	Expr string
	Err  error
}

func (e *InvalidScheduleError) Error() string {
	return fmt.Sprintf("invalid schedule %q: %v", e.Expr, e.Err)
}

func (e *InvalidScheduleError) Unwrap() error {
	return e.Err
}

// ParseSpec parses a standard 5-field cron expression (minute, hour,
// day-of-month, month, day-of-week). Malformed expressions return a typed
// *InvalidScheduleError wrapping the parser error.
func ParseSpec(expr string) (cron.Schedule, error) {
	sched, err := cron.ParseStandard(expr)
	if err != nil {
		return nil, &InvalidScheduleError{Expr: expr, Err: err}
	}
	return sched, nil
}

// Matches reports whether the expression fires exactly at t, at minute
// resolution. Seconds and finer are ignored.
func Matches(expr string, t time.Time) (bool, error) {
	sched, err := ParseSpec(expr)
	if err != nil {
		return false, err
	}
	base := t.Truncate(time.Minute)
	// Next is strictly-after, so step back one second to include base itself.
	return sched.Next(base.Add(-time.Second)).Equal(base), nil
}

// IsDue reports whether the expression is due at now: it either matches now
// exactly (minute resolution) or its most recent occurrence fell within the
// closed window [now - lookback, now]. The lookback covers runs that land
// late in their hour, so an hourly caller with a one-hour lookback never
// misses an occurrence.
func IsDue(expr string, now time.Time, lookback time.Duration) (bool, error) {
	sched, err := ParseSpec(expr)
	if err != nil {
		return false, err
	}
	base := now.Truncate(time.Minute)
	// The first activation strictly after (base - lookback - 1s) is the
	// earliest occurrence that could fall inside the window. If it has not
	// passed base yet, nothing fired in the window.
	next := sched.Next(base.Add(-lookback).Add(-time.Second))
	return !next.After(base), nil
}
