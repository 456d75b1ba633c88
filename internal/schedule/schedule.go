// Package schedule normalizes heterogeneous schedule inputs (millisecond
// counts, duration strings, cron expressions) into a single tagged value the
// rest of the scheduler can match on.
//
// # Supported inputs
//
//   - Non-negative numbers: a fixed delay in milliseconds.
//   - Go durations: time.Duration values or strings like "55m", "2h30m".
//   - Compact HH:MM durations: "00:50" is 50 minutes, "02:30" is 2h30m.
//   - Cron (robfig/cron): "*/5 * * * *", "@hourly", "@every 55m". 6-field
//     specs with a seconds column are accepted when the seconds flag is set.
//
// A Schedule passed back into Resolve is returned as-is: values built by
// this package are trusted and never re-validated.
package schedule

import (
	"time"

	"github.com/robfig/cron/v3"
)

// Kind tags the normalized schedule variant.
type Kind int

const (
	// KindDelay is a fixed, non-negative delay. On the timeout axis it
	// fires once; on the interval axis it repeats with that period.
	KindDelay Kind = iota
	// KindRecurring is a calendar-based recurrence produced by the cron
	// parser. The descriptor is opaque to callers: they only hand it to
	// the recurring-timer primitive.
	KindRecurring
)

func (k Kind) String() string {
	switch k {
	case KindDelay:
		return "delay"
	case KindRecurring:
		return "recurring"
	default:
		return "unknown"
	}
}

// Schedule is the normalized timing specification. Downstream code matches
// on Kind and never re-inspects the raw input shape.
type Schedule struct {
	Kind      Kind
	Delay     time.Duration // valid when Kind == KindDelay
	Recurring cron.Schedule // valid when Kind == KindRecurring
	Spec      string        // original text, for logs only
}

// Delay builds a fixed-delay schedule.
func Delay(d time.Duration) Schedule {
	return Schedule{Kind: KindDelay, Delay: d, Spec: d.String()}
}

// Recurring wraps an already-parsed calendar recurrence.
func Recurring(sched cron.Schedule, spec string) Schedule {
	return Schedule{Kind: KindRecurring, Recurring: sched, Spec: spec}
}

// IsZero reports whether s is the zero Schedule (no axis configured).
func (s Schedule) IsZero() bool {
	return s.Kind == KindDelay && s.Delay == 0 && s.Recurring == nil && s.Spec == ""
}

func (s Schedule) String() string {
	if s.Spec != "" {
		return s.Spec
	}
	if s.Kind == KindDelay {
		return s.Delay.String()
	}
	return "recurring"
}

// Next returns the first trigger time strictly after now.
// For a fixed delay it is simply now + delay.
func (s Schedule) Next(now time.Time) time.Time {
	if s.Kind == KindRecurring && s.Recurring != nil {
		return s.Recurring.Next(now)
	}
	return now.Add(s.Delay)
}
