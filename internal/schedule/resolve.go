package schedule

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// ErrInvalidSchedule wraps every resolution failure so callers can collect
// them without caring which parser rejected the input.
var ErrInvalidSchedule = errors.New("invalid schedule")

// standardParser accepts 5-field crontab specs plus descriptors ("@hourly",
// "@every 55m"). secondsParser additionally accepts an optional leading
// seconds column.
var (
	standardParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	secondsParser  = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
)

var reHHMM = regexp.MustCompile(`^\s*(\d{1,3}):(\d{2})\s*$`)

// Resolve normalizes a raw schedule input into a Schedule.
//
// Accepted inputs: a Schedule (returned as-is), a time.Duration, a
// non-negative finite number of milliseconds, or a string. Strings resolve
// in order: cron/calendar text, compact HH:MM, Go duration.
func Resolve(input any) (Schedule, error) {
	switch v := input.(type) {
	case Schedule:
		// Pre-built schedules are trusted.
		return v, nil
	case *Schedule:
		if v != nil {
			return *v, nil
		}
	case time.Duration:
		if v < 0 {
			return Schedule{}, fmt.Errorf("%w: negative duration %s", ErrInvalidSchedule, v)
		}
		return Delay(v), nil
	case int:
		return delayMillis(float64(v))
	case int32:
		return delayMillis(float64(v))
	case int64:
		return delayMillis(float64(v))
	case float32:
		return delayMillis(float64(v))
	case float64:
		return delayMillis(v)
	case string:
		return ResolveText(v)
	}
	return Schedule{}, fmt.Errorf("%w: unsupported input type %T", ErrInvalidSchedule, input)
}

func delayMillis(ms float64) (Schedule, error) {
	if math.IsNaN(ms) || math.IsInf(ms, 0) {
		return Schedule{}, fmt.Errorf("%w: milliseconds must be finite", ErrInvalidSchedule)
	}
	if ms < 0 {
		return Schedule{}, fmt.Errorf("%w: milliseconds must be >= 0, got %v", ErrInvalidSchedule, ms)
	}
	return Delay(time.Duration(ms) * time.Millisecond), nil
}

// ResolveText parses a schedule string.
//
// Heuristics follow crontab conventions: anything containing whitespace or
// starting with '@' is treated as cron/calendar text; "HH:MM" is a compact
// duration; everything else must be a Go duration.
func ResolveText(raw string) (Schedule, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Schedule{}, fmt.Errorf("%w: empty string", ErrInvalidSchedule)
	}

	if strings.ContainsAny(s, " \t\n\r") || strings.HasPrefix(s, "@") {
		sched, err := standardParser.Parse(s)
		if err != nil {
			return Schedule{}, fmt.Errorf("%w: %q: %v", ErrInvalidSchedule, raw, err)
		}
		// "@every" descriptors are fixed periods, not calendar points;
		// keep them as recurrences anyway since robfig owns the ticking.
		return Recurring(sched, s), nil
	}

	if reHHMM.MatchString(s) {
		d, err := parseHHMM(s)
		if err != nil {
			return Schedule{}, err
		}
		return Delay(d), nil
	}

	d, err := time.ParseDuration(s)
	if err != nil {
		return Schedule{}, fmt.Errorf(
			"%w: %q (use cron like '*/5 * * * *', HH:MM like '02:30', or a duration like '55m')",
			ErrInvalidSchedule, raw,
		)
	}
	if d < 0 {
		return Schedule{}, fmt.Errorf("%w: duration must be >= 0, got %s", ErrInvalidSchedule, d)
	}
	return Delay(d), nil
}

// ResolveCron validates and parses a cron expression. withSeconds selects
// the parser that accepts an optional leading seconds column.
func ResolveCron(expr string, withSeconds bool) (Schedule, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return Schedule{}, fmt.Errorf("%w: empty cron expression", ErrInvalidSchedule)
	}
	p := standardParser
	if withSeconds {
		p = secondsParser
	}
	sched, err := p.Parse(expr)
	if err != nil {
		return Schedule{}, fmt.Errorf("%w: cron %q: %v", ErrInvalidSchedule, expr, err)
	}
	return Recurring(sched, expr), nil
}

func parseHHMM(v string) (time.Duration, error) {
	m := reHHMM.FindStringSubmatch(v)
	if len(m) != 3 {
		return 0, fmt.Errorf("%w: invalid HH:MM %q", ErrInvalidSchedule, v)
	}
	var hh int
	for i := 0; i < len(m[1]); i++ {
		hh = hh*10 + int(m[1][i]-'0')
	}
	mm := int(m[2][0]-'0')*10 + int(m[2][1]-'0')
	if mm > 59 {
		return 0, fmt.Errorf("%w: invalid minutes in %q", ErrInvalidSchedule, v)
	}
	d := time.Duration(hh)*time.Hour + time.Duration(mm)*time.Minute
	if d <= 0 {
		return 0, fmt.Errorf("%w: interval must be > 0", ErrInvalidSchedule)
	}
	return d, nil
}
