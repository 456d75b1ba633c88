// Package job validates and normalizes the configured job list.
//
// Register is the single entry point: it resolves every job's schedule
// inputs, derives task paths, enforces the mutual-exclusion invariants, and
// reports every failure across all entries in one AggregateError.
package job

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shaunwarman/bree/internal/schedule"
)

// Spec is one raw job entry as it appears in configuration. A bare name
// string in the config becomes Spec{Name: s}.
type Spec struct {
	Name string
	// Path to the executable task. Empty means "derive from the root
	// directory and default extension".
	Path string

	// Timeout is the initial-trigger axis: milliseconds, a duration or
	// cron string, or a pre-built schedule.Schedule. Mutually exclusive
	// with Date.
	Timeout any
	// Interval is the repeating axis, same input shapes as Timeout.
	// Mutually exclusive with Cron.
	Interval any
	// Cron is a cron expression; it normalizes into the interval axis.
	Cron string
	// CronWithSeconds overrides the registry-wide seconds flag for this
	// job's cron expression. Nil falls back to the global flag.
	CronWithSeconds *bool

	// Date is an absolute first-trigger time: a time.Time or an RFC 3339
	// string. Nil means absent.
	Date any

	// CloseAfter overrides the global hard-kill duration: a
	// time.Duration or a duration string. Nil inherits.
	CloseAfter any

	// Payload is handed to the worker as initialization data.
	Payload map[string]any
}

// Options configures a Register pass.
type Options struct {
	// RootDir is the directory bare-name jobs resolve against.
	RootDir string
	// DefaultExtension is appended when deriving a path from a bare name.
	// Empty means no extension.
	DefaultExtension string

	// DefaultTimeout / DefaultInterval apply when a job sets neither the
	// corresponding axis nor (for the timeout axis) a date.
	DefaultTimeout  any
	DefaultInterval any

	// CronWithSeconds is the global seconds flag for cron expressions.
	CronWithSeconds bool
}

// Job is a normalized, immutable job definition.
type Job struct {
	Name       string
	Path       string
	Timeout    *schedule.Schedule
	Interval   *schedule.Schedule
	StartAt    time.Time
	CloseAfter time.Duration // 0 inherits the global hard-kill duration
	Payload    map[string]any
}

// HasInterval reports whether the job has a repeating axis.
func (j *Job) HasInterval() bool { return j.Interval != nil }

// Register validates and normalizes specs.
//
// Top-level problems (unusable root directory) fail immediately with an
// ErrConfig-wrapped error. Per-job failures are collected across all
// entries and returned together as *AggregateError; the first return value
// is only valid when the error is nil.
func Register(specs []Spec, opts Options) ([]Job, error) {
	if opts.RootDir != "" {
		fi, err := os.Stat(opts.RootDir)
		if err != nil {
			return nil, fmt.Errorf("%w: root directory %q: %v", ErrConfig, opts.RootDir, err)
		}
		if !fi.IsDir() {
			return nil, fmt.Errorf("%w: root %q is not a directory", ErrConfig, opts.RootDir)
		}
	}

	agg := &AggregateError{}
	jobs := make([]Job, 0, len(specs))
	seen := make(map[string]bool, len(specs))

	for i := range specs {
		j, errs := normalize(&specs[i], opts, seen)
		if len(errs) > 0 {
			agg.append(errs...)
			continue
		}
		jobs = append(jobs, j)
	}

	if err := agg.orNil(); err != nil {
		return nil, err
	}
	return jobs, nil
}

// normalize validates a single spec. It keeps going after a failure so one
// entry can surface several problems at once.
func normalize(s *Spec, opts Options, seen map[string]bool) (Job, []error) {
	var errs []error

	name := strings.TrimSpace(s.Name)
	if name == "" {
		errs = append(errs, &ValidationError{Job: s.Name, Field: "name", Reason: "must be a non-empty string"})
		// Without a name, nothing below can produce useful messages.
		return Job{}, errs
	}
	if seen[name] {
		errs = append(errs, &ValidationError{Job: name, Field: "name", Reason: "duplicate job name"})
	}
	seen[name] = true

	vErr := func(field, format string, args ...any) {
		errs = append(errs, &ValidationError{Job: name, Field: field, Reason: fmt.Sprintf(format, args...)})
	}

	// Date and CloseAfter accept config-layer strings; their parse
	// failures are ordinary per-job errors, collected with the rest.
	var startAt time.Time
	dateSet := false
	if s.Date != nil {
		dateSet = true
		switch v := s.Date.(type) {
		case time.Time:
			if v.IsZero() {
				vErr("date", "must be a genuine point in time")
			}
			startAt = v
		case string:
			t, err := time.Parse(time.RFC3339, v)
			if err != nil {
				vErr("date", "invalid RFC 3339 time %q", v)
			} else {
				startAt = t
			}
		default:
			vErr("date", "unsupported type %T", v)
		}
	}

	var closeAfter time.Duration
	if s.CloseAfter != nil {
		ok := true
		switch v := s.CloseAfter.(type) {
		case time.Duration:
			closeAfter = v
		case string:
			d, err := time.ParseDuration(strings.TrimSpace(v))
			if err != nil {
				vErr("close_after", "invalid duration %q", v)
				ok = false
			} else {
				closeAfter = d
			}
		default:
			vErr("close_after", "unsupported type %T", v)
			ok = false
		}
		if ok && closeAfter <= 0 {
			vErr("close_after", "must be > 0, got %s", closeAfter)
		}
	}

	// Mutual exclusions hold regardless of whether the inputs parse.
	if s.Interval != nil && s.Cron != "" {
		vErr("interval", "cannot have both interval and cron configured")
	}
	if s.Timeout != nil && dateSet {
		vErr("timeout", "cannot have both timeout and date configured")
	}

	path := strings.TrimSpace(s.Path)
	if path == "" {
		if opts.RootDir == "" {
			vErr("path", "no path given and no root directory configured")
		} else {
			path = filepath.Join(opts.RootDir, name+extSuffix(opts.DefaultExtension))
		}
	}
	if path != "" {
		fi, err := os.Stat(path)
		switch {
		case err != nil:
			vErr("path", "task %q does not exist", path)
		case fi.IsDir():
			vErr("path", "task %q is a directory, not an executable", path)
		}
	}

	out := Job{Name: name, Path: path, CloseAfter: closeAfter, Payload: s.Payload}

	// Timeout axis: date wins, then the explicit input, then the default.
	switch {
	case dateSet:
		out.StartAt = startAt
	case s.Timeout != nil:
		if sch, err := schedule.Resolve(s.Timeout); err != nil {
			vErr("timeout", "%v", err)
		} else {
			out.Timeout = &sch
		}
	case opts.DefaultTimeout != nil:
		// A zero default means "no timeout axis", matching an unset field.
		if sch, err := schedule.Resolve(opts.DefaultTimeout); err != nil {
			vErr("timeout", "default: %v", err)
		} else if !(sch.Kind == schedule.KindDelay && sch.Delay <= 0) {
			out.Timeout = &sch
		}
	}

	// Interval axis: cron normalizes here; the original expression is
	// discarded after successful resolution.
	switch {
	case s.Cron != "":
		withSeconds := opts.CronWithSeconds
		if s.CronWithSeconds != nil {
			withSeconds = *s.CronWithSeconds
		}
		if sch, err := schedule.ResolveCron(s.Cron, withSeconds); err != nil {
			vErr("cron", "%v", err)
		} else {
			out.Interval = &sch
		}
	case s.Interval != nil:
		if sch, err := schedule.Resolve(s.Interval); err != nil {
			vErr("interval", "%v", err)
		} else if sch.Kind == schedule.KindDelay && sch.Delay <= 0 {
			vErr("interval", "repeating delay must be > 0")
		} else {
			out.Interval = &sch
		}
	case opts.DefaultInterval != nil:
		if sch, err := schedule.Resolve(opts.DefaultInterval); err != nil {
			vErr("interval", "default: %v", err)
		} else if !(sch.Kind == schedule.KindDelay && sch.Delay <= 0) {
			out.Interval = &sch
		}
	}

	if len(errs) > 0 {
		return Job{}, errs
	}
	return out, nil
}

func extSuffix(ext string) string {
	ext = strings.TrimSpace(ext)
	if ext == "" {
		return ""
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}
