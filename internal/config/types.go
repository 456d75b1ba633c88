package config

import (
	"bytes"
	"encoding/json"
	"fmt"
)

type Config struct {
	// Root is the directory bare-name jobs resolve against.
	Root string `json:"root,omitempty"`
	// DefaultExtension is appended when a job path is derived from its
	// name (e.g. "js", "sh"). Empty means no extension.
	DefaultExtension string `json:"default_extension,omitempty"`

	// Timezone for calendar (cron) schedules. Empty means local time.
	Timezone string `json:"timezone,omitempty"`

	// Timeout / Interval are registry-wide defaults for jobs that set
	// neither axis themselves. Schedule strings: a Go duration, an HH:MM
	// wall-clock time, or a cron expression.
	Timeout  string `json:"timeout,omitempty"`
	Interval string `json:"interval,omitempty"`

	// CronWithSeconds makes cron expressions 6-field (seconds first) by
	// default; individual jobs may override.
	CronWithSeconds bool `json:"cron_with_seconds,omitempty"`

	// CloseAfter is the global maximum worker lifetime: the hard-kill
	// timer arms at spawn and unconditionally terminates the run when it
	// elapses. Go duration string; empty disables the global deadline.
	CloseAfter string `json:"close_after,omitempty"`

	// SuccessExitCode is the worker exit code logged as success.
	SuccessExitCode int `json:"success_exit_code,omitempty"`

	Jobs []JobEntry `json:"jobs"`

	Logging LoggingConfig  `json:"logging"`
	Storage *StorageConfig `json:"storage,omitempty"`
}

// JobEntry is one element of the jobs list. It accepts either a bare name
// string ("backup") or a structured object; the bare form is shorthand for
// {"name": "backup"}.
type JobEntry struct {
	Name string `json:"name"`
	Path string `json:"path,omitempty"`

	// Timeout delays the first trigger; Interval repeats after it. Both
	// take schedule strings (duration, HH:MM, cron). Cron is an explicit
	// cron expression and is mutually exclusive with Interval.
	Timeout         string `json:"timeout,omitempty"`
	Interval        string `json:"interval,omitempty"`
	Cron            string `json:"cron,omitempty"`
	CronWithSeconds *bool  `json:"cron_with_seconds,omitempty"`

	// Date is an absolute first-trigger time, RFC 3339.
	Date string `json:"date,omitempty"`

	// CloseAfter overrides the global hard-kill grace for this job.
	CloseAfter string `json:"close_after,omitempty"`

	Payload map[string]any `json:"payload,omitempty"`
}

// UnmarshalJSON accepts the bare-string shorthand and disallows unknown
// fields in the object form so typos are caught at load time.
func (e *JobEntry) UnmarshalJSON(b []byte) error {
	trimmed := bytes.TrimSpace(b)
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var name string
		if err := json.Unmarshal(trimmed, &name); err != nil {
			return err
		}
		*e = JobEntry{Name: name}
		return nil
	}

	type plain JobEntry
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	var p plain
	if err := dec.Decode(&p); err != nil {
		return fmt.Errorf("job entry: %w", err)
	}
	*e = JobEntry(p)
	return nil
}

type LoggingConfig struct {
	Level   string       `json:"level"`
	Console bool         `json:"console"`
	File    LoggingFile  `json:"file"`
	Alert   LoggingAlert `json:"alert"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// LoggingAlert configures the rate-limited stderr echo for high-severity
// records.
type LoggingAlert struct {
	Enabled    bool   `json:"enabled"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// StorageConfig controls the optional run-history store.
//
// Example:
//
//	"storage": { "driver": "file", "path": "./bree_runs" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}
