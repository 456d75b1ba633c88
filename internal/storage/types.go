// Package storage provides the optional run-history persistence layer.
//
// It records one RunRecord per completed worker run. Schedule state is
// deliberately not persisted: timers do not survive a restart.
package storage

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage.
//
// Driver values:
//   - "file": dependency-free file backend (jsonl)
//   - "sqlite": SQLite database file (requires the sqlite build tag)
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// RunRecord captures one completed worker run.
// Keep it compact and schema-stable.
type RunRecord struct {
	RunID     string
	Job       string
	Started   time.Time
	Duration  time.Duration
	ExitCode  int
	Cancelled bool
	Error     string
}
