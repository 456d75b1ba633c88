package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	logx "github.com/shaunwarman/bree/pkg/logx"
)

// fileStore is a dependency-free persistence backend: an append-only JSON
// Lines file of run records. RecentRuns re-reads the file, which is fine for
// the intended scale (operator diagnostics, not analytics).
type fileStore struct {
	log logx.Logger

	mu   sync.Mutex
	path string
	f    *os.File
}

type runLine struct {
	RunID      string `json:"run_id"`
	Job        string `json:"job"`
	Started    int64  `json:"started"` // unix milli
	DurationMS int64  `json:"duration_ms"`
	ExitCode   int    `json:"exit_code"`
	Cancelled  bool   `json:"cancelled,omitempty"`
	Error      string `json:"error,omitempty"`
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	if ext := filepath.Ext(path); ext == "" {
		path += ".runs.jsonl"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}
	return &fileStore{log: log, path: path, f: f}, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	return err
}

func (s *fileStore) AppendRun(ctx context.Context, r RunRecord) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return errors.New("run log closed")
	}
	return json.NewEncoder(s.f).Encode(toLine(r))
}

func (s *fileStore) RecentRuns(ctx context.Context, job string, n int) ([]RunRecord, error) {
	_ = ctx
	if n <= 0 {
		n = 20
	}
	s.mu.Lock()
	path := s.path
	s.mu.Unlock()

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var out []RunRecord
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var l runLine
		if err := json.Unmarshal(sc.Bytes(), &l); err != nil {
			// skip corrupt lines, keep reading
			continue
		}
		if job != "" && l.Job != job {
			continue
		}
		out = append(out, fromLine(l))
		if len(out) > n {
			out = out[1:]
		}
	}
	return out, sc.Err()
}

func toLine(r RunRecord) runLine {
	return runLine{
		RunID:      r.RunID,
		Job:        r.Job,
		Started:    r.Started.UnixMilli(),
		DurationMS: r.Duration.Milliseconds(),
		ExitCode:   r.ExitCode,
		Cancelled:  r.Cancelled,
		Error:      r.Error,
	}
}

func fromLine(l runLine) RunRecord {
	return RunRecord{
		RunID:     l.RunID,
		Job:       l.Job,
		Started:   time.UnixMilli(l.Started),
		Duration:  time.Duration(l.DurationMS) * time.Millisecond,
		ExitCode:  l.ExitCode,
		Cancelled: l.Cancelled,
		Error:     l.Error,
	}
}
