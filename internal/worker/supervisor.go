package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shaunwarman/bree/internal/eventbus"
	"github.com/shaunwarman/bree/internal/job"
	"github.com/shaunwarman/bree/internal/storage"
	logx "github.com/shaunwarman/bree/pkg/logx"
)

// ErrAlreadyRunning is returned when a trigger fires while a previous run of
// the same job is still active. Overlapping fires are dropped, never queued.
var ErrAlreadyRunning = errors.New("job is already running")

// Config controls worker supervision.
type Config struct {
	// CloseAfter is the global hard-kill duration. A running unit is
	// unconditionally terminated this long after spawn, independent of the
	// cancellation handshake. 0 disables the hard kill.
	CloseAfter time.Duration
	// SuccessExitCode is the exit code logged at info severity. Any other
	// code is logged as an error.
	SuccessExitCode int
}

// Supervisor spawns, tracks, and tears down one execution unit per running
// job. It enforces at most one concurrent run per job name.
type Supervisor struct {
	log   logx.Logger
	rt    Runtime
	bus   eventbus.Bus
	store storage.Store // optional

	mu   sync.Mutex
	cfg  Config
	runs map[string]*run
	wg   sync.WaitGroup
}

// run is the aggregate per-run record: the handle, its hard-kill timer, and
// the cancellation handshake state, all in one place.
type run struct {
	id      string
	job     job.Job
	handle  Handle
	started time.Time
	kill    *time.Timer // nil when no hard-kill duration applies

	cancelPending bool
	cancelled     bool
	killed        bool
}

func NewSupervisor(cfg Config, rt Runtime, log logx.Logger, bus eventbus.Bus, store storage.Store) *Supervisor {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Supervisor{
		log:   log,
		rt:    rt,
		bus:   bus,
		store: store,
		cfg:   cfg,
		runs:  map[string]*run{},
	}
}

// Active reports whether a unit is currently running for the job name.
func (s *Supervisor) Active(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runs[name] != nil
}

// Trigger spawns a new execution unit for j.
//
// If a unit already exists for the job name the trigger is dropped: an error
// is logged and ErrAlreadyRunning returned so callers can treat it as
// non-fatal. The check-then-record happens under one lock, so two trigger
// paths can never both spawn.
func (s *Supervisor) Trigger(ctx context.Context, j job.Job) error {
	s.mu.Lock()
	if s.runs[j.Name] != nil {
		s.mu.Unlock()
		s.log.Error("job already running; dropping trigger", logx.String("job", j.Name))
		if s.bus != nil {
			s.bus.Publish(eventbus.Event{Type: eventbus.JobDropped, Job: j.Name})
		}
		return fmt.Errorf("%w: %q", ErrAlreadyRunning, j.Name)
	}

	r := &run{
		id:      uuid.NewString(),
		job:     j,
		started: time.Now(),
	}
	// Reserve the slot before spawning so a re-entrant trigger from an
	// event callback sees the run as active.
	s.runs[j.Name] = r
	s.mu.Unlock()

	h, err := s.rt.Spawn(ctx, j.Path, InitData{Job: j.Name, RunID: r.id, Payload: j.Payload})
	if err != nil {
		s.mu.Lock()
		delete(s.runs, j.Name)
		s.mu.Unlock()
		s.log.Error("spawn failed", logx.String("job", j.Name), logx.Err(err))
		return fmt.Errorf("spawn %q: %w", j.Name, err)
	}

	s.mu.Lock()
	r.handle = h
	closeAfter := j.CloseAfter
	if closeAfter <= 0 {
		closeAfter = s.cfg.CloseAfter
	}
	if closeAfter > 0 {
		r.kill = time.AfterFunc(closeAfter, func() { s.hardKill(j.Name, r.id, closeAfter) })
	}
	s.mu.Unlock()

	if s.bus != nil {
		s.bus.Publish(eventbus.Event{Type: eventbus.JobStarted, Job: j.Name, Data: r.id})
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			if p := recover(); p != nil {
				s.log.Error("panic in worker event pump",
					logx.String("job", j.Name), logx.Any("panic", p),
					logx.String("stack", string(debug.Stack())))
			}
		}()
		s.pump(r)
	}()
	return nil
}

// Cancel drives the graceful cancellation handshake for the named job.
//
// It posts the reserved cancel token and returns; termination happens when
// (and only when) the unit acknowledges with the cancelled token. A unit
// that never acknowledges keeps its handle until the hard-kill timer fires
// or it exits on its own. That gap is deliberate.
func (s *Supervisor) Cancel(name string) {
	s.mu.Lock()
	r := s.runs[name]
	if r == nil || r.handle == nil {
		s.mu.Unlock()
		return
	}
	r.cancelPending = true
	h := r.handle
	s.mu.Unlock()

	if err := h.Post(TokenCancel); err != nil {
		s.log.Error("posting cancel token failed", logx.String("job", name), logx.Err(err))
		return
	}
	s.log.Info("cancel requested", logx.String("job", name))
}

// ClearHardKill disarms the hard-kill timer for the named job, if armed.
func (s *Supervisor) ClearHardKill(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.runs[name]
	if r != nil && r.kill != nil {
		r.kill.Stop()
		r.kill = nil
	}
}

// Wait blocks until every event pump has drained or ctx expires.
func (s *Supervisor) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Supervisor) hardKill(name, runID string, after time.Duration) {
	s.mu.Lock()
	r := s.runs[name]
	if r == nil || r.id != runID {
		// The run already finished; the timer lost the race.
		s.mu.Unlock()
		return
	}
	r.killed = true
	h := r.handle
	s.mu.Unlock()

	s.log.Error("worker exceeded max lifetime; terminating",
		logx.String("job", name), logx.Duration("close_after", after))
	h.Terminate()
}

// pump consumes one unit's event stream until exit. All handle cleanup goes
// through here, so the exit path is identical for natural exits, hard kills,
// and acknowledged cancellations.
func (s *Supervisor) pump(r *run) {
	name := r.job.Name
	log := s.log.With(logx.String("job", name), logx.String("run", r.id))

	for ev := range r.handle.Events() {
		switch ev.Kind {
		case EventOnline:
			log.Info("worker online")
		case EventMessage:
			if ev.Payload == TokenCancelled && s.takeCancelAck(name, r.id) {
				log.Info("worker acknowledged cancel; terminating")
				if s.bus != nil {
					s.bus.Publish(eventbus.Event{Type: eventbus.JobCancelled, Job: name, Data: r.id})
				}
				r.handle.Terminate()
				continue
			}
			log.Info("worker message", logx.String("message", ev.Payload))
			if s.bus != nil {
				s.bus.Publish(eventbus.Event{Type: eventbus.JobMessage, Job: name, Data: ev.Payload})
			}
		case EventMessageError:
			log.Error("worker message error", logx.Err(ev.Err))
		case EventError:
			log.Error("worker error", logx.Err(ev.Err))
		case EventExit:
			s.finish(r, ev.Code, log)
		}
	}
}

// takeCancelAck consumes a pending cancel for the given run. Only an exact
// token match on a run that asked for cancellation counts.
func (s *Supervisor) takeCancelAck(name, runID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.runs[name]
	if r == nil || r.id != runID || !r.cancelPending {
		return false
	}
	r.cancelPending = false
	r.cancelled = true
	return true
}

func (s *Supervisor) finish(r *run, code int, log logx.Logger) {
	s.mu.Lock()
	if cur := s.runs[r.job.Name]; cur == r {
		delete(s.runs, r.job.Name)
	}
	if r.kill != nil {
		r.kill.Stop()
		r.kill = nil
	}
	cancelled := r.cancelled
	killed := r.killed
	s.mu.Unlock()

	dur := time.Since(r.started)
	if code == s.cfg.SuccessExitCode {
		log.Info("worker exited", logx.Int("code", code), logx.Duration("dur", dur))
	} else {
		log.Error("worker exited", logx.Int("code", code), logx.Duration("dur", dur),
			logx.Bool("killed", killed))
	}

	if s.store != nil {
		rec := storage.RunRecord{
			RunID:     r.id,
			Job:       r.job.Name,
			Started:   r.started,
			Duration:  dur,
			ExitCode:  code,
			Cancelled: cancelled,
		}
		if killed {
			rec.Error = "terminated by hard-kill timer"
		} else if code != s.cfg.SuccessExitCode {
			rec.Error = fmt.Sprintf("exit code %d", code)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := s.store.AppendRun(ctx, rec); err != nil {
			log.Error("recording run failed", logx.Err(err))
		}
		cancel()
	}

	if s.bus != nil {
		s.bus.Publish(eventbus.Event{Type: eventbus.JobExited, Job: r.job.Name, Data: code})
	}
}
