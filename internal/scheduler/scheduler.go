package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/shaunwarman/bree/internal/eventbus"
	"github.com/shaunwarman/bree/internal/job"
	"github.com/shaunwarman/bree/internal/worker"
	logx "github.com/shaunwarman/bree/pkg/logx"
)

var (
	// ErrUnknownJob is fatal to the call that names it.
	ErrUnknownJob = errors.New("unknown job")
	// ErrAlreadyArmed is reported to the logger; callers treat it as
	// non-fatal so Start stays idempotent-safe.
	ErrAlreadyArmed = errors.New("job already started")
)

// Config controls the scheduler.
type Config struct {
	Timezone string // IANA TZ, e.g. "Europe/Madrid"; empty means Local
}

// entry is the aggregate per-job record: the normalized job plus whatever
// timing primitives are currently armed for it.
type entry struct {
	job job.Job

	initial  *time.Timer  // one-shot timeout/date axis
	cronID   cron.EntryID // calendar interval axis (0 = not armed)
	ticker   *time.Ticker // fixed-delay interval axis
	tickStop chan struct{}

	// gen invalidates in-flight timer callbacks after a disarm, the same
	// way a replaced one-shot ignores its stale predecessor.
	gen uint64
}

func (e *entry) armed() bool {
	return e.initial != nil || e.cronID != 0 || e.ticker != nil
}

// Scheduler is the public facade: Run/Start/Stop over the registered jobs.
type Scheduler struct {
	log logx.Logger
	bus eventbus.Bus
	sup *worker.Supervisor
	loc *time.Location

	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	c           *cron.Cron
	cronStarted bool
	order       []string
	entries     map[string]*entry
}

// New builds a scheduler over already-validated jobs. Job names are unique
// by construction (the registry enforces it).
func New(jobs []job.Job, sup *worker.Supervisor, cfg Config, log logx.Logger, bus eventbus.Bus) *Scheduler {
	if log.IsZero() {
		log = logx.Nop()
	}
	loc := loadLocation(cfg.Timezone, log)
	ctx, cancel := context.WithCancel(context.Background())

	s := &Scheduler{
		log:     log,
		bus:     bus,
		sup:     sup,
		loc:     loc,
		ctx:     ctx,
		cancel:  cancel,
		c:       cron.New(cron.WithLocation(loc)),
		entries: make(map[string]*entry, len(jobs)),
	}
	for _, j := range jobs {
		s.order = append(s.order, j.Name)
		s.entries[j.Name] = &entry{job: j}
	}
	return s
}

// Run triggers the named jobs now (all jobs, in registration order, when no
// names are given). An unknown name fails the call; a job that is already
// running is logged by the supervisor and skipped.
func (s *Scheduler) Run(names ...string) error {
	targets, err := s.resolve(names)
	if err != nil {
		return err
	}
	for _, name := range targets {
		s.mu.Lock()
		j := s.entries[name].job
		s.mu.Unlock()
		s.trigger(j)
	}
	return nil
}

// Start arms timers for the named jobs (all jobs when no names are given).
// Arming an already-armed job is reported at error severity and skipped.
func (s *Scheduler) Start(names ...string) error {
	targets, err := s.resolve(names)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, name := range targets {
		if err := s.armLocked(s.entries[name]); err != nil {
			s.log.Error("start rejected", logx.String("job", name), logx.Err(err))
		}
	}
	return nil
}

// Stop disarms timers, clears the hard-kill timer, and drives the graceful
// cancellation handshake for the named jobs (all jobs when none are given).
// Jobs are stopped independently: one job's failure never blocks another's.
func (s *Scheduler) Stop(names ...string) error {
	targets, err := s.resolve(names)
	if err != nil {
		return err
	}
	for _, name := range targets {
		s.mu.Lock()
		s.disarmLocked(s.entries[name])
		s.mu.Unlock()

		s.sup.ClearHardKill(name)
		s.sup.Cancel(name)
	}
	return nil
}

// Shutdown stops every job, halts the recurring runner, and waits for
// worker event streams to drain (bounded by ctx).
func (s *Scheduler) Shutdown(ctx context.Context) error {
	_ = s.Stop()

	s.mu.Lock()
	c := s.c
	started := s.cronStarted
	s.cronStarted = false
	s.mu.Unlock()

	if started {
		<-c.Stop().Done()
	}
	s.cancel()
	return s.sup.Wait(ctx)
}

// JobStatus is a point-in-time view of one job for diagnostics.
type JobStatus struct {
	Name    string
	Armed   bool
	Running bool
	Next    time.Time // zero when nothing is scheduled
}

// Snapshot reports every job in registration order.
func (s *Scheduler) Snapshot() []JobStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]JobStatus, 0, len(s.order))
	for _, name := range s.order {
		e := s.entries[name]
		st := JobStatus{Name: name, Armed: e.armed(), Running: s.sup.Active(name)}
		if e.cronID != 0 {
			st.Next = s.c.Entry(e.cronID).Next
		}
		out = append(out, st)
	}
	return out
}

func (s *Scheduler) resolve(names []string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(names) == 0 {
		return append([]string(nil), s.order...), nil
	}
	out := make([]string, 0, len(names))
	for _, raw := range names {
		name := strings.TrimSpace(raw)
		if s.entries[name] == nil {
			return nil, fmt.Errorf("%w: %q", ErrUnknownJob, name)
		}
		out = append(out, name)
	}
	return out, nil
}

func (s *Scheduler) trigger(j job.Job) {
	err := s.sup.Trigger(s.ctx, j)
	if err != nil && !errors.Is(err, worker.ErrAlreadyRunning) {
		// Spawn failures are already logged by the supervisor; nothing
		// propagates to timer callbacks.
		s.log.Debug("trigger failed", logx.String("job", j.Name), logx.Err(err))
	}
}

func loadLocation(tz string, log logx.Logger) *time.Location {
	tz = strings.TrimSpace(tz)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		log.Warn("invalid timezone; falling back to Local", logx.String("tz", tz), logx.Err(err))
		return time.Local
	}
	return loc
}
