package scheduler

import (
	"time"

	"github.com/robfig/cron/v3"

	"github.com/shaunwarman/bree/internal/eventbus"
	"github.com/shaunwarman/bree/internal/schedule"
	logx "github.com/shaunwarman/bree/pkg/logx"
)

// armLocked arms the timing primitives for one job. Precedence: start date,
// then the timeout axis, then a bare interval axis. Every initial variant
// funnels through fireInitial, so the "trigger a run, then arm the interval
// axis" continuation exists exactly once.
//
// Call with s.mu held.
func (s *Scheduler) armLocked(e *entry) error {
	if e.armed() {
		return ErrAlreadyArmed
	}

	name := e.job.Name
	now := time.Now().In(s.loc)

	switch {
	case !e.job.StartAt.IsZero():
		if !e.job.StartAt.After(now) {
			// A start date in the past never auto-fires.
			s.log.Debug("start date already passed; nothing to arm",
				logx.String("job", name), logx.Time("date", e.job.StartAt))
			return nil
		}
		s.armInitialLocked(e, e.job.StartAt.Sub(now))

	case e.job.Timeout != nil:
		var delay time.Duration
		if e.job.Timeout.Kind == schedule.KindRecurring {
			// robfig reports "no future occurrence" as the zero time;
			// clamping that to 0 would fire immediately instead of never.
			next := e.job.Timeout.Next(now)
			if next.IsZero() || !next.After(now) {
				s.log.Warn("timeout schedule has no future occurrence; nothing to arm",
					logx.String("job", name), logx.String("spec", e.job.Timeout.Spec))
				return nil
			}
			delay = next.Sub(now)
		} else {
			delay = e.job.Timeout.Delay
		}
		s.armInitialLocked(e, delay)

	case e.job.Interval != nil:
		s.armIntervalLocked(e)

	default:
		// Manual-trigger-only job.
		s.log.Debug("no schedule configured; job runs on demand only", logx.String("job", name))
		return nil
	}

	if s.bus != nil {
		s.bus.Publish(eventbus.Event{Type: eventbus.JobArmed, Job: name})
	}
	s.log.Info("job started", logx.String("job", name))
	return nil
}

// armInitialLocked arms the one-shot initial timer. Call with s.mu held.
func (s *Scheduler) armInitialLocked(e *entry, delay time.Duration) {
	if delay < 0 {
		delay = 0
	}
	name := e.job.Name
	gen := e.gen
	e.initial = time.AfterFunc(delay, func() { s.fireInitial(name, gen) })
	s.log.Debug("initial timer armed", logx.String("job", name), logx.Duration("delay", delay))
}

// fireInitial runs when the one-shot initial timer elapses: trigger a run,
// then arm the interval axis if the job has one. A disarm in between bumps
// the generation and the stale callback gives up.
func (s *Scheduler) fireInitial(name string, gen uint64) {
	s.mu.Lock()
	e := s.entries[name]
	if e == nil || e.gen != gen {
		s.mu.Unlock()
		return
	}
	// The timer just fired; its handle is spent.
	e.initial = nil
	j := e.job
	s.mu.Unlock()

	s.trigger(j)

	if j.Interval == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.gen != gen {
		// Stopped while the run was being triggered.
		return
	}
	s.armIntervalLocked(e)
}

// armIntervalLocked arms the repeating axis: calendar recurrences ride the
// shared cron runner, fixed delays get a plain ticker. Call with s.mu held.
func (s *Scheduler) armIntervalLocked(e *entry) {
	sched := e.job.Interval
	if sched == nil {
		return
	}
	name := e.job.Name
	j := e.job

	if sched.Kind == schedule.KindRecurring {
		e.cronID = s.c.Schedule(sched.Recurring, cron.FuncJob(func() { s.trigger(j) }))
		s.startCronLocked()
		s.log.Debug("recurring timer armed", logx.String("job", name), logx.String("spec", sched.Spec))
		return
	}

	tk := time.NewTicker(sched.Delay)
	stop := make(chan struct{})
	e.ticker = tk
	e.tickStop = stop
	go func() {
		for {
			select {
			case <-stop:
				return
			case <-tk.C:
				s.trigger(j)
			}
		}
	}()
	s.log.Debug("interval timer armed", logx.String("job", name), logx.Duration("every", sched.Delay))
}

// disarmLocked clears whatever is armed for the job and invalidates
// in-flight timer callbacks. Call with s.mu held.
func (s *Scheduler) disarmLocked(e *entry) {
	wasArmed := e.armed()
	e.gen++

	if e.initial != nil {
		e.initial.Stop()
		e.initial = nil
	}
	if e.cronID != 0 {
		s.c.Remove(e.cronID)
		e.cronID = 0
	}
	if e.ticker != nil {
		e.ticker.Stop()
		close(e.tickStop)
		e.ticker = nil
		e.tickStop = nil
	}

	if wasArmed {
		if s.bus != nil {
			s.bus.Publish(eventbus.Event{Type: eventbus.JobDisarmed, Job: e.job.Name})
		}
		s.log.Info("job stopped", logx.String("job", e.job.Name))
	}
}

// startCronLocked starts the shared recurring runner on first use.
// Call with s.mu held.
func (s *Scheduler) startCronLocked() {
	if s.cronStarted {
		return
	}
	s.c.Start()
	s.cronStarted = true
}
