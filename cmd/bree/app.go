package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shaunwarman/bree/internal/config"
	"github.com/shaunwarman/bree/internal/eventbus"
	"github.com/shaunwarman/bree/internal/job"
	"github.com/shaunwarman/bree/internal/scheduler"
	"github.com/shaunwarman/bree/internal/storage"
	"github.com/shaunwarman/bree/internal/worker"
	logx "github.com/shaunwarman/bree/pkg/logx"
)

type app struct {
	cfgm *config.Manager
	logs *logx.Service
	log  logx.Logger

	bus   eventbus.Bus
	store storage.Store
	sup   *worker.Supervisor
	sched *scheduler.Scheduler
}

func newApp(cfgPath string) (*app, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", cfgPath, err)
	}

	logSvc, log := logx.New(cfg.LogxConfig())
	log = log.With(logx.String("comp", "bree"))

	cfgm.SetLogger(log.With(logx.String("comp", "config")))
	cfgm.SetValidator(validateConfig)

	bus := eventbus.New()

	var store storage.Store
	if cfg.Storage != nil {
		busy, err := config.ParseDurationOrDefault("storage.busy_timeout", cfg.Storage.BusyTimeout, 5*time.Second)
		if err != nil {
			return nil, err
		}
		st, err := storage.Open(storage.Config{
			Driver:      cfg.Storage.Driver,
			Path:        cfg.Storage.Path,
			BusyTimeout: busy,
		}, log.With(logx.String("comp", "storage")))
		if err != nil {
			return nil, err
		}
		if st != nil {
			store = st
			log.Info("storage enabled", logx.String("driver", cfg.Storage.Driver))
		}
	}

	jobs, err := buildJobs(cfg)
	if err != nil {
		return nil, err
	}

	closeAfter, err := cfg.GlobalCloseAfter()
	if err != nil {
		return nil, err
	}

	sup := worker.NewSupervisor(worker.Config{
		CloseAfter:      closeAfter,
		SuccessExitCode: cfg.SuccessExitCode,
	}, worker.NewExecRuntime(), log.With(logx.String("comp", "worker")), bus, store)

	sched := scheduler.New(jobs, sup, scheduler.Config{
		Timezone: cfg.Timezone,
	}, log.With(logx.String("comp", "scheduler")), bus)

	log.Info("jobs registered", logx.Int("count", len(jobs)))

	return &app{
		cfgm:  cfgm,
		logs:  logSvc,
		log:   log,
		bus:   bus,
		store: store,
		sup:   sup,
		sched: sched,
	}, nil
}

func buildJobs(cfg *config.Config) ([]job.Job, error) {
	return job.Register(cfg.Specs(), cfg.Options())
}

// validateConfig gates hot reloads: a config that fails here is rejected
// and the previous one stays committed.
func validateConfig(_ context.Context, cfg *config.Config) error {
	if _, err := cfg.GlobalCloseAfter(); err != nil {
		return err
	}
	if cfg.Storage != nil {
		if _, err := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout); err != nil {
			return err
		}
	}
	_, err := buildJobs(cfg)
	return err
}

// watchConfig applies accepted reloads. Logging changes take effect
// immediately; job list changes are logged but need a restart to apply.
func (a *app) watchConfig(ctx context.Context) {
	sub := a.cfgm.Subscribe(1)
	defer a.cfgm.Unsubscribe(sub)

	go func() { _ = a.cfgm.Watch(ctx) }()

	old := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-sub:
			if !ok || cfg == nil {
				return
			}
			sections, attrs, jobsChanged := config.SummarizeChange(old, cfg)
			if len(sections) == 0 {
				old = cfg
				continue
			}
			a.log.Info("config changed",
				append([]logx.Field{logx.String("sections", strings.Join(sections, ","))}, attrs...)...)

			for _, section := range sections {
				if section == "logging" {
					a.logs.Apply(cfg.LogxConfig())
				}
			}
			if len(jobsChanged) > 0 {
				a.log.Warn("job definitions changed; restart to apply",
					logx.String("jobs", strings.Join(jobsChanged, ",")))
			}
			old = cfg
		}
	}
}

// logEvents mirrors job lifecycle bus traffic to the debug log, so the
// event stream is visible without attaching an external consumer.
func (a *app) logEvents(ctx context.Context) {
	ch, unsub := a.bus.Subscribe(32)
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			a.log.Debug("job event",
				logx.String("type", ev.Type),
				logx.String("job", ev.Job),
				logx.Any("data", ev.Data))
		}
	}
}

func (a *app) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	err := a.sched.Shutdown(ctx)
	if a.store != nil {
		if cerr := a.store.Close(); err == nil {
			err = cerr
		}
	}
	_ = a.logs.Close()
	return err
}
