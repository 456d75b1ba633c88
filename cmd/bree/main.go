package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/coreos/go-systemd/v22/daemon"

	"github.com/shaunwarman/bree/internal/job"
)

func main() {
	var cfgPath string
	var watch bool
	flag.StringVar(&cfgPath, "config", "./bree.json", "path to config file (json or yaml)")
	flag.BoolVar(&watch, "watch", true, "reload config on file changes")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := newApp(cfgPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		var agg *job.AggregateError
		if errors.As(err, &agg) {
			for _, e := range agg.Errors {
				fmt.Fprintln(os.Stderr, "  -", e)
			}
		}
		os.Exit(1)
	}

	if watch {
		go a.watchConfig(ctx)
	}
	go a.logEvents(ctx)

	if err := a.sched.Start(); err != nil {
		fmt.Fprintln(os.Stderr, "fatal start:", err)
		os.Exit(1)
	}
	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)
	a.log.Info("started")

	<-ctx.Done()

	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
	a.log.Info("shutting down")
	if err := a.shutdown(); err != nil {
		fmt.Fprintln(os.Stderr, "shutdown:", err)
		os.Exit(1)
	}
}
