package config

import (
	"time"

	"github.com/shaunwarman/bree/internal/job"
	logx "github.com/shaunwarman/bree/pkg/logx"
)

// Specs converts the configured job list into registry inputs. Field
// values pass through as raw strings: the registry parses and validates
// them so every problem lands in one aggregate error.
func (c *Config) Specs() []job.Spec {
	specs := make([]job.Spec, 0, len(c.Jobs))
	for _, e := range c.Jobs {
		s := job.Spec{
			Name:            e.Name,
			Path:            e.Path,
			Cron:            e.Cron,
			CronWithSeconds: e.CronWithSeconds,
			Payload:         e.Payload,
		}
		if e.Timeout != "" {
			s.Timeout = e.Timeout
		}
		if e.Interval != "" {
			s.Interval = e.Interval
		}
		if e.Date != "" {
			s.Date = e.Date
		}
		if e.CloseAfter != "" {
			s.CloseAfter = e.CloseAfter
		}
		specs = append(specs, s)
	}
	return specs
}

// Options builds the registry-wide options from the top-level fields.
func (c *Config) Options() job.Options {
	opts := job.Options{
		RootDir:          c.Root,
		DefaultExtension: c.DefaultExtension,
		CronWithSeconds:  c.CronWithSeconds,
	}
	if c.Timeout != "" {
		opts.DefaultTimeout = c.Timeout
	}
	if c.Interval != "" {
		opts.DefaultInterval = c.Interval
	}
	return opts
}

// GlobalCloseAfter parses the top-level maximum worker lifetime. Zero
// means no global deadline.
func (c *Config) GlobalCloseAfter() (time.Duration, error) {
	return ParseDurationField("close_after", c.CloseAfter)
}

// LogxConfig maps the logging block onto the logger service config.
func (c *Config) LogxConfig() logx.Config {
	return logx.Config{
		Level:   c.Logging.Level,
		Console: c.Logging.Console,
		File: logx.FileConfig{
			Enabled: c.Logging.File.Enabled,
			Path:    c.Logging.File.Path,
		},
		Alert: logx.AlertConfig{
			Enabled:    c.Logging.Alert.Enabled,
			MinLevel:   c.Logging.Alert.MinLevel,
			RatePerSec: c.Logging.Alert.RatePerSec,
		},
	}
}
