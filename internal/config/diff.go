package config

import (
	"sort"
	"strings"

	logx "github.com/shaunwarman/bree/pkg/logx"
)

// SummarizeChange returns a compact list of changed sections, structured
// attrs safe for logging, and the names of jobs whose entries changed.
func SummarizeChange(oldCfg, newCfg *Config) ([]string, []logx.Field, []string) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 4)
	attrs := make([]logx.Field, 0, 12)

	if strings.TrimSpace(oldCfg.Root) != strings.TrimSpace(newCfg.Root) ||
		oldCfg.DefaultExtension != newCfg.DefaultExtension ||
		strings.TrimSpace(oldCfg.Timezone) != strings.TrimSpace(newCfg.Timezone) {
		changed = append(changed, "root")
		attrs = append(attrs,
			logx.String("root", strings.TrimSpace(newCfg.Root)),
			logx.String("timezone", strings.TrimSpace(newCfg.Timezone)),
		)
	}

	if oldCfg.Timeout != newCfg.Timeout ||
		oldCfg.Interval != newCfg.Interval ||
		oldCfg.CronWithSeconds != newCfg.CronWithSeconds ||
		oldCfg.CloseAfter != newCfg.CloseAfter ||
		oldCfg.SuccessExitCode != newCfg.SuccessExitCode {
		changed = append(changed, "defaults")
		attrs = append(attrs,
			logx.String("default_timeout", newCfg.Timeout),
			logx.String("default_interval", newCfg.Interval),
			logx.Bool("cron_with_seconds", newCfg.CronWithSeconds),
			logx.String("close_after", newCfg.CloseAfter),
		)
	}

	jobsChanged := diffJobs(oldCfg.Jobs, newCfg.Jobs)
	if len(jobsChanged) > 0 {
		changed = append(changed, "jobs")
		attrs = append(attrs,
			logx.Int("jobs.changed_count", len(jobsChanged)),
			logx.Int("jobs.total", len(newCfg.Jobs)),
		)
	}

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logx.level", newCfg.Logging.Level),
			logx.Bool("logx.console", newCfg.Logging.Console),
			logx.Bool("logx.file_enabled", newCfg.Logging.File.Enabled),
			logx.Bool("logx.alert_enabled", newCfg.Logging.Alert.Enabled),
		)
	}

	// Storage: nil means disabled.
	var oDriver, nDriver string
	var oPathSet, nPathSet bool
	if oldCfg.Storage != nil {
		oDriver = strings.TrimSpace(oldCfg.Storage.Driver)
		oPathSet = strings.TrimSpace(oldCfg.Storage.Path) != ""
	}
	if newCfg.Storage != nil {
		nDriver = strings.TrimSpace(newCfg.Storage.Driver)
		nPathSet = strings.TrimSpace(newCfg.Storage.Path) != ""
	}
	if oDriver != nDriver || oPathSet != nPathSet {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", nDriver),
			logx.Bool("storage.path_set", nPathSet),
		)
	}

	sort.Strings(changed)
	return changed, attrs, jobsChanged
}

// diffJobs compares entries by name using a canonical JSON hash, so key
// order and formatting changes don't register as edits.
func diffJobs(oldJobs, newJobs []JobEntry) []string {
	oldByName := make(map[string]uint64, len(oldJobs))
	for _, e := range oldJobs {
		oldByName[e.Name] = canonicalHashJSON(e)
	}
	newByName := make(map[string]uint64, len(newJobs))
	for _, e := range newJobs {
		newByName[e.Name] = canonicalHashJSON(e)
	}

	set := map[string]struct{}{}
	for name := range oldByName {
		set[name] = struct{}{}
	}
	for name := range newByName {
		set[name] = struct{}{}
	}

	out := make([]string, 0, len(set))
	for name := range set {
		if oldByName[name] != newByName[name] {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}
