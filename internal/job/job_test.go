package job

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaunwarman/bree/internal/schedule"
)

// writeTask creates an empty task file and returns its path.
func writeTask(t *testing.T, dir, name string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte("#!/bin/sh\n"), 0o755))
	return p
}

func TestRegisterBareNameDerivesPath(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	writeTask(t, root, "boot.js")

	jobs, err := Register([]Spec{{Name: "boot"}}, Options{RootDir: root, DefaultExtension: "js"})
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, filepath.Join(root, "boot.js"), jobs[0].Path)
	assert.Equal(t, "boot", jobs[0].Name)
}

func TestRegisterNoExtension(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	writeTask(t, root, "cleanup")

	jobs, err := Register([]Spec{{Name: "cleanup"}}, Options{RootDir: root})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "cleanup"), jobs[0].Path)
}

func TestRegisterDuplicateNames(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	writeTask(t, root, "a")
	writeTask(t, root, "b")

	// Two duplicates of "a": each duplicate yields its own error, and the
	// later valid entry "b" is still processed.
	_, err := Register([]Spec{
		{Name: "a"}, {Name: "a"}, {Name: "a"}, {Name: "b"},
	}, Options{RootDir: root})
	require.Error(t, err)

	var agg *AggregateError
	require.ErrorAs(t, err, &agg)
	dups := 0
	for _, e := range agg.Errors {
		if strings.Contains(e.Error(), "duplicate job name") {
			dups++
		}
	}
	assert.Equal(t, 2, dups, "one distinct error per duplicate")
}

func TestRegisterCollectsAcrossEntries(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	writeTask(t, root, "ok")

	_, err := Register([]Spec{
		{Name: ""},                                       // empty name
		{Name: "missing"},                                // no task file
		{Name: "bad-sched", Path: filepath.Join(root, "ok"), Timeout: "wat"}, // unparseable
		{Name: "ok"},
	}, Options{RootDir: root})
	require.Error(t, err)

	var agg *AggregateError
	require.ErrorAs(t, err, &agg)
	assert.Len(t, agg.Errors, 3, "validation must not abort at the first failure")
	assert.True(t, errors.Is(err, schedule.ErrInvalidSchedule))
}

func TestRegisterMutualExclusions(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	writeTask(t, root, "x")

	_, err := Register([]Spec{{
		Name:     "x",
		Interval: "5m",
		Cron:     "*/5 * * * *",
	}}, Options{RootDir: root})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot have both interval and cron")

	_, err = Register([]Spec{{
		Name:    "x",
		Timeout: "10s",
		Date:    time.Now().Add(time.Hour),
	}}, Options{RootDir: root})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot have both timeout and date")
}

func TestRegisterCronNormalizesIntoInterval(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	writeTask(t, root, "tick")

	jobs, err := Register([]Spec{{Name: "tick", Cron: "0 3 * * *"}}, Options{RootDir: root})
	require.NoError(t, err)
	require.NotNil(t, jobs[0].Interval)
	assert.Equal(t, schedule.KindRecurring, jobs[0].Interval.Kind)
	assert.Nil(t, jobs[0].Timeout)
}

func TestRegisterCronSecondsOverride(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	writeTask(t, root, "fast")
	writeTask(t, root, "slow")
	yes := true

	// Global flag off; job-level override turns seconds parsing on.
	jobs, err := Register([]Spec{
		{Name: "fast", Cron: "*/10 * * * * *", CronWithSeconds: &yes},
		{Name: "slow", Cron: "*/5 * * * *"},
	}, Options{RootDir: root})
	require.NoError(t, err)
	assert.Len(t, jobs, 2)

	// Without the override the 6-field spec must be rejected.
	_, err = Register([]Spec{
		{Name: "fast", Cron: "*/10 * * * * *"},
	}, Options{RootDir: root})
	require.Error(t, err)
}

func TestRegisterCloseAfter(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	writeTask(t, root, "j")

	_, err := Register([]Spec{{Name: "j", CloseAfter: -time.Second}}, Options{RootDir: root})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "close_after")

	_, err = Register([]Spec{{Name: "j", CloseAfter: "not-a-duration"}}, Options{RootDir: root})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "close_after")

	jobs, err := Register([]Spec{{Name: "j", CloseAfter: 45 * time.Second}}, Options{RootDir: root})
	require.NoError(t, err)
	assert.Equal(t, 45*time.Second, jobs[0].CloseAfter)

	// Duration strings from config files parse the same way.
	jobs, err = Register([]Spec{{Name: "j", CloseAfter: "90s"}}, Options{RootDir: root})
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, jobs[0].CloseAfter)
}

func TestRegisterDateText(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	writeTask(t, root, "j")

	when := time.Now().Add(time.Hour).Truncate(time.Second)
	jobs, err := Register([]Spec{{Name: "j", Date: when.Format(time.RFC3339)}}, Options{RootDir: root})
	require.NoError(t, err)
	assert.True(t, jobs[0].StartAt.Equal(when))
}

func TestRegisterBadDateKeepsCollecting(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	writeTask(t, root, "a")
	writeTask(t, root, "b")

	// A malformed date on one entry must not pre-empt validation of the
	// rest: the duplicate-name errors for "b" surface in the same pass.
	_, err := Register([]Spec{
		{Name: "a", Date: "not-a-date"},
		{Name: "b"},
		{Name: "b"},
	}, Options{RootDir: root})
	require.Error(t, err)

	var agg *AggregateError
	require.ErrorAs(t, err, &agg)
	require.Len(t, agg.Errors, 2)

	var dateErrs, dupErrs int
	for _, e := range agg.Errors {
		var verr *ValidationError
		if errors.As(e, &verr) && verr.Field == "date" {
			dateErrs++
		}
		if strings.Contains(e.Error(), "duplicate job name") {
			dupErrs++
		}
	}
	assert.Equal(t, 1, dateErrs)
	assert.Equal(t, 1, dupErrs)
}

func TestRegisterDefaults(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	writeTask(t, root, "j")

	jobs, err := Register([]Spec{{Name: "j"}}, Options{
		RootDir:         root,
		DefaultTimeout:  "1s",
		DefaultInterval: "10m",
	})
	require.NoError(t, err)
	require.NotNil(t, jobs[0].Timeout)
	require.NotNil(t, jobs[0].Interval)
	assert.Equal(t, time.Second, jobs[0].Timeout.Delay)
	assert.Equal(t, 10*time.Minute, jobs[0].Interval.Delay)

	// Zero defaults mean "no axis", matching an unset field.
	jobs, err = Register([]Spec{{Name: "j"}}, Options{
		RootDir:         root,
		DefaultTimeout:  0,
		DefaultInterval: 0,
	})
	require.NoError(t, err)
	assert.Nil(t, jobs[0].Timeout)
	assert.Nil(t, jobs[0].Interval)
}

func TestRegisterBadRootFailsFast(t *testing.T) {
	t.Parallel()
	_, err := Register([]Spec{{Name: "a"}}, Options{RootDir: filepath.Join(t.TempDir(), "nope")})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConfig)

	var agg *AggregateError
	assert.False(t, errors.As(err, &agg), "top-level config errors pre-empt per-job validation")
}
