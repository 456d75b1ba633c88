// Package scheduler wires jobs, timers, and workers together.
//
// # Overview
//
// The Scheduler owns one record per registered job: the normalized job,
// its one-shot initial timer, and its repeating interval primitive. All
// "does job X have an active timer" questions are a single lookup; there
// are no parallel tables to drift apart.
//
// # Axes
//
// A job has up to two timing axes. The timeout axis decides the first
// trigger: a fixed delay, a calendar point (the next occurrence of a cron
// schedule), or an absolute start date. The interval axis repeats after
// that: calendar recurrences ride the shared robfig/cron runner, fixed
// delays use a plain time.Ticker. When both axes are set, the initial
// timer fires once, triggers a run, and then arms the interval axis.
//
// # Operations
//
// Run, Start, and Stop each accept zero or more job names; no names means
// every job in registration order. Unknown names are fatal to the call.
// Re-arming an armed job and triggering a running job are reported to the
// logger and otherwise ignored, so the API stays idempotent-safe.
package scheduler
