// Package worker supervises the isolated execution units that run jobs.
//
// The execution substrate is consumed through the Runtime interface: spawn a
// unit for a task path, receive lifecycle events on a channel, post messages
// to it, terminate it. The Supervisor enforces at-most-one concurrent run
// per job name and implements the graceful cancellation handshake.
package worker

import "context"

// Reserved control tokens for the cancellation handshake. They are matched
// exactly, so a worker's ordinary output can never be confused with an
// acknowledgment.
const (
	// TokenCancel is posted to a worker to request a cooperative stop.
	TokenCancel = "cancel"
	// TokenCancelled is the acknowledgment a worker sends back once it has
	// finished cleaning up and is safe to terminate.
	TokenCancelled = "cancelled"
)

// EventKind tags a worker lifecycle event.
type EventKind int

const (
	// EventOnline fires once when the unit is up and processing.
	EventOnline EventKind = iota
	// EventMessage carries one payload sent by the unit.
	EventMessage
	// EventMessageError reports a payload that could not be decoded.
	EventMessageError
	// EventError reports a runtime error inside the unit.
	EventError
	// EventExit is the final event; Code carries the exit code. The event
	// channel is closed after it.
	EventExit
)

// Event is one lifecycle notification from a running unit.
type Event struct {
	Kind    EventKind
	Payload string // EventMessage
	Err     error  // EventMessageError, EventError
	Code    int    // EventExit
}

// InitData is the initialization payload handed to a unit at spawn time.
type InitData struct {
	Job     string         `json:"job"`
	RunID   string         `json:"run_id"`
	Payload map[string]any `json:"payload,omitempty"`
}

// Handle is an opaque reference to one running unit. It is owned exclusively
// by the Supervisor for the duration of one run.
type Handle interface {
	// Events returns the unit's lifecycle stream. It is closed after the
	// EventExit event has been delivered.
	Events() <-chan Event
	// Post sends a payload to the unit.
	Post(payload string) error
	// Terminate forcefully stops the unit. The exit event still arrives.
	Terminate()
}

// Runtime spawns execution units. Implementations must deliver events in
// order and always finish the stream with EventExit.
type Runtime interface {
	Spawn(ctx context.Context, path string, init InitData) (Handle, error)
}
