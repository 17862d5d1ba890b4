package session

import "time"

// State is the console lifecycle state of a Session.
type State int

const (
	// Idle: no live console process.
	Idle State = iota
	// Launching: a console-host start has been requested.
	Launching
	// Running: the console host started and is being watched.
	Running
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Launching:
		return "launching"
	case Running:
		return "running"
	default:
		return "unknown"
	}
}

// EventKind identifies what a background unit is reporting.
type EventKind int

const (
	// ConsoleExited is posted by a watcher once its console host terminates.
	ConsoleExited EventKind = iota + 1
)

func (k EventKind) String() string {
	switch k {
	case ConsoleExited:
		return "console-exited"
	default:
		return "unknown"
	}
}

// Event is a message from a background unit to the interactive layer.
// Apply it with Manager.Dispatch.
type Event struct {
	Kind       EventKind
	Name       string
	PID        int
	Generation uint64
	Err        error
	At         time.Time
}
