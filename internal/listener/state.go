package listener

import (
	"github.com/lexiqai/cuecam/internal/command"
)

// State is the lifecycle state of the listener
type State int

const (
	Idle State = iota
	Starting
	Listening
	Erroring
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Starting:
		return "starting"
	case Listening:
		return "listening"
	case Erroring:
		return "erroring"
	}
	return "unknown"
}

// Status is the observable snapshot of the listener
type Status struct {
	State          State
	IsListening    bool
	HasError       bool
	ErrorMessage   string
	IsInitializing bool

	// Terminal is set for errors that are not retried automatically, such as a
	// denied authorization. Only an explicit StartListening leaves this state.
	Terminal bool

	// Suspended is set while the app is in the background
	Suspended bool

	Context    command.Context
	Generation uint64
	SessionID  string
	Attempt    int
}
