// Package sequence implements the time-/event-driven sequence engine:
// an FSM that steps through an ordered list of phasor-state
// snapshots across one or more publisher streams, advancing on a timer or
// on the process trip flag.
package sequence

import (
	"github.com/virtualtestset/vpac/pkg/sv"
)

// Transition names how a SequenceState advances to the next one.
type Transition string

const (
	TransitionTime      Transition = "TIME"
	TransitionGooseTrip Transition = "GOOSE_TRIP"
)

// SequenceState is one step of a Sequence: a name, a duration, a
// transition rule, and the per-stream phasor snapshot applied on entry.
type SequenceState struct {
	Name         string
	DurationSec  float64
	Transition   Transition
	StreamStates map[string]*sv.PhasorState
}

// Sequence is an ordered list of SequenceStates.
type Sequence struct {
	Name   string
	States []SequenceState
}

// Status enumerates the engine's lifecycle states.
type Status int

const (
	StatusIdle Status = iota
	StatusRunning
	StatusPaused
	StatusStopped
	StatusCompleted
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "IDLE"
	case StatusRunning:
		return "RUNNING"
	case StatusPaused:
		return "PAUSED"
	case StatusStopped:
		return "STOPPED"
	case StatusCompleted:
		return "COMPLETED"
	default:
		return "UNKNOWN"
	}
}

// ProgressFunc receives (state_index, total_states, state_name,
// state_elapsed_sec, message) at each tick while RUNNING.
type ProgressFunc func(stateIndex, totalStates int, stateName string, stateElapsedSec float64, message string)
