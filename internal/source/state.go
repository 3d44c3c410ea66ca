package source

import "time"

// State is the light source lifecycle state. It is owned by the
// controller and mutated only through its edge-validated transition
// helpers, so every state change follows a declared edge.
type State string

const (
	StateOff         State = "off"
	StateStandby     State = "standby"
	StateCalibrating State = "calibrating"
	StateReady       State = "ready"
	StateEmitting    State = "emitting"
	StateError       State = "error"
)

func (s State) String() string {
	return string(s)
}

// validTransitions enumerates every reachable edge. Any transition not
// listed here is rejected, so an undeclared state pair cannot occur.
var validTransitions = map[State][]State{
	StateOff:         {StateStandby},
	StateStandby:     {StateReady, StateError, StateOff},
	StateCalibrating: {StateReady, StateError, StateOff},
	StateReady:       {StateCalibrating, StateEmitting, StateOff},
	StateEmitting:    {StateReady, StateOff},
	StateError:       {StateOff},
}

func validTransition(from, to State) bool {
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}

	return false
}

// StateChangeEvent is the payload published on every committed
// state transition.
type StateChangeEvent struct {
	Old       State
	New       State
	Timestamp time.Time
}
