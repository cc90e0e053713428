// Package readiness tracks whether the management controller can be
// trusted with control commands. Reachability and sensor availability are
// separate phases: a controller answers on the network well before its
// sensor repository is populated after a cold boot.
package readiness

import "fmt"

type State int

const (
	Unknown State = iota
	ProbingReachability
	ProbingSensors
	Ready
)

func (s State) String() string {
	switch s {
	case Unknown:
		return "unknown"
	case ProbingReachability:
		return "probing_reachability"
	case ProbingSensors:
		return "probing_sensors"
	case Ready:
		return "ready"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

type Event int

const (
	ProbeOK Event = iota
	ProbeFailed
	SensorsOK
	SensorsNotReady
)

func (e Event) String() string {
	switch e {
	case ProbeOK:
		return "probe_ok"
	case ProbeFailed:
		return "probe_failed"
	case SensorsOK:
		return "sensors_ok"
	case SensorsNotReady:
		return "sensors_not_ready"
	default:
		return fmt.Sprintf("event(%d)", int(e))
	}
}

// transitions lists every state change; pairs not listed leave the state
// unchanged.
var transitions = map[State]map[Event]State{
	Unknown: {
		ProbeOK:     ProbingSensors,
		ProbeFailed: ProbingReachability,
	},
	ProbingReachability: {
		ProbeOK:     ProbingSensors,
		ProbeFailed: ProbingReachability,
	},
	ProbingSensors: {
		SensorsOK:       Ready,
		SensorsNotReady: ProbingSensors,
		ProbeFailed:     ProbingReachability,
	},
	Ready: {
		ProbeOK:         Ready,
		SensorsOK:       Ready,
		ProbeFailed:     ProbingReachability,
		SensorsNotReady: ProbingSensors,
	},
}

// Machine is the readiness state machine without any I/O or timing.
type Machine struct {
	state State
}

func NewMachine() *Machine {
	return &Machine{state: Unknown}
}

func (m *Machine) State() State {
	return m.state
}

// Transition applies ev and returns the resulting state.
func (m *Machine) Transition(ev Event) State {
	if next, ok := transitions[m.state][ev]; ok {
		m.state = next
	}

	return m.state
}
