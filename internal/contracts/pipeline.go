package contracts

// State is a pipeline orchestrator state
type State string

const (
	StateResolving  State = "RESOLVING"
	StateFetching   State = "FETCHING"
	StateComputing  State = "COMPUTING"
	StateRanking    State = "RANKING"
	StatePersisting State = "PERSISTING"
	StateExporting  State = "EXPORTING"
	StateDone       State = "DONE"
	StateFailed     State = "FAILED"
)

// String returns the state name
func (s State) String() string {
	return string(s)
}

// IsTerminal reports whether no further transition is possible
func (s State) IsTerminal() bool {
	return s == StateDone || s == StateFailed
}

// AllStates returns the happy-path states in order
func AllStates() []State {
	return []State{
		StateResolving,
		StateFetching,
		StateComputing,
		StateRanking,
		StatePersisting,
		StateExporting,
		StateDone,
	}
}

// CanTransition reports whether from → to is a legal move: the next state on
// the happy path, or Failed from any non-terminal state.
func CanTransition(from, to State) bool {
	if from.IsTerminal() {
		return false
	}
	if to == StateFailed {
		return true
	}
	states := AllStates()
	for i := 0; i < len(states)-1; i++ {
		if states[i] == from {
			return states[i+1] == to
		}
	}
	return false
}

// StageResult records one state's execution for logs and run details
type StageResult struct {
	State       State  `json:"state"`
	InputCount  int    `json:"input_count"`
	OutputCount int    `json:"output_count"`
	DurationMs  int64  `json:"duration_ms"`
	Error       string `json:"error,omitempty"`
}
