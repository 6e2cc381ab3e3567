package orchestrator

// State is a step of a run.
type State int

const (
	StateInit State = iota
	StatePreparing
	StateServerStarting
	StateRegistering
	StateResolvingServedName
	StateInferring
	StateUnregistering
	StateStopping
	StateDone
	StateFailed
)

var stateNames = map[State]string{
	StateInit:                "init",
	StatePreparing:           "preparing",
	StateServerStarting:      "server_starting",
	StateRegistering:         "registering",
	StateResolvingServedName: "resolving_served_name",
	StateInferring:           "inferring",
	StateUnregistering:       "unregistering",
	StateStopping:            "stopping",
	StateDone:                "done",
	StateFailed:              "failed",
}

func (s State) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return "unknown"
}

// Terminal reports whether s ends a run.
func (s State) Terminal() bool { return s == StateDone || s == StateFailed }
