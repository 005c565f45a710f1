package session

import "fmt"

// State is a session's position in the per-turn lifecycle:
// idle -> requesting -> streaming -> completed|failed -> idle.
type State int32

const (
	StateIdle State = iota
	StateRequesting
	StateStreaming
	StateCompleted
	StateFailed
)

var stateNames = map[State]string{
	StateIdle:       "idle",
	StateRequesting: "requesting",
	StateStreaming:  "streaming",
	StateCompleted:  "completed",
	StateFailed:     "failed",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

func (s State) active() bool {
	return s == StateRequesting || s == StateStreaming
}

// MarshalText encodes the state by name for JSON snapshots.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a state name.
func (s *State) UnmarshalText(text []byte) error {
	for state, name := range stateNames {
		if name == string(text) {
			*s = state
			return nil
		}
	}
	return fmt.Errorf("unknown session state %q", text)
}
