package simulator

import "fmt"

// State is the facade lifecycle.
//
//	Idle -> Syncing -> Streaming -> Resyncing -> Syncing -> Streaming ... -> Stopped
type State int32

const (
	Idle State = iota
	Syncing
	Streaming
	Resyncing
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Syncing:
		return "syncing"
	case Streaming:
		return "streaming"
	case Resyncing:
		return "resyncing"
	case Stopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// MarshalText renders the state by name in JSON and logs.
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }
