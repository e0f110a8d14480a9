package feed

import "time"

// EventKind distinguishes book frames from connection lifecycle events.
type EventKind uint8

const (
	EventFrame EventKind = iota + 1
	EventConnected
	EventDisconnected
)

func (k EventKind) String() string {
	switch k {
	case EventFrame:
		return "frame"
	case EventConnected:
		return "connected"
	case EventDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Event is what a stream collaborator delivers, in arrival order.
// Data is set for EventFrame; Err may explain an EventDisconnected.
type Event struct {
	Kind       EventKind
	Data       []byte
	ReceivedAt time.Time
	Err        error
}

func Frame(data []byte, at time.Time) Event {
	return Event{Kind: EventFrame, Data: data, ReceivedAt: at}
}
