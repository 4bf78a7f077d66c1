package session

// State is the lifecycle position of a Session. States only move forward.
type State int32

const (
	Connecting State = iota
	Handshaking
	Streaming
	Draining
	Closed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Handshaking:
		return "handshaking"
	case Streaming:
		return "streaming"
	case Draining:
		return "draining"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}
