package conn

// State is the connection lifecycle state. It is owned solely by the
// Manager; other components observe it through State() and never mutate it.
type State int

const (
	Disconnected State = iota
	Connecting
	Authenticating
	Connected
	Reconnecting
	Closed
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Authenticating:
		return "authenticating"
	case Connected:
		return "connected"
	case Reconnecting:
		return "reconnecting"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}
