package conn

// State is the connection lifecycle state.  Transitions are driven only by
// the [Service]; consumers may read it but never set it.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "disconnected"
	}
}
