package chord

type State uint64

const (
	// Node not running, default state
	Inactive State = iota
	// In the progress of joining the network
	Joining
	// Ready to handle lookup and binding requests
	Active
	// Leaving and transferring bindings to successor
	Leaving
	// No longer an active node
	Left
)

func (s State) String() string {
	switch s {
	case Inactive:
		return "Inactive"
	case Joining:
		return "Joining"
	case Active:
		return "Active"
	case Leaving:
		return "Leaving"
	case Left:
		return "Left"
	default:
		return "State(unknown)"
	}
}
