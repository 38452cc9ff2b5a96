// state.go defines the tunnel session states and the snapshot value pushed
// to status observers.
//
// The session is a single slot owned by the Manager. It moves through
// Disconnected -> Authenticating -> Allocating -> Launching -> Connected,
// aborting back to Disconnected on any step's failure. TearingDown is the
// transient state while an active subprocess is being killed.

package tunnel

// State is the current phase of the tunnel session slot.
type State int

const (
	StateDisconnected State = iota
	StateAuthenticating
	StateAllocating
	StateLaunching
	StateConnected
	StateTearingDown
)

// String returns the human-readable name of the state.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateAuthenticating:
		return "authenticating"
	case StateAllocating:
		return "allocating"
	case StateLaunching:
		return "launching"
	case StateConnected:
		return "connected"
	case StateTearingDown:
		return "tearing_down"
	default:
		return "unknown"
	}
}

// Snapshot is an immutable point-in-time view of tunnel connectivity,
// produced by the Manager on every transition. Environment and LocalPort are
// set together or not at all.
type Snapshot struct {
	Connected   bool    `json:"connected"`
	State       string  `json:"state"`
	Environment *string `json:"environment"`
	PID         *int    `json:"processId"`
	LocalPort   *int    `json:"localPort"`
}
