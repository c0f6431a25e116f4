package channel

// State is the lifecycle state of a channel entry's underlying connection.
//
// Transitions: Connecting → Open → {Reconnecting → Open | Closed};
// Open → Errored → Reconnecting. Closed is terminal and only reachable once
// the entry's refcount has hit zero — while consumers remain, an unexpected
// drop always leads to Reconnecting instead.
type State int32

const (
	StateConnecting State = iota
	StateOpen
	StateReconnecting
	StateClosed
	StateErrored
)

// String returns the lowercase name of the state.
func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateReconnecting:
		return "reconnecting"
	case StateClosed:
		return "closed"
	case StateErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// Live reports whether the state represents a connection that is either
// usable or being repaired (everything except Closed).
func (s State) Live() bool {
	return s != StateClosed
}
