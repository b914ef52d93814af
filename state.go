package delivery

import "fmt"

// State is the handshake state of a session.
type State uint8

const (
	// StateDisconnected is the initial state.
	StateDisconnected State = iota
	// StateConnecting means Connect was called and the peer has not confirmed.
	StateConnecting
	// StateConnected means the handshake completed on this side.
	StateConnected
)

// String returns the state name used in logs.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}
