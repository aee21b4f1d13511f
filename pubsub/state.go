package pubsub

import "sync/atomic"

// State is the session's connection state.
type State uint32

// Session states.
const (
	// StateDisconnected means no subscribe stream is active. The connection may
	// still be live, in which case the heartbeat probes it.
	StateDisconnected State = iota
	// StateConnecting is held by the single reconnect sequence in flight.
	StateConnecting
	// StateSubscribed means a Listen call is blocked on the connection.
	StateSubscribed
	// StateFailed is terminal: automatic reconnection gave up.
	StateFailed
	// StateClosed is terminal: Shutdown was called.
	StateClosed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateSubscribed:
		return "subscribed"
	case StateFailed:
		return "failed"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// stateManager handles atomic state transitions.
type stateManager struct {
	state atomic.Uint32
}

func newStateManager() *stateManager {
	sm := &stateManager{}
	sm.state.Store(uint32(StateDisconnected))
	return sm
}

func (sm *stateManager) get() State {
	return State(sm.state.Load())
}

// force stores s unconditionally.
func (sm *stateManager) force(s State) {
	sm.state.Store(uint32(s))
}

// transition moves from one state to another. Returns true if successful.
func (sm *stateManager) transition(from, to State) bool {
	return sm.state.CompareAndSwap(uint32(from), uint32(to))
}

// transitionFrom moves to `to` from any of the given states.
func (sm *stateManager) transitionFrom(to State, from ...State) bool {
	for _, f := range from {
		if sm.transition(f, to) {
			return true
		}
	}
	return false
}
