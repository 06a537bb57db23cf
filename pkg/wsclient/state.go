package wsclient

import (
	"sync"

	"github.com/foxzool/open-lark-sub013/internal/metrics"
)

// State represents the lifecycle of one connection
type State int

const (
	StateConnecting State = iota
	StateOpen
	StateClosing
	StateClosed
	StateErrored
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	case StateErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// IsFinal returns true if the session can no longer be used
func (s State) IsFinal() bool {
	return s == StateClosed || s == StateErrored
}

// ValidTransitions defines the allowed state transitions
var ValidTransitions = map[State][]State{
	StateConnecting: {StateOpen, StateErrored, StateClosed}, // handshake failed or canceled
	StateOpen:       {StateClosing, StateErrored},
	StateClosing:    {StateClosed},
	StateClosed:     {}, // Terminal state
	StateErrored:    {}, // Terminal state
}

// CanTransitionTo checks if a transition from current state to target state is valid
func (s State) CanTransitionTo(target State) bool {
	validTargets, ok := ValidTransitions[s]
	if !ok {
		return false
	}
	for _, v := range validTargets {
		if v == target {
			return true
		}
	}
	return false
}

// stateMachine guards the session state; readers may call Current from any
// goroutine.
type stateMachine struct {
	mu    sync.RWMutex
	state State
}

func newStateMachine() *stateMachine {
	metrics.SetSessionState(float64(StateConnecting))
	return &stateMachine{state: StateConnecting}
}

func (sm *stateMachine) Current() State {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.state
}

// Transition attempts to move to target
func (sm *stateMachine) Transition(target State) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if !sm.state.CanTransitionTo(target) {
		return ErrInvalidTransition
	}
	sm.state = target
	metrics.SetSessionState(float64(target))
	return nil
}
