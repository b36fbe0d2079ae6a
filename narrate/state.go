package narrate

// State is the controller's lifecycle state.
type State int

const (
	// StateIdle indicates no session is in flight.
	StateIdle State = iota
	// StateRunning indicates a session is synthesizing and playing.
	StateRunning
	// StatePaused indicates playback is paused; synthesis may keep
	// filling the frame queue until it blocks on capacity.
	StatePaused
	// StateStopping indicates teardown is in progress.
	StateStopping
	// StateError indicates the session failed and is being torn down.
	StateError
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StatePaused:
		return "paused"
	case StateStopping:
		return "stopping"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Active reports whether a session is in flight in any form.
func (s State) Active() bool {
	return s != StateIdle
}

// stateMachine validates controller transitions. It is not safe for
// concurrent use; the controller serializes access behind its mutex.
type stateMachine struct {
	current     State
	transitions map[State][]State
	onEnter     map[State]func()
	onExit      map[State]func()
}

// newStateMachine creates a state machine with the valid transitions.
func newStateMachine() *stateMachine {
	return &stateMachine{
		current: StateIdle,
		transitions: map[State][]State{
			StateIdle:     {StateRunning},
			StateRunning:  {StatePaused, StateStopping, StateError},
			StatePaused:   {StateRunning, StateStopping, StateError},
			StateStopping: {StateIdle},
			StateError:    {StateStopping},
		},
		onEnter: make(map[State]func()),
		onExit:  make(map[State]func()),
	}
}

// Transition attempts to move to the specified state. It returns false and
// changes nothing when the move is not allowed from the current state.
func (sm *stateMachine) Transition(to State) bool {
	valid := false
	for _, state := range sm.transitions[sm.current] {
		if state == to {
			valid = true
			break
		}
	}
	if !valid {
		return false
	}

	if exitFn, ok := sm.onExit[sm.current]; ok && exitFn != nil {
		exitFn()
	}

	sm.current = to

	if enterFn, ok := sm.onEnter[to]; ok && enterFn != nil {
		enterFn()
	}

	return true
}

// Current returns the current state.
func (sm *stateMachine) Current() State {
	return sm.current
}

// OnEnter registers a callback for entering a state.
func (sm *stateMachine) OnEnter(state State, fn func()) {
	sm.onEnter[state] = fn
}

// OnExit registers a callback for exiting a state.
func (sm *stateMachine) OnExit(state State, fn func()) {
	sm.onExit[state] = fn
}
