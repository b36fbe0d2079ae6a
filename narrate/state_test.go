package narrate

import "testing"

func TestStateString(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateIdle, "idle"},
		{StateRunning, "running"},
		{StatePaused, "paused"},
		{StateStopping, "stopping"},
		{StateError, "error"},
		{State(99), "unknown"},
	}

	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %v, want %v", tt.state, got, tt.want)
		}
	}
}

func TestStateActive(t *testing.T) {
	tests := []struct {
		state State
		want  bool
	}{
		{StateIdle, false},
		{StateRunning, true},
		{StatePaused, true},
		{StateStopping, true},
		{StateError, true},
	}

	for _, tt := range tests {
		if got := tt.state.Active(); got != tt.want {
			t.Errorf("%v.Active() = %v, want %v", tt.state, got, tt.want)
		}
	}
}

func TestStateMachineTransitions(t *testing.T) {
	tests := []struct {
		name string
		from State
		to   State
		want bool
	}{
		{"idle to running", StateIdle, StateRunning, true},
		{"idle to paused", StateIdle, StatePaused, false},
		{"idle to stopping", StateIdle, StateStopping, false},
		{"idle to error", StateIdle, StateError, false},
		{"running to paused", StateRunning, StatePaused, true},
		{"running to stopping", StateRunning, StateStopping, true},
		{"running to error", StateRunning, StateError, true},
		{"running to idle", StateRunning, StateIdle, false},
		{"paused to running", StatePaused, StateRunning, true},
		{"paused to stopping", StatePaused, StateStopping, true},
		{"paused to error", StatePaused, StateError, true},
		{"paused to idle", StatePaused, StateIdle, false},
		{"stopping to idle", StateStopping, StateIdle, true},
		{"stopping to running", StateStopping, StateRunning, false},
		{"stopping to error", StateStopping, StateError, false},
		{"error to stopping", StateError, StateStopping, true},
		{"error to running", StateError, StateRunning, false},
		{"error to idle", StateError, StateIdle, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sm := newStateMachine()
			sm.current = tt.from

			if got := sm.Transition(tt.to); got != tt.want {
				t.Errorf("Transition(%v) from %v = %v, want %v", tt.to, tt.from, got, tt.want)
			}

			want := tt.to
			if !tt.want {
				want = tt.from
			}
			if got := sm.Current(); got != want {
				t.Errorf("Current() = %v, want %v", got, want)
			}
		})
	}
}

func TestStateMachineCallbacks(t *testing.T) {
	sm := newStateMachine()

	var order []string
	sm.OnExit(StateIdle, func() { order = append(order, "exit idle") })
	sm.OnEnter(StateRunning, func() { order = append(order, "enter running") })

	if !sm.Transition(StateRunning) {
		t.Fatal("Transition(StateRunning) = false, want true")
	}

	want := []string{"exit idle", "enter running"}
	if len(order) != len(want) {
		t.Fatalf("callbacks = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("callbacks = %v, want %v", order, want)
		}
	}
}

func TestStateMachineRejectedTransitionFiresNoCallbacks(t *testing.T) {
	sm := newStateMachine()

	fired := false
	sm.OnExit(StateIdle, func() { fired = true })
	sm.OnEnter(StatePaused, func() { fired = true })

	if sm.Transition(StatePaused) {
		t.Fatal("Transition(StatePaused) from idle = true, want false")
	}
	if fired {
		t.Error("callbacks fired on rejected transition")
	}
}
