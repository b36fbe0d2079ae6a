package audio

import (
	"sync"
	"time"
)

// MockDevice implements the narration device contract in memory for tests.
// It records every call, can take a fixed time per buffer to simulate real
// playback, and can fail on demand. Stop unblocks an in-flight Play just
// like the real device.
type MockDevice struct {
	mu        sync.Mutex
	played    [][]byte
	pauses    int
	resumes   int
	stops     int
	playing   bool
	paused    bool
	playErr   error
	playTime  time.Duration
	interrupt chan struct{}
}

// NewMockDevice returns a device that plays instantly and never fails.
func NewMockDevice() *MockDevice {
	return &MockDevice{interrupt: make(chan struct{})}
}

// SetPlayTime makes each Play take d before returning, unless stopped.
func (d *MockDevice) SetPlayTime(t time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.playTime = t
}

// SetPlayError makes every subsequent Play return err.
func (d *MockDevice) SetPlayError(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.playErr = err
}

// Play records the buffer, then waits out the configured play time or an
// interrupting Stop.
func (d *MockDevice) Play(samples []byte) error {
	d.mu.Lock()
	if d.playErr != nil {
		err := d.playErr
		d.mu.Unlock()
		return err
	}
	d.played = append(d.played, append([]byte(nil), samples...))
	d.playing = true
	wait := d.playTime
	stop := d.interrupt
	d.mu.Unlock()

	if wait > 0 {
		select {
		case <-time.After(wait):
		case <-stop:
		}
	}

	d.mu.Lock()
	d.playing = false
	d.mu.Unlock()
	return nil
}

func (d *MockDevice) Pause() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pauses++
	d.paused = true
}

func (d *MockDevice) Resume() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.resumes++
	d.paused = false
}

func (d *MockDevice) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stops++
	d.paused = false
	close(d.interrupt)
	d.interrupt = make(chan struct{})
}

func (d *MockDevice) Playing() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.playing && !d.paused
}

// Played returns copies of every buffer handed to Play, in order.
func (d *MockDevice) Played() [][]byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([][]byte, len(d.played))
	for i, b := range d.played {
		out[i] = append([]byte(nil), b...)
	}
	return out
}

// PlayCalls returns how many buffers Play accepted.
func (d *MockDevice) PlayCalls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.played)
}

// PauseCalls returns how many times Pause ran.
func (d *MockDevice) PauseCalls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pauses
}

// ResumeCalls returns how many times Resume ran.
func (d *MockDevice) ResumeCalls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.resumes
}

// StopCalls returns how many times Stop ran.
func (d *MockDevice) StopCalls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stops
}
