// Package mock provides a synthesis engine for tests.
package mock

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Call records the arguments of one Synthesize call.
type Call struct {
	Text  string
	Voice string
	Speed float64
}

// Engine fakes synthesis. Each call emits a fixed number of deterministic
// byte segments derived from the input text, so tests can trace which
// sentence produced which buffer. Latency and failures are injectable. Safe
// for concurrent use.
type Engine struct {
	mu       sync.Mutex
	delay    time.Duration
	segments int
	err      error
	failAt   int // 1-based call the injected error fires on; 0 = every call
	calls    []Call
}

// New returns an engine that answers instantly with two segments per call.
func New() *Engine {
	return &Engine{segments: 2}
}

// SetDelay adds latency before each call's first segment.
func (e *Engine) SetDelay(d time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.delay = d
}

// SetSegments sets how many segments each call emits.
func (e *Engine) SetSegments(n int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.segments = n
}

// SetFailure makes every call fail with err.
func (e *Engine) SetFailure(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.err = err
	e.failAt = 0
}

// FailAt makes only the nth call (1-based) fail with err.
func (e *Engine) FailAt(n int, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.err = err
	e.failAt = n
}

// ClearFailure resets the engine to normal operation.
func (e *Engine) ClearFailure() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.err = nil
	e.failAt = 0
}

// CallCount returns the number of Synthesize calls so far.
func (e *Engine) CallCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.calls)
}

// Calls returns a copy of every recorded call, in order.
func (e *Engine) Calls() []Call {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Call(nil), e.calls...)
}

// Segment returns the bytes the engine emits for segment i of text.
func Segment(text string, i int) []byte {
	return []byte(fmt.Sprintf("%s|%d", text, i))
}

// Synthesize emits the configured number of segments for text and closes
// the channel, honoring ctx cancellation between segments.
func (e *Engine) Synthesize(ctx context.Context, text, voice string, speed float64) (<-chan []byte, error) {
	e.mu.Lock()
	e.calls = append(e.calls, Call{Text: text, Voice: voice, Speed: speed})
	call := len(e.calls)
	delay := e.delay
	segments := e.segments
	err := e.err
	failAt := e.failAt
	e.mu.Unlock()

	if err != nil && (failAt == 0 || failAt == call) {
		return nil, err
	}

	ch := make(chan []byte)
	go func() {
		defer close(ch)
		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return
			}
		}
		for i := 0; i < segments; i++ {
			select {
			case ch <- Segment(text, i):
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}
