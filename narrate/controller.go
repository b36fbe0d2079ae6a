// Package narrate runs chapter narration: a synthesis producer and a
// playback consumer joined by a bounded frame queue, glued together by a
// controller that owns the session lifecycle.
package narrate

import (
	"fmt"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/aperture-reader/aperture/narrate/sentence"
)

const (
	defaultQueueDepth = 10

	// minQueueDepth leaves room for the forced sentinel plus one
	// in-flight producer frame after a stop drains the queue.
	minQueueDepth = 2
)

// Config holds the tunable parts of the pipeline.
type Config struct {
	// QueueDepth is the frame queue capacity: how many frames synthesis
	// may run ahead of playback before it blocks.
	QueueDepth int
}

// DefaultConfig returns the pipeline defaults.
func DefaultConfig() Config {
	return Config{QueueDepth: defaultQueueDepth}
}

// Controller drives narration sessions over a fixed voice catalog, one
// preloaded engine per catalog language, and an exclusive audio device.
// All methods are safe for concurrent use.
//
// Callbacks run on the pipeline's goroutines. They should hand work off
// (post a message, signal a channel) rather than call back into the
// Controller.
type Controller struct {
	catalog *Catalog
	engines map[string]Engine
	device  Device
	cfg     Config

	mu      sync.RWMutex
	machine *stateMachine
	session *session

	onHighlight func(string)
	onFinished  func()
	onError     func(error)
	onState     func(State)
}

// NewController wires a controller from its collaborators. engines maps
// language codes to the engine preloaded for that language; a voice whose
// language has no entry fails at Start with ErrNoEngine.
func NewController(catalog *Catalog, engines map[string]Engine, device Device, cfg Config) *Controller {
	if cfg.QueueDepth == 0 {
		cfg.QueueDepth = defaultQueueDepth
	}
	if cfg.QueueDepth < minQueueDepth {
		cfg.QueueDepth = minQueueDepth
	}
	return &Controller{
		catalog: catalog,
		engines: engines,
		device:  device,
		cfg:     cfg,
		machine: newStateMachine(),
	}
}

// State returns the controller's current lifecycle state.
func (c *Controller) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.machine.Current()
}

// OnHighlight registers the callback fired with each newly-playing chunk id,
// and with the empty string when the session ends and the highlight clears.
func (c *Controller) OnHighlight(fn func(chunkID string)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onHighlight = fn
}

// OnFinished registers the callback fired exactly once per session, after
// both goroutines have exited and the controller is Idle again.
func (c *Controller) OnFinished(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onFinished = fn
}

// OnError registers the callback fired when a session fails. At most one
// error is reported per session.
func (c *Controller) OnError(fn func(error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onError = fn
}

// OnStateChange registers the callback fired after each state transition.
func (c *Controller) OnStateChange(fn func(State)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onState = fn
}

// Start begins narrating chunks with the given voice and speed multiplier.
// It is valid only while Idle. Precondition failures return before any state
// changes or goroutines exist: ErrNothingToRead for an empty chunk list,
// ErrBusy while a session is in flight, ErrUnknownVoice, ErrInvalidSpeed and
// ErrNoEngine for bad arguments.
func (c *Controller) Start(chunks []sentence.Chunk, voiceKey string, speed float64) error {
	c.mu.Lock()

	if c.machine.Current() != StateIdle {
		c.mu.Unlock()
		return ErrBusy
	}
	if len(chunks) == 0 {
		c.mu.Unlock()
		return ErrNothingToRead
	}
	if speed <= 0 {
		c.mu.Unlock()
		return fmt.Errorf("%w: %v", ErrInvalidSpeed, speed)
	}
	voice, ok := c.catalog.Lookup(voiceKey)
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownVoice, voiceKey)
	}
	engine, ok := c.engines[voice.Language]
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNoEngine, voice.Language)
	}

	s := newSession(chunks, voice, speed, engine, c.cfg.QueueDepth)
	c.session = s
	c.machine.Transition(StateRunning)

	go c.produce(s)
	go c.consume(s)
	c.mu.Unlock()

	log.Debug("narration started", "chunks", len(chunks), "voice", voice.Key, "speed", speed)
	c.notifyState(StateRunning)
	return nil
}

// Pause suspends playback, halting the device immediately without waiting
// for the current buffer. Pausing an already paused session is a no-op.
func (c *Controller) Pause() error {
	c.mu.Lock()
	s := c.session
	switch {
	case s == nil:
		c.mu.Unlock()
		return fmt.Errorf("cannot pause while %s", StateIdle)
	case c.machine.Current() == StatePaused:
		c.mu.Unlock()
		return nil
	case !c.machine.Transition(StatePaused):
		state := c.machine.Current()
		c.mu.Unlock()
		return fmt.Errorf("cannot pause while %s", state)
	}
	s.paused.Store(true)
	c.mu.Unlock()

	c.device.Pause()
	c.notifyState(StatePaused)
	return nil
}

// Resume continues playback from where Pause left it. Resuming a running
// session is a no-op.
func (c *Controller) Resume() error {
	c.mu.Lock()
	s := c.session
	switch {
	case s == nil:
		c.mu.Unlock()
		return fmt.Errorf("cannot resume while %s", StateIdle)
	case c.machine.Current() == StateRunning:
		c.mu.Unlock()
		return nil
	case !c.machine.Transition(StateRunning):
		state := c.machine.Current()
		c.mu.Unlock()
		return fmt.Errorf("cannot resume while %s", state)
	}
	s.paused.Store(false)
	c.mu.Unlock()

	c.device.Resume()
	c.notifyState(StateRunning)
	return nil
}

// Stop ends the session: playback halts immediately, queued frames are
// discarded, and both goroutines are awaited so no audio or highlight can
// leak into whatever comes next. It is idempotent, and a no-op while Idle.
func (c *Controller) Stop() {
	c.mu.Lock()
	s := c.session
	if s == nil {
		c.mu.Unlock()
		return
	}
	entered := c.machine.Transition(StateStopping)
	c.stopSessionLocked(s)
	c.mu.Unlock()

	if entered {
		log.Debug("narration stopping")
		c.notifyState(StateStopping)
	}
	<-s.producerDone
	<-s.consumerDone
}

// stopSessionLocked halts a session's machinery: flags first so the loops
// stand down at their next boundary, then the engine context, the device,
// and finally the queue so a blocked producer can exit and the consumer is
// guaranteed to find the sentinel. Safe to call more than once.
func (c *Controller) stopSessionLocked(s *session) {
	s.running.Store(false)
	s.cancel()
	c.device.Stop()
	s.drainFrames()
	s.pushSentinel()
}

// reportError moves a live session into Error and runs the stop path, then
// surfaces the error. Reports against a session that is already stopping or
// finished are dropped, which keeps it to one error per session.
func (c *Controller) reportError(s *session, err error) {
	c.mu.Lock()
	if c.session != s || !c.machine.Transition(StateError) {
		c.mu.Unlock()
		return
	}
	c.stopSessionLocked(s)
	c.mu.Unlock()

	log.Error("narration failed", "err", err)
	c.notifyState(StateError)
	c.notifyError(err)
}

// finishSession is the consumer's last act: tear down whatever is still
// live, transition to Idle and fire finished. A session only finishes
// itself, and only once.
func (c *Controller) finishSession(s *session) {
	c.mu.Lock()
	if c.session != s {
		c.mu.Unlock()
		return
	}
	c.stopSessionLocked(s)

	var passed []State
	if c.machine.Transition(StateStopping) {
		passed = append(passed, StateStopping)
	}
	if c.machine.Transition(StateIdle) {
		passed = append(passed, StateIdle)
	}
	c.session = nil
	c.mu.Unlock()

	for _, st := range passed {
		c.notifyState(st)
	}
	c.notifyFinished()
}

func (c *Controller) notifyHighlight(chunkID string) {
	c.mu.RLock()
	fn := c.onHighlight
	c.mu.RUnlock()
	if fn != nil {
		fn(chunkID)
	}
}

func (c *Controller) notifyFinished() {
	c.mu.RLock()
	fn := c.onFinished
	c.mu.RUnlock()
	if fn != nil {
		fn()
	}
}

func (c *Controller) notifyError(err error) {
	c.mu.RLock()
	fn := c.onError
	c.mu.RUnlock()
	if fn != nil {
		fn(err)
	}
}

func (c *Controller) notifyState(state State) {
	c.mu.RLock()
	fn := c.onState
	c.mu.RUnlock()
	if fn != nil {
		fn(state)
	}
}
