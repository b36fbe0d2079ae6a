package narrate

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aperture-reader/aperture/narrate/sentence"
)

// session owns the moving parts of one narration run: the chunk list, the
// bounded frame queue and the lifetime of the two goroutines working it. A
// new session is created per Start and discarded once the consumer reports
// finished; nothing in it is reused.
type session struct {
	chunks []sentence.Chunk
	voice  Voice
	speed  float64
	engine Engine

	// frames carries synthesized audio from producer to consumer. Its
	// capacity is the pipeline's entire look-ahead; a full queue blocks
	// the producer.
	frames chan Frame

	// running and paused are written by the controller only. The loops
	// read them at iteration boundaries.
	running atomic.Bool
	paused  atomic.Bool

	// sentinelOnce holds the one-sentinel-per-session invariant across
	// the producer's exit paths and a forced stop.
	sentinelOnce sync.Once

	// producerDone and consumerDone close when the respective goroutine
	// returns. The consumer watches producerDone to detect a dead
	// producer; Stop waits on both for full teardown.
	producerDone chan struct{}
	consumerDone chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
}

func newSession(chunks []sentence.Chunk, voice Voice, speed float64, engine Engine, depth int) *session {
	ctx, cancel := context.WithCancel(context.Background())
	s := &session{
		chunks:       chunks,
		voice:        voice,
		speed:        speed,
		engine:       engine,
		frames:       make(chan Frame, depth),
		producerDone: make(chan struct{}),
		consumerDone: make(chan struct{}),
		ctx:          ctx,
		cancel:       cancel,
	}
	s.running.Store(true)
	return s
}

// send enqueues one frame, blocking while the queue is full. It reports
// false once the session has been canceled.
func (s *session) send(f Frame) bool {
	select {
	case s.frames <- f:
		return true
	case <-s.ctx.Done():
		return false
	}
}

// pushSentinel enqueues the end-of-stream marker, at most once per session.
// Callers on the stop path drain the queue first, which leaves room for the
// marker plus one in-flight producer frame; queue depth 2 is the floor for
// that reason.
func (s *session) pushSentinel() {
	s.sentinelOnce.Do(func() {
		s.frames <- Frame{}
	})
}

// drainFrames discards queued frames so a blocked producer can finish its
// send and the forced sentinel has room. A sentinel already in the queue is
// put back for the consumer.
func (s *session) drainFrames() {
	sawSentinel := false
	for {
		select {
		case f := <-s.frames:
			if f.Sentinel() {
				sawSentinel = true
			}
		default:
			if !sawSentinel {
				return
			}
			select {
			case s.frames <- Frame{}:
				return
			default:
				// a lagging producer send took the slot; keep draining
			}
		}
	}
}

// waitWhilePaused blocks while the session is paused, polling at a fixed
// interval so a stop issued mid-pause is noticed within one tick. It reports
// whether the session is still running afterwards.
func (s *session) waitWhilePaused() bool {
	for s.paused.Load() {
		if !s.running.Load() {
			return false
		}
		time.Sleep(pausePollInterval)
	}
	return s.running.Load()
}
