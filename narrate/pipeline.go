package narrate

import (
	"fmt"
	"time"

	"github.com/charmbracelet/log"
)

const (
	// dequeueTimeout bounds how long the consumer waits for a frame
	// before checking whether the producer is still alive.
	dequeueTimeout = time.Second

	// pausePollInterval is how often a paused consumer rechecks the
	// session flags.
	pausePollInterval = 50 * time.Millisecond
)

// produce walks the chunk list in order, synthesizing each one and pushing
// the resulting frames onto the session queue. It runs on its own goroutine.
// The sentinel goes out on every exit path, exactly once, before the done
// channel closes.
func (c *Controller) produce(s *session) {
	defer close(s.producerDone)
	defer s.pushSentinel()
	defer func() {
		if r := recover(); r != nil {
			c.reportError(s, fmt.Errorf("engine panic: %v", r))
		}
	}()

	for _, chunk := range s.chunks {
		if !s.running.Load() {
			return
		}

		segments, err := s.engine.Synthesize(s.ctx, chunk.Text, s.voice.Key, s.speed)
		if err != nil {
			if s.ctx.Err() == nil {
				c.reportError(s, fmt.Errorf("synthesize %s: %w", chunk.ID, err))
			}
			return
		}

		for samples := range segments {
			if !s.running.Load() {
				return
			}
			if !s.send(Frame{ChunkID: chunk.ID, Samples: samples}) {
				return
			}
		}
	}
}

// consume dequeues frames and plays them, announcing each new chunk id once
// for highlighting. It runs on its own goroutine, paced by the blocking
// device: a frame's playback completes before the next dequeue. The loop
// ends on the sentinel, on a dead producer, or on a device failure; the
// session is then finished exactly once.
func (c *Controller) consume(s *session) {
	defer close(s.consumerDone)

	lastID := ""
loop:
	for {
		select {
		case f := <-s.frames:
			if f.Sentinel() {
				break loop
			}
			if !s.running.Load() {
				continue
			}
			if f.ChunkID != lastID {
				lastID = f.ChunkID
				c.notifyHighlight(f.ChunkID)
			}
			if !s.waitWhilePaused() {
				continue
			}
			if err := c.device.Play(f.Samples); err != nil {
				c.reportError(s, fmt.Errorf("play %s: %w", f.ChunkID, err))
				break loop
			}

		case <-time.After(dequeueTimeout):
			select {
			case <-s.producerDone:
				// producer gone with nothing queued: the stream
				// is over even if the sentinel went missing
				log.Debug("narrate: consumer timed out on dead producer")
				break loop
			default:
			}
		}
	}

	c.notifyHighlight("")
	c.finishSession(s)
}
