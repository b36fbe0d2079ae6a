package narrate

import "context"

// Engine synthesizes speech for one sentence at a time. Synthesize returns a
// finite stream of PCM sample buffers in emission order; implementations must
// close the channel once the request is complete and stop sending promptly
// when ctx is canceled. A synthesis that cannot start returns a nil channel
// and an error.
type Engine interface {
	Synthesize(ctx context.Context, text, voice string, speed float64) (<-chan []byte, error)
}

// Device plays raw PCM audio. Play blocks until the buffer has been rendered
// to the end or the device is stopped, which is what paces the consumer to
// real time. Pause halts output immediately and keeps the position; Resume
// continues from it. Stop abandons whatever is queued and unblocks a pending
// Play.
type Device interface {
	Play(samples []byte) error
	Pause()
	Resume()
	Stop()
	Playing() bool
}
