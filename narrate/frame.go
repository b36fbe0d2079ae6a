package narrate

// Frame is one buffer of synthesized PCM tagged with the chunk it voices.
// Frames travel from the producer to the consumer over the session's bounded
// channel, in strict generation order.
//
// The zero Frame is the sentinel: the end-of-stream marker enqueued exactly
// once per session, on every exit path.
type Frame struct {
	ChunkID string
	Samples []byte
}

// Sentinel reports whether the frame marks end-of-stream.
func (f Frame) Sentinel() bool {
	return f.ChunkID == ""
}
