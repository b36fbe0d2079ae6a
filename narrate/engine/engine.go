// Package engine provides the speech synthesis backends behind narration:
// a local piper subprocess and a remote HTTP service, both streaming PCM
// segments, plus a factory that builds the engine a config names. Engines
// are created once per catalog language at startup.
package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/aperture-reader/aperture/narrate/cache"
)

// segmentSize is how many PCM bytes go into one pipeline frame.
const segmentSize = 4096

// ErrEmptyText means there was nothing to synthesize.
var ErrEmptyText = errors.New("empty text")

// Synthesizer is what every engine here implements: the pipeline's
// synthesis contract plus identity and a startup health probe.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, voice string, speed float64) (<-chan []byte, error)
	Name() string
	Available() error
}

// Kind selects an engine implementation.
type Kind string

const (
	// KindPiper runs the local piper binary.
	KindPiper Kind = "piper"
	// KindHTTP posts to a synthesis service.
	KindHTTP Kind = "http"
)

// Config selects and configures an engine.
type Config struct {
	Kind  Kind
	Piper PiperConfig
	HTTP  HTTPConfig
}

// New builds the engine cfg names, bound to one language. store may be nil
// to run without an audio cache.
func New(cfg Config, language string, store *cache.Store) (Synthesizer, error) {
	switch cfg.Kind {
	case KindPiper:
		return NewPiper(cfg.Piper, language, store)
	case KindHTTP:
		return NewHTTP(cfg.HTTP, language, store)
	default:
		return nil, fmt.Errorf("unknown engine kind %q", cfg.Kind)
	}
}

// replay streams already-synthesized audio in pipeline-sized segments,
// honoring cancellation the same way a live engine does.
func replay(ctx context.Context, data []byte) <-chan []byte {
	ch := make(chan []byte)
	go func() {
		defer close(ch)
		for off := 0; off < len(data); off += segmentSize {
			end := off + segmentSize
			if end > len(data) {
				end = len(data)
			}
			seg := append([]byte(nil), data[off:end]...)
			select {
			case ch <- seg:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch
}
