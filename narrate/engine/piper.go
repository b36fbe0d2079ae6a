package engine

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/aperture-reader/aperture/narrate/cache"
)

const (
	defaultPiperBinary  = "piper"
	defaultPiperTimeout = 30 * time.Second

	// interruptGrace is how long a canceled piper process gets to exit on
	// SIGINT before it is killed.
	interruptGrace = 100 * time.Millisecond

	// maxAudioBytes caps one sentence's output; anything bigger means the
	// process is misbehaving.
	maxAudioBytes = 10 << 20
)

// PiperConfig configures the local piper engine.
type PiperConfig struct {
	// Binary is the piper executable. Defaults to "piper" on PATH.
	Binary string
	// ModelDir holds one <voice>.onnx model (and its .json sidecar) per
	// catalog voice key.
	ModelDir string
	// Timeout bounds one sentence's synthesis.
	Timeout time.Duration
}

// Piper synthesizes speech by running the piper binary once per sentence,
// streaming raw s16le PCM off its stdout. Text goes in on a pre-configured
// stdin so the process can never race us reading it.
type Piper struct {
	cfg      PiperConfig
	language string
	store    *cache.Store
}

// NewPiper builds a piper engine for one language.
func NewPiper(cfg PiperConfig, language string, store *cache.Store) (*Piper, error) {
	if cfg.Binary == "" {
		cfg.Binary = defaultPiperBinary
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultPiperTimeout
	}
	if cfg.ModelDir == "" {
		return nil, fmt.Errorf("piper: model directory is required")
	}
	return &Piper{cfg: cfg, language: language, store: store}, nil
}

// Name identifies the engine in logs and cache keys.
func (e *Piper) Name() string { return "piper" }

// Available reports whether the binary and model directory can be used.
func (e *Piper) Available() error {
	if _, err := exec.LookPath(e.cfg.Binary); err != nil {
		return fmt.Errorf("piper binary: %w", err)
	}
	if _, err := os.Stat(e.cfg.ModelDir); err != nil {
		return fmt.Errorf("piper model directory: %w", err)
	}
	return nil
}

func (e *Piper) modelPath(voice string) string {
	return filepath.Join(e.cfg.ModelDir, voice+".onnx")
}

// Synthesize runs one piper process for the sentence and streams its PCM
// output in pipeline-sized segments. The stream ends early if ctx is
// canceled; the process is interrupted and, failing that, killed.
func (e *Piper) Synthesize(ctx context.Context, text, voice string, speed float64) (<-chan []byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}

	key := cache.Key(e.Name(), voice, e.language, speed, text)
	if e.store != nil {
		if audio, ok := e.store.Get(key); ok {
			return replay(ctx, audio), nil
		}
	}

	model := e.modelPath(voice)
	if _, err := os.Stat(model); err != nil {
		return nil, fmt.Errorf("voice model for %s: %w", voice, err)
	}

	// Piper stretches phoneme lengths, so its scale is the inverse of the
	// playback speed multiplier.
	lengthScale := 1.0 / speed
	args := []string{
		"--model", model,
		"--config", model + ".json",
		"--output-raw",
		"--length-scale", fmt.Sprintf("%.2f", lengthScale),
	}

	ctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)

	cmd := exec.Command(e.cfg.Binary, args...)
	cmd.Stdin = strings.NewReader(text)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("piper stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("start piper: %w", err)
	}

	segments := make(chan []byte)
	go func() {
		defer cancel()
		defer close(segments)

		finished := make(chan struct{})
		defer close(finished)
		go func() {
			select {
			case <-ctx.Done():
				terminate(cmd)
			case <-finished:
			}
		}()

		var record bytes.Buffer
		total := 0
		tooBig := false
		buf := make([]byte, segmentSize)
	stream:
		for {
			n, readErr := stdout.Read(buf)
			if n > 0 {
				total += n
				if total > maxAudioBytes {
					tooBig = true
					terminate(cmd)
					break stream
				}
				seg := append([]byte(nil), buf[:n]...)
				if e.store != nil {
					record.Write(seg)
				}
				select {
				case segments <- seg:
				case <-ctx.Done():
					break stream
				}
			}
			if readErr != nil {
				break stream
			}
		}

		waitErr := cmd.Wait()
		switch {
		case ctx.Err() != nil:
			// canceled or timed out; nothing to report
		case tooBig:
			log.Error("piper output too large", "voice", voice, "bytes", total)
		case waitErr != nil:
			log.Error("piper failed", "voice", voice, "err", waitErr,
				"stderr", strings.TrimSpace(stderr.String()))
		case total == 0:
			log.Error("piper produced no audio", "voice", voice,
				"stderr", strings.TrimSpace(stderr.String()))
		case e.store != nil:
			if err := e.store.Put(key, record.Bytes()); err != nil {
				log.Debug("audio cache write failed", "err", err)
			}
		}
	}()

	return segments, nil
}

// terminate asks the process to stop and kills it if it lingers.
func terminate(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	_ = cmd.Process.Signal(os.Interrupt)
	time.Sleep(interruptGrace)
	_ = cmd.Process.Kill()
}
