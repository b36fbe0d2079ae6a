package engine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aperture-reader/aperture/narrate/cache"
)

// fakePiper stands in for the real binary: it drains stdin and prints a
// recognizable byte string.
const fakePiper = `#!/bin/sh
cat > /dev/null
printf 'PCM-0123456789-PCM'
`

const brokenPiper = `#!/bin/sh
exit 1
`

func writeScript(t *testing.T, script string) string {
	t.Helper()
	bin := filepath.Join(t.TempDir(), "piper")
	if err := os.WriteFile(bin, []byte(script), 0o755); err != nil { //nolint:gosec
		t.Fatalf("write fake piper: %v", err)
	}
	return bin
}

func writeModels(t *testing.T, voices ...string) string {
	t.Helper()
	dir := t.TempDir()
	for _, v := range voices {
		for _, name := range []string{v + ".onnx", v + ".onnx.json"} {
			if err := os.WriteFile(filepath.Join(dir, name), []byte("model"), 0o600); err != nil {
				t.Fatalf("write model %s: %v", name, err)
			}
		}
	}
	return dir
}

func drain(t *testing.T, ch <-chan []byte) []byte {
	t.Helper()
	var out []byte
	timeout := time.After(5 * time.Second)
	for {
		select {
		case seg, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, seg...)
		case <-timeout:
			t.Fatal("timed out draining segment stream")
		}
	}
}

func TestNewPiperRequiresModelDir(t *testing.T) {
	if _, err := NewPiper(PiperConfig{Binary: "piper"}, "en-US", nil); err == nil {
		t.Fatal("Expected an error for a missing model directory")
	}
}

func TestPiperSynthesizeStreamsProcessOutput(t *testing.T) {
	e, err := NewPiper(PiperConfig{
		Binary:   writeScript(t, fakePiper),
		ModelDir: writeModels(t, "en-amy"),
	}, "en-US", nil)
	if err != nil {
		t.Fatalf("NewPiper() error = %v", err)
	}

	ch, err := e.Synthesize(context.Background(), "Hello there.", "en-amy", 1.0)
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}
	got := string(drain(t, ch))
	if got != "PCM-0123456789-PCM" {
		t.Errorf("Expected process output %q, got %q", "PCM-0123456789-PCM", got)
	}
}

func TestPiperPassesArgsAndText(t *testing.T) {
	dir := t.TempDir()
	argsFile := filepath.Join(dir, "args")
	textFile := filepath.Join(dir, "text")
	script := "#!/bin/sh\n" +
		"printf '%s' \"$*\" > " + argsFile + "\n" +
		"cat > " + textFile + "\n" +
		"printf 'x'\n"

	models := writeModels(t, "en-amy")
	e, err := NewPiper(PiperConfig{
		Binary:   writeScript(t, script),
		ModelDir: models,
	}, "en-US", nil)
	if err != nil {
		t.Fatalf("NewPiper() error = %v", err)
	}

	ch, err := e.Synthesize(context.Background(), "Read me aloud.", "en-amy", 2.0)
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}
	drain(t, ch)

	args, err := os.ReadFile(argsFile) //nolint:gosec
	if err != nil {
		t.Fatalf("read args: %v", err)
	}
	model := filepath.Join(models, "en-amy.onnx")
	for _, want := range []string{
		"--model " + model,
		"--config " + model + ".json",
		"--output-raw",
		"--length-scale 0.50",
	} {
		if !strings.Contains(string(args), want) {
			t.Errorf("Expected args to contain %q, got %q", want, string(args))
		}
	}

	text, err := os.ReadFile(textFile) //nolint:gosec
	if err != nil {
		t.Fatalf("read text: %v", err)
	}
	if string(text) != "Read me aloud." {
		t.Errorf("Expected stdin text %q, got %q", "Read me aloud.", string(text))
	}
}

func TestPiperSynthesizeEmptyText(t *testing.T) {
	e, err := NewPiper(PiperConfig{
		Binary:   writeScript(t, fakePiper),
		ModelDir: writeModels(t, "en-amy"),
	}, "en-US", nil)
	if err != nil {
		t.Fatalf("NewPiper() error = %v", err)
	}

	ch, err := e.Synthesize(context.Background(), "   ", "en-amy", 1.0)
	if !errors.Is(err, ErrEmptyText) {
		t.Errorf("Expected ErrEmptyText, got %v", err)
	}
	if ch != nil {
		t.Error("Expected a nil channel on error")
	}
}

func TestPiperSynthesizeMissingModel(t *testing.T) {
	e, err := NewPiper(PiperConfig{
		Binary:   writeScript(t, fakePiper),
		ModelDir: writeModels(t, "en-amy"),
	}, "en-US", nil)
	if err != nil {
		t.Fatalf("NewPiper() error = %v", err)
	}

	ch, err := e.Synthesize(context.Background(), "Hello.", "en-nope", 1.0)
	if err == nil {
		t.Fatal("Expected an error for a voice with no model")
	}
	if !strings.Contains(err.Error(), "en-nope") {
		t.Errorf("Expected the error to name the voice, got %v", err)
	}
	if ch != nil {
		t.Error("Expected a nil channel on error")
	}
}

func TestPiperAvailable(t *testing.T) {
	bin := writeScript(t, fakePiper)
	models := writeModels(t, "en-amy")

	e, err := NewPiper(PiperConfig{Binary: bin, ModelDir: models}, "en-US", nil)
	if err != nil {
		t.Fatalf("NewPiper() error = %v", err)
	}
	if err := e.Available(); err != nil {
		t.Errorf("Available() error = %v", err)
	}

	e, err = NewPiper(PiperConfig{Binary: filepath.Join(t.TempDir(), "nope"), ModelDir: models}, "en-US", nil)
	if err != nil {
		t.Fatalf("NewPiper() error = %v", err)
	}
	if err := e.Available(); err == nil {
		t.Error("Expected an error for a missing binary")
	}

	e, err = NewPiper(PiperConfig{Binary: bin, ModelDir: filepath.Join(t.TempDir(), "nope")}, "en-US", nil)
	if err != nil {
		t.Fatalf("NewPiper() error = %v", err)
	}
	if err := e.Available(); err == nil {
		t.Error("Expected an error for a missing model directory")
	}
}

func TestPiperCancelEndsStream(t *testing.T) {
	// The script stalls long enough that only cancellation can end it. The
	// sleep replaces the shell with its stdout pointed away from the pipe,
	// so killing it releases our reader immediately.
	script := "#!/bin/sh\ncat > /dev/null\nexec sleep 10 > /dev/null\n"
	e, err := NewPiper(PiperConfig{
		Binary:   writeScript(t, script),
		ModelDir: writeModels(t, "en-amy"),
	}, "en-US", nil)
	if err != nil {
		t.Fatalf("NewPiper() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	ch, err := e.Synthesize(ctx, "Hello.", "en-amy", 1.0)
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}
	cancel()

	start := time.Now()
	drain(t, ch)
	if elapsed := time.Since(start); elapsed > 3*time.Second {
		t.Errorf("Expected a prompt shutdown after cancel, took %v", elapsed)
	}
}

func TestPiperServesRepeatsFromCache(t *testing.T) {
	store, err := cache.NewStore(t.TempDir(), cache.DefaultBudget)
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	defer store.Close() //nolint:errcheck

	bin := writeScript(t, fakePiper)
	e, err := NewPiper(PiperConfig{
		Binary:   bin,
		ModelDir: writeModels(t, "en-amy"),
	}, "en-US", store)
	if err != nil {
		t.Fatalf("NewPiper() error = %v", err)
	}

	ch, err := e.Synthesize(context.Background(), "Hello there.", "en-amy", 1.0)
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}
	first := drain(t, ch)
	if store.Len() != 1 {
		t.Fatalf("Expected 1 cache entry after synthesis, got %d", store.Len())
	}

	// Break the binary; a repeat must come from the cache alone.
	if err := os.WriteFile(bin, []byte(brokenPiper), 0o755); err != nil { //nolint:gosec
		t.Fatalf("rewrite fake piper: %v", err)
	}
	ch, err = e.Synthesize(context.Background(), "Hello there.", "en-amy", 1.0)
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}
	second := drain(t, ch)
	if string(second) != string(first) {
		t.Errorf("Expected cached audio %q, got %q", first, second)
	}
}
