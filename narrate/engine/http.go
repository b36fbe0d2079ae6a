package engine

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/hajimehoshi/go-mp3"
	"golang.org/x/time/rate"

	"github.com/aperture-reader/aperture/narrate/cache"
)

const (
	defaultHTTPTimeout       = 30 * time.Second
	defaultRequestsPerMinute = 60
	defaultSampleRate        = 22050
)

// HTTPConfig configures the remote synthesis engine.
type HTTPConfig struct {
	// URL is the synthesis endpoint.
	URL string
	// APIKey is sent as the X-Api-Key header when set.
	APIKey string
	// SampleRate is the PCM rate requested from the service.
	SampleRate int
	// Timeout bounds one request including its body.
	Timeout time.Duration
	// RequestsPerMinute throttles calls client-side so a fast reader
	// cannot hammer the service.
	RequestsPerMinute int
}

// HTTP synthesizes speech by posting sentences to a service and streaming
// the audio response. Raw PCM bodies pass straight through; MP3 bodies are
// decoded and downmixed to mono.
type HTTP struct {
	cfg      HTTPConfig
	language string
	store    *cache.Store
	client   *http.Client
	limiter  *rate.Limiter
}

// NewHTTP builds an HTTP engine for one language.
func NewHTTP(cfg HTTPConfig, language string, store *cache.Store) (*HTTP, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("http engine: endpoint URL is required")
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = defaultSampleRate
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultHTTPTimeout
	}
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = defaultRequestsPerMinute
	}
	return &HTTP{
		cfg:      cfg,
		language: language,
		store:    store,
		client:   &http.Client{Timeout: cfg.Timeout},
		limiter:  rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), 1),
	}, nil
}

// Name identifies the engine in logs and cache keys.
func (e *HTTP) Name() string { return "http" }

// Available reports whether the endpoint URL is usable.
func (e *HTTP) Available() error {
	u, err := url.Parse(e.cfg.URL)
	if err != nil {
		return fmt.Errorf("http engine URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("http engine URL: unsupported scheme %q", u.Scheme)
	}
	return nil
}

type synthesisRequest struct {
	Text       string  `json:"text"`
	Voice      string  `json:"voice"`
	Speed      float64 `json:"speed"`
	SampleRate int     `json:"sample_rate"`
}

// Synthesize posts one sentence and streams the response body in
// pipeline-sized segments.
func (e *HTTP) Synthesize(ctx context.Context, text, voice string, speed float64) (<-chan []byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}

	key := cache.Key(e.Name(), voice, e.language, speed, text)
	if e.store != nil {
		if audio, ok := e.store.Get(key); ok {
			return replay(ctx, audio), nil
		}
	}

	if err := e.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit: %w", err)
	}

	payload, err := json.Marshal(synthesisRequest{
		Text:       text,
		Voice:      voice,
		Speed:      speed,
		SampleRate: e.cfg.SampleRate,
	})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.cfg.URL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.cfg.APIKey != "" {
		req.Header.Set("X-Api-Key", e.cfg.APIKey)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("synthesis request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		return nil, fmt.Errorf("synthesis service: %s: %s", resp.Status, strings.TrimSpace(string(msg)))
	}

	var src io.Reader = resp.Body
	if strings.Contains(resp.Header.Get("Content-Type"), "audio/mpeg") {
		dec, err := mp3.NewDecoder(resp.Body)
		if err != nil {
			resp.Body.Close()
			return nil, fmt.Errorf("decode mp3: %w", err)
		}
		if dec.SampleRate() != e.cfg.SampleRate {
			// Played at the device rate anyway; the pitch shift is on
			// the service for ignoring sample_rate.
			log.Warn("mp3 sample rate differs", "got", dec.SampleRate(), "want", e.cfg.SampleRate)
		}
		src = &downmixReader{src: dec}
	}

	segments := make(chan []byte)
	go func() {
		defer close(segments)
		defer resp.Body.Close()

		var record bytes.Buffer
		total := 0
		buf := make([]byte, segmentSize)
		for {
			n, readErr := src.Read(buf)
			if n > 0 {
				total += n
				seg := append([]byte(nil), buf[:n]...)
				if e.store != nil {
					record.Write(seg)
				}
				select {
				case segments <- seg:
				case <-ctx.Done():
					return
				}
			}
			if readErr == io.EOF {
				break
			}
			if readErr != nil {
				if ctx.Err() == nil {
					log.Error("synthesis stream broke", "voice", voice, "err", readErr)
				}
				return
			}
		}

		if total == 0 {
			log.Error("synthesis service sent no audio", "voice", voice)
			return
		}
		if e.store != nil {
			if err := e.store.Put(key, record.Bytes()); err != nil {
				log.Debug("audio cache write failed", "err", err)
			}
		}
	}()

	return segments, nil
}

// downmixReader converts 16-bit little-endian stereo PCM to mono by
// averaging the two channels. go-mp3 always decodes to stereo.
type downmixReader struct {
	src     io.Reader
	scratch []byte
}

func (r *downmixReader) Read(p []byte) (int, error) {
	want := (len(p) / 2) * 4
	if want == 0 {
		return 0, nil
	}
	if cap(r.scratch) < want {
		r.scratch = make([]byte, want)
	}
	buf := r.scratch[:want]

	n, err := io.ReadFull(r.src, buf)
	if err == io.ErrUnexpectedEOF {
		err = io.EOF
	}
	n -= n % 4

	for i := 0; i < n; i += 4 {
		left := int16(binary.LittleEndian.Uint16(buf[i:]))
		right := int16(binary.LittleEndian.Uint16(buf[i+2:]))
		mono := int16((int32(left) + int32(right)) / 2)
		binary.LittleEndian.PutUint16(p[i/2:], uint16(mono))
	}
	return n / 2, err
}
