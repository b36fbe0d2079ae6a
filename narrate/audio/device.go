// Package audio renders synthesized PCM through the machine's sound device.
package audio

import (
	"bytes"
	"fmt"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
)

// pollInterval is how often a blocked Play rechecks the player.
const pollInterval = 10 * time.Millisecond

// Device plays raw 16-bit little-endian mono PCM through oto. Play blocks
// until the buffer has been heard to the end or Stop cuts it off, which is
// what paces narration to real time. Create one Device per process; it owns
// the oto context, which cannot be reopened.
type Device struct {
	ctx        *oto.Context
	sampleRate int

	mu     sync.Mutex
	player *oto.Player
	data   []byte // keeps the buffer alive while oto reads it
	paused bool
	cut    bool
}

// NewDevice opens the audio device at the given sample rate.
func NewDevice(sampleRate int) (*Device, error) {
	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: 1,
		Format:       oto.FormatSignedInt16LE,
	})
	if err != nil {
		return nil, fmt.Errorf("open audio device: %w", err)
	}
	<-ready
	return &Device{ctx: ctx, sampleRate: sampleRate}, nil
}

// SampleRate returns the rate the device was opened at.
func (d *Device) SampleRate() int {
	return d.sampleRate
}

// Play renders one PCM buffer and returns once it has played to the end or
// Stop abandoned it. A Play issued while the device is paused waits for
// Resume before any sound comes out.
func (d *Device) Play(samples []byte) error {
	if len(samples) == 0 {
		return nil
	}

	d.mu.Lock()
	d.cut = false
	d.data = samples
	p := d.ctx.NewPlayer(bytes.NewReader(samples))
	d.player = p
	if !d.paused {
		p.Play()
	}
	d.mu.Unlock()

	for {
		time.Sleep(pollInterval)
		d.mu.Lock()
		done := d.cut || (!d.paused && !p.IsPlaying())
		if done {
			d.closePlayerLocked()
		}
		d.mu.Unlock()
		if done {
			return nil
		}
	}
}

// Pause halts output immediately, mid-buffer. A blocked Play stays blocked
// until Resume or Stop.
func (d *Device) Pause() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.paused = true
	if d.player != nil {
		d.player.Pause()
	}
}

// Resume continues output from where Pause halted it.
func (d *Device) Resume() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.paused = false
	if d.player != nil {
		d.player.Play()
	}
}

// Stop abandons the current buffer and unblocks a pending Play.
func (d *Device) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cut = true
	d.paused = false
	if d.player != nil {
		d.player.Pause()
	}
}

// Playing reports whether sound is coming out right now.
func (d *Device) Playing() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.player != nil && d.player.IsPlaying()
}

func (d *Device) closePlayerLocked() {
	if d.player != nil {
		_ = d.player.Close()
		d.player = nil
	}
	d.data = nil
}

// Duration returns how long a PCM buffer lasts at the device's sample rate.
func (d *Device) Duration(samples []byte) time.Duration {
	return PCMDuration(samples, d.sampleRate)
}

// PCMDuration returns the play time of 16-bit mono PCM at a sample rate.
func PCMDuration(samples []byte, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	n := len(samples) / 2
	return time.Duration(n) * time.Second / time.Duration(sampleRate)
}
