package ui

import (
	"errors"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/aperture-reader/aperture/narrate"
	"github.com/aperture-reader/aperture/narrate/sentence"
)

// Narration events arrive from controller callbacks via Program.Send, so
// they can fire between key presses.
type (
	narrationHighlightMsg string
	narrationFinishedMsg  struct{}
	narrationErrorMsg     struct{ err error }
	narrationStateMsg     narrate.State
)

// Results of narration commands issued from the reader.
type (
	narrationStartedMsg struct{ err error }
	narrationToggledMsg struct{ err error }
	narrationStoppedMsg struct{}
)

var errNoNarration = errors.New("narration unavailable: no audio device")

// narrationStatus is the reader's view of the session, fed by state and
// highlight messages.
type narrationStatus struct {
	state     narrate.State
	voice     narrate.Voice
	speed     float64
	highlight string
	lastError string
}

// note renders the narration fragment of the status bar.
func (n narrationStatus) note() string {
	switch n.state {
	case narrate.StateRunning:
		return fmt.Sprintf("Narrating · %s · %.2gx", n.voice.DisplayName, n.speed)
	case narrate.StatePaused:
		return fmt.Sprintf("Paused · %s · %.2gx", n.voice.DisplayName, n.speed)
	case narrate.StateStopping:
		return "Stopping narration"
	case narrate.StateError:
		if n.lastError != "" {
			return "Narration error: " + n.lastError
		}
		return "Narration error"
	default:
		return ""
	}
}

// COMMANDS

func startNarration(ctrl *narrate.Controller, chunks []sentence.Chunk, voice string, speed float64) tea.Cmd {
	return func() tea.Msg {
		if ctrl == nil {
			return narrationStartedMsg{err: errNoNarration}
		}
		return narrationStartedMsg{err: ctrl.Start(chunks, voice, speed)}
	}
}

func pauseNarration(ctrl *narrate.Controller) tea.Cmd {
	return func() tea.Msg {
		if ctrl == nil {
			return narrationToggledMsg{err: errNoNarration}
		}
		return narrationToggledMsg{err: ctrl.Pause()}
	}
}

func resumeNarration(ctrl *narrate.Controller) tea.Cmd {
	return func() tea.Msg {
		if ctrl == nil {
			return narrationToggledMsg{err: errNoNarration}
		}
		return narrationToggledMsg{err: ctrl.Resume()}
	}
}

// stopNarration blocks until the session has fully torn down, so nothing it
// queued can bleed into what happens next.
func stopNarration(ctrl *narrate.Controller) tea.Cmd {
	return func() tea.Msg {
		if ctrl != nil {
			ctrl.Stop()
		}
		return narrationStoppedMsg{}
	}
}
