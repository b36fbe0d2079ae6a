package narrate

import "errors"

// Start preconditions. These are returned before any session state is
// touched, so a failed Start leaves the controller exactly as it was.
var (
	// ErrNothingToRead means the chapter produced no speakable chunks.
	ErrNothingToRead = errors.New("nothing to read")

	// ErrBusy means a session is already in flight; stop it first.
	ErrBusy = errors.New("narration already in progress")

	// ErrUnknownVoice means the requested voice key is not in the catalog.
	ErrUnknownVoice = errors.New("unknown voice")

	// ErrNoEngine means no engine was loaded for the voice's language.
	ErrNoEngine = errors.New("no engine for language")

	// ErrInvalidSpeed means the speed multiplier was zero or negative.
	ErrInvalidSpeed = errors.New("speed must be positive")
)

// Catalog construction errors.
var (
	ErrBadVoice       = errors.New("invalid voice")
	ErrDuplicateVoice = errors.New("duplicate voice key")
	ErrBadLanguage    = errors.New("invalid language code")
)
