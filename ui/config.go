package ui

// Config contains TUI-specific configuration.
type Config struct {
	ShowAllFiles     bool
	HomeDir          string `env:"HOME"`
	GlamourMaxWidth  uint
	GlamourStyle     string `env:"GLAMOUR_STYLE"`
	EnableMouse      bool
	PreserveNewLines bool

	// Working directory or book file path
	Path string

	// Narration defaults. Voice is a catalog key; Speed is the playback
	// rate multiplier.
	Voice string
	Speed float64

	// For debugging the UI
	HighPerformancePager bool `env:"APERTURE_HIGH_PERFORMANCE_PAGER" envDefault:"false"`
	GlamourEnabled       bool `env:"APERTURE_ENABLE_GLAMOUR"         envDefault:"true"`
}
