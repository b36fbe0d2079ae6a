package ui

import "github.com/charmbracelet/lipgloss"

var (
	normalFg = lipgloss.AdaptiveColor{Light: "#1A1A1A", Dark: "#DDDDDD"}
	grayFg   = lipgloss.AdaptiveColor{Light: "#909090", Dark: "#626262"}
	midGray  = lipgloss.AdaptiveColor{Light: "#B2B2B2", Dark: "#4A4A4A"}

	green   = lipgloss.Color("#04B575")
	fuchsia = lipgloss.Color("#EE6FF8")
	red     = lipgloss.AdaptiveColor{Light: "#FF4672", Dark: "#ED567A"}
	cream   = lipgloss.Color("#FFFDF5")

	logoStyle = lipgloss.NewStyle().
			Foreground(cream).
			Background(fuchsia).
			Bold(true)

	errorTitleStyle = lipgloss.NewStyle().
			Foreground(cream).
			Background(red).
			Padding(0, 1)

	subtleStyle = lipgloss.NewStyle().
			Foreground(grayFg)

	// Shelf styles.
	shelfTitleStyle = lipgloss.NewStyle().
			Foreground(normalFg)

	shelfMetaStyle = lipgloss.NewStyle().
			Foreground(grayFg)

	shelfSelectedStyle = lipgloss.NewStyle().
				Foreground(fuchsia)

	shelfHeaderStyle = lipgloss.NewStyle().
				Foreground(grayFg)

	// Narration view block styles. The active sentence gets the highlight,
	// everything else keeps its block's base look.
	highlightStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("0")).
			Background(lipgloss.Color("226")).
			Bold(true)

	narrationHeadingStyle = lipgloss.NewStyle().
				Foreground(fuchsia).
				Bold(true)

	narrationQuoteStyle = lipgloss.NewStyle().
				Foreground(grayFg).
				Italic(true)

	tocSelectedStyle = lipgloss.NewStyle().
				Foreground(fuchsia).
				Bold(true)

	tocEntryStyle = lipgloss.NewStyle().
			Foreground(normalFg)
)

func appLogoView() string {
	return logoStyle.Render(" Aperture ")
}
