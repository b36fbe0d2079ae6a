package ui

import (
	"fmt"
	"math"
	"path/filepath"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
	runewidth "github.com/mattn/go-runewidth"
	"github.com/muesli/reflow/ansi"
	"github.com/muesli/reflow/truncate"
	"github.com/muesli/termenv"

	"github.com/aperture-reader/aperture/book"
	"github.com/aperture-reader/aperture/library"
	"github.com/aperture-reader/aperture/narrate"
	"github.com/aperture-reader/aperture/narrate/sentence"
)

const statusBarHeight = 1

var (
	readerHelpHeight int

	mintGreen = lipgloss.AdaptiveColor{Light: "#89F0CB", Dark: "#89F0CB"}
	darkGreen = lipgloss.AdaptiveColor{Light: "#1C8760", Dark: "#1C8760"}

	statusBarNoteFg = lipgloss.AdaptiveColor{Light: "#656565", Dark: "#7D7D7D"}
	statusBarBg     = lipgloss.AdaptiveColor{Light: "#E6E6E6", Dark: "#242424"}

	statusBarScrollPosStyle = lipgloss.NewStyle().
				Foreground(lipgloss.AdaptiveColor{Light: "#949494", Dark: "#5A5A5A"}).
				Background(statusBarBg).
				Render

	statusBarNoteStyle = lipgloss.NewStyle().
				Foreground(statusBarNoteFg).
				Background(statusBarBg).
				Render

	statusBarHelpStyle = lipgloss.NewStyle().
				Foreground(statusBarNoteFg).
				Background(lipgloss.AdaptiveColor{Light: "#DCDCDC", Dark: "#323232"}).
				Render

	statusBarMessageStyle = lipgloss.NewStyle().
				Foreground(mintGreen).
				Background(darkGreen).
				Render

	statusBarMessageScrollPosStyle = lipgloss.NewStyle().
					Foreground(mintGreen).
					Background(darkGreen).
					Render

	statusBarMessageHelpStyle = lipgloss.NewStyle().
					Foreground(lipgloss.Color("#B6FFE4")).
					Background(green).
					Render

	helpViewStyle = lipgloss.NewStyle().
			Foreground(statusBarNoteFg).
			Background(lipgloss.AdaptiveColor{Light: "#f2f2f2", Dark: "#1B1B1B"}).
			Render
)

type (
	contentRenderedMsg string
	reloadMsg          struct{}
)

type chapterLoadedMsg struct {
	index   int
	chapter *book.Chapter
	chunks  []sentence.Chunk
	marked  []sentence.MarkedBlock
	err     error
}

type readerState int

const (
	readerStateBrowse readerState = iota
	readerStateStatusMessage
)

type readerModel struct {
	common   *commonModel
	viewport viewport.Model
	state    readerState
	showHelp bool

	showTOC   bool
	tocCursor int

	statusMessage      string
	statusMessageTimer *time.Timer

	bk           *book.Book
	bookID       string
	chapterIndex int
	chapter      *book.Chapter
	chunks       []sentence.Chunk
	marked       []sentence.MarkedBlock

	// Glamour-rendered chapter, cached so the narration view can hand the
	// viewport back when the session ends.
	rendered string

	narration narrationStatus
	narrating bool
	lineOf    map[string]int

	watcher *fsnotify.Watcher
}

func newReaderModel(common *commonModel) readerModel {
	vp := viewport.New(0, 0)
	vp.YPosition = 0
	vp.HighPerformanceRendering = common.cfg.HighPerformancePager

	m := readerModel{
		common:   common,
		state:    readerStateBrowse,
		viewport: vp,
	}
	m.initWatcher()
	return m
}

func (m *readerModel) setSize(w, h int) {
	m.viewport.Width = w
	m.viewport.Height = h - statusBarHeight

	if m.showHelp {
		if readerHelpHeight == 0 {
			readerHelpHeight = strings.Count(m.helpView(), "\n")
		}
		m.viewport.Height -= (statusBarHeight + readerHelpHeight)
	}
}

func (m *readerModel) toggleHelp() {
	m.showHelp = !m.showHelp
	m.setSize(m.common.width, m.common.height)
	if m.viewport.PastBottom() {
		m.viewport.GotoBottom()
	}
}

// setBook points the reader at a freshly opened book and kicks off the
// first chapter load, resuming at the stored position.
func (m *readerModel) setBook(b *book.Book, e library.Entry) tea.Cmd {
	m.bk = b
	m.bookID = library.ID(b.Path)

	idx := e.LastPosition
	if idx < 0 || idx >= b.Chapters() {
		idx = 0
	}
	m.chapterIndex = idx

	m.narration = narrationStatus{speed: m.common.cfg.Speed}
	if m.narration.speed <= 0 {
		m.narration.speed = 1.0
	}
	if v, ok := m.common.catalog.Lookup(m.common.cfg.Voice); ok {
		m.narration.voice = v
	} else if voices := m.common.catalog.Voices(); len(voices) > 0 {
		m.narration.voice = voices[0]
	}

	return m.loadChapter(idx)
}

// loadChapter extracts chapter i off the UI goroutine. Any running
// narration is stopped first and awaited, so no stale audio or highlight
// crosses the chapter boundary.
func (m *readerModel) loadChapter(i int) tea.Cmd {
	if m.bk == nil || i < 0 || i >= m.bk.Chapters() {
		return nil
	}
	ctrl := m.common.ctrl
	bk := m.bk
	return func() tea.Msg {
		if ctrl != nil {
			ctrl.Stop()
		}
		ch, err := bk.Chapter(i)
		if err != nil {
			return chapterLoadedMsg{err: err}
		}
		chunks, marked := sentence.NewNormalizer().Normalize(ch.Blocks)
		return chapterLoadedMsg{index: i, chapter: ch, chunks: chunks, marked: marked}
	}
}

func (m *readerModel) showStatusMessage(message string) tea.Cmd {
	m.state = readerStateStatusMessage
	m.statusMessage = message
	if m.statusMessageTimer != nil {
		m.statusMessageTimer.Stop()
	}
	m.statusMessageTimer = time.NewTimer(statusMessageTimeout)

	return waitForStatusMessageTimeout(readerContext, m.statusMessageTimer)
}

func (m *readerModel) unload() {
	log.Debug("unload book")
	if m.showHelp {
		m.toggleHelp()
	}
	if m.statusMessageTimer != nil {
		m.statusMessageTimer.Stop()
	}
	m.unwatchFile()
	if m.bk != nil {
		m.bk.Close() //nolint:errcheck
	}
	m.bk = nil
	m.chapter = nil
	m.chunks = nil
	m.marked = nil
	m.rendered = ""
	m.lineOf = nil
	m.narrating = false
	m.narration.highlight = ""
	m.narration.lastError = ""
	m.showTOC = false
	m.state = readerStateBrowse
	m.viewport.SetContent("")
	m.viewport.YOffset = 0
}

func (m readerModel) update(msg tea.Msg) (readerModel, tea.Cmd) {
	var (
		cmd  tea.Cmd
		cmds []tea.Cmd
	)

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.showTOC {
			return m.updateTOC(msg)
		}

		switch msg.String() {
		case "q", keyEsc:
			if m.state != readerStateBrowse {
				m.state = readerStateBrowse
				return m, nil
			}

		case "home", "g":
			m.viewport.GotoTop()
			return m, nil

		case "end", "G":
			m.viewport.GotoBottom()
			return m, nil

		case "d":
			m.viewport.HalfViewDown()
			return m, nil

		case "u":
			m.viewport.HalfViewUp()
			return m, nil

		case " ":
			return m, m.toggleNarration()

		case "s":
			if m.narration.state.Active() {
				return m, stopNarration(m.common.ctrl)
			}
			return m, nil

		case "v":
			if next, ok := m.common.catalog.Next(m.narration.voice.Key); ok {
				m.narration.voice = next
				return m, m.showStatusMessage("Voice: " + next.DisplayName)
			}
			return m, nil

		case "+", "=":
			m.narration.speed = math.Min(2.0, m.narration.speed+0.25)
			return m, m.showStatusMessage(fmt.Sprintf("Speed %.2gx", m.narration.speed))

		case "-", "_":
			m.narration.speed = math.Max(0.5, m.narration.speed-0.25)
			return m, m.showStatusMessage(fmt.Sprintf("Speed %.2gx", m.narration.speed))

		case "n":
			if m.bk != nil && m.chapterIndex >= m.bk.Chapters()-1 {
				return m, m.showStatusMessage("Last chapter")
			}
			return m, m.loadChapter(m.chapterIndex + 1)

		case "p":
			if m.chapterIndex == 0 {
				return m, m.showStatusMessage("First chapter")
			}
			return m, m.loadChapter(m.chapterIndex - 1)

		case "t":
			if m.bk != nil && len(m.bk.TOC()) > 0 {
				m.showTOC = true
				m.tocCursor = m.tocEntryForChapter()
			} else {
				return m, m.showStatusMessage("No table of contents")
			}
			return m, nil

		case "c":
			if m.chapter != nil {
				// Copy using OSC 52
				termenv.Copy(m.chapter.Markdown)
				// Copy using native system clipboard
				_ = clipboard.WriteAll(m.chapter.Markdown)
				return m, m.showStatusMessage("Copied chapter")
			}
			return m, nil

		case "r":
			if m.bk != nil && filepath.Ext(m.bk.Path) != ".epub" {
				return m, openBook(m.common, m.bk.Path)
			}
			return m, nil

		case "?":
			m.toggleHelp()
			return m, nil
		}

	case chapterLoadedMsg:
		if msg.err != nil {
			log.Error("chapter load failed", "error", msg.err)
			return m, m.showStatusMessage("Could not load chapter: " + msg.err.Error())
		}
		m.chapterIndex = msg.index
		m.chapter = msg.chapter
		m.chunks = msg.chunks
		m.marked = msg.marked
		m.narrating = false
		m.narration.highlight = ""
		m.lineOf = nil
		m.viewport.GotoTop()

		m.common.lib.SetPosition(m.bookID, msg.index)
		cmds = append(cmds,
			saveLibrary(m.common.lib),
			renderWithGlamour(m, m.chapter.Markdown),
		)

	case contentRenderedMsg:
		m.rendered = string(msg)
		if !m.narrating {
			m.viewport.SetContent(m.rendered)
			if m.viewport.PastBottom() {
				m.viewport.GotoBottom()
			}
		}
		if m.viewport.HighPerformanceRendering {
			cmds = append(cmds, viewport.Sync(m.viewport))
		}
		cmds = append(cmds, m.watchFile)

	// The file was changed on disk and we're reloading it
	case reloadMsg:
		if m.bk != nil {
			return m, openBook(m.common, m.bk.Path)
		}

	case tea.WindowSizeMsg:
		if m.narrating {
			m.refreshNarrationView()
		}
		if m.chapter != nil {
			return m, renderWithGlamour(m, m.chapter.Markdown)
		}

	case statusMessageTimeoutMsg:
		if applicationContext(msg) == readerContext {
			m.state = readerStateBrowse
		}

	case narrationStartedMsg:
		if msg.err != nil {
			log.Error("narration start failed", "error", msg.err)
			m.narration.lastError = msg.err.Error()
			return m, m.showStatusMessage("Narration: " + msg.err.Error())
		}
		m.narration.lastError = ""
		m.narration.highlight = ""
		m.narrating = true
		m.refreshNarrationView()

	case narrationToggledMsg:
		if msg.err != nil {
			return m, m.showStatusMessage("Narration: " + msg.err.Error())
		}

	case narrationStateMsg:
		m.narration.state = narrate.State(msg)

	case narrationHighlightMsg:
		id := string(msg)
		m.narration.highlight = id
		if id != "" && m.narrating {
			m.refreshNarrationView()
			m.scrollToHighlight(id)
		}

	case narrationFinishedMsg:
		m.narrating = false
		m.narration.highlight = ""
		m.viewport.SetContent(m.rendered)
		if m.viewport.PastBottom() {
			m.viewport.GotoBottom()
		}

	case narrationErrorMsg:
		m.narration.lastError = msg.err.Error()
		return m, m.showStatusMessage("Narration error: " + msg.err.Error())
	}

	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

// toggleNarration is the space key: start when idle, otherwise flip between
// paused and running.
func (m *readerModel) toggleNarration() tea.Cmd {
	switch m.narration.state {
	case narrate.StateRunning:
		return pauseNarration(m.common.ctrl)
	case narrate.StatePaused:
		return resumeNarration(m.common.ctrl)
	default:
		if len(m.chunks) == 0 {
			return m.showStatusMessage("Nothing to narrate in this chapter")
		}
		return startNarration(m.common.ctrl, m.chunks, m.narration.voice.Key, m.narration.speed)
	}
}

func (m readerModel) updateTOC(msg tea.KeyMsg) (readerModel, tea.Cmd) {
	entries := m.bk.TOC()
	switch msg.String() {
	case "t", "q", keyEsc:
		m.showTOC = false
	case "k", "up":
		if m.tocCursor > 0 {
			m.tocCursor--
		}
	case "j", "down":
		if m.tocCursor < len(entries)-1 {
			m.tocCursor++
		}
	case "home", "g":
		m.tocCursor = 0
	case "end", "G":
		m.tocCursor = len(entries) - 1
	case "enter":
		m.showTOC = false
		if m.tocCursor >= 0 && m.tocCursor < len(entries) {
			return m, m.loadChapter(entries[m.tocCursor].Chapter)
		}
	}
	return m, nil
}

// tocEntryForChapter returns the first TOC entry of the open chapter so the
// overlay opens with the cursor nearby.
func (m readerModel) tocEntryForChapter() int {
	for i, e := range m.bk.TOC() {
		if e.Chapter == m.chapterIndex {
			return i
		}
	}
	return 0
}

// refreshNarrationView swaps the viewport over to the sentence-addressable
// rendition of the chapter.
func (m *readerModel) refreshNarrationView() {
	width := m.narrationWidth()
	content, lineOf := renderNarration(m.marked, m.narration.highlight, width)
	m.lineOf = lineOf
	m.viewport.SetContent(indent(content, 2))
}

func (m readerModel) narrationWidth() int {
	width := m.viewport.Width - 2
	if mw := int(m.common.cfg.GlamourMaxWidth); mw > 0 && mw < width { //nolint:gosec
		width = mw
	}
	if width < 1 {
		width = 1
	}
	return width
}

// scrollToHighlight keeps the spoken sentence on screen without recentering
// on every line.
func (m *readerModel) scrollToHighlight(id string) {
	line, ok := m.lineOf[id]
	if !ok {
		return
	}
	top := m.viewport.YOffset
	bottom := top + m.viewport.Height - 1
	if line < top || line > bottom-1 {
		m.viewport.SetYOffset(max(0, line-m.viewport.Height/3))
	}
}

func (m readerModel) View() string {
	var b strings.Builder

	if m.showTOC {
		fmt.Fprint(&b, m.tocView()+"\n")
	} else {
		fmt.Fprint(&b, m.viewport.View()+"\n")
	}

	// Footer
	m.statusBarView(&b)

	if m.showHelp {
		fmt.Fprint(&b, "\n"+m.helpView())
	}

	return b.String()
}

func (m readerModel) statusBarView(b *strings.Builder) {
	const (
		minPercent               float64 = 0.0
		maxPercent               float64 = 1.0
		percentToStringMagnitude float64 = 100.0
	)

	showStatusMessage := m.state == readerStateStatusMessage

	// Logo
	logo := appLogoView()

	// Scroll percent
	percent := math.Max(minPercent, math.Min(maxPercent, m.viewport.ScrollPercent()))
	scrollPercent := fmt.Sprintf(" %3.f%% ", percent*percentToStringMagnitude)
	if showStatusMessage {
		scrollPercent = statusBarMessageScrollPosStyle(scrollPercent)
	} else {
		scrollPercent = statusBarScrollPosStyle(scrollPercent)
	}

	// "Help" note
	var helpNote string
	if showStatusMessage {
		helpNote = statusBarMessageHelpStyle(" ? Help ")
	} else {
		helpNote = statusBarHelpStyle(" ? Help ")
	}

	// Book title, chapter position and narration state
	var note string
	if showStatusMessage {
		note = m.statusMessage
	} else {
		note = m.bookNote()
		if narration := m.narration.note(); narration != "" {
			note += " · " + narration
		}
	}
	note = truncate.StringWithTail(" "+note+" ", uint(max(0, //nolint:gosec
		m.common.width-
			ansi.PrintableRuneWidth(logo)-
			ansi.PrintableRuneWidth(scrollPercent)-
			ansi.PrintableRuneWidth(helpNote),
	)), ellipsis)
	if showStatusMessage {
		note = statusBarMessageStyle(note)
	} else {
		note = statusBarNoteStyle(note)
	}

	// Empty space
	padding := max(0,
		m.common.width-
			ansi.PrintableRuneWidth(logo)-
			ansi.PrintableRuneWidth(note)-
			ansi.PrintableRuneWidth(scrollPercent)-
			ansi.PrintableRuneWidth(helpNote),
	)
	emptySpace := strings.Repeat(" ", padding)
	if showStatusMessage {
		emptySpace = statusBarMessageStyle(emptySpace)
	} else {
		emptySpace = statusBarNoteStyle(emptySpace)
	}

	fmt.Fprintf(b, "%s%s%s%s%s",
		logo,
		note,
		emptySpace,
		scrollPercent,
		helpNote,
	)
}

func (m readerModel) bookNote() string {
	if m.bk == nil {
		return ""
	}
	title := m.bk.Title
	if title == "" {
		title = library.ID(m.bk.Path)
	}
	if m.chapter != nil && m.bk.Chapters() > 1 {
		return fmt.Sprintf("%s · %d/%d %s", title, m.chapterIndex+1, m.bk.Chapters(), m.chapter.Title)
	}
	return title
}

func (m readerModel) helpView() (s string) {
	col1 := []string{
		"space   play/pause narration",
		"s       stop narration",
		"v       next voice",
		"+/-     faster/slower speech",
		"n/p     next/previous chapter",
		"t       table of contents",
		"c       copy chapter",
		"r       reload this file",
		"esc     back to shelf",
		"q       quit",
	}

	s += "\n"
	s += "k/↑      up                  " + col1[0] + "\n"
	s += "j/↓      down                " + col1[1] + "\n"
	s += "b/pgup   page up             " + col1[2] + "\n"
	s += "f/pgdn   page down           " + col1[3] + "\n"
	s += "u        ½ page up           " + col1[4] + "\n"
	s += "d        ½ page down         " + col1[5] + "\n"
	s += "g/home   go to top           " + col1[6] + "\n"
	s += "G/end    go to bottom        " + col1[7] + "\n"
	s += "                             " + col1[8] + "\n"
	s += "                             " + col1[9]

	s = indent(s, 2)

	// Fill up empty cells with spaces for background coloring
	if m.common.width > 0 {
		lines := strings.Split(s, "\n")
		for i := 0; i < len(lines); i++ {
			l := runewidth.StringWidth(lines[i])
			n := max(m.common.width-l, 0)
			lines[i] += strings.Repeat(" ", n)
		}

		s = strings.Join(lines, "\n")
	}

	return helpViewStyle(s)
}

func (m readerModel) tocView() string {
	var b strings.Builder
	b.WriteString("\n  " + shelfHeaderStyle.Render("Table of Contents") + "\n\n")

	entries := m.bk.TOC()
	avail := max(1, m.viewport.Height-6)
	start := 0
	if m.tocCursor >= avail {
		start = m.tocCursor - avail + 1
	}
	end := min(len(entries), start+avail)

	for i := start; i < end; i++ {
		e := entries[i]
		line := strings.Repeat("  ", e.Level) + e.Title
		if i == m.tocCursor {
			b.WriteString("  " + tocSelectedStyle.Render("› "+line) + "\n")
		} else {
			b.WriteString("    " + tocEntryStyle.Render(line) + "\n")
		}
	}
	b.WriteString("\n  " + subtleStyle.Render("enter jump · t close"))

	// Pad to the viewport height so the status bar stays put.
	s := b.String()
	if n := m.viewport.Height - strings.Count(s, "\n") - 1; n > 0 {
		s += strings.Repeat("\n", n)
	}
	return s
}

// COMMANDS

func renderWithGlamour(m readerModel, md string) tea.Cmd {
	return func() tea.Msg {
		s, err := glamourRender(m, md)
		if err != nil {
			log.Error("error rendering with Glamour", "error", err)
			return errMsg{err}
		}
		return contentRenderedMsg(s)
	}
}

// This is where the magic happens.
func glamourRender(m readerModel, markdown string) (string, error) {
	if !m.common.cfg.GlamourEnabled {
		return markdown, nil
	}

	width := max(0, min(int(m.common.cfg.GlamourMaxWidth), m.viewport.Width)) //nolint:gosec

	options := []glamour.TermRendererOption{
		glamour.WithStylePath(m.common.cfg.GlamourStyle),
		glamour.WithWordWrap(width),
	}
	if m.common.cfg.PreserveNewLines {
		options = append(options, glamour.WithPreservedNewLines())
	}
	r, err := glamour.NewTermRenderer(options...)
	if err != nil {
		return "", fmt.Errorf("error creating glamour renderer: %w", err)
	}

	out, err := r.Render(markdown)
	if err != nil {
		return "", fmt.Errorf("error rendering markdown: %w", err)
	}

	return out, nil
}

func (m *readerModel) initWatcher() {
	var err error
	m.watcher, err = fsnotify.NewWatcher()
	if err != nil {
		log.Error("error creating fsnotify watcher", "error", err)
	}
}

// watchFile watches markdown books for edits so the open chapter reloads in
// place. EPUB archives are not watched.
func (m *readerModel) watchFile() tea.Msg {
	if m.watcher == nil || m.bk == nil || filepath.Ext(m.bk.Path) == ".epub" {
		return nil
	}

	path := m.bk.Path
	dir := filepath.Dir(path)
	if err := m.watcher.Add(dir); err != nil {
		log.Error("error adding dir to fsnotify watcher", "error", err)
		return nil
	}

	log.Info("fsnotify watching dir", "dir", dir)

	for {
		select {
		case event, ok := <-m.watcher.Events:
			if !ok || event.Name != path {
				continue
			}

			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}

			log.Debug("fsnotify event", "file", event.Name, "event", event.Op)
			return reloadMsg{}
		case err, ok := <-m.watcher.Errors:
			if !ok {
				continue
			}
			log.Debug("fsnotify error", "dir", dir, "error", err)
		}
	}
}

func (m *readerModel) unwatchFile() {
	if m.watcher == nil || m.bk == nil || filepath.Ext(m.bk.Path) == ".epub" {
		return
	}

	dir := filepath.Dir(m.bk.Path)
	err := m.watcher.Remove(dir)
	if err == nil {
		log.Debug("fsnotify dir unwatched", "dir", dir)
	} else {
		log.Error("fsnotify fail to unwatch dir", "dir", dir, "error", err)
	}
}
