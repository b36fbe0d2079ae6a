// Package ui provides the main UI for the aperture application.
package ui

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour/styles"
	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
	"github.com/muesli/gitcha"
	te "github.com/muesli/termenv"

	"github.com/aperture-reader/aperture/book"
	"github.com/aperture-reader/aperture/library"
	"github.com/aperture-reader/aperture/narrate"
)

const (
	statusMessageTimeout = time.Second * 3 // how long to show status messages like "Copied chapter"
	ellipsis             = "…"
	keyEsc               = "esc"
)

// NewProgram returns a new Tea program wired to the narration controller.
// ctrl may be nil when no audio device is available; the reader then runs
// without narration.
func NewProgram(cfg Config, ctrl *narrate.Controller, catalog *narrate.Catalog, lib *library.Library) *tea.Program {
	log.Debug(
		"Starting aperture",
		"high_perf_pager",
		cfg.HighPerformancePager,
		"glamour",
		cfg.GlamourEnabled,
	)

	opts := []tea.ProgramOption{tea.WithAltScreen()}
	if cfg.EnableMouse {
		opts = append(opts, tea.WithMouseCellMotion())
	}
	m := newModel(cfg, ctrl, catalog, lib)
	p := tea.NewProgram(m, opts...)

	// Narration callbacks fire on the pipeline goroutines. Program.Send is
	// safe from any goroutine and becomes a no-op once the program quits.
	if ctrl != nil {
		ctrl.OnHighlight(func(id string) { p.Send(narrationHighlightMsg(id)) })
		ctrl.OnFinished(func() { p.Send(narrationFinishedMsg{}) })
		ctrl.OnError(func(err error) { p.Send(narrationErrorMsg{err}) })
		ctrl.OnStateChange(func(s narrate.State) { p.Send(narrationStateMsg(s)) })
	}

	return p
}

type errMsg struct{ err error }

func (e errMsg) Error() string { return e.err.Error() }

type (
	initBookSearchMsg struct {
		cwd string
		ch  chan gitcha.SearchResult
	}
)

type (
	foundBookMsg            gitcha.SearchResult
	bookSearchFinishedMsg   struct{}
	statusMessageTimeoutMsg applicationContext
)

type bookOpenedMsg struct {
	book  *book.Book
	entry library.Entry
	err   error
}

// applicationContext indicates the area of the application something applies
// to. Occasionally used as an argument to commands and messages.
type applicationContext int

const (
	shelfContext applicationContext = iota
	readerContext
)

// state is the top-level application state.
type state int

const (
	stateShelf state = iota
	stateReading
)

func (s state) String() string {
	return map[state]string{
		stateShelf:   "showing shelf",
		stateReading: "reading book",
	}[s]
}

// Common stuff we'll need to access in all models.
type commonModel struct {
	cfg     Config
	ctrl    *narrate.Controller
	catalog *narrate.Catalog
	lib     *library.Library
	cwd     string
	width   int
	height  int
}

type model struct {
	common   *commonModel
	state    state
	fatalErr error

	// Sub-models
	shelf  shelfModel
	reader readerModel

	// Channel that receives paths to book files on disk
	// (via the github.com/muesli/gitcha package)
	bookFinder chan gitcha.SearchResult
}

// unloadBook sends the reader back to the shelf. Narration is stopped and
// the library position flushed on the way out.
func (m *model) unloadBook() []tea.Cmd {
	var batch []tea.Cmd
	if m.common.ctrl != nil {
		batch = append(batch, stopNarration(m.common.ctrl))
	}
	if m.reader.viewport.HighPerformanceRendering {
		batch = append(batch, tea.ClearScrollArea) //nolint:staticcheck
	}
	batch = append(batch, saveLibrary(m.common.lib))

	m.state = stateShelf
	m.reader.unload()
	m.shelf.loadLibraryItems()
	return batch
}

func newModel(cfg Config, ctrl *narrate.Controller, catalog *narrate.Catalog, lib *library.Library) tea.Model {
	if cfg.GlamourStyle == styles.AutoStyle {
		if te.HasDarkBackground() {
			cfg.GlamourStyle = styles.DarkStyle
		} else {
			cfg.GlamourStyle = styles.LightStyle
		}
	}

	common := commonModel{
		cfg:     cfg,
		ctrl:    ctrl,
		catalog: catalog,
		lib:     lib,
	}

	m := model{
		common: &common,
		state:  stateShelf,
		shelf:  newShelfModel(&common),
		reader: newReaderModel(&common),
	}

	path := cfg.Path
	if path == "" {
		path = "."
	}
	info, err := os.Stat(path)
	if err != nil {
		log.Error("unable to stat path", "path", path, "error", err)
		m.fatalErr = err
		return m
	}
	if !info.IsDir() {
		m.state = stateReading
	}

	return m
}

func (m model) Init() tea.Cmd {
	log.Debug("Init() called", "state", m.state)
	cmds := []tea.Cmd{m.shelf.spinner.Tick}

	switch m.state {
	case stateShelf:
		cmds = append(cmds, findBooks(*m.common))
	case stateReading:
		cmds = append(cmds, openBook(m.common, m.common.cfg.Path))
	}

	return tea.Batch(cmds...)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	// If there's been an error, any key exits
	if m.fatalErr != nil {
		if _, ok := msg.(tea.KeyMsg); ok {
			return m, tea.Quit
		}
	}

	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case keyEsc:
			if m.state == stateReading {
				// The reader consumes esc itself while an overlay or
				// status message is up.
				if m.reader.showTOC || m.reader.state != readerStateBrowse {
					break
				}
				batch := m.unloadBook()
				return m, tea.Batch(batch...)
			}

		case "r":
			var cmd tea.Cmd
			if m.state == stateShelf {
				// pass through all keys if we're editing the filter
				if m.shelf.filterState == filtering {
					m.shelf, cmd = m.shelf.update(msg)
					return m, cmd
				}
				m.shelf.loadLibraryItems()
				m.shelf.searchDone = false
				return m, m.Init()
			}

		case "q":
			var cmd tea.Cmd
			if m.state == stateShelf && m.shelf.filterState == filtering {
				// pass through all keys if we're editing the filter
				m.shelf, cmd = m.shelf.update(msg)
				return m, cmd
			}
			if m.state == stateReading && m.reader.showTOC {
				break
			}
			return m, m.quit()

		case "h", "delete":
			if m.state == stateReading && !m.reader.showTOC {
				cmds = append(cmds, m.unloadBook()...)
				return m, tea.Batch(cmds...)
			}

		case "ctrl+z":
			return m, tea.Suspend

		// Ctrl+C always quits no matter where in the application you are.
		case "ctrl+c":
			return m, m.quit()
		}

	// Window size is received when starting up and on every resize
	case tea.WindowSizeMsg:
		m.common.width = msg.Width
		m.common.height = msg.Height
		m.reader.setSize(msg.Width, msg.Height)

	case initBookSearchMsg:
		m.bookFinder = msg.ch
		m.common.cwd = msg.cwd
		cmds = append(cmds, findNextBook(m))

	case foundBookMsg:
		res := gitcha.SearchResult(msg)
		m.shelf.addDiscovered(
			res.Path,
			stripAbsolutePath(res.Path, m.common.cwd),
			humanize.Time(res.Info.ModTime()),
		)
		cmds = append(cmds, findNextBook(m))

	case bookSearchFinishedMsg:
		log.Debug("book search finished")
		m.shelf.searchDone = true

	case bookOpenedMsg:
		if msg.err != nil {
			log.Error("unable to open book", "error", msg.err)
			if m.state == stateReading {
				cmds = append(cmds, m.reader.showStatusMessage("Could not open book: "+msg.err.Error()))
			} else {
				cmds = append(cmds, m.shelf.showStatusMessage("Could not open book: "+msg.err.Error()))
			}
			return m, tea.Batch(cmds...)
		}
		// Swap out whatever was open. Reloads come through here too.
		if m.reader.bk != nil {
			m.reader.unload()
		}
		m.state = stateReading
		cmds = append(cmds, m.reader.setBook(msg.book, msg.entry))

	case errMsg:
		m.fatalErr = msg.err
		return m, nil
	}

	// Process children
	switch m.state {
	case stateShelf:
		newShelfModel, cmd := m.shelf.update(msg)
		m.shelf = newShelfModel
		cmds = append(cmds, cmd)

	case stateReading:
		newReaderModel, cmd := m.reader.update(msg)
		m.reader = newReaderModel
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

// quit tears the session down off the UI goroutine: narration has to drain
// before the terminal is restored, and the library is flushed last.
func (m model) quit() tea.Cmd {
	ctrl := m.common.ctrl
	lib := m.common.lib
	bk := m.reader.bk
	return func() tea.Msg {
		if ctrl != nil {
			ctrl.Stop()
		}
		if bk != nil {
			bk.Close() //nolint:errcheck
		}
		if err := lib.Save(); err != nil {
			log.Error("library save failed", "error", err)
		}
		return tea.QuitMsg{}
	}
}

func (m model) View() string {
	if m.fatalErr != nil {
		return errorView(m.fatalErr, true)
	}

	switch m.state { //nolint:exhaustive
	case stateReading:
		return m.reader.View()
	default:
		return m.shelf.view()
	}
}

func errorView(err error, fatal bool) string {
	exitMsg := "press any key to "
	if fatal {
		exitMsg += "exit"
	} else {
		exitMsg += "return"
	}
	s := fmt.Sprintf("%s\n\n%v\n\n%s",
		errorTitleStyle.Render("ERROR"),
		err,
		subtleStyle.Render(exitMsg),
	)
	return "\n" + indent(s, 3)
}

// COMMANDS

func findBooks(m commonModel) tea.Cmd {
	return func() tea.Msg {
		log.Info("findBooks")
		var (
			cwd = m.cfg.Path
			err error
		)

		if cwd == "" {
			cwd, err = os.Getwd()
		} else {
			var info os.FileInfo
			info, err = os.Stat(cwd)
			if err == nil && info.IsDir() {
				cwd, err = filepath.Abs(cwd)
			}
		}

		// Note that this is one error check for both cases above
		if err != nil {
			log.Error("error finding books", "error", err)
			return errMsg{err}
		}

		log.Debug("local directory is", "cwd", cwd)

		// Switch between FindFiles and FindAllFiles to bypass .gitignore rules
		var ch chan gitcha.SearchResult
		if m.cfg.ShowAllFiles {
			ch, err = gitcha.FindAllFilesExcept(cwd, book.Extensions, nil)
		} else {
			ch, err = gitcha.FindFilesExcept(cwd, book.Extensions, ignorePatterns(m))
		}

		if err != nil {
			log.Error("error finding books", "error", err)
			return errMsg{err}
		}

		return initBookSearchMsg{ch: ch, cwd: cwd}
	}
}

func findNextBook(m model) tea.Cmd {
	return func() tea.Msg {
		res, ok := <-m.bookFinder

		if ok {
			// Okay now find the next one
			return foundBookMsg(res)
		}
		// We're done
		log.Debug("book search finished")
		return bookSearchFinishedMsg{}
	}
}

func openBook(common *commonModel, path string) tea.Cmd {
	return func() tea.Msg {
		log.Debug("opening book", "path", path)
		b, err := book.Open(path)
		if err != nil {
			return bookOpenedMsg{err: err}
		}
		entry := common.lib.Add(path, b.Title)
		return bookOpenedMsg{book: b, entry: entry}
	}
}

func saveLibrary(lib *library.Library) tea.Cmd {
	return func() tea.Msg {
		if err := lib.Save(); err != nil {
			log.Error("library save failed", "error", err)
		}
		return nil
	}
}

func waitForStatusMessageTimeout(appCtx applicationContext, t *time.Timer) tea.Cmd {
	return func() tea.Msg {
		<-t.C
		return statusMessageTimeoutMsg(appCtx)
	}
}

// ETC

func ignorePatterns(m commonModel) []string {
	return []string{
		filepath.Join(m.cfg.HomeDir, ".cache"),
		"node_modules",
		".*",
	}
}

func stripAbsolutePath(fullPath, cwd string) string {
	fp, _ := filepath.EvalSymlinks(fullPath)
	cp, _ := filepath.EvalSymlinks(cwd)
	return strings.ReplaceAll(fp, cp+string(os.PathSeparator), "")
}

// Lightweight version of reflow's indent function.
func indent(s string, n int) string {
	if n <= 0 || s == "" {
		return s
	}
	l := strings.Split(s, "\n")
	b := strings.Builder{}
	i := strings.Repeat(" ", n)
	for _, v := range l {
		fmt.Fprintf(&b, "%s%s\n", i, v)
	}
	return b.String()
}
