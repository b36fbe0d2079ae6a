package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/sahilm/fuzzy"

	"github.com/aperture-reader/aperture/library"
)

const shelfLinesPerItem = 3

type filterState int

const (
	unfiltered filterState = iota
	filtering
	filterApplied
)

// shelfItem is one row of the shelf: a book from the library or one
// discovered on disk.
type shelfItem struct {
	id        string
	path      string
	title     string
	note      string
	inLibrary bool
}

func (s shelfItem) filterValue() string {
	return s.title + " " + s.id
}

type shelfModel struct {
	common *commonModel

	items    []shelfItem
	filtered []shelfItem
	cursor   int

	filterState filterState
	filterInput textinput.Model

	spinner    spinner.Model
	searchDone bool

	statusMessage      string
	statusMessageTimer *time.Timer
}

func (m *shelfModel) showStatusMessage(message string) tea.Cmd {
	m.statusMessage = message
	if m.statusMessageTimer != nil {
		m.statusMessageTimer.Stop()
	}
	m.statusMessageTimer = time.NewTimer(statusMessageTimeout)

	return waitForStatusMessageTimeout(shelfContext, m.statusMessageTimer)
}

func newShelfModel(common *commonModel) shelfModel {
	sp := spinner.New()
	sp.Spinner = spinner.Line
	sp.Style = lipgloss.NewStyle().Foreground(grayFg)

	ti := textinput.New()
	ti.Prompt = "Filter: "
	ti.PromptStyle = lipgloss.NewStyle().Foreground(fuchsia)
	ti.Cursor.Style = lipgloss.NewStyle().Foreground(fuchsia)

	m := shelfModel{
		common:      common,
		spinner:     sp,
		filterInput: ti,
	}
	m.loadLibraryItems()
	return m
}

// loadLibraryItems seeds the shelf with the library's books, most recently
// read first.
func (m *shelfModel) loadLibraryItems() {
	m.items = nil
	for _, e := range m.common.lib.Entries() {
		title := e.Title
		if title == "" {
			title = e.Path
		}
		note := "added " + humanize.Time(e.AddedAt)
		if !e.ReadAt.IsZero() {
			note = fmt.Sprintf("chapter %d · read %s", e.LastPosition+1, humanize.Time(e.ReadAt))
		}
		m.items = append(m.items, shelfItem{
			id:        library.ID(e.Path),
			path:      e.Path,
			title:     title,
			note:      note,
			inLibrary: true,
		})
	}
	m.applyFilter()
}

// addDiscovered appends a book file found on disk, unless the library
// already lists it.
func (m *shelfModel) addDiscovered(path, displayPath, note string) {
	id := library.ID(path)
	for _, it := range m.items {
		if it.id == id {
			return
		}
	}
	m.items = append(m.items, shelfItem{
		id:    id,
		path:  path,
		title: displayPath,
		note:  note,
	})
	m.applyFilter()
}

func (m *shelfModel) applyFilter() {
	query := strings.TrimSpace(m.filterInput.Value())
	if query == "" || m.filterState == unfiltered {
		m.filtered = m.items
	} else {
		targets := make([]string, len(m.items))
		for i, it := range m.items {
			targets[i] = it.filterValue()
		}
		var filtered []shelfItem
		for _, match := range fuzzy.Find(query, targets) {
			filtered = append(filtered, m.items[match.Index])
		}
		m.filtered = filtered
	}
	if m.cursor >= len(m.filtered) {
		m.cursor = max(0, len(m.filtered)-1)
	}
}

func (m shelfModel) selectedItem() (shelfItem, bool) {
	if m.cursor < 0 || m.cursor >= len(m.filtered) {
		return shelfItem{}, false
	}
	return m.filtered[m.cursor], true
}

func (m shelfModel) shouldSpin() bool {
	return !m.searchDone
}

func (m shelfModel) update(msg tea.Msg) (shelfModel, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.filterState == filtering {
			switch msg.String() {
			case keyEsc:
				m.filterState = unfiltered
				m.filterInput.Reset()
				m.filterInput.Blur()
				m.applyFilter()
				return m, nil
			case "enter":
				if strings.TrimSpace(m.filterInput.Value()) == "" {
					m.filterState = unfiltered
					m.filterInput.Reset()
				} else {
					m.filterState = filterApplied
				}
				m.filterInput.Blur()
				m.applyFilter()
				return m, nil
			default:
				var cmd tea.Cmd
				m.filterInput, cmd = m.filterInput.Update(msg)
				m.applyFilter()
				return m, cmd
			}
		}

		switch msg.String() {
		case "k", "up":
			if m.cursor > 0 {
				m.cursor--
			}
		case "j", "down":
			if m.cursor < len(m.filtered)-1 {
				m.cursor++
			}
		case "home", "g":
			m.cursor = 0
		case "end", "G":
			m.cursor = len(m.filtered) - 1
		case "/":
			m.filterState = filtering
			m.filterInput.Reset()
			m.applyFilter()
			cmds = append(cmds, m.filterInput.Focus())
		case keyEsc:
			if m.filterState == filterApplied {
				m.filterState = unfiltered
				m.filterInput.Reset()
				m.applyFilter()
			}
		case "x":
			if it, ok := m.selectedItem(); ok && it.inLibrary {
				m.common.lib.Remove(it.id)
				m.loadLibraryItems()
				cmds = append(cmds, saveLibrary(m.common.lib))
			}
		case "enter":
			if it, ok := m.selectedItem(); ok {
				cmds = append(cmds, openBook(m.common, it.path))
			}
		}

	case spinner.TickMsg:
		if m.shouldSpin() {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			cmds = append(cmds, cmd)
		}

	case statusMessageTimeoutMsg:
		if applicationContext(msg) == shelfContext {
			m.statusMessage = ""
		}
	}

	return m, tea.Batch(cmds...)
}

func (m shelfModel) view() string {
	var b strings.Builder

	b.WriteString("\n  " + appLogoView())
	b.WriteString("\n\n")

	switch m.filterState {
	case filtering:
		b.WriteString("  " + m.filterInput.View())
	default:
		header := fmt.Sprintf("%d books", len(m.items))
		if len(m.items) == 1 {
			header = "1 book"
		}
		if m.filterState == filterApplied {
			header += fmt.Sprintf(" · filtered by %q", m.filterInput.Value())
		}
		if m.shouldSpin() {
			header += "  " + m.spinner.View() + " searching"
		}
		b.WriteString("  " + shelfHeaderStyle.Render(header))
	}
	b.WriteString("\n\n")

	if len(m.filtered) == 0 {
		if m.searchDone {
			b.WriteString("  " + subtleStyle.Render("No books found. Aperture reads EPUB and markdown files."))
		}
	} else {
		start, end := m.visibleRange()
		for i := start; i < end; i++ {
			it := m.filtered[i]
			title, note := it.title, it.note
			if i == m.cursor {
				b.WriteString("  " + shelfSelectedStyle.Render("› "+title) + "\n")
				b.WriteString("  " + shelfSelectedStyle.Render("  "+note) + "\n\n")
			} else {
				b.WriteString("    " + shelfTitleStyle.Render(title) + "\n")
				b.WriteString("    " + shelfMetaStyle.Render(note) + "\n\n")
			}
		}
	}

	if m.statusMessage != "" {
		b.WriteString("\n  " + statusBarMessageStyle(" "+m.statusMessage+" "))
	} else {
		help := "enter read · / filter · x forget · r refresh · q quit"
		b.WriteString("\n  " + subtleStyle.Render(help))
	}

	return b.String()
}

// visibleRange windows the list so the cursor stays on screen.
func (m shelfModel) visibleRange() (int, int) {
	avail := m.common.height - 8
	if avail < shelfLinesPerItem {
		avail = shelfLinesPerItem
	}
	perScreen := max(1, avail/shelfLinesPerItem)

	start := 0
	if m.cursor >= perScreen {
		start = m.cursor - perScreen + 1
	}
	end := min(len(m.filtered), start+perScreen)
	return start, end
}
