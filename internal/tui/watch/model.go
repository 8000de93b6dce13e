// Package watch is the live checklist TUI: a cursor-driven item list
// whose mutations ride the same debounced sync path the one-shot
// commands use, with the sync status line updating as transitions
// arrive.
package watch

import (
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/marcus/ck/internal/engine"
	"github.com/marcus/ck/internal/status"
)

// MinWidth is the minimum terminal width for proper display
const MinWidth = 30

// refreshInterval drives the relative-time redraw, not data freshness;
// status changes arrive as they happen via the tracker subscription.
const refreshInterval = 5 * time.Second

// TickMsg triggers a periodic redraw
type TickMsg time.Time

// statusMsg carries a sync status transition into the update loop
type statusMsg status.Transition

// syncDoneMsg reports a completed manual sync or cloud load
type syncDoneMsg struct{ err error }

// Model is the Bubble Tea model for ck watch
type Model struct {
	Engine *engine.Engine

	// Window dimensions
	Width  int
	Height int

	// Item list
	Items  []string
	Cursor int

	// Sync status line
	Status status.Transition

	// Add-item input
	Input  textinput.Model
	Adding bool

	ShowHelp bool
	Err      error

	statusCh    chan status.Transition
	unsubscribe func()
}

// NewModel creates a watch model bound to an engine. The caller owns
// the engine lifecycle; Close releases only the status subscription.
func NewModel(eng *engine.Engine) Model {
	ti := textinput.New()
	ti.Placeholder = "new item"
	ti.CharLimit = 120

	ch := make(chan status.Transition, 16)
	unsub := eng.Tracker().Subscribe(func(tr status.Transition) {
		select {
		case ch <- tr:
		default:
			// drop rather than block the tracker
		}
	})

	state, msg := eng.Tracker().Current()
	return Model{
		Engine:      eng,
		Items:       eng.Items().Keys(),
		Status:      status.Transition{State: state, Message: msg, SyncedAt: eng.Tracker().LastSyncedAt()},
		Input:       ti,
		statusCh:    ch,
		unsubscribe: unsub,
	}
}

// Close releases the tracker subscription.
func (m Model) Close() {
	if m.unsubscribe != nil {
		m.unsubscribe()
	}
}

// Init implements tea.Model
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.waitForStatus(), m.scheduleTick())
}

// Update implements tea.Model
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.Adding {
			return m.handleInputKey(msg)
		}
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
		return m, nil

	case TickMsg:
		return m, m.scheduleTick()

	case statusMsg:
		m.Status = status.Transition(msg)
		return m, m.waitForStatus()

	case syncDoneMsg:
		m.Err = msg.err
		m.refreshItems()
		return m, nil
	}

	return m, nil
}

// handleKey processes key input in list mode
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit

	case "j", "down":
		if m.Cursor < len(m.Items)-1 {
			m.Cursor++
		}
		return m, nil

	case "k", "up":
		if m.Cursor > 0 {
			m.Cursor--
		}
		return m, nil

	case " ", "enter":
		if id, ok := m.current(); ok {
			m.Engine.Toggle(id)
		}
		return m, nil

	case "a":
		m.Adding = true
		m.Input.SetValue("")
		return m, m.Input.Focus()

	case "d":
		if id, ok := m.current(); ok {
			m.Engine.RemoveItem(id)
			m.refreshItems()
		}
		return m, nil

	case "s":
		return m, m.runSync()

	case "l":
		return m, m.runLoad()

	case "?":
		m.ShowHelp = !m.ShowHelp
		return m, nil
	}

	return m, nil
}

// handleInputKey processes key input while the add-item field is open
func (m Model) handleInputKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.Adding = false
		m.Input.Blur()
		return m, nil

	case "enter":
		id := m.Input.Value()
		m.Adding = false
		m.Input.Blur()
		if id != "" {
			m.Engine.AddItem(id)
			m.refreshItems()
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.Input, cmd = m.Input.Update(msg)
	return m, cmd
}

func (m *Model) current() (string, bool) {
	if m.Cursor < 0 || m.Cursor >= len(m.Items) {
		return "", false
	}
	return m.Items[m.Cursor], true
}

func (m *Model) refreshItems() {
	m.Items = m.Engine.Items().Keys()
	if m.Cursor >= len(m.Items) {
		m.Cursor = len(m.Items) - 1
	}
	if m.Cursor < 0 {
		m.Cursor = 0
	}
}

// runSync pushes the current state in the background.
func (m Model) runSync() tea.Cmd {
	eng := m.Engine
	return func() tea.Msg {
		return syncDoneMsg{err: eng.Sync()}
	}
}

// runLoad pulls the cloud state in the background.
func (m Model) runLoad() tea.Cmd {
	eng := m.Engine
	return func() tea.Msg {
		return syncDoneMsg{err: eng.LoadFromCloud()}
	}
}

// waitForStatus blocks on the next tracker transition.
func (m Model) waitForStatus() tea.Cmd {
	ch := m.statusCh
	return func() tea.Msg {
		return statusMsg(<-ch)
	}
}

// scheduleTick returns a command that sends a TickMsg after the refresh interval
func (m Model) scheduleTick() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}
