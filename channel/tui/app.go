package tui

import (
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/linanwx/triptych/session"
)

const defaultLogRatio = 0.2

var (
	separatorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	noticeStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
)

// spinnerFrameMsg hands the current spinner frame to the session panels.
type spinnerFrameMsg string

// App is the root bubbletea model: three session panels side by side, a log
// pane and the input line.
type App struct {
	sessions   [session.MaxSessions]Panel
	logPanel   Panel
	inputPanel *InputPanel
	spinner    spinner.Model
	notice     string
	inFlight   bool

	width, height int
	logRatio      float64

	// InputCh receives submitted text, turns and slash commands alike.
	InputCh chan string
}

// NewApp creates the root TUI model showing the given snapshots.
func NewApp(snapshots []session.Snapshot) *App {
	m := &App{
		logPanel:   NewLogPanel(),
		inputPanel: NewInputPanel("triptych> "),
		spinner:    spinner.New(spinner.WithSpinner(spinner.Dot)),
		logRatio:   defaultLogRatio,
		InputCh:    make(chan string, 16),
	}
	for i := range m.sessions {
		m.sessions[i] = NewSessionPanel(i + 1)
	}
	for _, snap := range snapshots {
		m.updateSessions(NewSnapshotMsg(snap))
	}
	return m
}

// InFlight reports whether the app is waiting for a turn to settle.
func (m *App) InFlight() bool { return m.inFlight }

func (m *App) Init() tea.Cmd {
	return textinput.Blink
}

func (m *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.recalcLayout()
		return m, nil

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC:
			return m, tea.Quit
		case tea.KeyPgUp, tea.KeyPgDown:
			// Scroll every panel together so replies stay comparable.
			cmds = append(cmds, m.updateSessions(msg))
			return m, tea.Batch(cmds...)
		}
		// All other keys go to input panel.
		_, cmd := m.inputPanel.Update(msg)
		cmds = append(cmds, cmd)

	case tea.MouseMsg:
		cmds = append(cmds, m.updateSessions(msg))

	case InputSubmitMsg:
		m.notice = ""
		if !strings.HasPrefix(msg.Text, "/") {
			cmds = append(cmds, m.lock())
		}
		// Send to channel consumer (non-blocking).
		select {
		case m.InputCh <- msg.Text:
		default:
			m.notice = "Input queue is full; try again."
			m.unlock()
		}

	case TurnStartedMsg:
		cmds = append(cmds, m.lock())

	case TurnDoneMsg:
		m.unlock()
		if msg.Err != nil {
			m.notice = msg.Err.Error()
		} else if msg.Failed > 0 {
			m.notice = "Turn finished with failures; see the red messages."
		}

	case NoticeMsg:
		m.notice = msg.Text

	case SnapshotMsg:
		cmds = append(cmds, m.updateSessions(msg))

	case spinner.TickMsg:
		if !m.inFlight {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		m.updateSessions(spinnerFrameMsg(m.spinner.View()))
		cmds = append(cmds, cmd)

	case LogLineMsg:
		p, cmd := m.logPanel.Update(msg)
		m.logPanel = p
		cmds = append(cmds, cmd)

	default:
		// Broadcast unknown messages to input panel (e.g. blink cursor).
		_, cmd := m.inputPanel.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

func (m *App) lock() tea.Cmd {
	if m.inFlight {
		return nil
	}
	m.inFlight = true
	m.inputPanel.SetLocked(true)
	return m.spinner.Tick
}

func (m *App) unlock() {
	m.inFlight = false
	m.inputPanel.SetLocked(false)
}

func (m *App) updateSessions(msg tea.Msg) tea.Cmd {
	cmds := make([]tea.Cmd, 0, len(m.sessions))
	for i, p := range m.sessions {
		next, cmd := p.Update(msg)
		m.sessions[i] = next
		cmds = append(cmds, cmd)
	}
	return tea.Batch(cmds...)
}

func (m *App) View() string {
	if m.width == 0 || m.height == 0 {
		return "initializing..."
	}

	views := make([]string, len(m.sessions))
	for i, p := range m.sessions {
		views[i] = p.View()
	}
	sep := separatorStyle.Render(strings.Repeat("─", m.width))

	return lipgloss.JoinVertical(lipgloss.Left,
		lipgloss.JoinHorizontal(lipgloss.Top, views...),
		sep,
		m.logPanel.View(),
		noticeStyle.Render(m.notice),
		m.inputPanel.View(),
	)
}

func (m *App) recalcLayout() {
	const inputH = 1
	const noticeH = 1
	const sepLines = 1

	usable := max(m.height-inputH-noticeH-sepLines, 4)
	logH := max(int(float64(usable)*m.logRatio), 1)
	panelH := max(usable-logH, 3)

	panelW := max(m.width/len(m.sessions), 10)
	for i, p := range m.sessions {
		w := panelW
		if i == len(m.sessions)-1 {
			w = max(m.width-panelW*(len(m.sessions)-1), 10)
		}
		p.SetSize(w, panelH)
	}
	m.logPanel.SetSize(m.width, logH)
	m.inputPanel.SetSize(m.width, inputH)
}
