package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/linanwx/triptych/provider"
	"github.com/linanwx/triptych/session"
)

var (
	userMsgStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("6")).Bold(true) // cyan
	errorMsgStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))            // red
	systemStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Italic(true)
	headerStyle   = lipgloss.NewStyle().Bold(true)
	stateStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	frameStyle    = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("8"))
)

// SessionPanel shows one slot's conversation log.
type SessionPanel struct {
	slot     int
	snap     *session.Snapshot
	tokens   int
	spinner  string // current spinner frame, shown while in flight
	viewport viewport.Model

	width, height int
}

// NewSessionPanel creates an empty panel for slot.
func NewSessionPanel(slot int) *SessionPanel {
	vp := viewport.New(0, 0)
	vp.SetContent("")
	return &SessionPanel{slot: slot, viewport: vp}
}

func (p *SessionPanel) Update(msg tea.Msg) (Panel, tea.Cmd) {
	switch msg := msg.(type) {
	case SnapshotMsg:
		if msg.Snapshot.Slot != p.slot {
			return p, nil
		}
		snap := msg.Snapshot
		follow := p.snap == nil || p.viewport.AtBottom()
		p.snap = &snap
		p.tokens = msg.Tokens
		p.refresh(follow)
		return p, nil
	case spinnerFrameMsg:
		p.spinner = string(msg)
		return p, nil
	}
	var cmd tea.Cmd
	p.viewport, cmd = p.viewport.Update(msg)
	return p, cmd
}

func (p *SessionPanel) View() string {
	inner := lipgloss.JoinVertical(lipgloss.Left, p.header(), p.viewport.View())
	return frameStyle.Width(max(p.width-2, 1)).Height(max(p.height-2, 1)).Render(inner)
}

func (p *SessionPanel) SetSize(width, height int) {
	p.width = width
	p.height = height
	// Border takes two columns and two rows, the header one row.
	p.viewport.Width = max(width-2, 1)
	p.viewport.Height = max(height-3, 1)
	p.refresh(true)
}

func (p *SessionPanel) header() string {
	if p.snap == nil {
		return headerStyle.Render(fmt.Sprintf("[%d] not configured", p.slot))
	}
	title := headerStyle.Render(fmt.Sprintf("[%d] %s/%s", p.slot, p.snap.Provider, p.snap.Model))
	state := p.snap.State.String()
	if p.snap.State == session.StateRequesting || p.snap.State == session.StateStreaming {
		state = p.spinner + " " + state
	}
	return title + " " + stateStyle.Render(fmt.Sprintf("%s ~%dt", state, p.tokens))
}

func (p *SessionPanel) refresh(gotoBottom bool) {
	width := max(p.viewport.Width, 1)
	if p.snap == nil {
		p.viewport.SetContent(systemStyle.Width(width).Render("Run `triptych panel set " + fmt.Sprint(p.slot) + "` to configure."))
		return
	}

	blocks := make([]string, 0, len(p.snap.Messages))
	for _, m := range p.snap.Messages {
		blocks = append(blocks, renderMessage(m, width))
	}
	p.viewport.SetContent(strings.Join(blocks, "\n\n"))
	if gotoBottom {
		p.viewport.GotoBottom()
	}
}

func renderMessage(m provider.Message, width int) string {
	wrap := lipgloss.NewStyle().Width(width)
	switch {
	case m.Role == provider.RoleUser:
		return userMsgStyle.Width(width).Render("> " + m.Content)
	case m.Role == provider.RoleSystem:
		return systemStyle.Width(width).Render(m.Content)
	case session.IsErrorContent(m.Content):
		return errorMsgStyle.Width(width).Render(m.Content)
	default:
		return wrap.Render(m.Content)
	}
}
