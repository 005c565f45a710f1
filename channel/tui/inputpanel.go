package tui

import (
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
)

// InputPanel provides a single-line text input. While locked, Enter only
// submits slash commands; the prompt text stays in place.
type InputPanel struct {
	input         textinput.Model
	locked        bool
	width, height int
}

// NewInputPanel creates an input panel with the given prompt.
func NewInputPanel(prompt string) *InputPanel {
	ti := textinput.New()
	ti.Prompt = prompt
	ti.Placeholder = "Ask all panels... (/help for commands)"
	ti.Focus()
	return &InputPanel{input: ti}
}

// SetLocked blocks or unblocks turn submission.
func (p *InputPanel) SetLocked(locked bool) {
	p.locked = locked
	if locked {
		p.input.Placeholder = "Waiting for every panel to finish..."
	} else {
		p.input.Placeholder = "Ask all panels... (/help for commands)"
	}
}

func (p *InputPanel) Update(msg tea.Msg) (Panel, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.Type == tea.KeyEnter {
			text := strings.TrimSpace(p.input.Value())
			if text == "" {
				return p, nil
			}
			if p.locked && !strings.HasPrefix(text, "/") {
				return p, func() tea.Msg { return NoticeMsg{Text: "A turn is in flight; wait for every panel to settle."} }
			}
			p.input.Reset()
			return p, func() tea.Msg { return InputSubmitMsg{Text: text} }
		}
	}
	var cmd tea.Cmd
	p.input, cmd = p.input.Update(msg)
	return p, cmd
}

func (p *InputPanel) View() string {
	return p.input.View()
}

func (p *InputPanel) SetSize(width, height int) {
	p.width = width
	p.height = height
	p.input.Width = width - len(p.input.Prompt) - 1
}
