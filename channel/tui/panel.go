// Package tui provides the three-panel terminal interface.
package tui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/linanwx/triptych/session"
)

// Panel is a composable TUI region with its own state, update logic, and view.
// The root App model orchestrates panels without knowing their internals.
type Panel interface {
	Update(tea.Msg) (Panel, tea.Cmd)
	View() string
	SetSize(width, height int)
}

// LogLineMsg carries a single log line from the logger writer.
type LogLineMsg struct{ Line string }

// SnapshotMsg carries the latest log of one session and its prompt size.
type SnapshotMsg struct {
	Snapshot session.Snapshot
	Tokens   int
}

// NewSnapshotMsg estimates the prompt size of snap. Estimation can log, so
// it must run outside the bubbletea event loop.
func NewSnapshotMsg(snap session.Snapshot) SnapshotMsg {
	return SnapshotMsg{Snapshot: snap, Tokens: session.EstimateTokens(snap.Messages, "")}
}

// TurnStartedMsg is sent when the dispatcher has appended the user message
// everywhere and the requests are starting.
type TurnStartedMsg struct{ Slots []int }

// TurnDoneMsg is sent when a submitted turn has settled or was rejected.
type TurnDoneMsg struct {
	Failed int
	Err    error
}

// NoticeMsg shows a one-line status message above the input.
type NoticeMsg struct{ Text string }

// InputSubmitMsg is emitted when the user presses Enter in the input panel.
type InputSubmitMsg struct{ Text string }
