package channel

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/linanwx/triptych/bus"
	"github.com/linanwx/triptych/channel/tui"
	"github.com/linanwx/triptych/dispatch"
	"github.com/linanwx/triptych/logger"
	"github.com/linanwx/triptych/session"
)

const tuiChannelName = "tui"

// TUIChannel runs the three-panel terminal UI.
type TUIChannel struct {
	deps    Deps
	app     *tui.App
	program *tea.Program
	subID   string

	cancel   context.CancelFunc
	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
	doneOnce sync.Once
}

// NewTUIChannel creates the terminal channel.
func NewTUIChannel(deps Deps) *TUIChannel {
	return &TUIChannel{
		deps: deps,
		done: make(chan struct{}),
	}
}

func (c *TUIChannel) Name() string { return tuiChannelName }

func (c *TUIChannel) Done() <-chan struct{} { return c.done }

func (c *TUIChannel) Start(ctx context.Context) error {
	ctx, c.cancel = context.WithCancel(ctx)

	c.app = tui.NewApp(c.deps.Sessions.Snapshots())
	c.program = tea.NewProgram(c.app, tea.WithAltScreen(), tea.WithMouseCellMotion())

	// Redirect logger output to the TUI log pane.
	logger.Intercept(&logWriter{program: c.program})

	if c.deps.Bus != nil {
		c.subID = c.deps.Bus.Subscribe("", c.forward)
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		if _, err := c.program.Run(); err != nil {
			fmt.Fprintf(os.Stderr, "tui error: %v\n", err)
		}
		c.finish()
	}()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.readInput(ctx)
	}()

	logger.Info("tui channel started", "panels", len(c.deps.Sessions.Active()))
	return nil
}

func (c *TUIChannel) Stop() error {
	c.stopOnce.Do(func() {
		if c.cancel != nil {
			c.cancel()
		}
		if c.deps.Bus != nil && c.subID != "" {
			c.deps.Bus.Unsubscribe(c.subID)
		}
		if c.program != nil {
			c.program.Quit()
		}
		c.finish()
		c.wg.Wait()
		logger.Restore()
		logger.Info("tui channel stopped")
	})
	return nil
}

func (c *TUIChannel) finish() {
	c.doneOnce.Do(func() { close(c.done) })
}

func (c *TUIChannel) readInput(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case text := <-c.app.InputCh:
			if c.handleCommand(text) {
				continue
			}
			c.wg.Add(1)
			go func() {
				defer c.wg.Done()
				c.runTurn(ctx, text)
			}()
		}
	}
}

// handleCommand runs slash commands and reports whether text was one.
func (c *TUIChannel) handleCommand(text string) bool {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return true
	}
	switch fields[0] {
	case "/quit", "/exit", "exit", "quit":
		c.program.Quit()
	case "/reset":
		if err := resetLogs(c.deps); err != nil {
			c.program.Send(tui.NoticeMsg{Text: "reset failed: " + err.Error()})
			return true
		}
		c.program.Send(tui.NoticeMsg{Text: "All panels cleared."})
	case "/export":
		path, err := exportTranscript(c.deps, strings.TrimSpace(strings.TrimPrefix(text, "/export")))
		if err != nil {
			c.program.Send(tui.NoticeMsg{Text: "export failed: " + err.Error()})
			return true
		}
		c.program.Send(tui.NoticeMsg{Text: "Transcript written to " + path})
	case "/help":
		c.program.Send(tui.NoticeMsg{Text: commandHelp})
	default:
		if strings.HasPrefix(fields[0], "/") {
			c.program.Send(tui.NoticeMsg{Text: "unknown command " + fields[0] + "; " + commandHelp})
			return true
		}
		return false
	}
	return true
}

func (c *TUIChannel) runTurn(ctx context.Context, text string) {
	report, err := c.deps.Dispatcher.SendTurn(ctx, text)
	if err != nil {
		if errors.Is(err, dispatch.ErrNoSessions) {
			err = fmt.Errorf("%w; run `triptych panel set 1` first", err)
		}
		c.program.Send(tui.TurnDoneMsg{Err: err})
		return
	}
	c.program.Send(tui.TurnDoneMsg{Failed: report.Failed()})
}

// forward relays bus events to the bubbletea program.
func (c *TUIChannel) forward(_ context.Context, event *bus.Event) {
	switch event.Type {
	case bus.EventSessionSnapshot:
		var snap session.Snapshot
		if err := event.ParseData(&snap); err != nil {
			logger.Warn("bad snapshot event", "err", err)
			return
		}
		c.program.Send(tui.NewSnapshotMsg(snap))
	case bus.EventTurnStarted:
		var data bus.TurnStartedData
		if err := event.ParseData(&data); err != nil {
			logger.Warn("bad turn event", "err", err)
			return
		}
		c.program.Send(tui.TurnStartedMsg{Slots: data.Sessions})
	}
}

// logWriter implements io.Writer and sends each write as a LogLineMsg to the TUI.
type logWriter struct {
	program *tea.Program
}

func (w *logWriter) Write(p []byte) (int, error) {
	// Split on newlines in case a single write contains multiple lines.
	lines := bytes.Split(p, []byte("\n"))
	for _, line := range lines {
		if len(line) == 0 {
			continue
		}
		w.program.Send(tui.LogLineMsg{Line: string(line)})
	}
	return len(p), nil
}
