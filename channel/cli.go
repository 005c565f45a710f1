package channel

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/mattn/go-isatty"

	"github.com/linanwx/triptych/logger"
	"github.com/linanwx/triptych/provider"
	"github.com/linanwx/triptych/transcript"
)

const cliChannelName = "cli"

// StdinIsTerminal reports whether the process can run the full-screen UI.
func StdinIsTerminal() bool {
	fd := os.Stdin.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// NewInteractiveChannel returns the TUI when stdin is a terminal and the
// line-oriented channel otherwise.
func NewInteractiveChannel(deps Deps) Channel {
	if StdinIsTerminal() {
		return NewTUIChannel(deps)
	}
	return NewCLIChannel(deps, os.Stdin, os.Stdout)
}

// CLIChannel reads one turn per input line and prints every panel's reply
// once the turn settles. It ends on EOF or a quit command.
type CLIChannel struct {
	deps   Deps
	in     io.Reader
	out    io.Writer
	prompt string

	cancel   context.CancelFunc
	done     chan struct{}
	doneOnce sync.Once
}

// NewCLIChannel creates a line channel over in and out.
func NewCLIChannel(deps Deps, in io.Reader, out io.Writer) *CLIChannel {
	return &CLIChannel{
		deps:   deps,
		in:     in,
		out:    out,
		prompt: "triptych> ",
		done:   make(chan struct{}),
	}
}

func (c *CLIChannel) Name() string { return cliChannelName }

func (c *CLIChannel) Done() <-chan struct{} { return c.done }

func (c *CLIChannel) Start(ctx context.Context) error {
	ctx, c.cancel = context.WithCancel(ctx)
	logger.Info("cli channel started (plain mode)")

	go func() {
		defer c.finish()
		c.readInput(ctx)
	}()
	return nil
}

// Stop cancels a running turn. A read blocked on stdin is abandoned.
func (c *CLIChannel) Stop() error {
	if c.cancel != nil {
		c.cancel()
	}
	c.finish()
	logger.Info("cli channel stopped")
	return nil
}

func (c *CLIChannel) finish() {
	c.doneOnce.Do(func() { close(c.done) })
}

func (c *CLIChannel) readInput(ctx context.Context) {
	scanner := bufio.NewScanner(c.in)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	for {
		if ctx.Err() != nil {
			return
		}
		fmt.Fprint(c.out, c.prompt)
		if !scanner.Scan() {
			fmt.Fprintln(c.out)
			return
		}

		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		if strings.HasPrefix(text, "/") || text == "exit" || text == "quit" {
			if quit := c.handleCommand(text); quit {
				fmt.Fprintln(c.out, "Goodbye!")
				return
			}
			continue
		}
		c.runTurn(ctx, text)
	}
}

func (c *CLIChannel) handleCommand(text string) bool {
	fields := strings.Fields(text)
	switch fields[0] {
	case "/quit", "/exit", "exit", "quit":
		return true
	case "/reset":
		if err := resetLogs(c.deps); err != nil {
			fmt.Fprintln(c.out, "reset failed:", err)
			return false
		}
		fmt.Fprintln(c.out, "All panels cleared.")
	case "/export":
		path := ""
		if len(fields) > 1 {
			path = fields[1]
		}
		written, err := exportTranscript(c.deps, path)
		if err != nil {
			fmt.Fprintln(c.out, "export failed:", err)
			return false
		}
		fmt.Fprintln(c.out, "Transcript written to", written)
	case "/help":
		fmt.Fprintln(c.out, commandHelp)
	default:
		fmt.Fprintf(c.out, "unknown command %s (%s)\n", fields[0], commandHelp)
	}
	return false
}

func (c *CLIChannel) runTurn(ctx context.Context, text string) {
	report, err := c.deps.Dispatcher.SendTurn(ctx, text)
	if err != nil {
		fmt.Fprintln(c.out, "error:", err)
		return
	}

	fmt.Fprintln(c.out)
	for _, res := range report.Results {
		s, ok := c.deps.Sessions.Get(res.Slot)
		if !ok {
			continue
		}
		snap := s.Snapshot()
		fmt.Fprintf(c.out, "== %s ==\n", transcript.Heading(snap))
		if n := len(snap.Messages); n > 0 && snap.Messages[n-1].Role != provider.RoleUser {
			fmt.Fprintln(c.out, snap.Messages[n-1].Content)
		} else if res.Err != nil {
			fmt.Fprintln(c.out, "Error:", res.Err)
		}
		fmt.Fprintln(c.out)
	}
}
