package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/linanwx/triptych/bus"
	"github.com/linanwx/triptych/transcript"
)

var askHTML string

var askCmd = &cobra.Command{
	Use:   "ask <prompt>",
	Short: "Send one prompt to every panel and print the replies",
	Long: `Send a single prompt to all configured panels, wait until every panel has
settled, then print the transcript as Markdown.

Examples:
  triptych ask "Explain CRDTs in two sentences"
  triptych ask --html out.html "Compare quicksort and mergesort"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().StringVar(&askHTML, "html", "", "Also write the transcript as HTML to this file")
	rootCmd.AddCommand(askCmd)
}

func runAsk(_ *cobra.Command, args []string) error {
	rt := newRuntime(appConfig)
	defer rt.close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	subID := rt.events.Subscribe(bus.EventSessionSettled, func(_ context.Context, ev *bus.Event) {
		var data bus.SessionSettledData
		if err := ev.ParseData(&data); err != nil {
			return
		}
		line := fmt.Sprintf("panel %d %s: %d fragments in %dms", data.Slot, data.State, data.Fragments, data.LatencyMs)
		if data.Error != "" {
			line += " (" + data.Error + ")"
		}
		fmt.Fprintln(os.Stderr, line)
	})
	defer rt.events.Unsubscribe(subID)

	report, err := rt.dispatcher.SendTurn(ctx, strings.Join(args, " "))
	if err != nil {
		return err
	}
	rt.events.Flush()

	snapshots := rt.sessions.Snapshots()
	fmt.Print(transcript.Markdown(snapshots))

	if askHTML != "" {
		html, err := transcript.HTML(snapshots)
		if err != nil {
			return err
		}
		if err := os.WriteFile(askHTML, []byte(html), 0o644); err != nil {
			return fmt.Errorf("write %s: %w", askHTML, err)
		}
		fmt.Fprintln(os.Stderr, "HTML transcript written to", askHTML)
	}

	if failed := report.Failed(); failed == len(report.Results) {
		return fmt.Errorf("all %d panels failed", failed)
	}
	return nil
}
