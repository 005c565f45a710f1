package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/linanwx/triptych/channel"
	"github.com/linanwx/triptych/logger"
)

var chatWeb bool

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Open the three-panel terminal chat (default command)",
	Long: `Open the terminal UI. Every message is sent to all configured panels at
once; input is blocked until every panel has finished replying. When stdin is
not a terminal, each input line is one turn and replies are printed as plain
text once every panel has settled.

Commands inside the chat:
  /reset            clear every panel
  /export [file]    save a transcript (.md or .html)
  /quit             exit`,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().BoolVar(&chatWeb, "web", false, "Also serve the websocket channel")
	rootCmd.AddCommand(chatCmd)
}

func runChat(_ *cobra.Command, _ []string) error {
	rt := newRuntime(appConfig)
	defer rt.close()

	manager := channel.NewManager()
	if chatWeb {
		manager.Register(channel.NewWebChannel(channel.WebConfig{Addr: appConfig.Web.Addr}, rt.deps()))
	}
	manager.Register(channel.NewInteractiveChannel(rt.deps()))

	return runChannels(manager)
}

// runChannels starts every channel and blocks until a signal arrives or a
// channel ends on its own.
func runChannels(manager *channel.Manager) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	if err := manager.StartAll(ctx); err != nil {
		_ = manager.StopAll()
		return fmt.Errorf("failed to start channels: %w", err)
	}

	select {
	case <-sigChan:
		logger.Info("shutdown signal received")
	case <-manager.Done():
	}
	cancel()

	if err := manager.StopAll(); err != nil {
		logger.Error("error stopping channels", "err", err)
	}
	return nil
}
