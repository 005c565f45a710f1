package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/linanwx/triptych/channel"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the panels over a websocket",
	Long: `Serve the configured panels without a terminal UI.

Clients connect to ws://<addr>/ws and send {"type":"turn","text":"..."} or
{"type":"reset"}. Every snapshot and turn event is pushed back as JSON.
GET /api/sessions returns the current panel logs and GET /api/health a
health snapshot.

Examples:
  triptych serve
  triptych serve --addr 0.0.0.0:8787`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default from config, 127.0.0.1:8787)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(_ *cobra.Command, _ []string) error {
	rt := newRuntime(appConfig)
	defer rt.close()

	addr := appConfig.Web.Addr
	if a := strings.TrimSpace(serveAddr); a != "" {
		addr = a
	}

	web := channel.NewWebChannel(channel.WebConfig{Addr: addr}, rt.deps())
	manager := channel.NewManager()
	manager.Register(web)

	fmt.Printf("triptych is serving %d panel(s). Press Ctrl+C to stop.\n", len(rt.sessions.Active()))
	return runChannels(manager)
}
