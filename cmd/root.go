// Package cmd implements the triptych command line.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/linanwx/triptych/config"
	"github.com/linanwx/triptych/logger"
)

var (
	configDirFlag string

	// appConfig is loaded once per invocation before any command runs.
	appConfig *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "triptych",
	Short: "Ask up to three language models at once and compare their replies",
	Long: `triptych sends every message to up to three independently configured
model panels (OpenAI, Anthropic, Google) and streams their replies side by side.

Configure panels with 'triptych panel set <slot>', then run 'triptych' to chat.`,
	SilenceUsage:      true,
	PersistentPreRunE: loadRuntimeConfig,
	RunE:              runChat,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configDirFlag, "config-dir", "", "Configuration directory (default ~/.triptych)")
	rootCmd.Flags().BoolVar(&chatWeb, "web", false, "Also serve the websocket channel")
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadRuntimeConfig(_ *cobra.Command, _ []string) error {
	config.SetConfigDir(configDirFlag)

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	appConfig = cfg

	configDir, err := config.ConfigDir()
	if err != nil {
		return err
	}
	if err := logger.Init(cfg.BuildLoggerConfig(), configDir); err != nil {
		fmt.Fprintln(os.Stderr, "logger init error:", err)
	}
	config.LoadEnv()
	return nil
}
